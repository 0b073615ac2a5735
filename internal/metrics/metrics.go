// Package metrics collects per-run sync metrics on a private Prometheus registry.
//
// A sync is a short-lived batch job, so nothing is served over HTTP. The
// registry is written once at the end of a run in the text exposition format,
// ready for the node_exporter textfile collector.
//
// Metrics:
//   - jira_snapshot_pages_fetched_total (Counter): search pages returned by JIRA
//   - jira_snapshot_issues_fetched_total (Counter): issues normalized from those pages
//   - jira_snapshot_page_errors_total (Counter): page requests that failed and ended the fetch
//   - jira_snapshot_issues_upserted_total{result} (Counter): upserts by result (success, failure)
//   - jira_snapshot_sync_duration_seconds (Gauge): wall time of the last run
//   - jira_snapshot_last_success_timestamp_seconds (Gauge): end of the last complete run
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jira_snapshot"

// Result label values for IssuesUpserted
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// SyncMetrics groups the collectors of one sync run
type SyncMetrics struct {
	Registry *prometheus.Registry

	PagesFetched   prometheus.Counter
	IssuesFetched  prometheus.Counter
	PageErrors     prometheus.Counter
	IssuesUpserted *prometheus.CounterVec
	SyncDuration   prometheus.Gauge
	LastSuccess    prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry
func New() *SyncMetrics {
	m := &SyncMetrics{
		Registry: prometheus.NewRegistry(),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Search result pages returned by JIRA.",
		}),
		IssuesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_fetched_total",
			Help:      "Issues normalized from fetched pages.",
		}),
		PageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_errors_total",
			Help:      "Page requests that failed and stopped the fetch.",
		}),
		IssuesUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_upserted_total",
			Help:      "Issue upserts into the local snapshot by result.",
		}, []string{"result"}),
		SyncDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of the last sync run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time at which the last complete sync finished.",
		}),
	}

	m.Registry.MustRegister(
		m.PagesFetched,
		m.IssuesFetched,
		m.PageErrors,
		m.IssuesUpserted,
		m.SyncDuration,
		m.LastSuccess,
	)
	return m
}

// ObservePage counts one fetched page and the issues it held
func (m *SyncMetrics) ObservePage(issues int) {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
	m.IssuesFetched.Add(float64(issues))
}

// ObservePageError counts a failed page request
func (m *SyncMetrics) ObservePageError() {
	if m == nil {
		return
	}
	m.PageErrors.Inc()
}

// ObserveUpsert counts one upsert outcome
func (m *SyncMetrics) ObserveUpsert(err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.IssuesUpserted.WithLabelValues(result).Inc()
}

// ObserveRun records the duration of a run and, when it completed, its end time
func (m *SyncMetrics) ObserveRun(started time.Time, complete bool) {
	if m == nil {
		return
	}
	now := time.Now()
	m.SyncDuration.Set(now.Sub(started).Seconds())
	if complete {
		m.LastSuccess.Set(float64(now.Unix()))
	}
}

// WriteTextfile writes the registry to path in the Prometheus text format
func (m *SyncMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
