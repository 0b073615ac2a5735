package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"jira-snapshot/internal/helpers"
	"jira-snapshot/internal/logging"
	"jira-snapshot/internal/metrics"
	"jira-snapshot/internal/models"
)

var (
	// ErrSourceUnavailable is returned when JIRA cannot be reached or refuses the credentials
	ErrSourceUnavailable = errors.New("JIRA is unavailable")

	// ErrPartialFetch is returned after persisting the issues of an interrupted fetch
	ErrPartialFetch = errors.New("fetch stopped before the last page")
)

// ConnectionTester verifies that the issue source is reachable
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// SyncService runs one fetch-and-store pass for a project
type SyncService struct {
	source  ConnectionTester
	fetcher *IssueFetcher
	sink    *UpsertSink
	metrics *metrics.SyncMetrics
	logger  zerolog.Logger
}

// NewSyncService creates a new sync service
func NewSyncService(source ConnectionTester, fetcher *IssueFetcher, sink *UpsertSink, m *metrics.SyncMetrics) *SyncService {
	return &SyncService{
		source:  source,
		fetcher: fetcher,
		sink:    sink,
		metrics: m,
		logger:  logging.NewLogger("sync"),
	}
}

// Run checks the source, ensures the schema, fetches the project's issues and stores them.
// When a page fails mid-way the issues fetched before it are still stored and
// the returned error wraps ErrPartialFetch. The report is never nil.
func (s *SyncService) Run(ctx context.Context, projectKey string, limit int) (*models.SyncReport, error) {
	report := &models.SyncReport{
		ProjectKey: projectKey,
		Limit:      limit,
		StartedAt:  time.Now(),
	}

	if err := s.source.TestConnection(ctx); err != nil {
		return s.finish(report, fmt.Errorf("%w: %w", ErrSourceUnavailable, err))
	}

	if err := s.sink.EnsureSchema(ctx); err != nil {
		return s.finish(report, err)
	}

	issues, fetchErr := s.fetcher.Fetch(ctx, projectKey, limit)
	report.Fetched = len(issues)
	if fetchErr != nil {
		var pageErr *PageError
		if !errors.As(fetchErr, &pageErr) {
			return s.finish(report, fetchErr)
		}
		report.Partial = true
	}

	if len(issues) == 0 {
		s.logger.Info().Str("project", projectKey).Msg("No issues to store")
	} else {
		// already fetched issues are stored even if the run was cancelled meanwhile
		persist, err := s.sink.Persist(context.WithoutCancel(ctx), issues)
		report.Persist = persist
		if err != nil {
			return s.finish(report, fmt.Errorf("failed to persist issues: %w", err))
		}
	}

	if report.Partial {
		return s.finish(report, fmt.Errorf("%w: %w", ErrPartialFetch, fetchErr))
	}
	return s.finish(report, nil)
}

func (s *SyncService) finish(report *models.SyncReport, err error) (*models.SyncReport, error) {
	report.Duration = time.Since(report.StartedAt)
	s.metrics.ObserveRun(report.StartedAt, err == nil)

	event := s.logger.Info()
	if err != nil {
		event = s.logger.Error().Err(err)
	}
	event.Str("project", report.ProjectKey).
		Int("fetched", report.Fetched).
		Bool("partial", report.Partial).
		Dur("duration", report.Duration).
		Msg("Sync finished")
	return report, err
}

// DisplaySyncReport prints a human readable summary of a run
func DisplaySyncReport(report *models.SyncReport) {
	helpers.PrintTitle("Sync Summary: %s", report.ProjectKey)
	if report.Limit > 0 {
		helpers.PrintInfo("Limit: %d newest issues", report.Limit)
	}
	helpers.PrintInfo("Fetched: %d issues in %s", report.Fetched, report.Duration.Round(time.Millisecond))

	if report.Persist != nil {
		helpers.PrintInfo("Stored: %d of %d", report.Persist.Succeeded, report.Persist.Attempted)
		for _, failure := range report.Persist.Failures() {
			helpers.PrintWarning("Not stored %s: %v", failure.Key, failure.Err)
		}
	}
	if report.Partial {
		helpers.PrintWarning("Fetch was interrupted, the snapshot holds only the issues fetched before the failure")
	}
}
