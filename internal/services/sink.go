package services

import (
	"context"

	"github.com/rs/zerolog"

	"jira-snapshot/internal/logging"
	"jira-snapshot/internal/metrics"
	"jira-snapshot/internal/models"
	"jira-snapshot/internal/repositories"
)

// UpsertSink writes normalized issues into the local snapshot, keyed by issue key
type UpsertSink struct {
	repo    *repositories.IssueRepository
	metrics *metrics.SyncMetrics
	logger  zerolog.Logger
}

// NewUpsertSink creates a sink over an open issue repository
func NewUpsertSink(repo *repositories.IssueRepository, m *metrics.SyncMetrics) *UpsertSink {
	return &UpsertSink{
		repo:    repo,
		metrics: m,
		logger:  logging.NewLogger("sink"),
	}
}

// EnsureSchema creates the destination table if it does not exist
func (s *UpsertSink) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureSchema(ctx)
}

// Persist upserts every issue in one transaction. An issue that cannot be
// stored is logged and skipped; the others are still committed. The report
// holds one result per issue, in input order.
func (s *UpsertSink) Persist(ctx context.Context, issues []models.Issue) (*models.PersistReport, error) {
	report := &models.PersistReport{Results: make([]models.UpsertResult, 0, len(issues))}
	if len(issues) == 0 {
		return report, nil
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return report, err
	}
	defer tx.Rollback()

	for _, issue := range issues {
		err := tx.UpsertIssue(ctx, issue)
		report.Attempted++
		if err != nil {
			report.Failed++
			s.logger.Error().Err(err).Str("key", issue.Key).Msg("Skipping issue that could not be stored")
		} else {
			report.Succeeded++
		}
		report.Results = append(report.Results, models.UpsertResult{Key: issue.Key, Err: err})
	}

	if err := tx.Commit(); err != nil {
		// nothing from this batch reached the database
		for i := range report.Results {
			if report.Results[i].Err == nil {
				report.Results[i].Err = err
			}
		}
		report.Failed = report.Attempted
		report.Succeeded = 0
		s.observe(report)
		return report, err
	}

	s.observe(report)
	s.logger.Info().
		Int("attempted", report.Attempted).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("Stored issues")
	return report, nil
}

func (s *UpsertSink) observe(report *models.PersistReport) {
	for _, res := range report.Results {
		s.metrics.ObserveUpsert(res.Err)
	}
}
