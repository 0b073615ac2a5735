package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jira-snapshot/internal/metrics"
	"jira-snapshot/internal/models"
	"jira-snapshot/internal/repositories"
)

func openTestStore(t *testing.T) *repositories.IssueRepository {
	t.Helper()
	repo, err := repositories.OpenIssueRepository(filepath.Join(t.TempDir(), "jira_issues.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestPersistReportsEveryIssue(t *testing.T) {
	repo := openTestStore(t)
	m := metrics.New()
	sink := NewUpsertSink(repo, m)
	ctx := context.Background()
	require.NoError(t, sink.EnsureSchema(ctx))

	issues := []models.Issue{
		{Key: "PROJ-1", Title: "one"},
		{Key: "", Title: "bad data"},
		{Key: "PROJ-3", Title: "three"},
		{Key: "PROJ-4", Title: "four"},
	}
	report, err := sink.Persist(ctx, issues)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Attempted)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 4)
	assert.True(t, report.Results[0].OK())
	assert.ErrorIs(t, report.Results[1].Err, models.ErrMissingKey)
	assert.Len(t, report.Failures(), 1)

	count, err := repo.CountIssues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "the other issues of the batch must be committed")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.IssuesUpserted.WithLabelValues(metrics.ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IssuesUpserted.WithLabelValues(metrics.ResultFailure)))
}

func TestPersistIsIdempotent(t *testing.T) {
	repo := openTestStore(t)
	sink := NewUpsertSink(repo, nil)
	ctx := context.Background()
	require.NoError(t, sink.EnsureSchema(ctx))

	first := []models.Issue{
		{Key: "PROJ-1", Title: "one", Status: "Open", Assignee: "Ada"},
		{Key: "PROJ-2", Title: "two", Status: "Open"},
	}
	_, err := sink.Persist(ctx, first)
	require.NoError(t, err)

	second := []models.Issue{
		{Key: "PROJ-1", Title: "one, renamed", Status: "Done"},
		{Key: "PROJ-2", Title: "two", Status: "Open"},
	}
	report, err := sink.Persist(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)

	count, err := repo.CountIssues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stored, err := repo.GetIssue(ctx, "PROJ-1")
	require.NoError(t, err)
	assert.Equal(t, second[0], stored.Issue, "a later fetch fully replaces the row, including cleared fields")
}

func TestPersistEmptyBatch(t *testing.T) {
	sink := NewUpsertSink(openTestStore(t), nil)

	report, err := sink.Persist(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Empty(t, report.Results)
}

func TestPersistWithoutSchemaFailsEveryIssue(t *testing.T) {
	sink := NewUpsertSink(openTestStore(t), nil)

	report, err := sink.Persist(context.Background(), []models.Issue{{Key: "PROJ-1"}, {Key: "PROJ-2"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	for _, res := range report.Results {
		assert.ErrorContains(t, res.Err, "no such table")
	}
}
