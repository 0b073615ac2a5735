package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"jira-snapshot/internal/logging"
	"jira-snapshot/internal/metrics"
	"jira-snapshot/internal/models"
)

// DefaultPageSize is the number of issues requested per search call
const DefaultPageSize = 50

var (
	ErrEmptyProject = errors.New("project key is required")
	ErrInvalidLimit = errors.New("limit must not be negative")
)

// IssueSearcher runs a JQL query and returns one page of raw issues
type IssueSearcher interface {
	SearchIssues(ctx context.Context, jql string, startAt, maxResults int) ([]models.JiraSearchIssue, error)
}

// PageError reports a page request that failed and ended the fetch.
// The issues gathered before it are still returned alongside the error.
type PageError struct {
	StartAt int
	Fetched int
	Err     error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("failed to fetch page at offset %d (%d issues fetched before): %v", e.StartAt, e.Fetched, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// IssueFetcher walks the paginated search results of a project
type IssueFetcher struct {
	searcher IssueSearcher
	pageSize int
	metrics  *metrics.SyncMetrics
	logger   zerolog.Logger
}

// NewIssueFetcher creates a fetcher; a non-positive pageSize falls back to DefaultPageSize
func NewIssueFetcher(searcher IssueSearcher, pageSize int, m *metrics.SyncMetrics) *IssueFetcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &IssueFetcher{
		searcher: searcher,
		pageSize: pageSize,
		metrics:  m,
		logger:   logging.NewLogger("fetcher"),
	}
}

var jqlEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// ProjectJQL builds the project query, newest issues first so a limit keeps the most recent ones
func ProjectJQL(projectKey string) string {
	return fmt.Sprintf(`project = "%s" ORDER BY created DESC`, jqlEscaper.Replace(projectKey))
}

// Fetch returns the normalized issues of a project in the order JIRA returns them.
// limit 0 fetches everything. A failed page is not retried: the issues fetched
// so far are returned together with a *PageError.
func (f *IssueFetcher) Fetch(ctx context.Context, projectKey string, limit int) ([]models.Issue, error) {
	if projectKey == "" {
		return nil, ErrEmptyProject
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	jql := ProjectJQL(projectKey)
	issues := []models.Issue{}
	startAt := 0

	f.logger.Info().Str("project", projectKey).Int("limit", limit).Int("page_size", f.pageSize).Msg("Fetching issues")

	for {
		requested := f.pageSize
		if limit > 0 {
			requested = min(requested, limit-len(issues))
		}

		page, err := f.fetchPage(ctx, jql, startAt, requested)
		if err != nil {
			f.metrics.ObservePageError()
			f.logger.Warn().Err(err).
				Int("start_at", startAt).
				Int("fetched", len(issues)).
				Msg("Page request failed, keeping issues fetched so far")
			return issues, &PageError{StartAt: startAt, Fetched: len(issues), Err: err}
		}

		if len(page) > requested {
			page = page[:requested]
		}
		for _, raw := range page {
			issues = append(issues, NormalizeIssue(raw))
		}
		f.metrics.ObservePage(len(page))
		f.logger.Debug().
			Int("start_at", startAt).
			Int("requested", requested).
			Int("received", len(page)).
			Int("total", len(issues)).
			Msg("Fetched page")

		if len(page) == 0 {
			break
		}
		if limit > 0 && len(issues) >= limit {
			break
		}
		if len(page) < requested {
			break
		}
		startAt += requested
	}

	f.logger.Info().Str("project", projectKey).Int("total", len(issues)).Msg("Fetch complete")
	return issues, nil
}

func (f *IssueFetcher) fetchPage(ctx context.Context, jql string, startAt, maxResults int) ([]models.JiraSearchIssue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.searcher.SearchIssues(ctx, jql, startAt, maxResults)
}
