package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jira-snapshot/internal/models"
)

var errTransport = errors.New("connection reset by peer")

type searchCall struct {
	startAt    int
	maxResults int
}

// fakeSearcher serves a project of n issues, newest created first
type fakeSearcher struct {
	issues  []models.JiraSearchIssue
	calls   []searchCall
	jqls    []string
	failAt  int // startAt offset that fails; -1 disables
	overrun int // extra issues returned beyond maxResults
}

func newFakeSearcher(n int) *fakeSearcher {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issues := make([]models.JiraSearchIssue, 0, n)
	for i := n; i >= 1; i-- {
		issues = append(issues, models.JiraSearchIssue{
			Key: fmt.Sprintf("PROJ-%d", i),
			Fields: &models.JiraIssueFields{
				Summary: fmt.Sprintf("Issue %d", i),
				Status:  &models.JiraStatus{Name: "Open"},
				Created: base.Add(time.Duration(i) * time.Hour).Format("2006-01-02T15:04:05.000-0700"),
			},
		})
	}
	return &fakeSearcher{issues: issues, failAt: -1}
}

func (f *fakeSearcher) SearchIssues(ctx context.Context, jql string, startAt, maxResults int) ([]models.JiraSearchIssue, error) {
	f.calls = append(f.calls, searchCall{startAt: startAt, maxResults: maxResults})
	f.jqls = append(f.jqls, jql)
	if startAt == f.failAt {
		return nil, errTransport
	}
	if startAt >= len(f.issues) {
		return nil, nil
	}
	end := min(startAt+maxResults+f.overrun, len(f.issues))
	return f.issues[startAt:end], nil
}

func (f *fakeSearcher) requestSizes() []int {
	sizes := make([]int, 0, len(f.calls))
	for _, c := range f.calls {
		sizes = append(sizes, c.maxResults)
	}
	return sizes
}

type fakeConnection struct {
	err error
}

func (f fakeConnection) TestConnection(context.Context) error {
	return f.err
}

func issueKeys(issues []models.Issue) []string {
	keys := make([]string, 0, len(issues))
	for _, issue := range issues {
		keys = append(keys, issue.Key)
	}
	return keys
}

func newestKeys(n, count int) []string {
	keys := make([]string, 0, count)
	for i := n; i > n-count; i-- {
		keys = append(keys, fmt.Sprintf("PROJ-%d", i))
	}
	return keys
}
