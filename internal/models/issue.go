package models

import (
	"errors"
	"time"
)

// ErrMissingKey is returned when an issue has no key to upsert on
var ErrMissingKey = errors.New("issue key is required")

// Issue is the flat, normalized shape of a JIRA issue.
// Every field is a plain string; absent source values are empty strings.
type Issue struct {
	Key          string `json:"key"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	Assignee     string `json:"assignee"`
	Creator      string `json:"creator"`
	CreationTime string `json:"creation_time"`
	FixVersion   string `json:"fix_version"`
}

// Validate checks the issue can be stored
func (i Issue) Validate() error {
	if i.Key == "" {
		return ErrMissingKey
	}
	return nil
}

// StoredIssue is an issue row as kept in the local snapshot
type StoredIssue struct {
	ID int64 `json:"id"`
	Issue
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotStats summarizes the contents of the local snapshot
type SnapshotStats struct {
	Path           string    `json:"path"`
	IssueCount     int       `json:"issue_count"`
	NewestCreation string    `json:"newest_creation"`
	LastIngested   time.Time `json:"last_ingested"`
}
