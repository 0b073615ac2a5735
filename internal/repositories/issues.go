package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"jira-snapshot/internal/models"
)

// ErrIssueNotFound is returned when no row exists for a key
var ErrIssueNotFound = errors.New("issue not found")

const issueSchema = `
CREATE TABLE IF NOT EXISTS jira_issues (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	key TEXT UNIQUE NOT NULL CHECK (key <> ''),
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	assignee TEXT NOT NULL DEFAULT '',
	creator TEXT NOT NULL DEFAULT '',
	creation_time TEXT NOT NULL DEFAULT '',
	fix_version TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jira_issues_status ON jira_issues(status);
CREATE INDEX IF NOT EXISTS idx_jira_issues_creation_time ON jira_issues(creation_time);
`

// id and created_at survive a replace, every issue column is overwritten
const upsertIssueSQL = `
INSERT INTO jira_issues (
	key, title, description, status, assignee, creator, creation_time, fix_version
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	status = excluded.status,
	assignee = excluded.assignee,
	creator = excluded.creator,
	creation_time = excluded.creation_time,
	fix_version = excluded.fix_version,
	updated_at = CURRENT_TIMESTAMP
`

const selectIssueColumns = `
SELECT id, key, title, description, status, assignee, creator,
	creation_time, fix_version, created_at, updated_at
FROM jira_issues`

// IssueRepository stores the issue snapshot in a local SQLite database
type IssueRepository struct {
	conn *sql.DB
	path string
}

// OpenIssueRepository opens (creating if needed) the SQLite database at path.
// The caller must call Close when done.
func OpenIssueRepository(path string) (*IssueRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", fileDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// one writer, one run
	conn.SetMaxOpenConns(1)

	return &IssueRepository{conn: conn, path: path}, nil
}

// fileDSN builds a SQLite URI for path, escaping characters such as '#' and '?'
func fileDSN(path string) string {
	dsn := &url.URL{
		Scheme:   "file",
		OmitHost: true,
		Path:     filepath.ToSlash(path),
		RawQuery: "_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)",
	}
	return dsn.String()
}

// Path returns the database file location
func (r *IssueRepository) Path() string {
	return r.path
}

// Close checkpoints the WAL and closes the database
func (r *IssueRepository) Close() error {
	if r.conn == nil {
		return nil
	}

	var checkpointErr error
	if _, err := r.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		checkpointErr = fmt.Errorf("failed to checkpoint WAL: %w", err)
	}

	if err := r.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	r.conn = nil
	return checkpointErr
}

// EnsureSchema creates the issues table and its indexes if they do not exist.
// It never alters or drops an existing table.
func (r *IssueRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.conn.ExecContext(ctx, issueSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Begin starts a write transaction
func (r *IssueRepository) Begin(ctx context.Context) (*IssueTx, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &IssueTx{tx: tx}, nil
}

// IssueTx is a write transaction in which every upsert is isolated by a savepoint
type IssueTx struct {
	tx *sql.Tx
}

// UpsertIssue inserts the issue, or replaces the row with the same key.
// A failing upsert is rolled back to its own savepoint, the transaction stays usable.
func (t *IssueTx) UpsertIssue(ctx context.Context, issue models.Issue) error {
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("invalid issue: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT upsert_issue"); err != nil {
		return fmt.Errorf("failed to open savepoint for %s: %w", issue.Key, err)
	}

	_, err := t.tx.ExecContext(ctx, upsertIssueSQL,
		issue.Key,
		issue.Title,
		issue.Description,
		issue.Status,
		issue.Assignee,
		issue.Creator,
		issue.CreationTime,
		issue.FixVersion,
	)
	if err != nil {
		upsertErr := fmt.Errorf("failed to upsert issue %s: %w", issue.Key, err)
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO upsert_issue"); rbErr != nil {
			return errors.Join(upsertErr, fmt.Errorf("failed to roll back savepoint: %w", rbErr))
		}
		if _, relErr := t.tx.ExecContext(ctx, "RELEASE upsert_issue"); relErr != nil {
			return errors.Join(upsertErr, fmt.Errorf("failed to release savepoint: %w", relErr))
		}
		return upsertErr
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE upsert_issue"); err != nil {
		return fmt.Errorf("failed to release savepoint for %s: %w", issue.Key, err)
	}
	return nil
}

// Commit commits the transaction
func (t *IssueTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (t *IssueTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// GetIssue returns the stored row for key
func (r *IssueRepository) GetIssue(ctx context.Context, key string) (*models.StoredIssue, error) {
	row := r.conn.QueryRowContext(ctx, selectIssueColumns+` WHERE key = ?`, key)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrIssueNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", key, err)
	}
	return issue, nil
}

// ListIssues returns every stored row, newest created first
func (r *IssueRepository) ListIssues(ctx context.Context) ([]models.StoredIssue, error) {
	rows, err := r.conn.QueryContext(ctx, selectIssueColumns+` ORDER BY creation_time DESC, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []models.StoredIssue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, *issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate issues: %w", err)
	}
	return issues, nil
}

// CountIssues returns the number of stored rows
func (r *IssueRepository) CountIssues(ctx context.Context) (int, error) {
	var count int
	if err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM jira_issues`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return count, nil
}

// Stats summarizes the snapshot
func (r *IssueRepository) Stats(ctx context.Context) (*models.SnapshotStats, error) {
	count, err := r.CountIssues(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.SnapshotStats{Path: r.path, IssueCount: count}
	if count == 0 {
		return stats, nil
	}

	var (
		newest       sql.NullString
		lastIngested any
	)
	err = r.conn.QueryRowContext(ctx,
		`SELECT MAX(creation_time), MAX(updated_at) FROM jira_issues`,
	).Scan(&newest, &lastIngested)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot stats: %w", err)
	}

	stats.NewestCreation = newest.String
	if stats.LastIngested, err = parseTimestamp(lastIngested); err != nil {
		return nil, err
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.StoredIssue, error) {
	var (
		issue     models.StoredIssue
		createdAt any
		updatedAt any
	)
	err := row.Scan(
		&issue.ID,
		&issue.Key,
		&issue.Title,
		&issue.Description,
		&issue.Status,
		&issue.Assignee,
		&issue.Creator,
		&issue.CreationTime,
		&issue.FixVersion,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if issue.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if issue.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &issue, nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
}

// parseTimestamp accepts what SQLite's CURRENT_TIMESTAMP produces,
// whether the driver hands it over as text or as time.Time
func parseTimestamp(v any) (time.Time, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", s)
}
