package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jira-snapshot/internal/config"
	"jira-snapshot/internal/helpers"
	"jira-snapshot/internal/models"
	"jira-snapshot/internal/repositories"
	"jira-snapshot/internal/services"
)

// newFakeJira serves total issues of project PROJ, newest created first.
// A search starting at failAt answers 503.
func newFakeJira(t *testing.T, total, failAt int) string {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/myself", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"displayName":"Sync Bot"}`))
	})
	mux.HandleFunc("/rest/api/2/project/PROJ", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"10000","key":"PROJ","name":"Project"}`))
	})
	mux.HandleFunc("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		if failAt >= 0 && startAt == failAt {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var issues []string
		for i := startAt; i < startAt+maxResults && i < total; i++ {
			n := total - i
			created := base.Add(time.Duration(n) * time.Hour).Format("2006-01-02T15:04:05.000-0700")
			issues = append(issues, fmt.Sprintf(
				`{"key":"PROJ-%d","fields":{"summary":"Issue %d","status":{"name":"Open"},"created":%q}}`,
				n, n, created))
		}
		fmt.Fprintf(w, `{"startAt":%d,"maxResults":%d,"total":%d,"issues":[%s]}`,
			startAt, maxResults, total, strings.Join(issues, ","))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

type cliEnv struct {
	dir    string
	config string
	db     string
	out    *bytes.Buffer
}

func newCLIEnv(t *testing.T, serverURL string) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvServerURL, serverURL)
	t.Setenv(config.EnvUsername, "bot@example.com")
	t.Setenv(config.EnvAPIToken, "secret")
	t.Setenv(config.EnvProjectKey, "PROJ")
	t.Setenv(config.EnvFetchLimit, "")
	t.Setenv(config.EnvDBPath, "")

	var out bytes.Buffer
	helpers.SetOutput(&out, &out)
	t.Cleanup(func() { helpers.SetOutput(color.Output, color.Error) })

	return &cliEnv{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		db:     filepath.Join(dir, "issues.db"),
		out:    &out,
	}
}

func (e *cliEnv) run(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", e.config, "--log-level", "error"}, args...))
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(e.out)
	cmd.SetErr(e.out)
	return cmd.Execute()
}

func (e *cliEnv) exported(t *testing.T) []models.StoredIssue {
	t.Helper()
	path := filepath.Join(e.dir, "export.json")
	require.NoError(t, e.run("export", "--db", e.db, "--output", path))

	var issues []models.StoredIssue
	require.NoError(t, helpers.LoadJSON(path, &issues))
	return issues
}

func TestSyncThenExport(t *testing.T) {
	env := newCLIEnv(t, newFakeJira(t, 120, -1))

	require.NoError(t, env.run("sync", "--db", env.db))
	assert.Contains(t, env.out.String(), "Sync completed successfully")

	issues := env.exported(t)
	require.Len(t, issues, 120)
	assert.Equal(t, "PROJ-120", issues[0].Key)
	assert.Equal(t, "Open", issues[0].Status)
	assert.Empty(t, issues[0].Assignee)
}

func TestSyncWithLimit(t *testing.T) {
	env := newCLIEnv(t, newFakeJira(t, 120, -1))
	metricsFile := filepath.Join(env.dir, "sync.prom")

	require.NoError(t, env.run("sync", "--db", env.db, "--limit", "70", "--metrics-file", metricsFile))

	issues := env.exported(t)
	require.Len(t, issues, 70)
	assert.Equal(t, "PROJ-120", issues[0].Key)
	assert.Equal(t, "PROJ-51", issues[69].Key)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "jira_snapshot_issues_fetched_total 70")
}

func TestSyncPartialFetchStoresEarlierPages(t *testing.T) {
	env := newCLIEnv(t, newFakeJira(t, 120, 100))

	err := env.run("sync", "--db", env.db)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrPartialFetch)

	assert.Len(t, env.exported(t), 100)
}

func TestSyncMissingSettingsTouchesNothing(t *testing.T) {
	env := newCLIEnv(t, newFakeJira(t, 10, -1))
	t.Setenv(config.EnvAPIToken, "")

	err := env.run("sync", "--db", env.db)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingSetting)
	assert.NoFileExists(t, env.db)
}

func TestSyncRejectsNegativeLimit(t *testing.T) {
	env := newCLIEnv(t, newFakeJira(t, 10, -1))

	err := env.run("sync", "--db", env.db, "--limit", "-1")
	require.Error(t, err)
	assert.NoFileExists(t, env.db)
}

func TestCheck(t *testing.T) {
	env := newCLIEnv(t, newFakeJira(t, 0, -1))

	require.NoError(t, env.run("check"))
	assert.Contains(t, env.out.String(), "project PROJ (Project) is accessible")
}

func TestStatus(t *testing.T) {
	env := newCLIEnv(t, newFakeJira(t, 5, -1))

	require.NoError(t, env.run("status", "--db", env.db))
	assert.Contains(t, env.out.String(), "Snapshot not initialized")

	require.NoError(t, env.run("sync", "--db", env.db))
	env.out.Reset()
	require.NoError(t, env.run("status", "--db", env.db))
	assert.Contains(t, env.out.String(), "Issues:")
	assert.Contains(t, env.out.String(), "5")
}

func TestShow(t *testing.T) {
	env := newCLIEnv(t, newFakeJira(t, 3, -1))
	require.NoError(t, env.run("sync", "--db", env.db))

	env.out.Reset()
	require.NoError(t, env.run("show", "PROJ-2", "--db", env.db))
	assert.Contains(t, env.out.String(), "PROJ-2: Issue 2")
	assert.Contains(t, env.out.String(), "Open")

	err := env.run("show", "PROJ-404", "--db", env.db)
	require.Error(t, err)
	assert.ErrorIs(t, err, repositories.ErrIssueNotFound)
}

func TestExportMissingSnapshot(t *testing.T) {
	env := newCLIEnv(t, newFakeJira(t, 0, -1))

	err := env.run("export", "--db", env.db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot not found")
}

func TestInitWritesSampleConfig(t *testing.T) {
	env := newCLIEnv(t, "")

	require.NoError(t, env.run("init"))
	cfg, err := config.LoadConfig(env.config)
	require.NoError(t, err)
	assert.Equal(t, config.Sample().Sync.PageSize, cfg.Sync.PageSize)

	// existing file is kept unless confirmed
	require.NoError(t, os.WriteFile(env.config, []byte("jira: {}\n"), 0600))
	require.NoError(t, env.run("init"))
	data, err := os.ReadFile(env.config)
	require.NoError(t, err)
	assert.Equal(t, "jira: {}\n", string(data))

	require.NoError(t, env.run("init", "--force"))
	data, err = os.ReadFile(env.config)
	require.NoError(t, err)
	assert.NotEqual(t, "jira: {}\n", string(data))
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("y\n"), &out, "? "))
	assert.True(t, confirm(strings.NewReader("YES\n"), &out, "? "))
	assert.False(t, confirm(strings.NewReader("\n"), &out, "? "))
	assert.False(t, confirm(strings.NewReader(""), &out, "? "))
	assert.Equal(t, "? ? ? ? ", out.String())
}
