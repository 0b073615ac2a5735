package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"jira-snapshot/internal/config"
	"jira-snapshot/internal/helpers"
	"jira-snapshot/internal/logging"
	"jira-snapshot/internal/metrics"
	"jira-snapshot/internal/models"
	"jira-snapshot/internal/repositories"
	"jira-snapshot/internal/services"

	"github.com/spf13/cobra"
)

// options holds the flag values of one invocation
type options struct {
	configFile string
	logLevel   string
	logFile    string
	logJSON    bool

	project     string
	limit       int
	dbPath      string
	metricsFile string
	output      string
	force       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		helpers.PrintError("Error: %v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	var rootCmd = &cobra.Command{
		Use:   "jira-snapshot",
		Short: "Jira Snapshot - keep an offline SQLite copy of a JIRA project's issues",
		Long: `Jira Snapshot fetches the issues of a JIRA project page by page and
upserts them into a local SQLite database keyed by issue key, so the
project can be queried offline.

Settings come from the config file, a .env file and the environment
(JIRA_SERVER_URL, JIRA_USERNAME, JIRA_API_TOKEN, JIRA_PROJECT_KEY,
JIRA_FETCH_LIMIT, JIRA_DB_PATH); flags override both.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "config.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Also write JSON logs to this file, rotated by size")
	rootCmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON instead of console text")

	// Init command
	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}
	initCmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing configuration file without asking")
	rootCmd.AddCommand(initCmd)

	// Check command
	var checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Verify JIRA credentials and project access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}
	checkCmd.Flags().StringVarP(&opts.project, "project", "p", "", "JIRA project key (overrides config)")
	rootCmd.AddCommand(checkCmd)

	// Sync command
	var syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Fetch the project's issues and upsert them into the snapshot",
		Long: `Fetch the project's issues, newest created first, and upsert them into
the SQLite snapshot. With --limit only the most recently created issues
are fetched. If a page request fails the issues fetched before it are
still stored and the command exits with an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}
	syncCmd.Flags().StringVarP(&opts.project, "project", "p", "", "JIRA project key (overrides config)")
	syncCmd.Flags().IntVarP(&opts.limit, "limit", "l", 0, "Maximum number of issues to fetch, 0 for all (overrides config)")
	syncCmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	syncCmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	rootCmd.AddCommand(syncCmd)

	// Status command
	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show what the local snapshot contains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}
	statusCmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.AddCommand(statusCmd)

	// Export command
	var exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write the local snapshot to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}
	exportCmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	exportCmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default jira-issues-<timestamp>.json)")
	rootCmd.AddCommand(exportCmd)

	// Show command
	var showCmd = &cobra.Command{
		Use:   "show ISSUE-KEY",
		Short: "Print one stored issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, opts, args[0])
		},
	}
	showCmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.AddCommand(showCmd)

	return rootCmd
}

// loadConfig loads the configuration, applies flag overrides and sets up logging.
// The returned cleanup closes the log file.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, func(), error) {
	cfg, err := config.LoadConfig(opts.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if opts.project != "" {
		cfg.Jira.ProjectKey = opts.project
	}
	if flags.Changed("limit") {
		cfg.Sync.Limit = opts.limit
	}
	if opts.dbPath != "" {
		cfg.Storage.DBPath = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFile != "" {
		cfg.Logging.File = opts.logFile
	}
	if opts.logJSON {
		cfg.Logging.JSON = true
	}

	_, closer := logging.Setup(logging.Config{
		Level:   cfg.Logging.Level,
		JSON:    cfg.Logging.JSON,
		NoColor: !helpers.IsTerminal(),
		File:    cfg.Logging.File,
		Output:  cmd.ErrOrStderr(),
	})
	return cfg, func() { _ = closer.Close() }, nil
}

func runInit(cmd *cobra.Command, opts *options) error {
	helpers.PrintTitle("Initializing Jira Snapshot Configuration")

	if helpers.FileExists(opts.configFile) && !opts.force {
		helpers.PrintInfo("Configuration file already exists at %s", opts.configFile)
		if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Do you want to overwrite it? (y/N): ") {
			helpers.PrintInfo("Configuration initialization cancelled.")
			return nil
		}
	}

	data, err := config.Sample().Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.configFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	helpers.PrintSuccess("Configuration file created at %s", opts.configFile)
	helpers.PrintWarning("Edit it and add your JIRA credentials before running the sync command.")
	return nil
}

func runCheck(cmd *cobra.Command, opts *options) error {
	cfg, cleanup, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	helpers.PrintInfo("Testing JIRA authentication against %s...", cfg.Jira.BaseURL)
	project, err := services.NewJiraService(&cfg.Jira).CheckAccess(cmd.Context())
	if err != nil {
		return err
	}

	helpers.PrintSuccess("JIRA connection successful, project %s (%s) is accessible", project.Key, project.Name)
	return nil
}

func runSync(cmd *cobra.Command, opts *options) (err error) {
	cfg, cleanup, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	// no network or store activity before the settings are complete
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	helpers.PrintTitle("Syncing JIRA project %s", cfg.Jira.ProjectKey)
	helpers.PrintInfo("Snapshot: %s", cfg.Storage.DBPath)

	store, err := repositories.OpenIssueRepository(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	m := metrics.New()
	if opts.metricsFile != "" {
		defer func() {
			if writeErr := m.WriteTextfile(opts.metricsFile); writeErr != nil {
				helpers.PrintWarning("%v", writeErr)
			}
		}()
	}

	jiraService := services.NewJiraService(&cfg.Jira)
	syncService := services.NewSyncService(
		jiraService,
		services.NewIssueFetcher(jiraService.Repository(), cfg.Sync.PageSize, m),
		services.NewUpsertSink(store, m),
		m,
	)

	report, err := syncService.Run(cmd.Context(), cfg.Jira.ProjectKey, cfg.Sync.Limit)
	services.DisplaySyncReport(report)
	if err != nil {
		if errors.Is(err, services.ErrPartialFetch) && report.Persist != nil {
			helpers.PrintWarning("Stored %d issues before the failure", report.Persist.Succeeded)
		}
		return err
	}

	helpers.PrintSuccess("Sync completed successfully!")
	return nil
}

func runStatus(cmd *cobra.Command, opts *options) error {
	cfg, cleanup, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if !helpers.FileExists(cfg.Storage.DBPath) {
		helpers.PrintWarning("Snapshot not initialized at %s", cfg.Storage.DBPath)
		helpers.PrintInfo("Run 'jira-snapshot sync' to create it")
		return nil
	}

	stats, err := withStore(cmd.Context(), cfg.Storage.DBPath, func(ctx context.Context, store *repositories.IssueRepository) (*models.SnapshotStats, error) {
		return store.Stats(ctx)
	})
	if err != nil {
		return err
	}

	helpers.PrintTitle("Snapshot Status")
	helpers.PrintSeparator()
	helpers.PrintField("Location", stats.Path)
	helpers.PrintField("Issues", stats.IssueCount)
	if stats.IssueCount > 0 {
		helpers.PrintField("Newest issue", stats.NewestCreation)
		helpers.PrintField("Last ingested", stats.LastIngested.Local().Format(time.DateTime))
	}
	return nil
}

func runExport(cmd *cobra.Command, opts *options) error {
	cfg, cleanup, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if !helpers.FileExists(cfg.Storage.DBPath) {
		return fmt.Errorf("snapshot not found at %s", cfg.Storage.DBPath)
	}

	issues, err := withStore(cmd.Context(), cfg.Storage.DBPath, func(ctx context.Context, store *repositories.IssueRepository) ([]models.StoredIssue, error) {
		return store.ListIssues(ctx)
	})
	if err != nil {
		return err
	}
	if issues == nil {
		issues = []models.StoredIssue{}
	}

	output := opts.output
	if output == "" {
		output = helpers.GenerateOutputFilename("jira-issues", "json", time.Now())
	}
	if err := helpers.SaveJSON(issues, output); err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}

	helpers.PrintSuccess("Exported %d issues to %s", len(issues), output)
	return nil
}

func runShow(cmd *cobra.Command, opts *options, key string) error {
	cfg, cleanup, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if !helpers.FileExists(cfg.Storage.DBPath) {
		return fmt.Errorf("snapshot not found at %s", cfg.Storage.DBPath)
	}

	issue, err := withStore(cmd.Context(), cfg.Storage.DBPath, func(ctx context.Context, store *repositories.IssueRepository) (*models.StoredIssue, error) {
		return store.GetIssue(ctx, key)
	})
	if err != nil {
		return err
	}

	helpers.PrintTitle("%s: %s", issue.Key, issue.Title)
	helpers.PrintSeparator()
	helpers.PrintField("Status", issue.Status)
	helpers.PrintField("Assignee", issue.Assignee)
	helpers.PrintField("Creator", issue.Creator)
	helpers.PrintField("Created", issue.CreationTime)
	helpers.PrintField("Fix version", issue.FixVersion)
	helpers.PrintField("Last ingested", issue.UpdatedAt.Local().Format(time.DateTime))
	if issue.Description != "" {
		helpers.PrintSeparator()
		fmt.Fprintln(helpers.Output, issue.Description)
	}
	return nil
}

// withStore opens the snapshot, ensures its schema, runs fn and closes it
func withStore[T any](ctx context.Context, path string, fn func(context.Context, *repositories.IssueRepository) (T, error)) (T, error) {
	var zero T
	store, err := repositories.OpenIssueRepository(path)
	if err != nil {
		return zero, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return zero, err
	}
	return fn(ctx, store)
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
