package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	DefaultTimeoutSeconds = 30
	DefaultDBPath         = "jira_issues.db"
	DefaultPageSize       = 50
	DefaultLogLevel       = "info"
)

// Environment variables that override the config file
const (
	EnvServerURL  = "JIRA_SERVER_URL"
	EnvUsername   = "JIRA_USERNAME"
	EnvAPIToken   = "JIRA_API_TOKEN"
	EnvProjectKey = "JIRA_PROJECT_KEY"
	EnvFetchLimit = "JIRA_FETCH_LIMIT"
	EnvDBPath     = "JIRA_DB_PATH"
)

// ErrMissingSetting is wrapped by Validate for every required setting that is absent
var ErrMissingSetting = errors.New("missing required setting")

// Config represents the application configuration
type Config struct {
	Jira    JiraConfig    `yaml:"jira"`
	Storage StorageConfig `yaml:"storage"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`
}

// JiraConfig represents JIRA API configuration
type JiraConfig struct {
	BaseURL    string `yaml:"base_url"`
	Username   string `yaml:"username"`
	APIToken   string `yaml:"api_token"`
	ProjectKey string `yaml:"project_key"`
	Timeout    int    `yaml:"timeout_seconds"`
}

// StorageConfig represents the local snapshot location
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// SyncConfig represents fetch settings. Limit 0 means no limit.
type SyncConfig struct {
	PageSize int `yaml:"page_size"`
	Limit    int `yaml:"limit"`
}

// LoggingConfig represents structured log settings
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// LoadConfig loads configuration from a YAML file, a .env file and the environment.
// A missing config file is not an error; settings may come from the environment alone.
// The result is not validated, callers apply flag overrides first and then call Validate.
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var config Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyEnv() error {
	setFromEnv(&c.Jira.BaseURL, EnvServerURL)
	setFromEnv(&c.Jira.Username, EnvUsername)
	setFromEnv(&c.Jira.APIToken, EnvAPIToken)
	setFromEnv(&c.Jira.ProjectKey, EnvProjectKey)
	setFromEnv(&c.Storage.DBPath, EnvDBPath)

	if v := os.Getenv(EnvFetchLimit); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvFetchLimit, v, err)
		}
		c.Sync.Limit = limit
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Jira.BaseURL = strings.TrimRight(c.Jira.BaseURL, "/")
	if c.Jira.Timeout == 0 {
		c.Jira.Timeout = DefaultTimeoutSeconds
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = DefaultDBPath
	}
	if c.Sync.PageSize == 0 {
		c.Sync.PageSize = DefaultPageSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

func setFromEnv(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// Validate validates the configuration and reports every missing setting at once
func (c *Config) Validate() error {
	var missing []string
	if c.Jira.BaseURL == "" {
		missing = append(missing, "JIRA base URL ("+EnvServerURL+")")
	}
	if c.Jira.Username == "" {
		missing = append(missing, "JIRA username ("+EnvUsername+")")
	}
	if c.Jira.APIToken == "" {
		missing = append(missing, "JIRA API token ("+EnvAPIToken+")")
	}
	if c.Jira.ProjectKey == "" {
		missing = append(missing, "JIRA project key ("+EnvProjectKey+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}

	if c.Sync.Limit < 0 {
		return fmt.Errorf("sync limit must not be negative, got %d", c.Sync.Limit)
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync page size must be positive, got %d", c.Sync.PageSize)
	}
	if c.Jira.Timeout < 0 {
		return fmt.Errorf("JIRA timeout must not be negative, got %d", c.Jira.Timeout)
	}

	return nil
}

// Sample returns a configuration suitable for writing with the init command
func Sample() *Config {
	return &Config{
		Jira: JiraConfig{
			BaseURL:    "https://your-domain.atlassian.net",
			Username:   "your-email@example.com",
			APIToken:   "your-jira-api-token",
			ProjectKey: "PROJ",
			Timeout:    DefaultTimeoutSeconds,
		},
		Storage: StorageConfig{DBPath: DefaultDBPath},
		Sync:    SyncConfig{PageSize: DefaultPageSize},
		Logging: LoggingConfig{Level: DefaultLogLevel},
	}
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
