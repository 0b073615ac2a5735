package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"jira-snapshot/internal/config"
	"jira-snapshot/internal/logging"
	"jira-snapshot/internal/models"
	"jira-snapshot/internal/repositories"
)

var _ IssueSearcher = (*repositories.JiraRepository)(nil)

// JiraService handles JIRA connectivity checks
type JiraService struct {
	repo   *repositories.JiraRepository
	config *config.JiraConfig
	logger zerolog.Logger
}

// NewJiraService creates a new JIRA service
func NewJiraService(jiraConfig *config.JiraConfig) *JiraService {
	return &JiraService{
		repo:   repositories.NewJiraRepository(jiraConfig),
		config: jiraConfig,
		logger: logging.NewLogger("jira"),
	}
}

// Repository returns the underlying JIRA repository, which serves issue searches
func (s *JiraService) Repository() *repositories.JiraRepository {
	return s.repo
}

// TestConnection verifies the credentials and access to the configured project
func (s *JiraService) TestConnection(ctx context.Context) error {
	_, err := s.CheckAccess(ctx)
	return err
}

// CheckAccess authenticates and loads the configured project
func (s *JiraService) CheckAccess(ctx context.Context) (*models.JiraProjectInfo, error) {
	s.logger.Debug().Str("url", s.config.BaseURL).Msg("Testing JIRA authentication")

	user, err := s.repo.GetMyself(ctx)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	s.logger.Info().Str("user", user.DisplayName).Msg("Authenticated with JIRA")

	project, err := s.repo.GetProjectInfo(ctx, s.config.ProjectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to access project '%s': %w", s.config.ProjectKey, err)
	}
	s.logger.Info().Str("project", project.Key).Str("name", project.Name).Msg("Project is accessible")

	return project, nil
}
