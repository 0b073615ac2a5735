package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jira-snapshot/internal/config"
	"jira-snapshot/internal/models"
)

// searchFields limits the search payload to the fields the snapshot stores
var searchFields = []string{"summary", "description", "status", "assignee", "creator", "created", "fixVersions"}

// JiraRepository handles JIRA API interactions
type JiraRepository struct {
	config *config.JiraConfig
	client *http.Client
}

// NewJiraRepository creates a new JIRA repository
func NewJiraRepository(jiraConfig *config.JiraConfig) *JiraRepository {
	return &JiraRepository{
		config: jiraConfig,
		client: &http.Client{
			Timeout: time.Duration(jiraConfig.Timeout) * time.Second,
		},
	}
}

// APIError is returned when JIRA answers with a non-success status
type APIError struct {
	StatusCode int
	Messages   []string
	Body       string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("JIRA API returned status %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("JIRA API returned status %d: %s", e.StatusCode, e.Body)
}

// GetMyself returns the authenticated user, which verifies the credentials
func (r *JiraRepository) GetMyself(ctx context.Context) (*models.JiraUser, error) {
	var user models.JiraUser
	if err := r.getJSON(ctx, "/rest/api/2/myself", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetProjectInfo gets information about a specific project
func (r *JiraRepository) GetProjectInfo(ctx context.Context, projectKey string) (*models.JiraProjectInfo, error) {
	var project models.JiraProjectInfo
	if err := r.getJSON(ctx, "/rest/api/2/project/"+url.PathEscape(projectKey), nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// SearchIssues runs a JQL query and returns at most maxResults raw issues starting at startAt
func (r *JiraRepository) SearchIssues(ctx context.Context, jql string, startAt, maxResults int) ([]models.JiraSearchIssue, error) {
	query := url.Values{}
	query.Set("jql", jql)
	query.Set("startAt", strconv.Itoa(startAt))
	query.Set("maxResults", strconv.Itoa(maxResults))
	query.Set("fields", strings.Join(searchFields, ","))

	var page models.JiraSearchResponse
	if err := r.getJSON(ctx, "/rest/api/2/search", query, &page); err != nil {
		return nil, err
	}
	return page.Issues, nil
}

func (r *JiraRepository) getJSON(ctx context.Context, path string, query url.Values, target any) error {
	endpoint := r.config.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(r.config.Username, r.config.APIToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}

	var jiraErr models.JiraErrorResponse
	if json.Unmarshal(body, &jiraErr) == nil {
		apiErr.Messages = append(apiErr.Messages, jiraErr.ErrorMessages...)
		for field, msg := range jiraErr.Errors {
			apiErr.Messages = append(apiErr.Messages, field+": "+msg)
		}
	}
	return apiErr
}
