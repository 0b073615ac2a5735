package models

// JiraSearchResponse represents a page of the JIRA issue search API
type JiraSearchResponse struct {
	StartAt    int               `json:"startAt"`
	MaxResults int               `json:"maxResults"`
	Total      int               `json:"total"`
	Issues     []JiraSearchIssue `json:"issues"`
}

// JiraSearchIssue represents a raw issue as returned by the search API.
// Nested objects are pointers because JIRA sends null for unset values.
type JiraSearchIssue struct {
	ID     string           `json:"id"`
	Key    string           `json:"key"`
	Fields *JiraIssueFields `json:"fields"`
}

// JiraIssueFields represents the subset of issue fields the snapshot keeps
type JiraIssueFields struct {
	Summary     string            `json:"summary"`
	Description *string           `json:"description"`
	Status      *JiraStatus       `json:"status"`
	Assignee    *JiraUser         `json:"assignee"`
	Creator     *JiraUser         `json:"creator"`
	Created     string            `json:"created"`
	FixVersions []*JiraFixVersion `json:"fixVersions"`
}

// JiraStatus represents a workflow status
type JiraStatus struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// JiraUser represents a JIRA user reference
type JiraUser struct {
	AccountID    string `json:"accountId"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// JiraFixVersion represents a project version
type JiraFixVersion struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Released bool   `json:"released"`
}

// JiraProjectInfo represents JIRA project information
type JiraProjectInfo struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// JiraErrorResponse is the error body JIRA returns on 4xx responses
type JiraErrorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}
