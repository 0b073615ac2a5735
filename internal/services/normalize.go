package services

import (
	"strings"

	"jira-snapshot/internal/models"
)

// Defaults applied when JIRA omits a value or sends null
const (
	defaultTitle        = ""
	defaultDescription  = ""
	defaultStatus       = ""
	defaultUserName     = ""
	defaultCreationTime = ""
	defaultFixVersion   = ""

	fixVersionSeparator = ", "
)

// NormalizeIssue maps a raw search result onto the flat issue shape.
// Every field has a declared default, so a missing nested object never
// surfaces as an error or a nil value.
func NormalizeIssue(raw models.JiraSearchIssue) models.Issue {
	fields := raw.Fields
	if fields == nil {
		fields = &models.JiraIssueFields{}
	}

	return models.Issue{
		Key:          raw.Key,
		Title:        stringOr(fields.Summary, defaultTitle),
		Description:  stringPtrOr(fields.Description, defaultDescription),
		Status:       statusName(fields.Status, defaultStatus),
		Assignee:     displayName(fields.Assignee, defaultUserName),
		Creator:      displayName(fields.Creator, defaultUserName),
		CreationTime: stringOr(fields.Created, defaultCreationTime),
		FixVersion:   joinVersionNames(fields.FixVersions, defaultFixVersion),
	}
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func stringPtrOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return stringOr(*v, def)
}

func statusName(status *models.JiraStatus, def string) string {
	if status == nil {
		return def
	}
	return stringOr(status.Name, def)
}

func displayName(user *models.JiraUser, def string) string {
	if user == nil {
		return def
	}
	return stringOr(user.DisplayName, def)
}

func joinVersionNames(versions []*models.JiraFixVersion, def string) string {
	names := make([]string, 0, len(versions))
	for _, v := range versions {
		if v == nil || v.Name == "" {
			continue
		}
		names = append(names, v.Name)
	}
	if len(names) == 0 {
		return def
	}
	return strings.Join(names, fixVersionSeparator)
}
