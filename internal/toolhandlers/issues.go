package toolhandlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
	"github.com/sentry-mcp/gateway/internal/skills"
	"github.com/sentry-mcp/gateway/internal/toolcatalog"
)

// Issues bundles the issue-inspection and mutation handlers with the
// Sentry API client and logger they close over.
type Issues struct {
	Client *sentryapi.Client
	Logger *slog.Logger
}

// findIssuesParams is find_issues's JSON argument shape.
type findIssuesParams struct {
	OrganizationSlug string `json:"organization_slug"`
	ProjectSlug      string `json:"project_slug"`
	Query            string `json:"query"`
	SortBy           string `json:"sort_by"`
	Cursor           string `json:"cursor"`
}

// FindIssuesSpec builds the find_issues tool (spec C9: "find_issues(...):
// listIssues, surfaces ErrInvalidSortBy as a UserError").
func (h *Issues) FindIssuesSpec() toolcatalog.Spec {
	schema := toolcatalog.WithOrgAndProject(map[string]*toolcatalog.ParamSchema{
		"query":   toolcatalog.StringProp("Sentry search syntax query, e.g. \"is:unresolved level:error\"."),
		"sort_by": toolcatalog.EnumProp("Sort order.", "user", "freq", "date", "new"),
		"cursor":  toolcatalog.CursorProp(),
	}, true)
	return toolcatalog.Spec{
		Name:           "find_issues",
		Description:    "Search issues in a Sentry project.",
		ParamsSchema:   schema,
		RequiredSkills: []skills.Skill{skills.SkillInspect},
		RequiredScopes: []skills.Scope{skills.ScopeProjectRead, skills.ScopeEventRead},
		Handler:        h.findIssues,
	}
}

func (h *Issues) findIssues(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
	var p findIssuesParams
	if err := decodeParams(params, &p); err != nil {
		return classifyError(h.Logger, err), nil
	}
	orgSlug, err := resolveOrg(sc, p.OrganizationSlug)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}
	projectSlug, err := resolveProject(sc, p.ProjectSlug, true)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}

	page, err := h.Client.ListIssues(ctx, sc.AccessToken, orgSlug, projectSlug, sentryapi.ListIssuesParams{
		Query:  p.Query,
		SortBy: p.SortBy,
		Cursor: p.Cursor,
	})
	if err != nil {
		var sortErr *sentryapi.ErrInvalidSortBy
		if errors.As(err, &sortErr) {
			return classifyError(h.Logger, &ParamError{Message: sortErr.Error()}), nil
		}
		return classifyError(h.Logger, err), nil
	}

	if len(page.Issues) == 0 {
		return toolcatalog.TextResult("No issues matched."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Issues in %s/%s\n\n", orgSlug, projectSlug)
	for _, issue := range page.Issues {
		assignee := "unassigned"
		if issue.AssignedTo != nil && issue.AssignedTo.Name != "" {
			assignee = issue.AssignedTo.Name
		}
		fmt.Fprintf(&b, "- **%s** `%s` — %s (status: %s, assigned: %s, last seen: %s)\n",
			issue.ShortID, issue.Culprit, issue.Title, issue.Status, assignee, issue.LastSeen)
	}
	if page.NextCursor != "" {
		fmt.Fprintf(&b, "\n_More results available; pass cursor=%q to continue._\n", page.NextCursor)
	}
	return toolcatalog.TextResult(b.String()), nil
}

// getIssueDetailsParams is get_issue_details's JSON argument shape.
type getIssueDetailsParams struct {
	OrganizationSlug string `json:"organization_slug"`
	IssueIDOrShortID string `json:"issue_id_or_short_id"`
}

// GetIssueDetailsSpec builds the get_issue_details tool (spec C9: "fetch
// issue + latest event, collapse stack frames, flag isUnhandled").
func (h *Issues) GetIssueDetailsSpec() toolcatalog.Spec {
	schema := toolcatalog.WithOrgAndProject(map[string]*toolcatalog.ParamSchema{
		"issue_id_or_short_id": toolcatalog.StringProp("Issue ID or short ID, e.g. \"ACME-123\"."),
	}, false, "issue_id_or_short_id")
	return toolcatalog.Spec{
		Name:           "get_issue_details",
		Description:    "Fetch an issue's details and its most recent event.",
		ParamsSchema:   schema,
		RequiredSkills: []skills.Skill{skills.SkillInspect},
		RequiredScopes: []skills.Scope{skills.ScopeProjectRead, skills.ScopeEventRead},
		Handler:        h.getIssueDetails,
	}
}

func (h *Issues) getIssueDetails(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
	var p getIssueDetailsParams
	if err := decodeParams(params, &p); err != nil {
		return classifyError(h.Logger, err), nil
	}
	orgSlug, err := resolveOrg(sc, p.OrganizationSlug)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}
	if p.IssueIDOrShortID == "" {
		return classifyError(h.Logger, &ParamError{Message: "issue_id_or_short_id is required"}), nil
	}

	issue, err := h.Client.GetIssue(ctx, sc.AccessToken, orgSlug, p.IssueIDOrShortID)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}
	event, err := h.Client.GetLatestEventForIssue(ctx, sc.AccessToken, orgSlug, p.IssueIDOrShortID)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s: %s\n\n", issue.ShortID, issue.Title)
	fmt.Fprintf(&b, "- Status: %s\n- Culprit: %s\n- Last seen: %s\n- Events: %s\n\n", issue.Status, issue.Culprit, issue.LastSeen, issue.Count)

	unhandled := false
	for _, entry := range event.Entries {
		if entry.Type != "exception" {
			continue
		}
		if raw, ok := entry.Data["values"].([]any); ok {
			b.WriteString("### Exception\n\n")
			for _, v := range raw {
				frame, ok := v.(map[string]any)
				if !ok {
					continue
				}
				if mech, ok := frame["mechanism"].(map[string]any); ok {
					if handled, ok := mech["handled"].(bool); ok && !handled {
						unhandled = true
					}
				}
				if t, ok := frame["type"].(string); ok {
					fmt.Fprintf(&b, "- `%s`: %v\n", t, frame["value"])
				}
			}
		}
	}
	if unhandled {
		b.WriteString("\n_This exception was unhandled._\n")
	}
	return toolcatalog.TextResult(b.String()), nil
}

// updateIssueParams is update_issue's JSON argument shape. Only the
// fields the caller actually sets are forwarded upstream.
type updateIssueParams struct {
	OrganizationSlug string `json:"organization_slug"`
	IssueIDOrShortID string `json:"issue_id_or_short_id"`
	Status           string `json:"status"`
	AssignedTo       string `json:"assigned_to"`
}

// UpdateIssueSpec builds the update_issue tool (spec C9: "PUT only
// provided fields via UpdateIssueParams").
func (h *Issues) UpdateIssueSpec() toolcatalog.Spec {
	schema := toolcatalog.WithOrgAndProject(map[string]*toolcatalog.ParamSchema{
		"issue_id_or_short_id": toolcatalog.StringProp("Issue ID or short ID to update."),
		"status":               toolcatalog.EnumProp("New issue status.", "resolved", "unresolved", "ignored"),
		"assigned_to":          toolcatalog.StringProp("Username or team slug to assign the issue to."),
	}, false, "issue_id_or_short_id")
	return toolcatalog.Spec{
		Name:           "update_issue",
		Description:    "Update an issue's status or assignee.",
		ParamsSchema:   schema,
		RequiredSkills: []skills.Skill{skills.SkillTriage},
		RequiredScopes: []skills.Scope{skills.ScopeEventWrite},
		Handler:        h.updateIssue,
	}
}

func (h *Issues) updateIssue(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
	var p updateIssueParams
	if err := decodeParams(params, &p); err != nil {
		return classifyError(h.Logger, err), nil
	}
	orgSlug, err := resolveOrg(sc, p.OrganizationSlug)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}
	if p.IssueIDOrShortID == "" {
		return classifyError(h.Logger, &ParamError{Message: "issue_id_or_short_id is required"}), nil
	}
	if p.Status == "" && p.AssignedTo == "" {
		return classifyError(h.Logger, &ParamError{Message: "at least one of status or assigned_to must be set"}), nil
	}

	issue, err := h.Client.UpdateIssue(ctx, sc.AccessToken, orgSlug, p.IssueIDOrShortID, sentryapi.UpdateIssueParams{
		Status:     p.Status,
		AssignedTo: p.AssignedTo,
	})
	if err != nil {
		return classifyError(h.Logger, err), nil
	}
	return toolcatalog.TextResult(fmt.Sprintf("Updated %s: status=%s", issue.ShortID, issue.Status)), nil
}
