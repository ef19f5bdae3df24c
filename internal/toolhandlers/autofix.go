package toolhandlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
	"github.com/sentry-mcp/gateway/internal/skills"
	"github.com/sentry-mcp/gateway/internal/toolcatalog"
)

// autofixPollInterval is how often ListAutofixRuns is re-polled while a run
// is in progress.
const autofixPollInterval = 2 * time.Second

// autofixPollTimeout bounds how long autofix_issue waits for a run to reach
// a terminal status before returning its current (non-terminal) state.
const autofixPollTimeout = 25 * time.Second

// terminalAutofixStatuses are the Seer run statuses that end polling.
var terminalAutofixStatuses = map[string]bool{
	"completed": true,
	"error":     true,
	"cancelled": true,
	"failed":    true,
}

// Autofix bundles the autofix_issue handler with the Sentry API client and
// logger it closes over.
type Autofix struct {
	Client *sentryapi.Client
	Logger *slog.Logger
}

// autofixIssueParams is autofix_issue's JSON argument shape.
type autofixIssueParams struct {
	OrganizationSlug string `json:"organization_slug"`
	IssueIDOrShortID string `json:"issue_id_or_short_id"`
}

// AutofixIssueSpec builds the autofix_issue tool (spec C9: "starts an
// autofix run via StartAutofixRun, long-polls via ListAutofixRuns until
// terminal status, reports steps").
func (h *Autofix) AutofixIssueSpec() toolcatalog.Spec {
	schema := toolcatalog.WithOrgAndProject(map[string]*toolcatalog.ParamSchema{
		"issue_id_or_short_id": toolcatalog.StringProp("Issue ID or short ID to run Seer autofix against."),
	}, false, "issue_id_or_short_id")
	return toolcatalog.Spec{
		Name:           "autofix_issue",
		Description:    "Start a Seer autofix run on an issue and report its progress.",
		ParamsSchema:   schema,
		RequiredSkills: []skills.Skill{skills.SkillSeer},
		RequiredScopes: []skills.Scope{skills.ScopeSeer},
		Handler:        h.autofixIssue,
	}
}

func (h *Autofix) autofixIssue(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
	var p autofixIssueParams
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

	run, err := h.Client.StartAutofixRun(ctx, sc.AccessToken, orgSlug, p.IssueIDOrShortID)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}

	deadline := time.Now().Add(autofixPollTimeout)
	for !terminalAutofixStatuses[run.Status] && time.Now().Before(deadline) {
		timer := time.NewTimer(autofixPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		runs, err := h.Client.ListAutofixRuns(ctx, sc.AccessToken, orgSlug, p.IssueIDOrShortID)
		if err != nil {
			return classifyError(h.Logger, err), nil
		}
		for _, r := range runs {
			if r.RunID == run.RunID {
				run = &r
				break
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Autofix run %s\n\n- Status: %s\n\n", run.RunID, run.Status)
	if len(run.Steps) > 0 {
		b.WriteString("### Steps\n\n")
		for _, step := range run.Steps {
			fmt.Fprintf(&b, "- %s: %s\n", step.Title, step.Status)
		}
	}
	if !terminalAutofixStatuses[run.Status] {
		b.WriteString("\n_Run still in progress; call autofix_issue again later to check status._\n")
	}
	return toolcatalog.TextResult(b.String()), nil
}
