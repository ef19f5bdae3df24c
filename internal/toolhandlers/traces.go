package toolhandlers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
	"github.com/sentry-mcp/gateway/internal/skills"
	"github.com/sentry-mcp/gateway/internal/toolcatalog"
)

// Traces bundles the get_trace handler with the Sentry API client and
// logger it closes over.
type Traces struct {
	Client *sentryapi.Client
	Logger *slog.Logger
}

// getTraceParams is get_trace's JSON argument shape.
type getTraceParams struct {
	OrganizationSlug string `json:"organization_slug"`
	TraceID          string `json:"trace_id"`
}

// GetTraceSpec builds the get_trace tool, a thin wrapper over
// sentryapi.Client.GetTrace formatting an ordered span summary as markdown.
func (h *Traces) GetTraceSpec() toolcatalog.Spec {
	schema := toolcatalog.WithOrgAndProject(map[string]*toolcatalog.ParamSchema{
		"trace_id": toolcatalog.StringProp("Trace ID to fetch."),
	}, false, "trace_id")
	return toolcatalog.Spec{
		Name:           "get_trace",
		Description:    "Fetch a distributed trace's spans and summary metadata.",
		ParamsSchema:   schema,
		RequiredSkills: []skills.Skill{skills.SkillInspect},
		RequiredScopes: []skills.Scope{skills.ScopeEventRead},
		Handler:        h.getTrace,
	}
}

func (h *Traces) getTrace(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
	var p getTraceParams
	if err := decodeParams(params, &p); err != nil {
		return classifyError(h.Logger, err), nil
	}
	orgSlug, err := resolveOrg(sc, p.OrganizationSlug)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}
	if p.TraceID == "" {
		return classifyError(h.Logger, &ParamError{Message: "trace_id is required"}), nil
	}

	trace, err := h.Client.GetTrace(ctx, sc.AccessToken, orgSlug, p.TraceID)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}

	spans := append([]sentryapi.Span(nil), trace.Spans...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].StartTS < spans[j].StartTS })

	var b strings.Builder
	fmt.Fprintf(&b, "## Trace %s\n\n", p.TraceID)
	fmt.Fprintf(&b, "- Spans: %d\n- Errors: %d\n\n", trace.Meta.SpanCount, trace.Meta.ErrorCount)
	for _, span := range spans {
		indent := ""
		if span.ParentSpanID != "" {
			indent = "  "
		}
		fmt.Fprintf(&b, "%s- `%s` %s (%.2fms) %s\n", indent, span.SpanID, span.Op, span.Duration*1000, span.Description)
	}
	return toolcatalog.TextResult(b.String()), nil
}
