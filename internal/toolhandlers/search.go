package toolhandlers

import (
	"context"
	"log/slog"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/skills"
	"github.com/sentry-mcp/gateway/internal/toolcatalog"
)

// SearchAgent is the natural-language search capability search_events and
// search_issues delegate to (spec C10's bounded LLM loop). Declared as an
// interface here so toolhandlers doesn't depend on internal/searchagent's
// LLM client wiring; searchagent.Agent implements it.
type SearchAgent interface {
	// Run executes one bounded agent loop against dataset, translating the
	// natural-language query into a structured Sentry search and returning
	// its markdown-formatted result.
	Run(ctx context.Context, sc mcpsession.ServerContext, dataset, naturalLanguageQuery string) (string, error)
}

// Search bundles the search_events/search_issues handlers with the NL
// search agent they delegate to.
type Search struct {
	Agent  SearchAgent
	Logger *slog.Logger
}

// searchParams is shared by search_events and search_issues.
type searchParams struct {
	OrganizationSlug string `json:"organization_slug"`
	ProjectSlug      string `json:"project_slug"`
	Query            string `json:"query"`
}

func (h *Search) searchSpec(name, description, dataset string) toolcatalog.Spec {
	schema := toolcatalog.WithOrgAndProject(map[string]*toolcatalog.ParamSchema{
		"query": toolcatalog.StringProp("Natural-language description of what to search for."),
	}, false, "query")
	return toolcatalog.Spec{
		Name:           name,
		Description:    description,
		ParamsSchema:   schema,
		RequiredSkills: []skills.Skill{skills.SkillInspect},
		RequiredScopes: []skills.Scope{skills.ScopeEventRead},
		Handler:        h.search(dataset),
	}
}

// SearchEventsSpec builds the search_events tool, delegating to the
// bounded NL search agent against the events dataset.
func (h *Search) SearchEventsSpec() toolcatalog.Spec {
	return h.searchSpec("search_events", "Search events using a natural-language query.", "events")
}

// SearchIssuesSpec builds the search_issues tool, delegating to the
// bounded NL search agent against the issues dataset.
func (h *Search) SearchIssuesSpec() toolcatalog.Spec {
	return h.searchSpec("search_issues", "Search issues using a natural-language query.", "issues")
}

func (h *Search) search(dataset string) toolcatalog.Handler {
	return func(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
		var p searchParams
		if err := decodeParams(params, &p); err != nil {
			return classifyError(h.Logger, err), nil
		}
		orgSlug, err := resolveOrg(sc, p.OrganizationSlug)
		if err != nil {
			return classifyError(h.Logger, err), nil
		}
		if _, err := resolveProject(sc, p.ProjectSlug, false); err != nil {
			return classifyError(h.Logger, err), nil
		}
		if p.Query == "" {
			return classifyError(h.Logger, &ParamError{Message: "query is required"}), nil
		}

		sc.Constraints.OrganizationSlug = orgSlug
		text, err := h.Agent.Run(ctx, sc, dataset, p.Query)
		if err != nil {
			return classifyError(h.Logger, err), nil
		}
		return toolcatalog.TextResult(text), nil
	}
}
