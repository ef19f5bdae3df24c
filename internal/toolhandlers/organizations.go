package toolhandlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
	"github.com/sentry-mcp/gateway/internal/skills"
	"github.com/sentry-mcp/gateway/internal/toolcatalog"
)

// Organizations bundles the find_organizations/find_projects handlers with
// the Sentry API client and logger they close over.
type Organizations struct {
	Client *sentryapi.Client
	Logger *slog.Logger
}

// FindOrganizationsSpec builds the find_organizations tool (spec C9:
// "calls whoami + listOrganizations on sentry.io; returns name/slug list").
func (h *Organizations) FindOrganizationsSpec() toolcatalog.Spec {
	return toolcatalog.Spec{
		Name:           "find_organizations",
		Description:    "List the Sentry organizations the authenticated user belongs to.",
		ParamsSchema:   toolcatalog.NoParamsSchema(),
		RequiredSkills: []skills.Skill{skills.SkillInspect},
		RequiredScopes: []skills.Scope{skills.ScopeOrgRead},
		Handler:        h.findOrganizations,
	}
}

func (h *Organizations) findOrganizations(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
	if _, err := h.Client.Whoami(ctx, sc.AccessToken); err != nil {
		return classifyError(h.Logger, err), nil
	}
	orgs, err := h.Client.ListOrganizations(ctx, sc.AccessToken)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}

	if len(orgs) == 0 {
		return toolcatalog.TextResult("No organizations found for this account."), nil
	}

	var b strings.Builder
	b.WriteString("## Organizations\n\n")
	for _, org := range orgs {
		fmt.Fprintf(&b, "- **%s** (`%s`)\n", org.Name, org.Slug)
	}
	return toolcatalog.TextResult(b.String()), nil
}

// findProjectsParams is find_projects's JSON argument shape.
type findProjectsParams struct {
	OrganizationSlug string `json:"organization_slug"`
}

// FindProjectsSpec builds the find_projects tool (spec C9: "listProjects;
// returns slug, platform, team").
func (h *Organizations) FindProjectsSpec() toolcatalog.Spec {
	return toolcatalog.Spec{
		Name:           "find_projects",
		Description:    "List the projects in a Sentry organization.",
		ParamsSchema:   toolcatalog.OrgOnlySchema(),
		RequiredSkills: []skills.Skill{skills.SkillInspect},
		RequiredScopes: []skills.Scope{skills.ScopeProjectRead},
		Handler:        h.findProjects,
	}
}

func (h *Organizations) findProjects(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
	var p findProjectsParams
	if err := decodeParams(params, &p); err != nil {
		return classifyError(h.Logger, err), nil
	}
	orgSlug, err := resolveOrg(sc, p.OrganizationSlug)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}

	projects, err := h.Client.ListProjects(ctx, sc.AccessToken, orgSlug)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}

	if len(projects) == 0 {
		return toolcatalog.TextResult(fmt.Sprintf("No projects found in organization `%s`.", orgSlug)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Projects in %s\n\n", orgSlug)
	fmt.Fprintf(&b, "| Slug | Platform | Teams |\n|---|---|---|\n")
	for _, proj := range projects {
		teamNames := make([]string, len(proj.Teams))
		for i, t := range proj.Teams {
			teamNames[i] = t.Slug
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n", proj.Slug, proj.Platform, strings.Join(teamNames, ", "))
	}
	return toolcatalog.TextResult(b.String()), nil
}
