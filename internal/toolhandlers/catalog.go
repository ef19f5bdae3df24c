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

// Catalog bundles the catalog-inspection handlers (list_tags,
// list_trace_item_attributes) with the Sentry API client and logger they
// close over.
type Catalog struct {
	Client *sentryapi.Client
	Logger *slog.Logger
}

// listTagsParams is list_tags's JSON argument shape.
type listTagsParams struct {
	OrganizationSlug string `json:"organization_slug"`
	ProjectSlug      string `json:"project_slug"`
}

// ListTagsSpec builds the list_tags tool, a thin wrapper over
// sentryapi.Client.ListTags.
func (h *Catalog) ListTagsSpec() toolcatalog.Spec {
	return toolcatalog.Spec{
		Name:           "list_tags",
		Description:    "List the tag keys recorded on a project's events.",
		ParamsSchema:   toolcatalog.OrgProjectSchema(),
		RequiredSkills: []skills.Skill{skills.SkillInspect},
		RequiredScopes: []skills.Scope{skills.ScopeProjectRead},
		Handler:        h.listTags,
	}
}

func (h *Catalog) listTags(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
	var p listTagsParams
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

	tags, err := h.Client.ListTags(ctx, sc.AccessToken, orgSlug, projectSlug)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}
	if len(tags) == 0 {
		return toolcatalog.TextResult("No tags recorded."), nil
	}

	var b strings.Builder
	b.WriteString("## Tags\n\n")
	for _, tag := range tags {
		fmt.Fprintf(&b, "- `%s` (%s)\n", tag.Key, tag.Name)
	}
	return toolcatalog.TextResult(b.String()), nil
}

// listTraceItemAttributesParams is list_trace_item_attributes's JSON
// argument shape.
type listTraceItemAttributesParams struct {
	OrganizationSlug string `json:"organization_slug"`
	Dataset          string `json:"dataset"`
}

// ListTraceItemAttributesSpec builds the list_trace_item_attributes tool,
// grounding the NL search agents' query generation in the catalog of
// attributes actually available for a dataset.
func (h *Catalog) ListTraceItemAttributesSpec() toolcatalog.Spec {
	schema := toolcatalog.WithOrgAndProject(map[string]*toolcatalog.ParamSchema{
		"dataset": toolcatalog.EnumProp("Dataset to inspect.", "events", "issues", "spans", "logs"),
	}, false, "dataset")
	return toolcatalog.Spec{
		Name:           "list_trace_item_attributes",
		Description:    "List the searchable/filterable attributes available for a dataset.",
		ParamsSchema:   schema,
		RequiredSkills: []skills.Skill{skills.SkillInspect},
		RequiredScopes: []skills.Scope{skills.ScopeOrgRead},
		Handler:        h.listTraceItemAttributes,
	}
}

func (h *Catalog) listTraceItemAttributes(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
	var p listTraceItemAttributesParams
	if err := decodeParams(params, &p); err != nil {
		return classifyError(h.Logger, err), nil
	}
	orgSlug, err := resolveOrg(sc, p.OrganizationSlug)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}
	if p.Dataset == "" {
		return classifyError(h.Logger, &ParamError{Message: "dataset is required"}), nil
	}

	attrs, err := h.Client.ListTraceItemAttributes(ctx, sc.AccessToken, orgSlug, p.Dataset)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}
	if len(attrs) == 0 {
		return toolcatalog.TextResult(fmt.Sprintf("No attributes found for dataset %q.", p.Dataset)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Attributes (%s)\n\n", p.Dataset)
	for _, attr := range attrs {
		fmt.Fprintf(&b, "- `%s` (%s)\n", attr.Key, attr.Type)
	}
	return toolcatalog.TextResult(b.String()), nil
}
