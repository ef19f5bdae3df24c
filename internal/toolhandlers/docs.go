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

// Docs bundles the search_docs/get_doc handlers with the Sentry API client
// and logger they close over.
type Docs struct {
	Client *sentryapi.Client
	Logger *slog.Logger
}

// searchDocsParams is search_docs's JSON argument shape.
type searchDocsParams struct {
	Query string `json:"query"`
	Guide string `json:"guide"`
}

// SearchDocsSpec builds the search_docs tool (spec C9:
// "search_docs(query, guide?)").
func (h *Docs) SearchDocsSpec() toolcatalog.Spec {
	schema := toolcatalog.ObjectSchema(map[string]*toolcatalog.ParamSchema{
		"query": toolcatalog.StringProp("Search terms."),
		"guide": toolcatalog.StringProp("Optional SDK/platform guide slug to scope the search to."),
	}, "query")
	return toolcatalog.Spec{
		Name:           "search_docs",
		Description:    "Search the Sentry documentation site.",
		ParamsSchema:   schema,
		RequiredSkills: []skills.Skill{skills.SkillDocs},
		RequiredScopes: []skills.Scope{skills.ScopeDocs},
		Handler:        h.searchDocs,
	}
}

func (h *Docs) searchDocs(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
	var p searchDocsParams
	if err := decodeParams(params, &p); err != nil {
		return classifyError(h.Logger, err), nil
	}
	if p.Query == "" {
		return classifyError(h.Logger, &ParamError{Message: "query is required"}), nil
	}

	results, err := h.Client.SearchDocs(ctx, sc.AccessToken, p.Query, p.Guide)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}
	if len(results) == 0 {
		return toolcatalog.TextResult("No documentation pages matched."), nil
	}

	var b strings.Builder
	b.WriteString("## Documentation results\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- [%s](%s)\n", r.Title, r.Path)
	}
	return toolcatalog.TextResult(b.String()), nil
}

// getDocParams is get_doc's JSON argument shape.
type getDocParams struct {
	Path string `json:"path"`
}

// GetDocSpec builds the get_doc tool (spec C9: "get_doc(path)").
func (h *Docs) GetDocSpec() toolcatalog.Spec {
	schema := toolcatalog.ObjectSchema(map[string]*toolcatalog.ParamSchema{
		"path": toolcatalog.StringProp("Documentation page path, as returned by search_docs."),
	}, "path")
	return toolcatalog.Spec{
		Name:           "get_doc",
		Description:    "Fetch a single Sentry documentation page.",
		ParamsSchema:   schema,
		RequiredSkills: []skills.Skill{skills.SkillDocs},
		RequiredScopes: []skills.Scope{skills.ScopeDocs},
		Handler:        h.getDoc,
	}
}

func (h *Docs) getDoc(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
	var p getDocParams
	if err := decodeParams(params, &p); err != nil {
		return classifyError(h.Logger, err), nil
	}
	if p.Path == "" {
		return classifyError(h.Logger, &ParamError{Message: "path is required"}), nil
	}

	doc, err := h.Client.GetDoc(ctx, sc.AccessToken, p.Path)
	if err != nil {
		return classifyError(h.Logger, err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n%s\n", doc.Title, doc.Content)
	return toolcatalog.TextResult(b.String()), nil
}
