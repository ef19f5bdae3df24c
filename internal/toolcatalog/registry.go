// Package toolcatalog implements the gateway's tool-as-data registry (spec
// C8): each tool is a name, description, schema, and required
// skills/scopes with a handler closure, filtered down to the tools a given
// session's granted skills/scopes make visible before being exposed over
// MCP.
package toolcatalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/skills"
)

// maxPublicTools is the hard cap on tools exposed to `tools/list`; the
// catalog is trimmed by visibility filtering before exposure (spec C8).
const maxPublicTools = 20

// maxAbsoluteTools is the ceiling on the whole catalog, public and
// internal-only (agent-mode sub-tools) combined.
const maxAbsoluteTools = 25

// ChartType enumerates the structured chart shapes a tool result may
// return instead of markdown text.
type ChartType string

const (
	ChartBar    ChartType = "bar"
	ChartPie    ChartType = "pie"
	ChartLine   ChartType = "line"
	ChartTable  ChartType = "table"
	ChartNumber ChartType = "number"
)

// ChartData is the structured alternative to markdown text a tool result
// may carry (spec C8: "every tool returns markdown text unless it
// explicitly returns structured chart data").
type ChartData struct {
	ChartType ChartType        `json:"chartType"`
	Data      []map[string]any `json:"data,omitempty"`
	Labels    []string         `json:"labels,omitempty"`
	Values    []float64        `json:"values,omitempty"`
	Query     string           `json:"query,omitempty"`
}

// Result is what a tool handler returns: either markdown text or
// structured chart data, optionally flagged as an error per spec C8's
// failure semantics (UserError/AuthError/NotFoundError -> IsError with a
// model-readable message; anything else -> logged and returned as an
// opaque "Internal error (eventId=...)" string).
type Result struct {
	Text    string
	Chart   *ChartData
	IsError bool
}

// TextResult is a convenience constructor for a plain markdown result.
func TextResult(text string) *Result { return &Result{Text: text} }

// ErrorResult is a convenience constructor for a model-readable error
// result.
func ErrorResult(text string) *Result { return &Result{Text: text, IsError: true} }

// Handler executes one tool call. params is the raw JSON arguments the
// client sent; sc is the resolved session context the handler must
// respect (constraints, granted scopes, access token).
type Handler func(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*Result, error)

// Spec is one catalog tool, defined as data rather than a code path (spec
// C8).
type Spec struct {
	Name           string
	Description    string
	ParamsSchema   *jsonschema.Schema
	RequiredSkills []skills.Skill
	RequiredScopes []skills.Scope
	Internal       bool // hidden from tools/list even outside agent mode (agent sub-tools)
	Handler        Handler
}

func (s Spec) requirement() skills.ToolRequirement {
	return skills.ToolRequirement{RequiredSkills: s.RequiredSkills, RequiredScopes: s.RequiredScopes}
}

// useSentryToolName is the meta-tool substituted for the full catalog in
// agent mode (spec C8: "?agent=1").
const useSentryToolName = "use_sentry"

// Registry holds the full catalog and the compiled visibility predicate
// used to filter it per session. Grounded on internal/tools.Registry's
// map-plus-RWMutex shape, generalized from a flat executor map to
// data-carrying Specs with a visibility gate.
type Registry struct {
	mu         sync.RWMutex
	specs      map[string]Spec
	order      []string // registration order, for stable tools/list output
	predicate  *skills.VisibilityPredicate
	useSentry  Spec
}

// New builds an empty Registry with a compiled visibility predicate.
func New() (*Registry, error) {
	predicate, err := skills.CompileVisibilityPredicate()
	if err != nil {
		return nil, fmt.Errorf("toolcatalog: %w", err)
	}
	return &Registry{specs: make(map[string]Spec), predicate: predicate}, nil
}

// Register adds a tool to the catalog. Panics on a duplicate name or on
// exceeding maxAbsoluteTools, both programmer errors caught at startup
// wiring time, not at request time.
func (r *Registry) Register(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		panic(fmt.Sprintf("toolcatalog: duplicate tool %q", spec.Name))
	}
	if len(r.specs) >= maxAbsoluteTools {
		panic(fmt.Sprintf("toolcatalog: registering %q would exceed the %d-tool absolute cap", spec.Name, maxAbsoluteTools))
	}
	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
}

// SetUseSentryTool registers the meta-tool substituted for the full
// catalog in agent mode. Kept separate from Register/specs so it never
// counts against the public tool cap and is never itself visibility
// filtered.
func (r *Registry) SetUseSentryTool(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useSentry = spec
}

// Get looks up one tool by name, regardless of visibility. Used to
// dispatch a call once a client has already been told a tool exists
// (including internal agent-mode sub-tools, which are callable but
// hidden from tools/list).
func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == useSentryToolName {
		return r.useSentry, r.useSentry.Handler != nil
	}
	spec, ok := r.specs[name]
	return spec, ok
}

// Visible returns the tools exposed to tools/list for a session: in agent
// mode, just the use_sentry meta-tool; otherwise every registered,
// non-internal tool whose required skills/scopes the session holds,
// sorted by name and trimmed to the first maxPublicTools if the visible
// set would otherwise exceed the cap.
func (r *Registry) Visible(sc mcpsession.ServerContext, agentMode bool) ([]Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if agentMode {
		if r.useSentry.Handler == nil {
			return nil, nil
		}
		return []Spec{r.useSentry}, nil
	}

	grantedSkills := make([]skills.Skill, 0, len(sc.GrantedSkills))
	for s := range sc.GrantedSkills {
		grantedSkills = append(grantedSkills, s)
	}
	grantedScopes := make([]skills.Scope, 0, len(sc.GrantedScopes))
	for s := range sc.GrantedScopes {
		grantedScopes = append(grantedScopes, s)
	}

	var visible []Spec
	for _, name := range r.order {
		spec := r.specs[name]
		if spec.Internal {
			continue
		}
		ok, err := r.predicate.Visible(spec.requirement(), grantedSkills, grantedScopes)
		if err != nil {
			return nil, fmt.Errorf("toolcatalog: evaluate visibility for %q: %w", name, err)
		}
		if ok {
			visible = append(visible, spec)
		}
	}

	sort.SliceStable(visible, func(i, j int) bool { return visible[i].Name < visible[j].Name })
	if len(visible) > maxPublicTools {
		visible = visible[:maxPublicTools]
	}
	return visible, nil
}

// Dispatch runs a named tool's handler, regardless of current visibility
// (the MCP spec's tools/call does not re-check tools/list membership; the
// gateway relies on the client only ever calling what it was shown, and on
// OAuth scope enforcement happening deeper in the Sentry API client for
// defense in depth).
func (r *Registry) Dispatch(ctx context.Context, sc mcpsession.ServerContext, name string, params []byte) (*Result, error) {
	spec, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("toolcatalog: unknown tool %q", name)
	}
	return spec.Handler(ctx, sc, params)
}
