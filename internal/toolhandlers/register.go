package toolhandlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
	"github.com/sentry-mcp/gateway/internal/toolcatalog"
)

// BuildRegistry wires every representative tool handler (spec C9) into a
// fresh toolcatalog.Registry (spec C8), plus the use_sentry meta-tool
// substituted for the full catalog in agent mode.
func BuildRegistry(client *sentryapi.Client, agent SearchAgent, logger *slog.Logger) (*toolcatalog.Registry, error) {
	registry, err := toolcatalog.New()
	if err != nil {
		return nil, err
	}

	orgs := &Organizations{Client: client, Logger: logger}
	issues := &Issues{Client: client, Logger: logger}
	autofix := &Autofix{Client: client, Logger: logger}
	search := &Search{Agent: agent, Logger: logger}
	traces := &Traces{Client: client, Logger: logger}
	catalog := &Catalog{Client: client, Logger: logger}
	docs := &Docs{Client: client, Logger: logger}

	for _, spec := range []toolcatalog.Spec{
		orgs.FindOrganizationsSpec(),
		orgs.FindProjectsSpec(),
		issues.FindIssuesSpec(),
		issues.GetIssueDetailsSpec(),
		issues.UpdateIssueSpec(),
		autofix.AutofixIssueSpec(),
		search.SearchEventsSpec(),
		search.SearchIssuesSpec(),
		traces.GetTraceSpec(),
		catalog.ListTagsSpec(),
		catalog.ListTraceItemAttributesSpec(),
		docs.SearchDocsSpec(),
		docs.GetDocSpec(),
	} {
		registry.Register(spec)
	}

	registry.SetUseSentryTool(useSentrySpec(registry))
	return registry, nil
}

// useSentryCall is the meta-tool's argument shape: a named tool from the
// full catalog to dispatch, plus that tool's own arguments.
type useSentryCall struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

// useSentrySpec builds the use_sentry meta-tool exposed in agent mode
// (spec C8's "?agent=1"): the individual tools stay dispatchable by name
// via registry.Dispatch even though tools/list only shows this one entry.
func useSentrySpec(registry *toolcatalog.Registry) toolcatalog.Spec {
	return toolcatalog.Spec{
		Name:        "use_sentry",
		Description: "Dispatch a named Sentry MCP tool with its own arguments. Use this when operating in agent mode, where individual tools are not listed directly.",
		ParamsSchema: toolcatalog.ObjectSchema(map[string]*toolcatalog.ParamSchema{
			"tool":   toolcatalog.StringProp("Name of the underlying tool to call."),
			"params": toolcatalog.ObjectSchema(nil),
		}, "tool"),
		Handler: func(ctx context.Context, sc mcpsession.ServerContext, params []byte) (*toolcatalog.Result, error) {
			var call useSentryCall
			if err := decodeParams(params, &call); err != nil {
				return classifyError(nil, err), nil
			}
			if call.Tool == "" {
				return classifyError(nil, &ParamError{Message: "tool is required"}), nil
			}
			if _, ok := registry.Get(call.Tool); !ok {
				return classifyError(nil, &ParamError{Message: fmt.Sprintf("unknown tool %q", call.Tool)}), nil
			}
			return registry.Dispatch(ctx, sc, call.Tool, call.Params)
		},
	}
}
