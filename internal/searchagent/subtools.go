package searchagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sentry-mcp/gateway/internal/llm"
	"github.com/sentry-mcp/gateway/internal/mcpsession"
)

// subtool is one of the deterministic, side-effect-free helper tools the
// agent loop offers the model alongside the finalize tool. Every subtool
// call is answered purely from the session and the Sentry catalog APIs —
// never from anything that could vary between identical requests.
type subtool struct {
	def     llm.ToolDefinition
	execute func(ctx context.Context, a *Agent, sc mcpsession.ServerContext, input map[string]interface{}) (string, error)
}

func whoamiTool() subtool {
	return subtool{
		def: llm.ToolDefinition{
			Name:        "whoami",
			Description: "Return the identity of the user behind the current session.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		execute: func(ctx context.Context, a *Agent, sc mcpsession.ServerContext, _ map[string]interface{}) (string, error) {
			user, err := a.Client.Whoami(ctx, sc.AccessToken)
			if err != nil {
				return "", err
			}
			out, _ := json.Marshal(map[string]string{"userId": user.ID, "email": user.Email, "name": user.Name})
			return string(out), nil
		},
	}
}

func datasetAttributesTool(orgSlug string) subtool {
	return subtool{
		def: llm.ToolDefinition{
			Name:        "datasetAttributes",
			Description: "List the searchable attributes (tags, span fields, log fields) available for a dataset.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"dataset":  map[string]interface{}{"type": "string", "description": "events, spans, or logs"},
					"itemType": map[string]interface{}{"type": "string", "description": "optional sub-type filter"},
				},
				"required": []string{"dataset"},
			},
		},
		execute: func(ctx context.Context, a *Agent, sc mcpsession.ServerContext, input map[string]interface{}) (string, error) {
			dataset, _ := input["dataset"].(string)
			if dataset == "" {
				return "", fmt.Errorf("datasetAttributes: dataset is required")
			}
			attrs, err := a.Client.ListTraceItemAttributes(ctx, sc.AccessToken, orgSlug, dataset)
			if err != nil {
				return "", err
			}
			out, _ := json.Marshal(attrs)
			return string(out), nil
		},
	}
}

// otelSemanticConventions is a static lookup of OpenTelemetry semantic
// attribute namespaces the spans/logs datasets are built on. There's no
// Sentry API for this — it mirrors the fixed OTel spec, so a static table
// keeps the sub-tool deterministic rather than reaching out to the network.
var otelSemanticConventions = map[string][]string{
	"http":    {"http.method", "http.status_code", "http.route", "http.url", "http.request.method"},
	"db":      {"db.system", "db.statement", "db.name", "db.operation"},
	"rpc":     {"rpc.system", "rpc.service", "rpc.method"},
	"messaging": {"messaging.system", "messaging.destination", "messaging.operation"},
	"gen_ai":  {"gen_ai.system", "gen_ai.request.model", "gen_ai.usage.input_tokens", "gen_ai.usage.output_tokens"},
}

func otelSemanticsTool() subtool {
	return subtool{
		def: llm.ToolDefinition{
			Name:        "otelSemantics",
			Description: "Look up the OpenTelemetry semantic convention attribute names for a namespace (http, db, rpc, messaging, gen_ai).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"namespace": map[string]interface{}{"type": "string"},
				},
				"required": []string{"namespace"},
			},
		},
		execute: func(_ context.Context, _ *Agent, _ mcpsession.ServerContext, input map[string]interface{}) (string, error) {
			ns, _ := input["namespace"].(string)
			attrs, ok := otelSemanticConventions[ns]
			if !ok {
				return "", fmt.Errorf("otelSemantics: unknown namespace %q", ns)
			}
			out, _ := json.Marshal(attrs)
			return string(out), nil
		},
	}
}

// issueSearchFields is the static list of fields the issues dataset's
// search grammar accepts, grounded on Sentry's documented issue search
// syntax. Kept as a fixed table for the same reason as otelSemantics: no
// Sentry endpoint enumerates this, and the set changes rarely enough that
// a static list is the deterministic, side-effect-free choice.
var issueSearchFields = []string{
	"is", "assigned", "assigned_or_suggested", "bookmarks", "subscribed",
	"level", "firstSeen", "lastSeen", "timesSeen", "release", "age",
	"environment", "platform", "error.type", "error.value", "error.handled",
	"error.unhandled", "error.mechanism", "stack.filename", "stack.module",
}

func issueFieldsTool() subtool {
	return subtool{
		def: llm.ToolDefinition{
			Name:        "issueFields",
			Description: "List the fields valid in issue search queries.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		execute: func(_ context.Context, _ *Agent, _ mcpsession.ServerContext, _ map[string]interface{}) (string, error) {
			out, _ := json.Marshal(issueSearchFields)
			return string(out), nil
		},
	}
}
