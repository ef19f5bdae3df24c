package toolhandlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
)

func TestBuildRegistry_RegistersEveryHandler(t *testing.T) {
	client := sentryapi.New(http.DefaultClient, nil)
	registry, err := BuildRegistry(client, &fakeSearchAgent{}, nil)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	for _, name := range []string{
		"find_organizations", "find_projects", "find_issues", "get_issue_details",
		"update_issue", "autofix_issue", "search_events", "search_issues",
		"get_trace", "list_tags", "list_trace_item_attributes", "search_docs", "get_doc",
	} {
		if _, ok := registry.Get(name); !ok {
			t.Errorf("registry missing tool %q", name)
		}
	}
}

func TestBuildRegistry_UseSentryDispatchesUnderlyingTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]sentryapi.DocResult{{Title: "Getting started", Path: "/getting-started"}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, "tok")
	registry, err := BuildRegistry(client, &fakeSearchAgent{}, nil)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	call, _ := json.Marshal(map[string]any{
		"tool":   "search_docs",
		"params": map[string]string{"query": "getting started"},
	})
	result, err := registry.Dispatch(context.Background(), mcpsession.ServerContext{AccessToken: "tok"}, "use_sentry", call)
	if err != nil {
		t.Fatalf("Dispatch use_sentry: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Text)
	}
}

func TestBuildRegistry_UseSentryRejectsUnknownTool(t *testing.T) {
	client := sentryapi.New(http.DefaultClient, nil)
	registry, err := BuildRegistry(client, &fakeSearchAgent{}, nil)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	call, _ := json.Marshal(map[string]any{"tool": "does_not_exist"})
	result, err := registry.Dispatch(context.Background(), mcpsession.ServerContext{}, "use_sentry", call)
	if err != nil {
		t.Fatalf("Dispatch use_sentry: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for an unknown underlying tool")
	}
}
