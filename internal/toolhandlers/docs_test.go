package toolhandlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
)

func TestSearchDocs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]sentryapi.DocResult{{Title: "Getting started", Path: "/getting-started"}})
	}))
	defer srv.Close()

	h := &Docs{Client: newTestClient(t, srv, "tok")}
	sc := mcpsession.ServerContext{AccessToken: "tok"}

	params, _ := json.Marshal(map[string]string{"query": "getting started"})
	result, err := h.searchDocs(context.Background(), sc, params)
	if err != nil {
		t.Fatalf("searchDocs: %v", err)
	}
	if !strings.Contains(result.Text, "Getting started") {
		t.Errorf("result.Text = %q, want it to mention Getting started", result.Text)
	}
}

func TestSearchDocs_RequiresQuery(t *testing.T) {
	h := &Docs{Client: sentryapi.New(http.DefaultClient, nil)}
	result, err := h.searchDocs(context.Background(), mcpsession.ServerContext{}, nil)
	if err != nil {
		t.Fatalf("searchDocs: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a model-readable error when query is missing")
	}
}

func TestGetDoc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sentryapi.Doc{Title: "Getting started", Content: "Install the SDK."})
	}))
	defer srv.Close()

	h := &Docs{Client: newTestClient(t, srv, "tok")}
	sc := mcpsession.ServerContext{AccessToken: "tok"}

	params, _ := json.Marshal(map[string]string{"path": "/getting-started"})
	result, err := h.getDoc(context.Background(), sc, params)
	if err != nil {
		t.Fatalf("getDoc: %v", err)
	}
	if !strings.Contains(result.Text, "Install the SDK.") {
		t.Errorf("result.Text = %q, want it to mention the content", result.Text)
	}
}
