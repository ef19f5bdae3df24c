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

func TestFindIssues_InvalidSortByIsUserError(t *testing.T) {
	h := &Issues{Client: sentryapi.New(http.DefaultClient, nil)}
	sc := mcpsession.ServerContext{Constraints: mcpsession.Constraints{OrganizationSlug: "acme", ProjectSlug: "backend"}}

	params, _ := json.Marshal(map[string]string{"sort_by": "bogus"})
	result, err := h.findIssues(context.Background(), sc, params)
	if err != nil {
		t.Fatalf("findIssues: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a model-readable error for an invalid sort_by")
	}
}

func TestFindIssues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]sentryapi.Issue{{ShortID: "ACME-1", Title: "boom", Status: "unresolved"}})
	}))
	defer srv.Close()

	h := &Issues{Client: newTestClient(t, srv, "tok")}
	sc := mcpsession.ServerContext{AccessToken: "tok", Constraints: mcpsession.Constraints{OrganizationSlug: "acme", ProjectSlug: "backend"}}

	result, err := h.findIssues(context.Background(), sc, nil)
	if err != nil {
		t.Fatalf("findIssues: %v", err)
	}
	if !strings.Contains(result.Text, "ACME-1") {
		t.Errorf("result.Text = %q, want it to mention ACME-1", result.Text)
	}
}

func TestUpdateIssue_RequiresAtLeastOneField(t *testing.T) {
	h := &Issues{Client: sentryapi.New(http.DefaultClient, nil)}
	sc := mcpsession.ServerContext{Constraints: mcpsession.Constraints{OrganizationSlug: "acme"}}

	params, _ := json.Marshal(map[string]string{"issue_id_or_short_id": "ACME-1"})
	result, err := h.updateIssue(context.Background(), sc, params)
	if err != nil {
		t.Fatalf("updateIssue: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a model-readable error when neither status nor assigned_to is set")
	}
}

func TestUpdateIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		json.NewEncoder(w).Encode(sentryapi.Issue{ShortID: "ACME-1", Status: "resolved"})
	}))
	defer srv.Close()

	h := &Issues{Client: newTestClient(t, srv, "tok")}
	sc := mcpsession.ServerContext{AccessToken: "tok", Constraints: mcpsession.Constraints{OrganizationSlug: "acme"}}

	params, _ := json.Marshal(map[string]string{"issue_id_or_short_id": "ACME-1", "status": "resolved"})
	result, err := h.updateIssue(context.Background(), sc, params)
	if err != nil {
		t.Fatalf("updateIssue: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Text)
	}
	if !strings.Contains(result.Text, "resolved") {
		t.Errorf("result.Text = %q, want it to mention resolved", result.Text)
	}
}

func TestGetIssueDetails_FlagsUnhandledException(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/events/latest/"):
			json.NewEncoder(w).Encode(sentryapi.Event{
				ID: "ev1",
				Entries: []sentryapi.EventEntry{{
					Type: "exception",
					Data: map[string]any{
						"values": []any{
							map[string]any{
								"type":      "RuntimeError",
								"value":     "boom",
								"mechanism": map[string]any{"handled": false},
							},
						},
					},
				}},
			})
		default:
			json.NewEncoder(w).Encode(sentryapi.Issue{ShortID: "ACME-1", Title: "boom"})
		}
	}))
	defer srv.Close()

	h := &Issues{Client: newTestClient(t, srv, "tok")}
	sc := mcpsession.ServerContext{AccessToken: "tok", Constraints: mcpsession.Constraints{OrganizationSlug: "acme"}}

	params, _ := json.Marshal(map[string]string{"issue_id_or_short_id": "ACME-1"})
	result, err := h.getIssueDetails(context.Background(), sc, params)
	if err != nil {
		t.Fatalf("getIssueDetails: %v", err)
	}
	if !strings.Contains(result.Text, "unhandled") {
		t.Errorf("result.Text = %q, want it to flag the exception as unhandled", result.Text)
	}
}
