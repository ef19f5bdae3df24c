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

func newTestClient(t *testing.T, srv *httptest.Server, accessToken string) *sentryapi.Client {
	t.Helper()
	c := sentryapi.New(srv.Client(), nil)
	c.SetUserScopedBase(srv.URL)
	c.SeedRegion(accessToken, srv.URL)
	return c
}

func TestFindOrganizations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/0/users/me/":
			json.NewEncoder(w).Encode(sentryapi.User{ID: "1", Name: "Ada"})
		case "/api/0/organizations/":
			json.NewEncoder(w).Encode([]sentryapi.Organization{{Slug: "acme", Name: "Acme"}})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	h := &Organizations{Client: newTestClient(t, srv, "tok")}
	sc := mcpsession.ServerContext{AccessToken: "tok"}

	result, err := h.findOrganizations(context.Background(), sc, nil)
	if err != nil {
		t.Fatalf("findOrganizations: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Text)
	}
	if !strings.Contains(result.Text, "acme") {
		t.Errorf("result.Text = %q, want it to mention acme", result.Text)
	}
}

func TestFindProjects_ConflictingOrgIsUserError(t *testing.T) {
	h := &Organizations{Client: sentryapi.New(http.DefaultClient, nil)}
	sc := mcpsession.ServerContext{Constraints: mcpsession.Constraints{OrganizationSlug: "acme"}}

	params, _ := json.Marshal(map[string]string{"organization_slug": "other"})
	result, err := h.findProjects(context.Background(), sc, params)
	if err != nil {
		t.Fatalf("findProjects: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a model-readable error result for a conflicting organization_slug")
	}
}

func TestFindProjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]sentryapi.Project{{Slug: "backend", Platform: "go"}})
	}))
	defer srv.Close()

	h := &Organizations{Client: newTestClient(t, srv, "tok")}
	sc := mcpsession.ServerContext{AccessToken: "tok", Constraints: mcpsession.Constraints{OrganizationSlug: "acme"}}

	result, err := h.findProjects(context.Background(), sc, nil)
	if err != nil {
		t.Fatalf("findProjects: %v", err)
	}
	if !strings.Contains(result.Text, "backend") {
		t.Errorf("result.Text = %q, want it to mention backend", result.Text)
	}
}
