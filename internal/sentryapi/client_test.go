package sentryapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
)

// newTestClient wires a Client whose user-scoped and region-scoped
// requests both land on srv, the way production wiring would split them
// across sentry.io and a region host.
func newTestClient(t *testing.T, srv *httptest.Server, accessToken string) *Client {
	t.Helper()
	c := New(srv.Client(), nil)
	c.SetUserScopedBase(srv.URL)
	c.SeedRegion(accessToken, srv.URL)
	return c
}

func TestWhoami(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/0/users/me/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("X-Sentry-MCP-Referrer"); got != referrerHeader {
			t.Errorf("X-Sentry-MCP-Referrer = %q, want %q", got, referrerHeader)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(User{ID: "1", Name: "Ada", Email: "ada@example.com"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")
	u, err := c.Whoami(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Whoami: %v", err)
	}
	if u.Name != "Ada" {
		t.Errorf("Name = %q, want Ada", u.Name)
	}
}

func TestListOrganizations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Organization{{ID: "1", Slug: "acme", Name: "Acme"}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")
	orgs, err := c.ListOrganizations(context.Background(), "tok")
	if err != nil {
		t.Fatalf("ListOrganizations: %v", err)
	}
	if len(orgs) != 1 || orgs[0].Slug != "acme" {
		t.Fatalf("orgs = %+v", orgs)
	}
}

func TestListIssues_RejectsInvalidSortBy(t *testing.T) {
	c := New(http.DefaultClient, nil)
	_, err := c.ListIssues(context.Background(), "tok", "acme", "backend", ListIssuesParams{SortBy: "bogus"})
	if err == nil {
		t.Fatal("expected error for invalid sortBy")
	}
	var sortErr *ErrInvalidSortBy
	if se, ok := err.(*ErrInvalidSortBy); ok {
		sortErr = se
	}
	if sortErr == nil {
		t.Fatalf("err = %v (%T), want *ErrInvalidSortBy", err, err)
	}
}

func TestListIssues_ValidSortBy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sort"); got != "freq" {
			t.Errorf("sort query = %q, want freq", got)
		}
		json.NewEncoder(w).Encode([]Issue{{ID: "1", ShortID: "ACME-1", Title: "boom"}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")
	page, err := c.ListIssues(context.Background(), "tok", "acme", "backend", ListIssuesParams{SortBy: "freq"})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if len(page.Issues) != 1 || page.Issues[0].ShortID != "ACME-1" {
		t.Fatalf("issues = %+v", page.Issues)
	}
}

func TestGetTrace_MergesSpansAndMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/0/organizations/acme/trace/abc123/":
			json.NewEncoder(w).Encode([]Span{{SpanID: "s1", Op: "http.server"}})
		case "/api/0/organizations/acme/trace-meta/abc123/":
			json.NewEncoder(w).Encode(TraceMeta{TraceID: "abc123", SpanCount: 1})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")
	trace, err := c.GetTrace(context.Background(), "tok", "acme", "abc123")
	if err != nil {
		t.Fatalf("GetTrace: %v", err)
	}
	if len(trace.Spans) != 1 || trace.Spans[0].SpanID != "s1" {
		t.Fatalf("Spans = %+v", trace.Spans)
	}
	if trace.Meta.SpanCount != 1 {
		t.Fatalf("Meta = %+v", trace.Meta)
	}
}

func TestRequest_ClassifiesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "tok")
	_, err := c.GetIssue(context.Background(), "tok", "acme", "ACME-1")
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("err = %v (%T), want *NotFoundError", err, err)
	}
}

func TestValidateConstraints(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		orgSlug    string
		projSlug   string
		wantErrType any
	}{
		{name: "no constraints", status: http.StatusOK},
		{name: "org ok", status: http.StatusOK, orgSlug: "acme"},
		{name: "org forbidden", status: http.StatusForbidden, orgSlug: "acme", wantErrType: &mcpsession.ErrAccessDenied{}},
		{name: "org not found", status: http.StatusNotFound, orgSlug: "acme", wantErrType: &mcpsession.ErrNotFoundUpstream{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				if tt.status == http.StatusOK {
					json.NewEncoder(w).Encode(Organization{Slug: tt.orgSlug})
				}
			}))
			defer srv.Close()

			c := newTestClient(t, srv, "tok")
			err := c.ValidateConstraints(context.Background(), "", "tok", mcpsession.Constraints{OrganizationSlug: tt.orgSlug})

			if tt.wantErrType == nil {
				if err != nil {
					t.Fatalf("ValidateConstraints: %v", err)
				}
				return
			}
			switch tt.wantErrType.(type) {
			case *mcpsession.ErrAccessDenied:
				if _, ok := err.(*mcpsession.ErrAccessDenied); !ok {
					t.Fatalf("err = %v (%T), want *mcpsession.ErrAccessDenied", err, err)
				}
			case *mcpsession.ErrNotFoundUpstream:
				if _, ok := err.(*mcpsession.ErrNotFoundUpstream); !ok {
					t.Fatalf("err = %v (%T), want *mcpsession.ErrNotFoundUpstream", err, err)
				}
			}
		})
	}
}

func TestIsUserScoped(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/api/0/users/me/", true},
		{"/api/0/auth/", true},
		{"/api/0/organizations/acme/issues/", false},
	}
	for _, tt := range tests {
		if got := isUserScoped(tt.path); got != tt.want {
			t.Errorf("isUserScoped(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
