package toolhandlers

import (
	"errors"
	"testing"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/sentryapi"
)

func TestResolveOrg(t *testing.T) {
	tests := []struct {
		name      string
		bound     string
		param     string
		wantOrg   string
		wantError bool
	}{
		{name: "no constraint uses param", param: "acme", wantOrg: "acme"},
		{name: "no constraint no param is an error", wantError: true},
		{name: "bound constraint used as default", bound: "acme", wantOrg: "acme"},
		{name: "matching param is fine", bound: "acme", param: "acme", wantOrg: "acme"},
		{name: "conflicting param is an error", bound: "acme", param: "other", wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := mcpsession.ServerContext{Constraints: mcpsession.Constraints{OrganizationSlug: tt.bound}}
			org, err := resolveOrg(sc, tt.param)
			if tt.wantError {
				var paramErr *ParamError
				if !errors.As(err, &paramErr) {
					t.Fatalf("err = %v, want *ParamError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveOrg: %v", err)
			}
			if org != tt.wantOrg {
				t.Errorf("org = %q, want %q", org, tt.wantOrg)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "param error", err: &ParamError{Message: "bad input"}},
		{name: "user error", err: &sentryapi.UserError{Body: `{"detail":"bad"}`}},
		{name: "auth error", err: &sentryapi.AuthError{Subtype: sentryapi.SubtypeUnauthenticated, Status: 401}},
		{name: "not found error", err: &sentryapi.NotFoundError{Resource: "issue"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyError(nil, tt.err)
			if !result.IsError {
				t.Fatal("expected IsError for a known error class")
			}
			if result.Text == "" {
				t.Fatal("expected a non-empty message")
			}
		})
	}

	t.Run("unknown error is opaque", func(t *testing.T) {
		result := classifyError(nil, errors.New("boom: leaked upstream detail"))
		if !result.IsError {
			t.Fatal("expected IsError for an unclassified error")
		}
		if result.Text == "boom: leaked upstream detail" {
			t.Fatal("unclassified error text must not be forwarded verbatim")
		}
	})
}
