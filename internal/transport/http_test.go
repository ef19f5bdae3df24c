package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sentry-mcp/gateway/internal/authn"
	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/oauthstore"
)

func TestToolCallBucket(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"use_sentry is chat", `{"method":"tools/call","params":{"name":"use_sentry"}}`, authn.BucketChat},
		{"search_events is search", `{"method":"tools/call","params":{"name":"search_events"}}`, authn.BucketSearch},
		{"search_issues is search", `{"method":"tools/call","params":{"name":"search_issues"}}`, authn.BucketSearch},
		{"other tool is unbucketed", `{"method":"tools/call","params":{"name":"find_organizations"}}`, ""},
		{"non tools/call method is unbucketed", `{"method":"tools/list"}`, ""},
		{"empty body is unbucketed", ``, ""},
		{"malformed json is unbucketed", `not json`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toolCallBucket([]byte(tt.body)); got != tt.want {
				t.Errorf("toolCallBucket(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestRateLimit_ExhaustedReturns429(t *testing.T) {
	rl := authn.NewRateLimiter(map[string]int{authn.BucketSearch: 1})
	d := HTTPDeps{RateLimiter: rl}

	called := 0
	handler := d.rateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"method":"tools/call","params":{"name":"search_events"}}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i == 0 && rec.Code != http.StatusOK {
			t.Fatalf("first request status = %d, want 200", rec.Code)
		}
		if i == 1 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("second request status = %d, want 429", rec.Code)
			}
			if rec.Header().Get("Retry-After") == "" {
				t.Error("expected Retry-After header on 429")
			}
		}
	}
	if called != 1 {
		t.Errorf("next handler called %d times, want 1", called)
	}
}

func TestSessionGate_UnauthorizedWithoutBearer(t *testing.T) {
	store := oauthstore.NewMemoryTokenStore()
	d := HTTPDeps{
		Authn:    authn.NewAuthenticator(store),
		Sessions: mcpsession.NewManager(nil, nil, func(ctx context.Context, sc mcpsession.ServerContext) (any, error) { return nil, nil }, 0),
		Logger:   slog.Default(),
	}

	called := false
	handler := d.sessionGate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("next handler should not run for a rejected request")
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer realm="mcp"` {
		t.Errorf("WWW-Authenticate = %q, want Bearer realm=\"mcp\"", got)
	}
}

func TestCorsPublic_PreflightAndHeaders(t *testing.T) {
	handler := corsPublic(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/.well-known/oauth-authorization-server", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Allow-Origin = %q, want *", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(req); got != "abc123" {
		t.Errorf("bearerToken() = %q, want abc123", got)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	if got := bearerToken(req2); got != "" {
		t.Errorf("bearerToken() with no header = %q, want empty", got)
	}
}

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.5" {
		t.Errorf("clientIP() = %q, want 203.0.113.5", got)
	}
}
