package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUserAgentAllowed(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want bool
	}{
		{"empty denied", "", false},
		{"too short denied", "abc", false},
		{"python-requests denied", "python-requests/2.31.0", false},
		{"go-http-client denied", "Go-http-client/1.1", false},
		{"okhttp denied", "okhttp/4.9.0", false},
		{"curl denied", "curl/8.4.0", false},
		{"mozilla allowed", "Mozilla/5.0 (Macintosh)", true},
		{"googlebot allowed", "Googlebot/2.1", true},
		{"postman allowed", "PostmanRuntime/7.32.0", true},
		{"uptimerobot allowed", "UptimeRobot/2.0", true},
		{"normal client allowed", "my-mcp-client/1.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := userAgentAllowed(tt.ua); got != tt.want {
				t.Errorf("userAgentAllowed(%q) = %v, want %v", tt.ua, got, tt.want)
			}
		})
	}
}

func TestBotFilter_DeniedReturns403(t *testing.T) {
	handler := botFilter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("User-Agent", "curl/8.4.0")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestBotFilter_AllowedPassesThrough(t *testing.T) {
	called := false
	handler := botFilter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected next handler to run for an allowed User-Agent")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
