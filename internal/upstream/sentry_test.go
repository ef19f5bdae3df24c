package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthorizeURL(t *testing.T) {
	c := NewClient("https://sentry.io", "client_abc", "", nil)
	url := c.AuthorizeURL(AuthorizeURLParams{
		RedirectURI: "https://gateway.example.com/oauth/callback",
		Scope:       []string{"org:read", "project:read"},
		State:       "signed-state-blob",
	})

	if got := "https://sentry.io/oauth/authorize/"; !contains(url, got) {
		t.Errorf("AuthorizeURL() = %q, want prefix %q", url, got)
	}
	if !contains(url, "state=signed-state-blob") {
		t.Errorf("AuthorizeURL() = %q, missing state param", url)
	}
}

func TestExchangeCode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "upstream-access-tok",
			"refresh_token": "upstream-refresh-tok",
			"token_type": "bearer",
			"expires_in": 3600,
			"user": {"id": "42", "name": "Alice"}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "client_abc", "secret", srv.Client())
	result, err := c.ExchangeCode(context.Background(), "upstream-code", "https://gateway.example.com/oauth/callback")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if result.AccessToken != "upstream-access-tok" {
		t.Errorf("AccessToken = %q, want %q", result.AccessToken, "upstream-access-tok")
	}
	if result.RefreshToken != "upstream-refresh-tok" {
		t.Errorf("RefreshToken = %q, want %q", result.RefreshToken, "upstream-refresh-tok")
	}
	if result.User.ID != "42" || result.User.Name != "Alice" {
		t.Errorf("User = %+v, want {42 Alice}", result.User)
	}
}

func TestExchangeCode_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "client_abc", "secret", srv.Client())
	_, err := c.ExchangeCode(context.Background(), "stale-code", "https://gateway.example.com/oauth/callback")
	if err == nil {
		t.Fatal("ExchangeCode: want error for 400 response")
	}

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("ExchangeCode error = %v, want *RejectedError", err)
	}
	if rejected.Code != "invalid_grant" {
		t.Errorf("RejectedError.Code = %q, want %q", rejected.Code, "invalid_grant")
	}
}

func TestExchangeCode_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "client_abc", "secret", http.DefaultClient)
	_, err := c.ExchangeCode(context.Background(), "code", "https://gateway.example.com/oauth/callback")
	if err == nil {
		t.Fatal("ExchangeCode: want error when upstream is unreachable")
	}
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
