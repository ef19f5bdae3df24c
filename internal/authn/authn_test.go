package authn

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sentry-mcp/gateway/internal/crypto"
	"github.com/sentry-mcp/gateway/internal/oauthstore"
)

func seedAccessToken(t *testing.T, store oauthstore.TokenStore, secret string, scope, skillList []string, ttl time.Duration) {
	t.Helper()

	plaintext, err := json.Marshal(struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		UserID       string `json:"userId"`
		UserName     string `json:"userName"`
	}{AccessToken: "sentry-access-tok", RefreshToken: "sentry-refresh-tok", UserID: "user-1", UserName: "Ada"})
	if err != nil {
		t.Fatalf("marshal props: %v", err)
	}

	enc, dataKey, err := crypto.EncryptPropsWithNewKey(plaintext)
	if err != nil {
		t.Fatalf("encrypt props: %v", err)
	}
	wrapped, err := crypto.WrapKeyWithToken(secret, dataKey)
	if err != nil {
		t.Fatalf("wrap key: %v", err)
	}

	tok := &oauthstore.Token{
		ID:                   crypto.TokenID(secret),
		Kind:                 oauthstore.TokenKindAccess,
		GrantID:              "grant-1",
		UserID:               "user-1",
		ClientID:             "client-1",
		CreatedAt:            time.Now(),
		ExpiresAt:            time.Now().Add(ttl),
		WrappedEncryptionKey: wrapped,
		Scope:                scope,
		Skills:               skillList,
		EncryptedProps:       enc.Ciphertext,
		EncryptedPropsNonce:  enc.Nonce,
	}
	if err := store.Put(context.Background(), tok); err != nil {
		t.Fatalf("put token: %v", err)
	}
}

func TestAuthenticate_ResolvesIdentity(t *testing.T) {
	store := oauthstore.NewMemoryTokenStore()
	seedAccessToken(t, store, "secret-1", []string{"org:read", "project:read"}, []string{"inspect"}, time.Hour)

	a := NewAuthenticator(store)
	id, err := a.Authenticate(context.Background(), "secret-1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", id.UserID)
	}
	if id.SentryAccessToken != "sentry-access-tok" {
		t.Errorf("SentryAccessToken = %q, want sentry-access-tok", id.SentryAccessToken)
	}
	if len(id.GrantedScopes) != 2 {
		t.Errorf("expected 2 granted scopes, got %d", len(id.GrantedScopes))
	}
	if len(id.GrantedSkills) != 1 || id.GrantedSkills[0] != "inspect" {
		t.Errorf("expected skill inspect, got %v", id.GrantedSkills)
	}
}

func TestAuthenticate_UnknownToken(t *testing.T) {
	store := oauthstore.NewMemoryTokenStore()
	a := NewAuthenticator(store)
	if _, err := a.Authenticate(context.Background(), "nope"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthenticate_EmptyBearer(t *testing.T) {
	a := NewAuthenticator(oauthstore.NewMemoryTokenStore())
	if _, err := a.Authenticate(context.Background(), ""); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	store := oauthstore.NewMemoryTokenStore()
	seedAccessToken(t, store, "secret-2", []string{"org:read"}, []string{"inspect"}, -time.Hour)

	a := NewAuthenticator(store)
	// The memory store expires records lazily and reports an expired token
	// as not found, so Authenticate never sees the record.
	if _, err := a.Authenticate(context.Background(), "secret-2"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthenticate_WrongSecretResolvesNoToken(t *testing.T) {
	store := oauthstore.NewMemoryTokenStore()
	seedAccessToken(t, store, "secret-3", []string{"org:read"}, []string{"inspect"}, time.Hour)

	a := NewAuthenticator(store)
	// crypto.TokenID is derived from the presented secret, so a wrong
	// secret simply fails to resolve any token record at all.
	if _, err := a.Authenticate(context.Background(), "wrong-secret"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
