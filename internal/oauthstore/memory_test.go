package oauthstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryClientStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryClientStore()

	c := &ClientRegistration{
		ClientID:                "client_abc",
		RedirectURIs:            []string{"https://app.example.com/cb"},
		TokenEndpointAuthMethod: AuthMethodNone,
		GrantTypes:              []GrantType{GrantTypeAuthorizationCode},
		ResponseTypes:           []string{"code"},
		RegistrationDate:        time.Now(),
	}
	if err := s.Put(ctx, c); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "client_abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ClientID != c.ClientID {
		t.Errorf("got ClientID %q, want %q", got.ClientID, c.ClientID)
	}

	if err := s.Delete(ctx, "client_abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "client_abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryGrantStore_ConsumeAuthCode(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryGrantStore()

	g := &Grant{
		ID:                 "grant1",
		ClientID:           "client_abc",
		UserID:             "user1",
		AuthCodeID:         "code-digest",
		AuthCodeWrappedKey: []byte("wrapped"),
	}
	if err := s.Put(ctx, g); err != nil {
		t.Fatalf("Put: %v", err)
	}

	before, err := s.ConsumeAuthCode(ctx, "code-digest")
	if err != nil {
		t.Fatalf("ConsumeAuthCode: %v", err)
	}
	if before.AuthCodeID != "code-digest" {
		t.Errorf("ConsumeAuthCode returned grant with cleared AuthCodeID before consumption")
	}

	after, err := s.Get(ctx, "grant1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.AuthCodeID != "" || after.AuthCodeWrappedKey != nil {
		t.Errorf("grant not cleared after consumption: %+v", after)
	}

	if _, err := s.ConsumeAuthCode(ctx, "code-digest"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second ConsumeAuthCode = %v, want ErrNotFound", err)
	}
}

func TestMemoryTokenStore_ExpiryAndRotation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTokenStore()

	expired := &Token{ID: "tok1", GrantID: "grant1", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := s.Put(ctx, expired); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Get(ctx, "tok1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get expired token = %v, want ErrNotFound", err)
	}

	oldTok := &Token{ID: "tok-old", GrantID: "grant1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.Put(ctx, oldTok); err != nil {
		t.Fatalf("Put: %v", err)
	}
	newTok := &Token{ID: "tok-new", GrantID: "grant1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.Rotate(ctx, "tok-old", newTok); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if _, err := s.Get(ctx, "tok-old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get rotated-out token = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "tok-new"); err != nil {
		t.Errorf("Get rotated-in token: %v", err)
	}

	if err := s.Rotate(ctx, "tok-old", &Token{ID: "tok-never", ExpiresAt: time.Now().Add(time.Hour)}); !errors.Is(err, ErrCASFailed) {
		t.Errorf("Rotate of already-gone token = %v, want ErrCASFailed", err)
	}
}

func TestMemoryTokenStore_DeleteByGrant(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTokenStore()

	access := &Token{ID: "access1", GrantID: "grant1", ExpiresAt: time.Now().Add(time.Hour)}
	refresh := &Token{ID: "refresh1", GrantID: "grant1", ExpiresAt: time.Now().Add(24 * time.Hour)}
	other := &Token{ID: "access2", GrantID: "grant2", ExpiresAt: time.Now().Add(time.Hour)}
	for _, tok := range []*Token{access, refresh, other} {
		if err := s.Put(ctx, tok); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if err := s.DeleteByGrant(ctx, "grant1"); err != nil {
		t.Fatalf("DeleteByGrant: %v", err)
	}
	if _, err := s.Get(ctx, "access1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("access1 survived DeleteByGrant")
	}
	if _, err := s.Get(ctx, "refresh1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("refresh1 survived DeleteByGrant")
	}
	if _, err := s.Get(ctx, "access2"); err != nil {
		t.Errorf("unrelated grant's token was deleted: %v", err)
	}
}

func TestMemoryApprovalStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryApprovalStore()

	a := &Approval{UserID: "user1", ClientID: "client1", ExpiresAt: time.Now().Add(-time.Second)}
	if err := s.Put(ctx, a); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Get(ctx, "user1", "client1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get expired approval = %v, want ErrNotFound", err)
	}
}
