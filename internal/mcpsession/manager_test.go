package mcpsession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentry-mcp/gateway/internal/skills"
)

type fakeValidator struct {
	err error
}

func (f *fakeValidator) ValidateConstraints(_ context.Context, _, _ string, _ Constraints) error {
	return f.err
}

func countingBuilder(calls *int) BuildServerFunc {
	return func(_ context.Context, sc ServerContext) (any, error) {
		*calls++
		return sc, nil
	}
}

func TestManager_ResolveCreatesAndReuses(t *testing.T) {
	var builds int
	m := NewManager(NewMemoryStore(), &fakeValidator{}, countingBuilder(&builds), time.Hour)

	p := RequestParams{UserID: "u1", ClientID: "c1", Path: "/mcp/acme"}

	s1, _, err := m.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	s2, _, err := m.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if s1.ID != s2.ID {
		t.Fatalf("expected same session id, got %q and %q", s1.ID, s2.ID)
	}
	if builds != 1 {
		t.Fatalf("expected 1 build call on reuse, got %d", builds)
	}
}

func TestManager_ResolveDistinguishesConstraints(t *testing.T) {
	var builds int
	m := NewManager(NewMemoryStore(), &fakeValidator{}, countingBuilder(&builds), time.Hour)

	s1, _, err := m.Resolve(context.Background(), RequestParams{UserID: "u1", ClientID: "c1", Path: "/mcp/acme"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	s2, _, err := m.Resolve(context.Background(), RequestParams{UserID: "u1", ClientID: "c1", Path: "/mcp/other-org"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if s1.ID == s2.ID {
		t.Fatalf("expected distinct session ids for distinct constraints")
	}
	if builds != 2 {
		t.Fatalf("expected 2 build calls, got %d", builds)
	}
}

func TestManager_ValidatorRejection(t *testing.T) {
	wantErr := &ErrAccessDenied{Cause: errors.New("no access")}
	var builds int
	m := NewManager(NewMemoryStore(), &fakeValidator{err: wantErr}, countingBuilder(&builds), time.Hour)

	_, _, err := m.Resolve(context.Background(), RequestParams{UserID: "u1", ClientID: "c1", Path: "/mcp/acme"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Resolve error = %v, want %v", err, wantErr)
	}
	if builds != 0 {
		t.Fatalf("expected no build call after rejection, got %d", builds)
	}
}

func TestManager_HibernateAndWake(t *testing.T) {
	var builds int
	m := NewManager(NewMemoryStore(), &fakeValidator{}, countingBuilder(&builds), time.Millisecond)

	p := RequestParams{UserID: "u1", ClientID: "c1", Path: "/mcp/acme", ClientName: "test-client", ClientVersion: "1.0"}
	s1, _, err := m.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	s1.LastActiveAt = time.Now().Add(-time.Hour)

	m.Hibernate(context.Background())

	s2, _, err := m.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("Resolve after hibernate: %v", err)
	}
	if s2.ID != s1.ID {
		t.Fatalf("expected same session id across hibernate/wake, got %q and %q", s1.ID, s2.ID)
	}
	if builds != 2 {
		t.Fatalf("expected a second build call on wake, got %d", builds)
	}
}

func TestServerContext_HasScopeAndSkill(t *testing.T) {
	sc := ServerContext{
		GrantedScopes: scopeSet([]skills.Scope{skills.ScopeOrgRead}),
		GrantedSkills: skillSet([]skills.Skill{skills.SkillInspect}),
	}
	if !sc.HasScope(skills.ScopeOrgRead) {
		t.Error("expected ScopeOrgRead to be granted")
	}
	if sc.HasScope(skills.ScopeOrgWrite) {
		t.Error("expected ScopeOrgWrite to not be granted")
	}
	if !sc.HasSkill(skills.SkillInspect) {
		t.Error("expected SkillInspect to be granted")
	}
}
