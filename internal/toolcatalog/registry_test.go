package toolcatalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/sentry-mcp/gateway/internal/mcpsession"
	"github.com/sentry-mcp/gateway/internal/skills"
)

func echoHandler(name string) Handler {
	return func(_ context.Context, _ mcpsession.ServerContext, _ []byte) (*Result, error) {
		return TextResult(name), nil
	}
}

func ctxWith(grantedSkills []skills.Skill, grantedScopes []skills.Scope) mcpsession.ServerContext {
	skillSet := make(map[skills.Skill]struct{})
	for _, s := range grantedSkills {
		skillSet[s] = struct{}{}
	}
	scopeSet := make(map[skills.Scope]struct{})
	for _, s := range grantedScopes {
		scopeSet[s] = struct{}{}
	}
	return mcpsession.ServerContext{GrantedSkills: skillSet, GrantedScopes: scopeSet}
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Register(Spec{Name: "find_projects", Handler: echoHandler("a")})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r.Register(Spec{Name: "find_projects", Handler: echoHandler("b")})
}

func TestRegister_PanicsAtAbsoluteCap(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < maxAbsoluteTools; i++ {
		r.Register(Spec{Name: fmt.Sprintf("tool_%d", i), Handler: echoHandler("x")})
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic exceeding absolute cap")
		}
	}()
	r.Register(Spec{Name: "one_too_many", Handler: echoHandler("x")})
}

func TestVisible_FiltersBySkillsAndScopes(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Register(Spec{
		Name:           "find_projects",
		RequiredSkills: []skills.Skill{skills.SkillInspect},
		RequiredScopes: []skills.Scope{skills.ScopeProjectRead},
		Handler:        echoHandler("projects"),
	})
	r.Register(Spec{
		Name:           "autofix_issue",
		RequiredSkills: []skills.Skill{skills.SkillSeer},
		RequiredScopes: []skills.Scope{skills.ScopeSeer},
		Handler:        echoHandler("autofix"),
	})

	sc := ctxWith([]skills.Skill{skills.SkillInspect}, []skills.Scope{skills.ScopeProjectRead})
	visible, err := r.Visible(sc, false)
	if err != nil {
		t.Fatalf("Visible: %v", err)
	}
	if len(visible) != 1 || visible[0].Name != "find_projects" {
		t.Fatalf("visible = %+v, want just find_projects", visible)
	}
}

func TestVisible_AgentModeReturnsUseSentryOnly(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Register(Spec{Name: "find_projects", Handler: echoHandler("projects")})
	r.SetUseSentryTool(Spec{Name: useSentryToolName, Handler: echoHandler("meta")})

	visible, err := r.Visible(ctxWith(nil, nil), true)
	if err != nil {
		t.Fatalf("Visible: %v", err)
	}
	if len(visible) != 1 || visible[0].Name != useSentryToolName {
		t.Fatalf("visible = %+v, want just use_sentry", visible)
	}
}

func TestVisible_CapsAtMaxPublicTools(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < maxPublicTools+3; i++ {
		r.Register(Spec{Name: fmt.Sprintf("tool_%02d", i), Handler: echoHandler("x")})
	}
	visible, err := r.Visible(ctxWith(nil, nil), false)
	if err != nil {
		t.Fatalf("Visible: %v", err)
	}
	if len(visible) != maxPublicTools {
		t.Fatalf("len(visible) = %d, want %d", len(visible), maxPublicTools)
	}
}

func TestVisible_InternalToolsHiddenOutsideAgentMode(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Register(Spec{Name: "internal_sub_tool", Internal: true, Handler: echoHandler("x")})

	visible, err := r.Visible(ctxWith(nil, nil), false)
	if err != nil {
		t.Fatalf("Visible: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("visible = %+v, want none", visible)
	}

	result, err := r.Dispatch(context.Background(), ctxWith(nil, nil), "internal_sub_tool", nil)
	if err != nil {
		t.Fatalf("Dispatch internal tool: %v", err)
	}
	if result.Text != "x" {
		t.Fatalf("result.Text = %q", result.Text)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = r.Dispatch(context.Background(), ctxWith(nil, nil), "nonexistent", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}
