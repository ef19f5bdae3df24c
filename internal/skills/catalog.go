// Package skills implements the static skill/scope catalog (spec C5): which
// upstream OAuth scopes each user-facing Skill requires, and the tool
// visibility predicate built on top of it.
package skills

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Scope is an upstream OAuth permission, or one of the gateway's two
// virtual scopes (seer, docs) that gate features with no Sentry API
// counterpart.
type Scope string

const (
	ScopeOrgRead      Scope = "org:read"
	ScopeOrgWrite     Scope = "org:write"
	ScopeProjectRead  Scope = "project:read"
	ScopeProjectWrite Scope = "project:write"
	ScopeTeamRead     Scope = "team:read"
	ScopeTeamWrite    Scope = "team:write"
	ScopeEventRead    Scope = "event:read"
	ScopeEventWrite   Scope = "event:write"
	ScopeSeer         Scope = "seer"
	ScopeDocs         Scope = "docs"
)

// DefaultScopes are granted to every successful authorization regardless of
// selected skills.
var DefaultScopes = []Scope{ScopeOrgRead, ScopeProjectRead, ScopeTeamRead, ScopeEventRead}

// allScopes is the full universe of recognized scope strings, used by
// ParseScopes to partition valid from invalid input.
var allScopes = map[Scope]struct{}{
	ScopeOrgRead: {}, ScopeOrgWrite: {},
	ScopeProjectRead: {}, ScopeProjectWrite: {},
	ScopeTeamRead: {}, ScopeTeamWrite: {},
	ScopeEventRead: {}, ScopeEventWrite: {},
	ScopeSeer: {}, ScopeDocs: {},
}

// writeToRead maps each write scope to the read scope it implies, per the
// spec's expandScopes closure ("x:write ⇒ x:read").
var writeToRead = map[Scope]Scope{
	ScopeOrgWrite:     ScopeOrgRead,
	ScopeProjectWrite: ScopeProjectRead,
	ScopeTeamWrite:    ScopeTeamRead,
	ScopeEventWrite:   ScopeEventRead,
}

// Skill is a user-facing capability selected at authorization time (the
// consent dialog presents one checkbox per Skill).
type Skill string

const (
	SkillInspect Skill = "inspect"
	SkillTriage  Skill = "triage"
	SkillSeer    Skill = "seer"
	SkillDocs    Skill = "docs"
)

// skillScopes is the static Skill → required-scopes table.
var skillScopes = map[Skill][]Scope{
	SkillInspect: {ScopeOrgRead, ScopeProjectRead},
	SkillTriage:  {ScopeEventRead, ScopeEventWrite},
	SkillSeer:    {ScopeSeer, ScopeEventRead},
	SkillDocs:    {ScopeDocs},
}

// AllSkills lists every known skill, in catalog order, for rendering the
// consent dialog.
func AllSkills() []Skill {
	return []Skill{SkillInspect, SkillTriage, SkillSeer, SkillDocs}
}

// ExpandScopes returns the idempotent closure of scopes: every write scope
// also implies its matching read scope.
func ExpandScopes(scopes []Scope) []Scope {
	set := make(map[Scope]struct{}, len(scopes)*2)
	for _, s := range scopes {
		set[s] = struct{}{}
		if read, ok := writeToRead[s]; ok {
			set[read] = struct{}{}
		}
	}
	return sortedScopes(set)
}

// ScopesForSkills returns DEFAULT_SCOPES unioned with every scope implied
// by the given skills, expanded to closure. Unknown skills are ignored by
// the caller's ParseSkills step, not here.
func ScopesForSkills(selected []Skill) []Scope {
	set := make(map[Scope]struct{}, len(DefaultScopes))
	for _, s := range DefaultScopes {
		set[s] = struct{}{}
	}
	for _, skill := range selected {
		for _, s := range skillScopes[skill] {
			set[s] = struct{}{}
		}
	}

	expanded := make([]Scope, 0, len(set))
	for s := range set {
		expanded = append(expanded, s)
	}
	return ExpandScopes(expanded)
}

func sortedScopes(set map[Scope]struct{}) []Scope {
	out := make([]Scope, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseScopes partitions a raw, space-joined scope string into the scopes
// this gateway recognizes and those it doesn't.
func ParseScopes(input string) (valid []Scope, invalid []string) {
	for _, tok := range strings.Fields(input) {
		s := Scope(tok)
		if _, ok := allScopes[s]; ok {
			valid = append(valid, s)
		} else {
			invalid = append(invalid, tok)
		}
	}
	return valid, invalid
}

// ParseSkills partitions a list of raw skill names into the skills this
// gateway recognizes and those it doesn't, keeping the input order for
// both and giving the consent form a home for "unknown skill"
// diagnostics.
func ParseSkills(input []string) (valid []Skill, invalid []string) {
	known := make(map[Skill]struct{})
	for _, s := range AllSkills() {
		known[s] = struct{}{}
	}
	for _, raw := range input {
		s := Skill(raw)
		if _, ok := known[s]; ok {
			valid = append(valid, s)
		} else {
			invalid = append(invalid, raw)
		}
	}
	return valid, invalid
}

// JoinScopes renders scopes as the space-joined string the OAuth token
// response's `scope` field uses.
func JoinScopes(scopes []Scope) string {
	ss := make([]string, len(scopes))
	for i, s := range scopes {
		ss[i] = string(s)
	}
	return strings.Join(ss, " ")
}

// ToolRequirement is the visibility gate for one catalog tool (spec C8):
// a tool is visible iff every required skill is granted and every required
// scope is in grantedScopes.
type ToolRequirement struct {
	RequiredSkills []Skill
	RequiredScopes []Scope
}

// VisibilityPredicate is a compiled expr-lang program evaluating tool
// visibility against a request environment, rather than the teacher's
// inline strings.HasPrefix rule matching in internal/policy.
type VisibilityPredicate struct {
	program *vm.Program
}

// visibilityEnv is the evaluation environment passed to the compiled
// expr-lang program at Eval time.
type visibilityEnv struct {
	RequiredSkills []string `expr:"requiredSkills"`
	RequiredScopes []string `expr:"requiredScopes"`
	GrantedSkills  []string `expr:"grantedSkills"`
	GrantedScopes  []string `expr:"grantedScopes"`
}

// CompileVisibilityPredicate compiles the tool-visibility rule once at
// startup: all(requiredSkills, granted) and all(requiredScopes, granted).
func CompileVisibilityPredicate() (*VisibilityPredicate, error) {
	const rule = `
		all(requiredSkills, {# in grantedSkills}) &&
		all(requiredScopes, {# in grantedScopes})
	`
	program, err := expr.Compile(rule, expr.Env(visibilityEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile tool visibility predicate: %w", err)
	}
	return &VisibilityPredicate{program: program}, nil
}

// Visible evaluates whether a tool with the given requirement is visible
// given the skills and scopes granted to the current session.
func (p *VisibilityPredicate) Visible(req ToolRequirement, grantedSkills []Skill, grantedScopes []Scope) (bool, error) {
	env := visibilityEnv{
		RequiredSkills: skillsToStrings(req.RequiredSkills),
		RequiredScopes: scopesToStrings(req.RequiredScopes),
		GrantedSkills:  skillsToStrings(grantedSkills),
		GrantedScopes:  scopesToStrings(grantedScopes),
	}
	out, err := expr.Run(p.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate tool visibility: %w", err)
	}
	visible, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("tool visibility predicate returned non-bool %T", out)
	}
	return visible, nil
}

func skillsToStrings(skills []Skill) []string {
	out := make([]string, len(skills))
	for i, s := range skills {
		out[i] = string(s)
	}
	return out
}

func scopesToStrings(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}
