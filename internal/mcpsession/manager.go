// Package mcpsession implements the gateway's per-connection MCP session
// layer (spec C6): constraint extraction from the request URL, session
// identity derivation, hibernation of idle sessions, and construction of
// the ServerContext injected into every tool handler.
package mcpsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sentry-mcp/gateway/internal/skills"
)

// ConstraintValidator checks that the presented upstream access token can
// actually see the organization (and, if present, the project) named by a
// constraint set. Implemented by C7's Sentry API client; kept as an
// interface here so the session layer doesn't import the API client
// package directly.
type ConstraintValidator interface {
	ValidateConstraints(ctx context.Context, sentryHost, accessToken string, c Constraints) error
}

// ErrAccessDenied wraps a ConstraintValidator rejection (401/403 upstream).
type ErrAccessDenied struct{ Cause error }

func (e *ErrAccessDenied) Error() string { return fmt.Sprintf("access denied: %v", e.Cause) }
func (e *ErrAccessDenied) Unwrap() error { return e.Cause }

// ErrNotFoundUpstream wraps a ConstraintValidator 404 (org/project absent).
type ErrNotFoundUpstream struct{ Cause error }

func (e *ErrNotFoundUpstream) Error() string { return fmt.Sprintf("not found: %v", e.Cause) }
func (e *ErrNotFoundUpstream) Unwrap() error  { return e.Cause }

// BuildServerFunc constructs the live, per-session server handle — the
// actual MCP tool/prompt registration closing over a ServerContext
// snapshot. Supplied by C11's transport wiring, which in turn calls into
// C8's filtered tool catalog.
type BuildServerFunc func(ctx context.Context, sc ServerContext) (any, error)

// RequestParams is everything one inbound MCP request carries that the
// session layer needs to resolve or create a Session.
type RequestParams struct {
	UserID          string
	ClientID        string
	AccessToken     string
	GrantedScopes   []skills.Scope
	GrantedSkills   []skills.Skill
	SentryHost      string
	MCPUrl          string
	Path            string
	ClientName      string
	ClientVersion   string
	ProtocolVersion string
	AgentMode       bool
}

type entry struct {
	dispatchMu sync.Mutex // serializes tool dispatch within this session
	session    *Session
}

// Manager owns the live session table and its hibernation sweep.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry

	store          Store
	build          BuildServerFunc
	validator      ConstraintValidator
	hibernateAfter time.Duration
}

// NewManager builds a session Manager. hibernateAfter is the idle window
// after which a session's in-memory handle is released (0 disables
// hibernation, useful for the stdio transport's single long-lived session).
func NewManager(store Store, validator ConstraintValidator, build BuildServerFunc, hibernateAfter time.Duration) *Manager {
	return &Manager{
		sessions:       make(map[string]*entry),
		store:          store,
		build:          build,
		validator:      validator,
		hibernateAfter: hibernateAfter,
	}
}

// Resolve implements the Create/Reuse/Wake lifecycle: it parses and
// validates constraints from the request path, computes the session
// identity, and returns the live session plus the ServerContext snapshot
// tool handlers should see for this request. Constraints and granted
// scopes/skills always come from the current request, never from a
// previous session's cached state.
func (m *Manager) Resolve(ctx context.Context, p RequestParams) (*Session, ServerContext, error) {
	constraints, err := ParseConstraints(p.Path)
	if err != nil {
		return nil, ServerContext{}, err
	}

	if constraints.OrganizationSlug != "" && m.validator != nil {
		if err := m.validator.ValidateConstraints(ctx, p.SentryHost, p.AccessToken, constraints); err != nil {
			return nil, ServerContext{}, err
		}
	}

	sessionID := SessionID(p.UserID, p.ClientID, constraints, p.AgentMode)
	sc := ServerContext{
		UserID:        p.UserID,
		ClientID:      p.ClientID,
		AccessToken:   p.AccessToken,
		GrantedScopes: scopeSet(p.GrantedScopes),
		GrantedSkills: skillSet(p.GrantedSkills),
		Constraints:   constraints,
		SentryHost:    p.SentryHost,
		MCPUrl:        p.MCPUrl,
		MCPClientName: p.ClientName,
		MCPClientVers: p.ClientVersion,
		ProtocolVer:   p.ProtocolVersion,
		AgentMode:     p.AgentMode,
	}

	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok {
		e = &entry{}
		m.sessions[sessionID] = e
	}
	m.mu.Unlock()

	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	now := time.Now()
	if e.session != nil && e.session.Handle != nil {
		e.session.LastActiveAt = now
		return e.session, sc, nil
	}

	// Either brand new, or hibernated (session exists but Handle is nil):
	// wake/create by rebuilding the handle from scratch. Nothing about a
	// prior ServerContext is trusted; only ClientInfo survives.
	var clientInfo *MCPClientInfo
	if e.session != nil {
		clientInfo = e.session.ClientInfo
	} else if m.store != nil {
		if info, err := m.store.LoadClientInfo(ctx, sessionID); err == nil {
			clientInfo = info
		}
	}
	if clientInfo == nil && p.ClientName != "" {
		clientInfo = &MCPClientInfo{Name: p.ClientName, Version: p.ClientVersion, ProtocolVersion: p.ProtocolVersion}
	}

	handle, err := m.build(ctx, sc)
	if err != nil {
		return nil, ServerContext{}, fmt.Errorf("build session server: %w", err)
	}

	sess := &Session{
		ID:           sessionID,
		UserID:       p.UserID,
		ClientID:     p.ClientID,
		Constraints:  constraints,
		ClientInfo:   clientInfo,
		CreatedAt:    now,
		LastActiveAt: now,
		Handle:       handle,
	}
	e.session = sess
	return sess, sc, nil
}

// Dispatch serializes fn against this session's dispatch lock, guaranteeing
// a session never interleaves two MCP messages — required so a tool-schema
// mutation from one message can't race a concurrent dispatch.
func (m *Manager) Dispatch(sessionID string, fn func() error) error {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("mcpsession: unknown session %q", sessionID)
	}

	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	return fn()
}

// Hibernate releases the in-memory handle for any session idle longer than
// hibernateAfter, flushing ClientInfo to the persistent Store first. Call
// periodically (e.g. from a ticker) rather than per-request.
func (m *Manager) Hibernate(ctx context.Context) {
	if m.hibernateAfter <= 0 {
		return
	}

	m.mu.Lock()
	candidates := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		candidates = append(candidates, e)
	}
	m.mu.Unlock()

	cutoff := time.Now().Add(-m.hibernateAfter)
	for _, e := range candidates {
		e.dispatchMu.Lock()
		sess := e.session
		if sess != nil && sess.Handle != nil && sess.LastActiveAt.Before(cutoff) {
			if m.store != nil && sess.ClientInfo != nil {
				_ = m.store.SaveClientInfo(ctx, sess.ID, sess.ClientInfo)
			}
			sess.Handle = nil
		}
		e.dispatchMu.Unlock()
	}
}

// Close removes a session entirely, discarding its persisted ClientInfo.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if m.store != nil {
		return m.store.Delete(ctx, sessionID)
	}
	return nil
}
