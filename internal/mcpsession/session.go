package mcpsession

import (
	"time"

	"github.com/sentry-mcp/gateway/internal/crypto"
	"github.com/sentry-mcp/gateway/internal/skills"
)

// ServerContext is the read-only, per-request snapshot injected into every
// tool handler: everything a handler needs to call out to Sentry scoped to
// the current grant, session, and URL constraints.
type ServerContext struct {
	UserID         string
	ClientID       string
	AccessToken    string
	GrantedScopes  map[skills.Scope]struct{}
	GrantedSkills  map[skills.Skill]struct{}
	Constraints    Constraints
	SentryHost     string
	MCPUrl         string
	MCPClientName  string
	MCPClientVers  string
	ProtocolVer    string
	AgentMode      bool
}

// HasScope reports whether the snapshot was granted the given scope.
func (c ServerContext) HasScope(s skills.Scope) bool {
	_, ok := c.GrantedScopes[s]
	return ok
}

// HasSkill reports whether the snapshot was granted the given skill.
func (c ServerContext) HasSkill(s skills.Skill) bool {
	_, ok := c.GrantedSkills[s]
	return ok
}

func scopeSet(scopes []skills.Scope) map[skills.Scope]struct{} {
	set := make(map[skills.Scope]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}

func skillSet(ss []skills.Skill) map[skills.Skill]struct{} {
	set := make(map[skills.Skill]struct{}, len(ss))
	for _, s := range ss {
		set[s] = struct{}{}
	}
	return set
}

// MCPClientInfo is the only piece of session state that survives
// hibernation: the client's self-reported name/version/protocol, restored
// on Wake so the rebuilt server can still answer the client's own
// `initialize` expectations.
type MCPClientInfo struct {
	Name            string
	Version         string
	ProtocolVersion string
}

// Session is one isolated MCP connection's execution context: one userId +
// clientId + constraint set. Schema/tool-visibility mutations in one
// session never leak into another, even for the same user, because
// switching org/project produces a different sessionId.
type Session struct {
	ID          string
	UserID      string
	ClientID    string
	Constraints Constraints

	ClientInfo *MCPClientInfo

	CreatedAt    time.Time
	LastActiveAt time.Time

	// Handle is the live, in-memory server instance for this session; nil
	// after hibernation until the next request wakes it.
	Handle any
}

// SessionID derives the stable identity of a session from the triple the
// spec keys it by: userId, clientId, and the constraint set, plus whether
// the request is in agent mode. Different constraint sets under the same
// user/client hash to different ids, so a context switch (e.g. changing
// the active org) can never see state built for another; agent mode is
// folded in too, since it changes which tools get registered on the
// session's built server and must never be served from a handle built for
// the other mode.
func SessionID(userID, clientID string, c Constraints, agentMode bool) string {
	return crypto.HashSecret(userID + "\x00" + clientID + "\x00" + c.Key() + "\x00" + boolKey(agentMode))
}

func boolKey(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
