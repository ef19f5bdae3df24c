package mcpsession

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no persisted client info exists for a
// session id.
var ErrNotFound = errors.New("mcpsession: not found")

// Store persists the one piece of session state that survives
// hibernation: MCPClientInfo. Everything else (ServerContext, constraints,
// granted scopes/skills) is re-derived from the live request on Wake.
type Store interface {
	SaveClientInfo(ctx context.Context, sessionID string, info *MCPClientInfo) error
	LoadClientInfo(ctx context.Context, sessionID string) (*MCPClientInfo, error)
	Delete(ctx context.Context, sessionID string) error
}
