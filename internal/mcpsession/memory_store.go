package mcpsession

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store, sufficient for a single gateway
// instance; grounded on internal/session.MemoryStore's mutex-guarded map.
type MemoryStore struct {
	mu    sync.Mutex
	infos map[string]*MCPClientInfo
}

// NewMemoryStore creates an in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{infos: make(map[string]*MCPClientInfo)}
}

func (s *MemoryStore) SaveClientInfo(_ context.Context, sessionID string, info *MCPClientInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *info
	s.infos[sessionID] = &cp
	return nil
}

func (s *MemoryStore) LoadClientInfo(_ context.Context, sessionID string) (*MCPClientInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.infos[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *info
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.infos, sessionID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
