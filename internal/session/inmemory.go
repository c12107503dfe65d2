package session

import (
	"context"
	"sync"

	"github.com/creditlens/reportflow/internal/agent/core"
)

// InMemory keeps snapshots in a map. Suitable for single-process runs and
// tests; snapshots do not survive a restart.
type InMemory struct {
	mu        sync.RWMutex
	snapshots map[string]core.WorkflowState
}

func NewInMemory() *InMemory {
	return &InMemory{snapshots: make(map[string]core.WorkflowState)}
}

func (s *InMemory) SaveSnapshot(ctx context.Context, state core.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[state.SessionID] = state.Clone()
	return nil
}

func (s *InMemory) LoadSnapshot(ctx context.Context, sessionID string) (core.WorkflowState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.snapshots[sessionID]
	if !ok {
		return core.WorkflowState{}, false, nil
	}
	return state.Clone(), true, nil
}
