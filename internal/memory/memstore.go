// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"sync"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Store persists client contexts. store.Store implements it over SQLite.
type Store interface {
	LoadClientContext(ctx context.Context, clientID string) (types.ClientContext, bool, error)
	SaveClientContext(ctx context.Context, cc types.ClientContext) error
}

// MapStore is an in-process Store.
type MapStore struct {
	mu sync.RWMutex
	m  map[string]types.ClientContext
}

// NewMapStore returns an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{m: make(map[string]types.ClientContext)}
}

// LoadClientContext returns a copy of the stored context.
func (s *MapStore) LoadClientContext(_ context.Context, clientID string) (types.ClientContext, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cc, ok := s.m[clientID]
	if !ok {
		return types.ClientContext{}, false, nil
	}
	return cc.Clone(), true, nil
}

// SaveClientContext stores a copy of cc.
func (s *MapStore) SaveClientContext(_ context.Context, cc types.ClientContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[cc.ClientID] = cc.Clone()
	return nil
}

// Len returns the number of stored clients.
func (s *MapStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
