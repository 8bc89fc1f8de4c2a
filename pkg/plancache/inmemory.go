// SPDX-License-Identifier: Apache-2.0

package plancache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory plan cache for tests and single-process use.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewMemoryStore creates an in-memory store. Non-positive ttl falls back to
// DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.entries[entry.ConversationID] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, conversationID string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[conversationID]
	if !ok {
		return Entry{}, false, nil
	}
	if entry.Expired(s.now(), s.ttl) {
		delete(s.entries, conversationID)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, conversationID)
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, entry := range s.entries {
		if entry.Expired(now, s.ttl) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

var _ Store = (*MemoryStore)(nil)
