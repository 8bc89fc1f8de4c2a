// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rendez-ai/rendez/pkg/core"
)

// MemoryStore is an in-memory MessageStore for tests and single-process use.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]core.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]core.Message)}
}

func (s *MemoryStore) AppendMessage(_ context.Context, conversationID string, msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return nil
}

func (s *MemoryStore) MessagesSince(_ context.Context, conversationID string, cutoff time.Time) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Message
	for _, msg := range s.messages[conversationID] {
		if !msg.Timestamp.Before(cutoff) {
			out = append(out, msg)
		}
	}
	// Transports may deliver out of order; the contract is chronological.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, conversationID string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.messages[conversationID][:0]
	var removed int64
	for _, msg := range s.messages[conversationID] {
		if msg.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	s.messages[conversationID] = kept
	return removed, nil
}

var _ MessageStore = (*MemoryStore)(nil)
