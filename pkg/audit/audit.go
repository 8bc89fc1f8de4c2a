// SPDX-License-Identifier: Apache-2.0

// Package audit records what the agent did and why: one record per completed
// orchestration run with the intent snapshot, the tool calls and the final
// response. Emission must never fail a run; callers swallow store errors.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendez-ai/rendez/pkg/core"
)

// Record is one audited orchestration run.
type Record struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	TriggerSource  string          `json:"trigger_source"`
	ActionType     string          `json:"action_type"` // propose, confirm, immediate
	Intent         core.Intent     `json:"intent"`
	ToolCalls      []core.ToolCall `json:"tool_calls,omitempty"`
	ResponseText   string          `json:"response_text,omitempty"`
	Success        bool            `json:"success"`
	DurationMs     int64           `json:"duration_ms"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Filter limits record queries.
type Filter struct {
	ConversationID string
	ActionType     string
	Limit          int
}

// Store persists audit records.
type Store interface {
	Record(ctx context.Context, rec Record) error
	List(ctx context.Context, filter Filter) ([]Record, error)
}

// Normalize stamps id and timestamp when the caller left them empty.
func Normalize(rec Record) Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return rec
}

// MemoryStore keeps audit records in memory.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryStore returns an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an audit record.
func (s *MemoryStore) Record(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Normalize(rec))
	return nil
}

// List returns filtered records in insertion order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter.ConversationID != "" && rec.ConversationID != filter.ConversationID {
			continue
		}
		if filter.ActionType != "" && rec.ActionType != filter.ActionType {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
