// SPDX-License-Identifier: Apache-2.0

// Package plancache holds proposed action plans between the Propose and
// Confirm calls of the two-phase flow. Entries live for a bounded TTL;
// expired entries are evicted on read and by a background sweeper.
package plancache

import (
	"context"
	"time"

	"github.com/rendez-ai/rendez/pkg/core"
)

// DefaultTTL bounds how long a proposed plan stays confirmable.
const DefaultTTL = 15 * time.Minute

// Entry is one cached proposal, keyed by conversation id.
type Entry struct {
	ConversationID string          `json:"conversation_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Intent         core.Intent     `json:"intent"`
	Tools          []core.ToolCall `json:"tools"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Expired reports whether the entry has outlived the TTL at the given time.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) > ttl
}

// Store persists proposals. One live entry per conversation; Put replaces.
// Get must treat an expired entry as absent and evict it.
type Store interface {
	Put(ctx context.Context, entry Entry) error
	Get(ctx context.Context, conversationID string) (Entry, bool, error)
	Delete(ctx context.Context, conversationID string) error

	// DeleteExpired removes every expired entry and reports the count.
	// Called by the background sweeper.
	DeleteExpired(ctx context.Context) (int, error)
}
