// SPDX-License-Identifier: Apache-2.0

// Package conversation maintains the rolling message window and derives the
// structured context the reasoning layer consumes: participants, consent
// signals, temporal references and the triggering mention.
package conversation

import (
	"context"
	"time"

	"github.com/rendez-ai/rendez/pkg/core"
)

// MessageStore persists the conversation transcript. Implementations must
// return messages in chronological order from MessagesSince.
type MessageStore interface {
	// AppendMessage stores one message under a conversation id.
	AppendMessage(ctx context.Context, conversationID string, msg core.Message) error

	// MessagesSince returns the messages at or after the cutoff,
	// oldest first.
	MessagesSince(ctx context.Context, conversationID string, cutoff time.Time) ([]core.Message, error)

	// DeleteOlderThan drops messages strictly older than the cutoff and
	// reports how many were removed.
	DeleteOlderThan(ctx context.Context, conversationID string, cutoff time.Time) (int64, error)
}
