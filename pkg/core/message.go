// SPDX-License-Identifier: Apache-2.0

// Package core defines the domain value types shared across the Rendez agent
// pipeline: chat messages, the per-call conversation context, extracted
// intents, action plans, and execution results.
package core

import (
	"fmt"
	"sort"
	"time"
)

// Message is a single immutable chat utterance as delivered by a transport
// bridge. MessageID and SenderID are external numeric identifiers; zero means
// the transport did not supply one.
type Message struct {
	MessageID int64     `json:"message_id,omitempty"`
	SenderID  int64     `json:"sender_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"` // e.g. "telegram", "desktop"
	IsMention bool      `json:"is_mention,omitempty"`
}

// ParticipantKey returns the stable key used to index participants and
// consent signals: the sender id when present, the username otherwise.
// Empty when the message carries neither.
func (m Message) ParticipantKey() string {
	if m.SenderID != 0 {
		return fmt.Sprintf("%d", m.SenderID)
	}
	return m.Username
}

// DisplayName returns the best human-readable name for the sender.
func (m Message) DisplayName() string {
	switch {
	case m.Username != "":
		return m.Username
	case m.FirstName != "":
		return m.FirstName
	case m.SenderID != 0:
		return fmt.Sprintf("User%d", m.SenderID)
	default:
		return "unknown"
	}
}

// Consent is a participant's latest scheduling signal.
type Consent string

const (
	ConsentAccepted Consent = "accepted"
	ConsentDeclined Consent = "declined"
)

// Participant holds the profile fields observed for one conversation member.
// First occurrence in the window wins.
type Participant struct {
	SenderID  int64  `json:"sender_id,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName returns the best human-readable name for the participant.
func (p Participant) DisplayName() string {
	switch {
	case p.Username != "":
		return p.Username
	case p.FirstName != "":
		return p.FirstName
	case p.SenderID != 0:
		return fmt.Sprintf("User%d", p.SenderID)
	default:
		return "unknown"
	}
}

// ConversationContext is the structured view of one rolling message window.
// It is rebuilt from scratch on every orchestration call and never persisted.
type ConversationContext struct {
	// Messages in chronological order.
	Messages []Message

	// Participants keyed by Message.ParticipantKey.
	Participants map[string]Participant

	// Consent keyed by Message.ParticipantKey; latest signal wins.
	Consent map[string]Consent

	// TimeReferences holds deduplicated free-text temporal phrases.
	// Order is not meaningful.
	TimeReferences []string

	// MentionText is the text of the newest message that directly mentioned
	// the assistant, empty if none.
	MentionText string
}

// AcceptedParticipants returns the participants whose latest consent signal
// is accepted, ordered by key for determinism.
func (c ConversationContext) AcceptedParticipants() []Participant {
	keys := make([]string, 0, len(c.Consent))
	for key, signal := range c.Consent {
		if signal == ConsentAccepted {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := make([]Participant, 0, len(keys))
	for _, key := range keys {
		if p, ok := c.Participants[key]; ok {
			out = append(out, p)
		}
	}
	return out
}
