// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"testing"
	"time"

	"github.com/rendez-ai/rendez/pkg/core"
)

func msgAt(sender int64, username, text string, minute int, mention bool) core.Message {
	return core.Message{
		SenderID:  sender,
		Username:  username,
		Text:      text,
		Timestamp: time.Date(2026, 3, 10, 18, minute, 0, 0, time.UTC),
		IsMention: mention,
	}
}

func TestDetectConsentWordBoundaries(t *testing.T) {
	tests := []struct {
		name string
		text string
		want core.Consent // "" means no signal
	}{
		{name: "plain yes", text: "yes", want: core.ConsentAccepted},
		{name: "keyword inside word does not match", text: "I finished the booking", want: ""},
		{name: "count me in", text: "count me in please", want: core.ConsentAccepted},
		{name: "multi word accept", text: "sounds good to me", want: core.ConsentAccepted},
		{name: "apostrophe accept", text: "i'll be there", want: core.ConsentAccepted},
		{name: "decline phrase", text: "sorry, can't make it", want: core.ConsentDeclined},
		{name: "decline inside sentence", text: "I have plans on friday", want: core.ConsentDeclined},
		{name: "accept then decline in one message", text: "yes... actually I can't make it", want: core.ConsentDeclined},
		{name: "case insensitive", text: "DEFINITELY", want: core.ConsentAccepted},
		{name: "unrelated text", text: "what is the weather like", want: ""},
		{name: "cannot as decline", text: "I cannot join you", want: core.ConsentDeclined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectConsent([]core.Message{msgAt(7, "ana", tt.text, 0, false)})
			signal := got["7"]
			if signal != tt.want {
				t.Errorf("consent = %q, want %q", signal, tt.want)
			}
		})
	}
}

func TestDetectConsentLastSignalWins(t *testing.T) {
	messages := []core.Message{
		msgAt(1, "ana", "yes, count me in", 0, false),
		msgAt(2, "bo", "sure", 1, false),
		msgAt(1, "ana", "actually I won't make it", 5, false),
	}

	consent := detectConsent(messages)
	if consent["1"] != core.ConsentDeclined {
		t.Errorf("ana = %q, want declined", consent["1"])
	}
	if consent["2"] != core.ConsentAccepted {
		t.Errorf("bo = %q, want accepted", consent["2"])
	}
}

func TestExtractParticipantsFirstWins(t *testing.T) {
	messages := []core.Message{
		msgAt(1, "ana_old", "hello", 0, false),
		msgAt(1, "ana_new", "hello again", 1, false),
		{Username: "ghost", Text: "no sender id", Timestamp: time.Now()},
		{Text: "no identity at all", Timestamp: time.Now()},
	}

	participants := extractParticipants(messages)
	if len(participants) != 2 {
		t.Fatalf("got %d participants", len(participants))
	}
	if participants["1"].Username != "ana_old" {
		t.Errorf("first occurrence should win, got %q", participants["1"].Username)
	}
	if _, ok := participants["ghost"]; !ok {
		t.Error("username fallback key missing")
	}
}

func TestExtractTimeReferences(t *testing.T) {
	messages := []core.Message{
		msgAt(1, "ana", "Dinner tomorrow at 8pm. Somewhere central", 0, false),
		msgAt(2, "bo", "Dinner tomorrow at 8pm. Somewhere central", 1, false),
		msgAt(3, "cy", "nothing temporal here", 2, false),
	}

	refs := extractTimeReferences(messages)
	if len(refs) != 1 {
		t.Fatalf("refs = %v", refs)
	}
	if refs[0] != "Dinner tomorrow at 8pm" {
		t.Errorf("ref = %q", refs[0])
	}
}

func TestLatestMention(t *testing.T) {
	messages := []core.Message{
		msgAt(1, "ana", "@rendez plan dinner", 0, true),
		msgAt(2, "bo", "yes", 1, false),
		msgAt(1, "ana", "@rendez make it friday", 5, true),
	}
	if got := latestMention(messages); got != "@rendez make it friday" {
		t.Errorf("mention = %q", got)
	}
	if got := latestMention(nil); got != "" {
		t.Errorf("empty window mention = %q", got)
	}
}

func TestExtractContextEmptyWindow(t *testing.T) {
	ctx := ExtractContext(nil)
	if len(ctx.Messages) != 0 || len(ctx.Participants) != 0 || len(ctx.Consent) != 0 {
		t.Errorf("empty window should produce empty context: %+v", ctx)
	}
}
