// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"regexp"
	"strings"

	"github.com/rendez-ai/rendez/pkg/core"
)

// Consent detection keywords, matched on word boundaries. Short ambiguous
// words that commonly appear in non-consent contexts are deliberately absent
// ("ok" in isolation is acknowledgement rather than commitment, "pass" shows
// up in "pass by").
var acceptKeywords = []string{
	"yes", "sure", "i'm in", "count me in", "+1",
	"sounds good", "im in", "yeah", "okay",
	"definitely", "absolutely", "for sure",
	"let's do it", "i'll be there", "i'll come",
}

var declineKeywords = []string{
	"can't make it", "cannot", "not available", "-1",
	"unable", "won't make it", "i'm busy",
	"have plans", "i'll pass", "count me out",
	"can't come", "not coming",
}

var timeKeywords = []string{
	"tomorrow", "today", "tonight", "this evening",
	"next week", "next month", "monday", "tuesday",
	"wednesday", "thursday", "friday", "saturday", "sunday",
	"am", "pm", "morning", "afternoon", "evening", "night",
}

var (
	acceptPattern  = wordPattern(acceptKeywords)
	declinePattern = wordPattern(declineKeywords)
)

// wordPattern builds one case-insensitive alternation anchored on word
// boundaries. Boundaries keep "ok" from matching inside "booking" and
// "sorry" from matching inside "not sorry at all, i'm coming".
func wordPattern(keywords []string) *regexp.Regexp {
	escaped := make([]string, len(keywords))
	for i, kw := range keywords {
		escaped[i] = regexp.QuoteMeta(kw)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(escaped, "|") + `)\b`)
}

// ExtractContext derives the structured conversation context from one
// rolling window of messages. Pure function of its input; the messages
// slice must already be chronological.
func ExtractContext(messages []core.Message) core.ConversationContext {
	return core.ConversationContext{
		Messages:       messages,
		Participants:   extractParticipants(messages),
		Consent:        detectConsent(messages),
		TimeReferences: extractTimeReferences(messages),
		MentionText:    latestMention(messages),
	}
}

// extractParticipants indexes unique senders. The first occurrence in the
// window fixes the profile fields.
func extractParticipants(messages []core.Message) map[string]core.Participant {
	participants := make(map[string]core.Participant)
	for _, msg := range messages {
		key := msg.ParticipantKey()
		if key == "" {
			continue
		}
		if _, seen := participants[key]; seen {
			continue
		}
		participants[key] = core.Participant{
			SenderID:  msg.SenderID,
			Username:  msg.Username,
			FirstName: msg.FirstName,
			LastName:  msg.LastName,
		}
	}
	return participants
}

// detectConsent scans chronologically so a participant's latest signal wins.
// Within one message the decline check runs after the accept check, so
// "yes... actually I can't make it" lands on declined.
func detectConsent(messages []core.Message) map[string]core.Consent {
	consent := make(map[string]core.Consent)
	for _, msg := range messages {
		key := msg.ParticipantKey()
		if key == "" {
			continue
		}
		if acceptPattern.MatchString(msg.Text) {
			consent[key] = core.ConsentAccepted
		}
		if declinePattern.MatchString(msg.Text) {
			consent[key] = core.ConsentDeclined
		}
	}
	return consent
}

// extractTimeReferences collects the sentence around each temporal keyword,
// deduplicated while preserving first appearance.
func extractTimeReferences(messages []core.Message) []string {
	var refs []string
	seen := make(map[string]struct{})

	for _, msg := range messages {
		lower := strings.ToLower(msg.Text)
		for _, keyword := range timeKeywords {
			if !strings.Contains(lower, keyword) {
				continue
			}
			for _, sentence := range strings.Split(msg.Text, ".") {
				if !strings.Contains(strings.ToLower(sentence), keyword) {
					continue
				}
				ref := strings.TrimSpace(sentence)
				if ref == "" {
					break
				}
				if _, dup := seen[ref]; !dup {
					seen[ref] = struct{}{}
					refs = append(refs, ref)
				}
				break
			}
		}
	}
	return refs
}

// latestMention returns the text of the newest message that directly
// mentioned the assistant.
func latestMention(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsMention {
			return messages[i].Text
		}
	}
	return ""
}
