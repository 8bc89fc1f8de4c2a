// SPDX-License-Identifier: Apache-2.0

package core

import "time"

// Activity classifies what the group is trying to schedule.
type Activity string

const (
	ActivityRestaurant Activity = "restaurant"
	ActivityCinema     Activity = "cinema"
	ActivityMeeting    Activity = "meeting"
	ActivityOther      Activity = "other"
)

// ParseActivity normalizes an oracle-supplied activity string, defaulting to
// ActivityOther for anything unrecognized.
func ParseActivity(s string) Activity {
	switch Activity(s) {
	case ActivityRestaurant, ActivityCinema, ActivityMeeting:
		return Activity(s)
	default:
		return ActivityOther
	}
}

// Intent is the structured judgment extracted from a conversation window.
// Immutable once produced; consumed by planning.
type Intent struct {
	Activity     Activity       `json:"activity_type"`
	Participants []string       `json:"participants"`
	When         *time.Time     `json:"datetime,omitempty"`
	Location     string         `json:"location,omitempty"`
	Requirements map[string]any `json:"requirements,omitempty"`

	// Confidence is the oracle's self-reported certainty in [0,1].
	// Fallback-synthesized intents carry a low fixed value.
	Confidence float64 `json:"confidence"`

	MissingFields []string `json:"missing_fields,omitempty"`

	// Clarification is the single question to surface when critical
	// information is missing. Empty means planning may proceed.
	Clarification string `json:"clarification_needed,omitempty"`
}

// NeedsClarification reports whether the intent blocks planning.
func (i Intent) NeedsClarification() bool {
	return i.Clarification != ""
}
