// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const defaultEventMinutes = 120

// CalendarTool creates calendar events for a confirmed group activity. It is
// the one destructive capability in the default catalog; without a backing
// calendar client it runs in mock mode and fabricates the event.
type CalendarTool struct{}

// NewCalendar builds the calendar capability.
func NewCalendar() *CalendarTool {
	return &CalendarTool{}
}

func (t *CalendarTool) Schema() Schema {
	return Schema{
		Name:        "calendar_create_event",
		Description: "Create a calendar event for a group activity",
		Parameters: []Parameter{
			{Name: "title", Type: "string", Description: "Event title/name", Required: true},
			{Name: "datetime", Type: "string", Description: "Event start time in ISO8601 format", Required: true},
			{Name: "duration_minutes", Type: "integer", Description: "Event duration in minutes", Default: defaultEventMinutes},
			{Name: "location", Type: "string", Description: "Event location"},
			{Name: "description", Type: "string", Description: "Event description/notes"},
		},
		Metadata: Metadata{
			Destructive:  true,
			OpenWorld:    true,
			RequiresAuth: true,
			MockMode:     true,
		},
	}
}

func (t *CalendarTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	title, err := stringParam(params, "title")
	if err != nil {
		return nil, err
	}
	startRaw, err := stringParam(params, "datetime")
	if err != nil {
		return nil, err
	}
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid datetime %q: %w", startRaw, err)
	}

	duration := intParam(params, "duration_minutes", defaultEventMinutes)
	end := start.Add(time.Duration(duration) * time.Minute)

	slog.InfoContext(ctx, "tool.calendar.mock_event", "title", title, "start", start)

	return map[string]any{
		"event_id":   "mock_event_123",
		"event_link": "https://calendar.google.com/event?eid=mock_event_123",
		"event_details": map[string]any{
			"title":       title,
			"start":       start.Format(time.RFC3339),
			"end":         end.Format(time.RFC3339),
			"location":    optionalString(params, "location"),
			"description": optionalString(params, "description"),
		},
	}, nil
}

// stringParam fetches a required string parameter, tolerating absent or
// mistyped values with an error instead of a panic.
func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("parameter %s is required", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string, got %T", name, v)
	}
	return s, nil
}

func optionalString(params map[string]any, name string) string {
	if s, ok := params[name].(string); ok {
		return s
	}
	return ""
}

// intParam reads an integer parameter. Values decoded from JSON arrive as
// float64, so both numeric shapes are accepted.
func intParam(params map[string]any, name string, fallback int) int {
	switch v := params[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

var _ Tool = (*CalendarTool)(nil)
