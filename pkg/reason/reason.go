// SPDX-License-Identifier: Apache-2.0

// Package reason wraps the Reasoning Oracle for the three synthesis steps of
// the pipeline: intent extraction, action planning and response composition.
// Infrastructure failures propagate for classification; parse failures
// degrade to conservative local fallbacks that never invent side effects.
package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/rendez-ai/rendez/pkg/core"
	"github.com/rendez-ai/rendez/pkg/errors"
	"github.com/rendez-ai/rendez/pkg/llm"
	"github.com/rendez-ai/rendez/pkg/tool"
)

// Fixed clarification questions. First missing field wins; at most one is
// surfaced per intent.
const (
	askParticipants = "Who's joining this activity?"
	askTime         = "What time works for everyone?"
	askActivity     = "What would you like to do and when?"
	askReplan       = "I couldn't put together a safe plan for that. Could you tell me again what you'd like to set up?"
)

const fallbackConfidence = 0.3

// Config carries the per-phase oracle timeouts. Phases budget independently
// so one slow phase cannot exhaust another's allowance.
type Config struct {
	IntentTimeout   time.Duration
	PlanTimeout     time.Duration
	ResponseTimeout time.Duration
}

// Engine performs oracle-backed synthesis against a tool catalog.
type Engine struct {
	oracle   llm.Client
	registry *tool.Registry
	cfg      Config
}

// New creates a reasoning engine.
func New(oracle llm.Client, registry *tool.Registry, cfg Config) *Engine {
	return &Engine{oracle: oracle, registry: registry, cfg: cfg}
}

// intentWire is the JSON shape the oracle is asked to produce.
type intentWire struct {
	ActivityType        string         `json:"activity_type"`
	Participants        []string       `json:"participants"`
	Datetime            string         `json:"datetime"`
	Location            string         `json:"location"`
	Requirements        map[string]any `json:"requirements"`
	Confidence          float64        `json:"confidence"`
	MissingFields       []string       `json:"missing_fields"`
	ClarificationNeeded string         `json:"clarification_needed"`
}

// ExtractIntent derives a structured Intent from the conversation window.
// Timeout and connection failures return an error; a parse or shape failure
// falls back to a low-confidence intent built from consent signals alone.
func (e *Engine) ExtractIntent(ctx context.Context, conv core.ConversationContext) (core.Intent, error) {
	prompt := fmt.Sprintf(intentExtractionPrompt, formatTranscript(conv.Messages))

	intent, err := e.oracleIntent(ctx, prompt)
	if err != nil {
		if errors.Classify(err).Code != errors.CodeLLMParse {
			return core.Intent{}, err
		}
		slog.WarnContext(ctx, "reason.intent.fallback", "error", err)
		intent = fallbackIntent(conv)
	}

	finalizeIntent(&intent, conv)

	slog.InfoContext(ctx, "reason.intent.extracted",
		"activity", intent.Activity,
		"participants", len(intent.Participants),
		"confidence", intent.Confidence)
	return intent, nil
}

func (e *Engine) oracleIntent(ctx context.Context, prompt string) (core.Intent, error) {
	raw, err := e.oracle.CompleteStructured(ctx, llm.StructuredRequest{
		Prompt:  prompt,
		Schema:  json.RawMessage(intentSchema),
		Timeout: e.cfg.IntentTimeout,
	})
	if err != nil {
		return core.Intent{}, err
	}

	var wire intentWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return core.Intent{}, errors.New(errors.CodeLLMParse, "intent response has unexpected shape", err)
	}

	return core.Intent{
		Activity:      core.ParseActivity(wire.ActivityType),
		Participants:  wire.Participants,
		When:          parseWhen(wire.Datetime),
		Location:      wire.Location,
		Requirements:  wire.Requirements,
		Confidence:    wire.Confidence,
		MissingFields: wire.MissingFields,
		Clarification: wire.ClarificationNeeded,
	}, nil
}

// fallbackIntent is the locally synthesized stand-in when the oracle answer
// cannot be parsed: only consenting participants, low confidence, explicit
// missing fields.
func fallbackIntent(conv core.ConversationContext) core.Intent {
	var participants []string
	for _, p := range conv.AcceptedParticipants() {
		participants = append(participants, p.DisplayName())
	}
	return core.Intent{
		Activity:      core.ActivityOther,
		Participants:  participants,
		Confidence:    fallbackConfidence,
		MissingFields: []string{"activity_type", "datetime"},
		Clarification: askActivity,
	}
}

// finalizeIntent applies the consent filter and the missing-field checks to
// any intent, oracle-produced or fallback. The oracle's claimed participant
// list is narrowed to members whose latest signal is accepted; an empty
// result forces the participants question regardless of what the oracle said.
func finalizeIntent(intent *core.Intent, conv core.ConversationContext) {
	accepted := conv.AcceptedParticipants()
	acceptedNames := make(map[string]bool, len(accepted)*2)
	for _, p := range accepted {
		if p.Username != "" {
			acceptedNames[p.Username] = true
		}
		if p.FirstName != "" {
			acceptedNames[p.FirstName] = true
		}
		acceptedNames[p.DisplayName()] = true
	}

	var consenting []string
	seen := make(map[string]bool)
	for _, name := range intent.Participants {
		if acceptedNames[name] && !seen[name] {
			seen[name] = true
			consenting = append(consenting, name)
		}
	}
	intent.Participants = consenting

	if len(intent.Participants) == 0 {
		intent.MissingFields = appendMissing(intent.MissingFields, "participants")
		intent.Clarification = askParticipants
	}
	if intent.When == nil {
		intent.MissingFields = appendMissing(intent.MissingFields, "time")
		if intent.Clarification == "" {
			intent.Clarification = askTime
		}
	}
}

func appendMissing(fields []string, name string) []string {
	for _, f := range fields {
		if f == name {
			return fields
		}
	}
	return append(fields, name)
}

// parseWhen accepts the date-time shapes the oracle actually emits. An
// unparseable value resolves to nil and triggers the time clarification.
func parseWhen(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// formatTranscript renders the window as "sender: text" lines with the text
// HTML-escaped so participant chat cannot masquerade as structural markup.
func formatTranscript(messages []core.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", html.EscapeString(msg.DisplayName()), html.EscapeString(msg.Text)))
	}
	return strings.Join(lines, "\n")
}

// planWire is the JSON shape the planning prompt requests.
type planWire struct {
	Tools []struct {
		ToolName    string         `json:"tool_name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"tools"`
	Reasoning string `json:"reasoning"`
}

// CreateActionPlan asks the oracle to sequence tool calls for the intent.
// Infrastructure failures propagate; a malformed answer yields an empty plan
// flagged for clarification, never an invented side-effecting action.
func (e *Engine) CreateActionPlan(ctx context.Context, intent core.Intent) (core.ActionPlan, error) {
	intentJSON, err := json.MarshalIndent(intent, "", "  ")
	if err != nil {
		return core.ActionPlan{}, errors.New(errors.CodeInternal, "failed to encode intent", err)
	}
	schemasJSON, err := json.MarshalIndent(e.registry.Discovery(), "", "  ")
	if err != nil {
		return core.ActionPlan{}, errors.New(errors.CodeInternal, "failed to encode tool schemas", err)
	}

	prompt := fmt.Sprintf(toolPlanningPrompt, intentJSON, schemasJSON)
	text, err := e.oracle.CompleteText(ctx, llm.TextRequest{
		Prompt:      prompt,
		Temperature: 0.5,
		Timeout:     e.cfg.PlanTimeout,
		JSONMode:    true,
	})
	if err != nil {
		if errors.Classify(err).Code == errors.CodeLLMParse {
			return e.clarificationPlan(ctx, err), nil
		}
		return core.ActionPlan{}, err
	}

	raw, err := llm.ExtractJSONObject(text)
	if err != nil {
		return e.clarificationPlan(ctx, err), nil
	}
	var wire planWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return e.clarificationPlan(ctx, err), nil
	}

	calls := make([]core.ToolCall, 0, len(wire.Tools))
	for _, t := range wire.Tools {
		if t.ToolName == "" {
			return e.clarificationPlan(ctx, fmt.Errorf("plan entry missing tool_name")), nil
		}
		calls = append(calls, core.NewToolCall(t.ToolName, t.Description, t.Parameters))
	}

	slog.InfoContext(ctx, "reason.plan.created", "tools", len(calls))
	return core.ActionPlan{Tools: calls, Reasoning: wire.Reasoning}, nil
}

// clarificationPlan is the safe answer to an unusable planning response.
// Guessing wrong on a destructive action is worse than asking again.
func (e *Engine) clarificationPlan(ctx context.Context, cause error) core.ActionPlan {
	slog.WarnContext(ctx, "reason.plan.fallback", "error", cause)
	return core.ActionPlan{
		RequiresClarification: true,
		Clarification:         askReplan,
	}
}

// ComposeResponse renders the execution results as a short user-facing
// message. Results are already final by this point, so any oracle failure
// degrades to a counted summary instead of erroring the whole run.
func (e *Engine) ComposeResponse(ctx context.Context, intent core.Intent, results []core.ExecutionResult) string {
	intentJSON, _ := json.MarshalIndent(intent, "", "  ")
	resultsJSON, _ := json.MarshalIndent(results, "", "  ")

	prompt := fmt.Sprintf(responseCompositionPrompt, intentJSON, resultsJSON)
	text, err := e.oracle.CompleteText(ctx, llm.TextRequest{
		Prompt:      prompt,
		Temperature: 0.7,
		Timeout:     e.cfg.ResponseTimeout,
	})
	if err != nil {
		slog.WarnContext(ctx, "reason.response.fallback", "error", err)
		return fallbackResponse(intent, results)
	}

	slog.DebugContext(ctx, "reason.response.composed")
	return strings.TrimSpace(text)
}

func fallbackResponse(intent core.Intent, results []core.ExecutionResult) string {
	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	return fmt.Sprintf("I've completed %d out of %d actions for your %s.", successful, len(results), intent.Activity)
}
