// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/rendez-ai/rendez/pkg/audit"
	"github.com/rendez-ai/rendez/pkg/conversation"
	"github.com/rendez-ai/rendez/pkg/core"
	"github.com/rendez-ai/rendez/pkg/engine"
	"github.com/rendez-ai/rendez/pkg/errors"
	"github.com/rendez-ai/rendez/pkg/llm"
	"github.com/rendez-ai/rendez/pkg/plancache"
	"github.com/rendez-ai/rendez/pkg/reason"
	"github.com/rendez-ai/rendez/pkg/telemetry"
	"github.com/rendez-ai/rendez/pkg/tool"
)

const intentJSON = `{
	"activity_type": "restaurant",
	"participants": ["ana", "bo"],
	"datetime": "2026-03-14T20:00:00Z",
	"location": "Madrid",
	"confidence": 0.9,
	"missing_fields": [],
	"clarification_needed": ""
}`

const searchPlanJSON = `{
	"tools": [
		{"tool_name": "restaurant_search", "description": "Find a table", "parameters": {"location": "Madrid"}}
	],
	"reasoning": "Search first, book later."
}`

const mixedPlanJSON = `{
	"tools": [
		{"tool_name": "restaurant_search", "description": "Find a table", "parameters": {"location": "Madrid"}},
		{"tool_name": "calendar_create_event", "description": "Book it", "parameters": {"title": "Dinner", "datetime": "2026-03-14T20:00:00Z"}}
	],
	"reasoning": "Search, then put it on the calendar."
}`

type harness struct {
	orch     *Orchestrator
	messages *conversation.MemoryStore
	cache    plancache.Store
	audits   *audit.MemoryStore
	registry *tool.Registry
}

func newHarness(t *testing.T, oracle llm.Client) *harness {
	t.Helper()

	registry := tool.NewRegistry()
	for _, capability := range []tool.Tool{tool.NewRestaurant(), tool.NewCalendar()} {
		if err := registry.Register(capability); err != nil {
			t.Fatal(err)
		}
	}

	messages := conversation.NewMemoryStore()
	cache := plancache.NewMemoryStore(plancache.DefaultTTL)
	audits := audit.NewMemoryStore()

	orch := New(
		messages,
		reason.New(oracle, registry, reason.Config{}),
		engine.New(registry, 2),
		registry,
		cache,
		audits,
		Config{},
	)
	return &harness{orch: orch, messages: messages, cache: cache, audits: audits, registry: registry}
}

func (h *harness) seedConversation(t *testing.T, conversationID string) {
	t.Helper()
	now := time.Now()
	seed := []core.Message{
		{SenderID: 1, Username: "ana", Text: "Dinner in Madrid tomorrow at 8pm?", Timestamp: now.Add(-3 * time.Minute)},
		{SenderID: 2, Username: "bo", Text: "I'm in!", Timestamp: now.Add(-2 * time.Minute)},
	}
	for _, msg := range seed {
		if err := h.messages.AppendMessage(context.Background(), conversationID, msg); err != nil {
			t.Fatal(err)
		}
	}
}

func TestProposeEmptyWindowSkipsOracle(t *testing.T) {
	oracle := llm.NewScriptedClient(intentJSON, searchPlanJSON)
	h := newHarness(t, oracle)

	out := h.orch.Propose(context.Background(), Request{ConversationID: "quiet-room"})

	if out.Status != StatusNeedsClarification {
		t.Fatalf("status = %q", out.Status)
	}
	if out.Clarification != "I don't see any messages. What would you like to do?" {
		t.Errorf("clarification = %q", out.Clarification)
	}
	if oracle.Calls() != 0 {
		t.Errorf("empty window must not reach the oracle, calls = %d", oracle.Calls())
	}
}

func TestProposeReturnsPlanWithoutExecuting(t *testing.T) {
	oracle := llm.NewScriptedClient(intentJSON, searchPlanJSON)
	h := newHarness(t, oracle)
	h.seedConversation(t, "conv-1")

	out := h.orch.Propose(context.Background(), Request{ConversationID: "conv-1"})

	if out.Status != StatusOK {
		t.Fatalf("status = %q (%+v)", out.Status, out)
	}
	if out.Intent == nil || out.Intent.Activity != core.ActivityRestaurant {
		t.Errorf("intent = %+v", out.Intent)
	}
	if len(out.Proposed) != 1 || out.Proposed[0].Tool != "restaurant_search" {
		t.Fatalf("proposed = %+v", out.Proposed)
	}
	if out.Proposed[0].ActionID == "" {
		t.Error("proposed call missing action id")
	}
	if out.IdempotencyKey == "" {
		t.Error("no idempotency key issued")
	}
	if len(out.Results) != 0 || out.Response != "" {
		t.Errorf("propose must not execute or respond: %+v", out)
	}
	if oracle.Calls() != 2 {
		t.Errorf("oracle calls = %d, want 2 (intent + plan)", oracle.Calls())
	}
}

func TestProposeIdempotentReplay(t *testing.T) {
	oracle := llm.NewScriptedClient(intentJSON, searchPlanJSON)
	h := newHarness(t, oracle)
	h.seedConversation(t, "conv-1")

	first := h.orch.Propose(context.Background(), Request{ConversationID: "conv-1", IdempotencyKey: "retry-key"})
	if first.Status != StatusOK {
		t.Fatalf("first propose: %+v", first)
	}
	callsAfterFirst := oracle.Calls()

	second := h.orch.Propose(context.Background(), Request{ConversationID: "conv-1", IdempotencyKey: "retry-key"})

	if second.Status != StatusOK {
		t.Fatalf("replay: %+v", second)
	}
	if oracle.Calls() != callsAfterFirst {
		t.Errorf("replay reached the oracle, calls went %d -> %d", callsAfterFirst, oracle.Calls())
	}
	if len(second.Proposed) != 1 || second.Proposed[0].ActionID != first.Proposed[0].ActionID {
		t.Errorf("replay proposal differs: %+v vs %+v", second.Proposed, first.Proposed)
	}
	if second.IdempotencyKey != "retry-key" {
		t.Errorf("key = %q", second.IdempotencyKey)
	}
}

func TestProposeIntentClarificationSkipsPlanning(t *testing.T) {
	// "bo" is the only seeded participant with an accept signal, so the
	// claimed list survives the consent filter and the oracle's own
	// question is the one surfaced.
	oracle := llm.NewScriptedClient(`{
		"activity_type": "restaurant",
		"participants": ["bo"],
		"datetime": "",
		"confidence": 0.5,
		"missing_fields": ["datetime"],
		"clarification_needed": "What time works for everyone?"
	}`)
	h := newHarness(t, oracle)
	h.seedConversation(t, "conv-1")

	out := h.orch.Propose(context.Background(), Request{ConversationID: "conv-1"})

	if out.Status != StatusNeedsClarification {
		t.Fatalf("status = %q", out.Status)
	}
	if out.Clarification != "What time works for everyone?" {
		t.Errorf("clarification = %q", out.Clarification)
	}
	if oracle.Calls() != 1 {
		t.Errorf("planning must be skipped after a blocking intent, calls = %d", oracle.Calls())
	}
}

func TestProposeUnconsentedParticipantsForceWhoQuestion(t *testing.T) {
	// "ana" only asked the question and never accepted, so the consent
	// filter empties the claimed list and the participants question
	// overrides whatever the oracle asked.
	oracle := llm.NewScriptedClient(`{
		"activity_type": "restaurant",
		"participants": ["ana"],
		"datetime": "",
		"confidence": 0.5,
		"missing_fields": ["datetime"],
		"clarification_needed": "What time works for everyone?"
	}`)
	h := newHarness(t, oracle)
	h.seedConversation(t, "conv-1")

	out := h.orch.Propose(context.Background(), Request{ConversationID: "conv-1"})

	if out.Status != StatusNeedsClarification {
		t.Fatalf("status = %q", out.Status)
	}
	if out.Clarification != "Who's joining this activity?" {
		t.Errorf("clarification = %q", out.Clarification)
	}
	if oracle.Calls() != 1 {
		t.Errorf("planning must be skipped, calls = %d", oracle.Calls())
	}
}

func TestProposePlanningTimeoutIsTerminalError(t *testing.T) {
	calls := 0
	oracle := &llm.MockClient{TextFunc: func(_ context.Context, _ llm.TextRequest) (string, error) {
		calls++
		if calls == 1 {
			return intentJSON, nil
		}
		return "", errors.New(errors.CodeLLMTimeout, "oracle call timed out", context.DeadlineExceeded)
	}}
	h := newHarness(t, oracle)
	h.seedConversation(t, "conv-1")

	out := h.orch.Propose(context.Background(), Request{ConversationID: "conv-1"})

	if out.Status != StatusError {
		t.Fatalf("status = %q", out.Status)
	}
	if out.ErrorCode != errors.CodeLLMTimeout {
		t.Errorf("code = %q", out.ErrorCode)
	}
	if !out.ErrorRetryable {
		t.Error("timeout must be reported retryable")
	}
	if strings.Contains(out.Message, "timed out") {
		t.Errorf("raw error detail leaked to user message: %q", out.Message)
	}
}

type failingMessageStore struct{}

func (failingMessageStore) AppendMessage(context.Context, string, core.Message) error {
	return fmt.Errorf("disk full")
}

func (failingMessageStore) MessagesSince(context.Context, string, time.Time) ([]core.Message, error) {
	return nil, fmt.Errorf("database is locked")
}

func (failingMessageStore) DeleteOlderThan(context.Context, string, time.Time) (int64, error) {
	return 0, fmt.Errorf("database is locked")
}

func TestProposeStoreFailureIsNotTreatedAsEmptyWindow(t *testing.T) {
	oracle := llm.NewScriptedClient(intentJSON, searchPlanJSON)
	h := newHarness(t, oracle)
	h.orch.messages = failingMessageStore{}

	out := h.orch.Propose(context.Background(), Request{ConversationID: "conv-1"})

	if out.Status != StatusError {
		t.Fatalf("store failure must be a terminal error, got %q", out.Status)
	}
	if out.ErrorCode != errors.CodeInternal {
		t.Errorf("code = %q", out.ErrorCode)
	}
	if oracle.Calls() != 0 {
		t.Errorf("oracle reached despite store failure, calls = %d", oracle.Calls())
	}
}

func TestConfirmExecutesSelectedSubsetOnly(t *testing.T) {
	oracle := llm.NewScriptedClient(intentJSON, mixedPlanJSON, "Booked! See you at 8.")
	h := newHarness(t, oracle)
	h.seedConversation(t, "conv-1")

	proposed := h.orch.Propose(context.Background(), Request{ConversationID: "conv-1"})
	if proposed.Status != StatusOK || len(proposed.Proposed) != 2 {
		t.Fatalf("propose: %+v", proposed)
	}

	// Confirm only the search; include one id the plan never contained.
	out := h.orch.ConfirmAndExecute(context.Background(), Request{
		ConversationID: "conv-1",
		TriggerSource:  "desktop_keybind",
		ActionIDs:      []string{proposed.Proposed[0].ActionID, "not-a-real-action"},
	})

	if out.Status != StatusOK {
		t.Fatalf("confirm: %+v", out)
	}
	if len(out.Results) != 1 || out.Results[0].Tool != "restaurant_search" {
		t.Fatalf("results = %+v", out.Results)
	}
	if !out.Results[0].Success {
		t.Errorf("search failed: %+v", out.Results[0])
	}
	if out.Response != "Booked! See you at 8." {
		t.Errorf("response = %q", out.Response)
	}

	records, err := h.audits.List(context.Background(), audit.Filter{ConversationID: "conv-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("audit records = %d", len(records))
	}
	rec := records[0]
	if rec.ActionType != "confirm_execute" || rec.TriggerSource != "desktop_keybind" {
		t.Errorf("audit record = %+v", rec)
	}
	if len(rec.ToolCalls) != 1 || rec.ToolCalls[0].Tool != "restaurant_search" {
		t.Errorf("audited calls = %+v", rec.ToolCalls)
	}
	if !rec.Success {
		t.Error("audit success = false")
	}
}

func TestConfirmConsumesThePlan(t *testing.T) {
	oracle := llm.NewScriptedClient(intentJSON, searchPlanJSON, "Done.", "unused")
	h := newHarness(t, oracle)
	h.seedConversation(t, "conv-1")

	proposed := h.orch.Propose(context.Background(), Request{ConversationID: "conv-1"})
	first := h.orch.ConfirmAndExecute(context.Background(), Request{
		ConversationID: "conv-1",
		ActionIDs:      []string{proposed.Proposed[0].ActionID},
	})
	if first.Status != StatusOK {
		t.Fatalf("first confirm: %+v", first)
	}

	second := h.orch.ConfirmAndExecute(context.Background(), Request{
		ConversationID: "conv-1",
		ActionIDs:      []string{proposed.Proposed[0].ActionID},
	})
	if second.Status != StatusNeedsClarification {
		t.Fatalf("re-confirm after consume: %+v", second)
	}
	if !strings.Contains(second.Clarification, "expired") {
		t.Errorf("clarification = %q", second.Clarification)
	}
}

func TestConfirmWithoutProposalAsksAgain(t *testing.T) {
	h := newHarness(t, llm.NewScriptedClient())

	out := h.orch.ConfirmAndExecute(context.Background(), Request{
		ConversationID: "never-proposed",
		ActionIDs:      []string{"anything"},
	})

	if out.Status != StatusNeedsClarification {
		t.Fatalf("status = %q", out.Status)
	}
	if len(out.Results) != 0 {
		t.Errorf("nothing should execute: %+v", out.Results)
	}
}

type erroringAuditStore struct{}

func (erroringAuditStore) Record(context.Context, audit.Record) error {
	return fmt.Errorf("audit database unavailable")
}

func (erroringAuditStore) List(context.Context, audit.Filter) ([]audit.Record, error) {
	return nil, fmt.Errorf("audit database unavailable")
}

func TestConfirmSwallowsAuditFailure(t *testing.T) {
	oracle := llm.NewScriptedClient(intentJSON, searchPlanJSON, "Done.")
	h := newHarness(t, oracle)
	h.seedConversation(t, "conv-1")
	h.orch.auditLog = erroringAuditStore{}

	proposed := h.orch.Propose(context.Background(), Request{ConversationID: "conv-1"})
	out := h.orch.ConfirmAndExecute(context.Background(), Request{
		ConversationID: "conv-1",
		ActionIDs:      []string{proposed.Proposed[0].ActionID},
	})

	if out.Status != StatusOK {
		t.Fatalf("audit failure changed the outcome: %+v", out)
	}
	if out.Response != "Done." {
		t.Errorf("response = %q", out.Response)
	}
}

// trackedTool wraps a destructive capability and records whether it ran.
type trackedTool struct {
	schema   tool.Schema
	executed atomic.Bool
}

func (tt *trackedTool) Schema() tool.Schema { return tt.schema }

func (tt *trackedTool) Execute(context.Context, map[string]any) (map[string]any, error) {
	tt.executed.Store(true)
	return map[string]any{"status": "ran"}, nil
}

func TestImmediateHoldsBackDestructiveTools(t *testing.T) {
	oracle := llm.NewScriptedClient(intentJSON, mixedPlanJSON, "Found a spot. Confirm the booking from the app.")
	h := newHarness(t, oracle)
	h.seedConversation(t, "conv-1")

	tracked := &trackedTool{schema: tool.Schema{
		Name:        "calendar_create_event",
		Description: "Create a calendar event",
		Metadata:    tool.Metadata{Destructive: true},
	}}
	h.registry = tool.NewRegistry()
	if err := h.registry.Register(tool.NewRestaurant()); err != nil {
		t.Fatal(err)
	}
	if err := h.registry.Register(tracked); err != nil {
		t.Fatal(err)
	}
	h.orch.registry = h.registry
	h.orch.executor = engine.New(h.registry, 2)

	out := h.orch.Immediate(context.Background(), Request{
		ConversationID: "conv-1",
		TriggerSource:  "telegram_mention",
	})

	if out.Status != StatusOK {
		t.Fatalf("immediate: %+v", out)
	}
	if tracked.executed.Load() {
		t.Fatal("destructive tool executed without confirmation")
	}

	var sawSearch, sawPending bool
	for _, res := range out.Results {
		switch res.Tool {
		case "restaurant_search":
			sawSearch = true
			if !res.Success {
				t.Errorf("search result = %+v", res)
			}
		case "pending_confirmation":
			sawPending = true
			if res.Success {
				t.Error("pending result must not count as executed")
			}
			payload, ok := res.Result.(map[string]any)
			if !ok {
				t.Fatalf("pending payload = %#v", res.Result)
			}
			held, _ := payload["held_tools"].([]string)
			if len(held) != 1 || held[0] != "calendar_create_event" {
				t.Errorf("held tools = %v", payload["held_tools"])
			}
		case "calendar_create_event":
			t.Error("destructive tool present in executed results")
		}
	}
	if !sawSearch || !sawPending {
		t.Fatalf("results = %+v", out.Results)
	}

	// The full plan stays confirmable through the trusted channel.
	entry, ok, err := h.cache.Get(context.Background(), "conv-1")
	if err != nil || !ok {
		t.Fatalf("plan not cached after hold-back: ok=%v err=%v", ok, err)
	}
	if len(entry.Tools) != 2 {
		t.Errorf("cached plan = %+v", entry.Tools)
	}

	records, err := h.audits.List(context.Background(), audit.Filter{ActionType: "immediate"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("audit records = %d", len(records))
	}
	if records[0].Success {
		t.Error("held-back run must not audit as fully successful")
	}
}

func TestProposeEmitsPhaseSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(tracenoop.NewTracerProvider()) })

	oracle := llm.NewScriptedClient(intentJSON, searchPlanJSON)
	h := newHarness(t, oracle)
	h.seedConversation(t, "conv-1")

	if out := h.orch.Propose(context.Background(), Request{ConversationID: "conv-1"}); out.Status != StatusOK {
		t.Fatalf("propose: %+v", out)
	}

	phases := map[string]string{}
	for _, span := range recorder.Ended() {
		for _, attr := range span.Attributes() {
			if attr.Key == attribute.Key(telemetry.AttrPhase) {
				phases[span.Name()] = attr.Value.AsString()
			}
		}
	}
	for name, phase := range map[string]string{
		"orplar.observe": "observe",
		"orplar.reason":  "reason",
		"orplar.plan":    "plan",
	} {
		if phases[name] != phase {
			t.Errorf("span %q phase = %q, want %q", name, phases[name], phase)
		}
	}
}

func TestImmediateAllReadOnlyExecutesEverything(t *testing.T) {
	oracle := llm.NewScriptedClient(intentJSON, searchPlanJSON, "Here are some options.")
	h := newHarness(t, oracle)
	h.seedConversation(t, "conv-1")

	out := h.orch.Immediate(context.Background(), Request{ConversationID: "conv-1"})

	if out.Status != StatusOK {
		t.Fatalf("immediate: %+v", out)
	}
	if len(out.Results) != 1 || out.Results[0].Tool != "restaurant_search" || !out.Results[0].Success {
		t.Fatalf("results = %+v", out.Results)
	}
	if out.Response != "Here are some options." {
		t.Errorf("response = %q", out.Response)
	}
}
