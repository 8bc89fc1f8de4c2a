// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives the five-phase agent loop: Observe, Reason,
// Plan, Act, Respond. Two-phase callers split the loop into Propose (no side
// effects) and ConfirmAndExecute; low-trust channels use Immediate, which
// executes read paths right away and holds destructive actions back for
// confirmation through the trusted channel.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rendez-ai/rendez/pkg/audit"
	"github.com/rendez-ai/rendez/pkg/conversation"
	"github.com/rendez-ai/rendez/pkg/core"
	"github.com/rendez-ai/rendez/pkg/engine"
	"github.com/rendez-ai/rendez/pkg/errors"
	"github.com/rendez-ai/rendez/pkg/plancache"
	"github.com/rendez-ai/rendez/pkg/reason"
	"github.com/rendez-ai/rendez/pkg/telemetry"
	"github.com/rendez-ai/rendez/pkg/tool"
)

// DefaultWindow is the rolling conversation window considered per run.
const DefaultWindow = 60 * time.Minute

// User-facing fixed prompts. Raw error detail never reaches these strings.
const (
	askNoMessages = "I don't see any messages. What would you like to do?"
	askPlanGone   = "That plan has expired. Ask me again and I'll propose a fresh one."
	msgRunFailed  = "I encountered an error processing your request. Could you try rephrasing?"
	msgHoldback   = "These actions change external state. Confirm them from the trusted app to run them."
)

// Status is the terminal state of one orchestration run.
type Status string

const (
	StatusOK                 Status = "ok"
	StatusNeedsClarification Status = "needs_clarification"
	StatusError              Status = "error"
)

// Request identifies one orchestration invocation.
type Request struct {
	ConversationID string

	// TriggerSource tags the audit trail (e.g. "desktop_keybind",
	// "telegram_mention").
	TriggerSource string

	// IdempotencyKey lets Propose short-circuit to a cached proposal.
	// Empty means a fresh key is generated.
	IdempotencyKey string

	// ActionIDs selects the subset of a proposed plan to confirm.
	// Unknown ids are silently excluded.
	ActionIDs []string
}

// Outcome is the terminal result of any entry point. Exactly one of the
// status-specific field groups is meaningful.
type Outcome struct {
	Status Status `json:"status"`

	Intent   *core.Intent    `json:"intent,omitempty"`
	Proposed []core.ToolCall `json:"proposed_actions,omitempty"`

	// IdempotencyKey echoes (or supplies) the key under which the
	// proposal was cached.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	Results  []core.ExecutionResult `json:"results,omitempty"`
	Response string                 `json:"response,omitempty"`

	Clarification string `json:"clarification_question,omitempty"`

	ErrorCode      errors.ErrorCode `json:"error_code,omitempty"`
	ErrorRetryable bool             `json:"error_retryable,omitempty"`

	// Message is the human-safe line accompanying an error status.
	Message string `json:"message,omitempty"`
}

// Config tunes the orchestrator.
type Config struct {
	// Window bounds how far back Observe reaches. Zero means DefaultWindow.
	Window time.Duration
}

// Orchestrator wires the collaborators of one agent deployment. It holds no
// per-run mutable state; a single instance serves concurrent conversations.
type Orchestrator struct {
	messages conversation.MessageStore
	reasoner *reason.Engine
	executor *engine.Engine
	registry *tool.Registry
	cache    plancache.Store
	auditLog audit.Store
	window   time.Duration

	tracer trace.Tracer
	now    func() time.Time
}

// New creates an orchestrator.
func New(
	messages conversation.MessageStore,
	reasoner *reason.Engine,
	executor *engine.Engine,
	registry *tool.Registry,
	cache plancache.Store,
	auditLog audit.Store,
	cfg Config,
) *Orchestrator {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	initRunMetrics()
	return &Orchestrator{
		messages: messages,
		reasoner: reasoner,
		executor: executor,
		registry: registry,
		cache:    cache,
		auditLog: auditLog,
		window:   window,
		tracer:   otel.Tracer("rendez/orchestrator"),
		now:      time.Now,
	}
}

// Propose runs Observe, Reason and Plan and returns the proposed tool calls
// without executing anything. The proposal is cached for a later
// ConfirmAndExecute under the request's (or a generated) idempotency key.
func (o *Orchestrator) Propose(ctx context.Context, req Request) Outcome {
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := o.tracer.Start(ctx, "orplar.propose",
		trace.WithAttributes(telemetry.RunAttributes(runID, req.ConversationID, req.TriggerSource)...))
	defer span.End()

	outcome := o.propose(ctx, req)
	o.finishRun(ctx, span, "propose", outcome)
	return outcome
}

func (o *Orchestrator) propose(ctx context.Context, req Request) Outcome {
	if req.IdempotencyKey != "" {
		if cached, ok := o.cachedProposal(ctx, req); ok {
			return cached
		}
	}

	conv, outcome, ok := o.observe(ctx, req.ConversationID)
	if !ok {
		return outcome
	}

	intent, plan, outcome, ok := o.reasonAndPlan(ctx, conv)
	if !ok {
		return outcome
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	entry := plancache.Entry{
		ConversationID: req.ConversationID,
		IdempotencyKey: key,
		Intent:         intent,
		Tools:          plan.Tools,
	}
	if err := o.cache.Put(ctx, entry); err != nil {
		// The proposal is still valid for display; only confirmation
		// will miss.
		slog.WarnContext(ctx, "orplar.cache.put_failed", "conversation_id", req.ConversationID, "error", err)
	}

	return Outcome{
		Status:         StatusOK,
		Intent:         &intent,
		Proposed:       plan.Tools,
		IdempotencyKey: key,
	}
}

// cachedProposal returns a previously proposed plan when the idempotency key
// matches an unexpired cache entry, skipping every oracle round-trip.
func (o *Orchestrator) cachedProposal(ctx context.Context, req Request) (Outcome, bool) {
	entry, ok, err := o.cache.Get(ctx, req.ConversationID)
	if err != nil {
		slog.WarnContext(ctx, "orplar.cache.get_failed", "conversation_id", req.ConversationID, "error", err)
		return Outcome{}, false
	}
	if !ok || entry.IdempotencyKey != req.IdempotencyKey {
		return Outcome{}, false
	}

	slog.InfoContext(ctx, "orplar.propose.idempotent", "conversation_id", req.ConversationID)
	intent := entry.Intent
	return Outcome{
		Status:         StatusOK,
		Intent:         &intent,
		Proposed:       entry.Tools,
		IdempotencyKey: entry.IdempotencyKey,
	}, true
}

// ConfirmAndExecute runs the Act and Respond phases over the caller-selected
// subset of a previously proposed plan. The audit record is emitted
// regardless of outcome; an audit failure never affects the result.
func (o *Orchestrator) ConfirmAndExecute(ctx context.Context, req Request) Outcome {
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := o.tracer.Start(ctx, "orplar.confirm",
		trace.WithAttributes(telemetry.RunAttributes(runID, req.ConversationID, req.TriggerSource)...))
	defer span.End()

	start := o.now()

	entry, ok, err := o.cache.Get(ctx, req.ConversationID)
	if err != nil {
		outcome := o.errorOutcome(ctx, err)
		o.finishRun(ctx, span, "confirm", outcome)
		return outcome
	}
	if !ok {
		outcome := Outcome{Status: StatusNeedsClarification, Clarification: askPlanGone}
		o.finishRun(ctx, span, "confirm", outcome)
		return outcome
	}

	plan := core.ActionPlan{Tools: entry.Tools}
	selected := plan.Filter(req.ActionIDs)

	slog.InfoContext(ctx, "orplar.act", "conversation_id", req.ConversationID,
		"selected", len(selected), "proposed", len(entry.Tools))
	actCtx, actSpan := o.tracer.Start(ctx, "orplar.act",
		trace.WithAttributes(telemetry.PhaseAttributes("act")...))
	results := o.executor.ExecuteAll(actCtx, selected)
	actSpan.End()

	slog.InfoContext(ctx, "orplar.respond", "conversation_id", req.ConversationID)
	respondCtx, respondSpan := o.tracer.Start(ctx, "orplar.respond",
		trace.WithAttributes(telemetry.PhaseAttributes("respond")...))
	response := o.reasoner.ComposeResponse(respondCtx, entry.Intent, results)
	respondSpan.End()

	if err := o.cache.Delete(ctx, req.ConversationID); err != nil {
		slog.WarnContext(ctx, "orplar.cache.delete_failed", "conversation_id", req.ConversationID, "error", err)
	}

	o.emitAudit(ctx, audit.Record{
		ConversationID: req.ConversationID,
		TriggerSource:  req.TriggerSource,
		ActionType:     "confirm_execute",
		Intent:         entry.Intent,
		ToolCalls:      selected,
		ResponseText:   response,
		Success:        allSucceeded(results),
		DurationMs:     o.now().Sub(start).Milliseconds(),
	})

	intent := entry.Intent
	outcome := Outcome{
		Status:   StatusOK,
		Intent:   &intent,
		Results:  results,
		Response: response,
	}
	o.finishRun(ctx, span, "confirm", outcome)
	return outcome
}

// Immediate runs the full loop for low-trust channels. Non-destructive tools
// execute right away; destructive ones are held back as a single pending
// confirmation result, and the plan is cached so the trusted channel can
// confirm them.
func (o *Orchestrator) Immediate(ctx context.Context, req Request) Outcome {
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := o.tracer.Start(ctx, "orplar.immediate",
		trace.WithAttributes(telemetry.RunAttributes(runID, req.ConversationID, req.TriggerSource)...))
	defer span.End()

	outcome := o.immediate(ctx, req)
	o.finishRun(ctx, span, "immediate", outcome)
	return outcome
}

func (o *Orchestrator) immediate(ctx context.Context, req Request) Outcome {
	start := o.now()

	conv, outcome, ok := o.observe(ctx, req.ConversationID)
	if !ok {
		return outcome
	}
	intent, plan, outcome, ok := o.reasonAndPlan(ctx, conv)
	if !ok {
		return outcome
	}

	runnable, held := o.partitionByDestructive(plan.Tools)

	slog.InfoContext(ctx, "orplar.act", "conversation_id", req.ConversationID,
		"runnable", len(runnable), "held", len(held))
	actCtx, actSpan := o.tracer.Start(ctx, "orplar.act",
		trace.WithAttributes(telemetry.PhaseAttributes("act")...))
	results := o.executor.ExecuteAll(actCtx, runnable)
	actSpan.End()
	if len(held) > 0 {
		results = append(results, pendingConfirmation(held))
		// Keep the full plan confirmable from the trusted channel.
		if err := o.cache.Put(ctx, plancache.Entry{
			ConversationID: req.ConversationID,
			IdempotencyKey: uuid.NewString(),
			Intent:         intent,
			Tools:          plan.Tools,
		}); err != nil {
			slog.WarnContext(ctx, "orplar.cache.put_failed", "conversation_id", req.ConversationID, "error", err)
		}
	}

	slog.InfoContext(ctx, "orplar.respond", "conversation_id", req.ConversationID)
	respondCtx, respondSpan := o.tracer.Start(ctx, "orplar.respond",
		trace.WithAttributes(telemetry.PhaseAttributes("respond")...))
	response := o.reasoner.ComposeResponse(respondCtx, intent, results)
	respondSpan.End()

	o.emitAudit(ctx, audit.Record{
		ConversationID: req.ConversationID,
		TriggerSource:  req.TriggerSource,
		ActionType:     "immediate",
		Intent:         intent,
		ToolCalls:      plan.Tools,
		ResponseText:   response,
		Success:        allSucceeded(results),
		DurationMs:     o.now().Sub(start).Milliseconds(),
	})

	return Outcome{
		Status:   StatusOK,
		Intent:   &intent,
		Results:  results,
		Response: response,
	}
}

// observe fetches the window and derives the conversation context. A store
// failure is an infrastructure error, never "no messages".
func (o *Orchestrator) observe(ctx context.Context, conversationID string) (core.ConversationContext, Outcome, bool) {
	ctx, span := o.tracer.Start(ctx, "orplar.observe",
		trace.WithAttributes(telemetry.PhaseAttributes("observe")...))
	defer span.End()

	slog.InfoContext(ctx, "orplar.observe", "conversation_id", conversationID)
	cutoff := o.now().Add(-o.window)
	messages, err := o.messages.MessagesSince(ctx, conversationID, cutoff)
	if err != nil {
		return core.ConversationContext{}, o.errorOutcome(ctx, err), false
	}
	if len(messages) == 0 {
		slog.InfoContext(ctx, "orplar.observe.empty", "conversation_id", conversationID)
		return core.ConversationContext{}, Outcome{
			Status:        StatusNeedsClarification,
			Clarification: askNoMessages,
		}, false
	}
	return conversation.ExtractContext(messages), Outcome{}, true
}

// reasonAndPlan runs the Reason and Plan phases, short-circuiting on any
// clarification need. Planning is skipped entirely when the intent already
// blocks.
func (o *Orchestrator) reasonAndPlan(ctx context.Context, conv core.ConversationContext) (core.Intent, core.ActionPlan, Outcome, bool) {
	slog.InfoContext(ctx, "orplar.reason")
	reasonCtx, reasonSpan := o.tracer.Start(ctx, "orplar.reason",
		trace.WithAttributes(telemetry.PhaseAttributes("reason")...))
	intent, err := o.reasoner.ExtractIntent(reasonCtx, conv)
	reasonSpan.End()
	if err != nil {
		return core.Intent{}, core.ActionPlan{}, o.errorOutcome(ctx, err), false
	}
	if intent.NeedsClarification() {
		return core.Intent{}, core.ActionPlan{}, Outcome{
			Status:        StatusNeedsClarification,
			Intent:        &intent,
			Clarification: intent.Clarification,
		}, false
	}

	slog.InfoContext(ctx, "orplar.plan")
	planCtx, planSpan := o.tracer.Start(ctx, "orplar.plan",
		trace.WithAttributes(telemetry.PhaseAttributes("plan")...))
	plan, err := o.reasoner.CreateActionPlan(planCtx, intent)
	planSpan.End()
	if err != nil {
		return core.Intent{}, core.ActionPlan{}, o.errorOutcome(ctx, err), false
	}
	if plan.RequiresClarification {
		return core.Intent{}, core.ActionPlan{}, Outcome{
			Status:        StatusNeedsClarification,
			Intent:        &intent,
			Clarification: plan.Clarification,
		}, false
	}

	return intent, plan, Outcome{}, true
}

// partitionByDestructive splits planned calls on the registry's destructive
// metadata. Unknown tools pass through; the engine settles them as failures.
func (o *Orchestrator) partitionByDestructive(calls []core.ToolCall) (runnable, held []core.ToolCall) {
	for _, call := range calls {
		t, ok := o.registry.Get(call.Tool)
		if ok && t.Schema().Metadata.Destructive {
			held = append(held, call)
			continue
		}
		runnable = append(runnable, call)
	}
	return runnable, held
}

// pendingConfirmation is the single synthetic result naming the held tools.
func pendingConfirmation(held []core.ToolCall) core.ExecutionResult {
	names := make([]string, 0, len(held))
	ids := make([]string, 0, len(held))
	for _, call := range held {
		names = append(names, call.Tool)
		ids = append(ids, call.ActionID)
	}
	return core.ExecutionResult{
		ActionID: uuid.NewString(),
		Tool:     "pending_confirmation",
		Success:  false,
		Error:    "pending confirmation",
		Result: map[string]any{
			"status":     "pending_confirmation",
			"held_tools": names,
			"action_ids": ids,
			"message":    msgHoldback,
		},
	}
}

// errorOutcome is the single catch point of the orchestrator boundary. The
// cause is classified into the taxonomy; the user sees only a fixed line.
func (o *Orchestrator) errorOutcome(ctx context.Context, err error) Outcome {
	ae := errors.Classify(err)
	slog.ErrorContext(ctx, "orplar.error", "code", ae.Code, "retryable", ae.Retryable, "error", err)
	return Outcome{
		Status:         StatusError,
		ErrorCode:      ae.Code,
		ErrorRetryable: ae.Retryable,
		Message:        msgRunFailed,
	}
}

// emitAudit records the run, swallowing store failures so logging can never
// change the user-visible outcome.
func (o *Orchestrator) emitAudit(ctx context.Context, rec audit.Record) {
	if o.auditLog == nil {
		return
	}
	if err := o.auditLog.Record(ctx, rec); err != nil {
		slog.WarnContext(ctx, "orplar.audit.failed", "conversation_id", rec.ConversationID, "error", err)
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, span trace.Span, flow string, outcome Outcome) {
	span.SetAttributes(telemetry.OutcomeAttributes(string(outcome.Status), string(outcome.ErrorCode))...)
	runCounter.Add(ctx, 1, metric.WithAttributes(telemetry.OutcomeAttributes(string(outcome.Status), string(outcome.ErrorCode))...))
	slog.InfoContext(ctx, "orplar.complete", "flow", flow, "status", outcome.Status)
}

func allSucceeded(results []core.ExecutionResult) bool {
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}

var (
	runMetricsOnce sync.Once
	runCounter     metric.Int64Counter
)

func initRunMetrics() {
	runMetricsOnce.Do(func() {
		meter := otel.Meter("rendez/orchestrator")
		runCounter, _ = meter.Int64Counter("rendez.orplar.runs",
			metric.WithDescription("Orchestration runs by outcome"))
	})
}
