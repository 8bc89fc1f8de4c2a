// SPDX-License-Identifier: Apache-2.0

// Package engine executes planned tool calls with bounded concurrency and
// per-call fault isolation. Tool failures never escape as errors; every
// submitted call settles into an ExecutionResult.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/rendez-ai/rendez/pkg/core"
	"github.com/rendez-ai/rendez/pkg/telemetry"
	"github.com/rendez-ai/rendez/pkg/tool"
)

// DefaultMaxConcurrent caps simultaneous tool executions.
const DefaultMaxConcurrent = 5

// Engine runs tool calls against a registry.
type Engine struct {
	registry      *tool.Registry
	maxConcurrent int64

	tracer       trace.Tracer
	execCounter  metric.Int64Counter
	execDuration metric.Float64Histogram
}

// New creates an engine. maxConcurrent values below one fall back to the
// default.
func New(registry *tool.Registry, maxConcurrent int) *Engine {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}

	meter := otel.Meter("rendez/engine")
	execCounter, _ := meter.Int64Counter("rendez.engine.executions",
		metric.WithDescription("Tool executions by outcome"))
	execDuration, _ := meter.Float64Histogram("rendez.engine.duration_ms",
		metric.WithDescription("Tool execution wall-clock duration"),
		metric.WithUnit("ms"))

	return &Engine{
		registry:      registry,
		maxConcurrent: int64(maxConcurrent),
		tracer:        otel.Tracer("rendez/engine"),
		execCounter:   execCounter,
		execDuration:  execDuration,
	}
}

// ExecuteAll runs every call and returns one result per call, in submission
// order, correlated by action id. Unknown tools settle immediately without
// consuming a concurrency slot. Input calls are never mutated.
func (e *Engine) ExecuteAll(ctx context.Context, calls []core.ToolCall) []core.ExecutionResult {
	results := make([]core.ExecutionResult, len(calls))
	sem := semaphore.NewWeighted(e.maxConcurrent)
	var wg sync.WaitGroup

	for i, call := range calls {
		if _, ok := e.registry.Get(call.Tool); !ok {
			results[i] = core.ExecutionResult{
				ActionID: call.ActionID,
				Tool:     call.Tool,
				Success:  false,
				Error:    fmt.Sprintf("tool %s not found", call.Tool),
			}
			continue
		}

		wg.Add(1)
		go func(i int, call core.ToolCall) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = core.ExecutionResult{
					ActionID: call.ActionID,
					Tool:     call.Tool,
					Success:  false,
					Error:    "execution cancelled",
				}
				return
			}
			defer sem.Release(1)
			results[i] = e.executeOne(ctx, call)
		}(i, call)
	}

	wg.Wait()
	return results
}

func (e *Engine) executeOne(ctx context.Context, call core.ToolCall) (result core.ExecutionResult) {
	ctx, span := e.tracer.Start(ctx, "engine.execute")
	defer span.End()

	start := time.Now()
	result = core.ExecutionResult{ActionID: call.ActionID, Tool: call.Tool}

	defer func() {
		if r := recover(); r != nil {
			// Full detail stays server-side; the caller sees a generic line.
			slog.ErrorContext(ctx, "engine.tool.panic", "tool", call.Tool, "action_id", call.ActionID, "panic", r)
			result.Success = false
			result.Result = nil
			result.Error = fmt.Sprintf("tool %s failed unexpectedly", call.Tool)
		}
		result.Duration = time.Since(start)

		durationMs := float64(result.Duration) / float64(time.Millisecond)
		attrs := metric.WithAttributes(telemetry.ToolCallAttributes(call.Tool, call.ActionID, durationMs, result.Success)...)
		e.execCounter.Add(ctx, 1, attrs)
		e.execDuration.Record(ctx, durationMs, attrs)

		slog.InfoContext(ctx, "engine.tool.complete",
			"tool", call.Tool, "action_id", call.ActionID,
			"success", result.Success, "duration_ms", durationMs)
	}()

	t, ok := e.registry.Get(call.Tool)
	if !ok {
		result.Error = fmt.Sprintf("tool %s not found", call.Tool)
		return result
	}

	if err := tool.ValidateParams(t.Schema(), call.Parameters); err != nil {
		result.Error = err.Error()
		return result
	}

	// Tools receive a shallow copy so the planned call stays pristine even
	// against a misbehaving implementation.
	params := make(map[string]any, len(call.Parameters))
	for k, v := range call.Parameters {
		params[k] = v
	}

	out, err := t.Execute(ctx, params)
	if err != nil {
		slog.WarnContext(ctx, "engine.tool.failed", "tool", call.Tool, "action_id", call.ActionID, "error", err)
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Result = out
	return result
}
