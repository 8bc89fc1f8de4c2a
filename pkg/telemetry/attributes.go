// Copyright 2026 © The Rendez Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Rendez agent telemetry.
const (
	AttrRunID          = "rendez.run_id"
	AttrConversationID = "rendez.conversation.id"
	AttrTriggerSource  = "rendez.trigger.source"
	AttrPhase          = "rendez.orplar.phase"
	AttrOutcome        = "rendez.orplar.outcome"
	AttrErrorCode      = "rendez.error.code"

	AttrToolName       = "rendez.tool.name"
	AttrToolActionID   = "rendez.tool.action_id"
	AttrToolSuccess    = "rendez.tool.success"
	AttrToolDurationMs = "rendez.tool.duration_ms"

	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
)

// RunAttributes describes one orchestration invocation.
func RunAttributes(runID, conversationID, trigger string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.String(AttrConversationID, conversationID),
		attribute.String(AttrTriggerSource, trigger),
	}
}

// PhaseAttributes tags a span with the active ORPLAR phase.
func PhaseAttributes(phase string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(AttrPhase, phase)}
}

// ToolCallAttributes describes a single tool execution.
func ToolCallAttributes(name, actionID string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolActionID, actionID),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// OutcomeAttributes tags a span with the terminal orchestration outcome.
func OutcomeAttributes(outcome string, errorCode string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrOutcome, outcome)}
	if errorCode != "" {
		attrs = append(attrs, attribute.String(AttrErrorCode, errorCode))
	}
	return attrs
}
