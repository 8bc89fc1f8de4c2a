// SPDX-License-Identifier: Apache-2.0

package core

import (
	"time"

	"github.com/google/uuid"
)

// ToolCall is one planned capability invocation. Instances are never mutated
// by execution; results come back as separate ExecutionResult records
// correlated by ActionID.
type ToolCall struct {
	// ActionID is a 128-bit random identifier, unique per call.
	ActionID    string         `json:"action_id"`
	Tool        string         `json:"tool"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// NewToolCall builds a ToolCall with a freshly generated action id.
func NewToolCall(tool, description string, params map[string]any) ToolCall {
	if params == nil {
		params = map[string]any{}
	}
	return ToolCall{
		ActionID:    uuid.NewString(),
		Tool:        tool,
		Description: description,
		Parameters:  params,
	}
}

// ActionPlan is an ordered list of proposed tool calls plus the rationale
// behind them. When the planner cannot produce a usable plan it returns an
// empty plan with RequiresClarification set rather than guessing at side
// effects.
type ActionPlan struct {
	Tools                 []ToolCall `json:"tools"`
	Reasoning             string     `json:"reasoning,omitempty"`
	RequiresClarification bool       `json:"requires_clarification,omitempty"`
	Clarification         string     `json:"clarification_question,omitempty"`
}

// Filter returns the subset of the plan's tools whose action ids appear in
// ids, preserving plan order. Unknown ids are silently ignored.
func (p ActionPlan) Filter(ids []string) []ToolCall {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := make([]ToolCall, 0, len(p.Tools))
	for _, call := range p.Tools {
		if wanted[call.ActionID] {
			out = append(out, call)
		}
	}
	return out
}

// ExecutionResult is the normalized per-call outcome of running a tool.
// Error carries a human-safe message only; raw causes stay in server logs.
type ExecutionResult struct {
	ActionID string        `json:"action_id"`
	Tool     string        `json:"tool"`
	Success  bool          `json:"success"`
	Result   any           `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}
