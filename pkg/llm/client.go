// SPDX-License-Identifier: Apache-2.0

// Package llm is the boundary to the reasoning oracle. The orchestration core
// treats the model as an opaque, unreliable collaborator: every call carries
// its own timeout, infrastructure failures surface as retryable typed errors,
// and malformed output surfaces as a parse error distinguishable from both.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// TextRequest asks the oracle for a free-form completion.
type TextRequest struct {
	Prompt      string
	System      string
	Temperature float64

	// Timeout bounds this single call. Zero means the provider default.
	Timeout time.Duration

	// JSONMode requests provider-side JSON output constraints where the
	// backend supports them. Extraction still happens on our side.
	JSONMode bool
}

// StructuredRequest asks the oracle for output matching a JSON Schema.
type StructuredRequest struct {
	Prompt  string
	System  string
	Schema  json.RawMessage
	Timeout time.Duration
}

// Client is the reasoning-oracle contract consumed by the synthesis layer.
type Client interface {
	// CompleteText returns the raw completion text.
	CompleteText(ctx context.Context, req TextRequest) (string, error)

	// CompleteStructured returns the first syntactically valid JSON object
	// found in the completion. The object is extracted, not schema-enforced;
	// shape validation belongs to the caller.
	CompleteStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error)
}
