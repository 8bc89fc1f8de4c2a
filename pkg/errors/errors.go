// SPDX-License-Identifier: Apache-2.0
// Package errors provides the typed error taxonomy for the Rendez agent core.
// Every failure that crosses the orchestrator boundary is classified into one
// of the codes below together with a retryable verdict; callers decide whether
// to retry.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
)

// ErrorCode classifies agent-core errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeLLMTimeout indicates the reasoning oracle did not answer in time.
	CodeLLMTimeout ErrorCode = "llm_timeout"

	// CodeConnection indicates a network or store connectivity failure.
	CodeConnection ErrorCode = "connection_error"

	// CodeLLMParse indicates the oracle answered with output the core could
	// not coerce into the requested shape.
	CodeLLMParse ErrorCode = "llm_parse_error"

	// CodeInternal is the catch-all for everything else.
	CodeInternal ErrorCode = "internal_error"
)

// AgentError is a typed error with classification context. It implements the
// error interface and unwraps to its cause.
type AgentError struct {
	Code      ErrorCode
	Message   string
	Err       error
	Context   map[string]any
	Retryable bool
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *AgentError) Unwrap() error {
	return e.Err
}

// New creates a new AgentError with the given code, message, and cause.
// The retryable flag defaults to the code's standard verdict.
func New(code ErrorCode, msg string, cause error) *AgentError {
	return &AgentError{
		Code:      code,
		Message:   msg,
		Err:       cause,
		Context:   make(map[string]any),
		Retryable: code != CodeInternal,
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *AgentError) WithContext(key string, value any) *AgentError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable overrides the retryable verdict.
func (e *AgentError) WithRetryable(retryable bool) *AgentError {
	e.Retryable = retryable
	return e
}

// tokens whose presence in an error message marks the error as a transient
// infrastructure condition.
var transientTokens = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection",
	"unreachable",
	"no such host",
	"broken pipe",
	"reset by peer",
}

// tokens that mark an error as a malformed-output condition. The oracle may
// simply need another attempt, so these classify as retryable too.
var parseTokens = []string{
	"json",
	"parse",
	"unmarshal",
	"unexpected end of",
	"invalid character",
	"malformed",
}

// Classify maps an arbitrary error into the agent taxonomy. AgentErrors pass
// through unchanged; explicit timeout/connection conditions and messages
// carrying transient tokens become retryable infrastructure codes;
// parse-shaped messages become retryable llm_parse_error; everything else is a
// non-retryable internal_error.
func Classify(err error) *AgentError {
	if err == nil {
		return nil
	}

	var ae *AgentError
	if stderrors.As(err, &ae) {
		return ae
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return New(CodeLLMTimeout, "operation timed out", err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return New(CodeLLMTimeout, "network operation timed out", err)
		}
		return New(CodeConnection, "network operation failed", err)
	}

	msg := strings.ToLower(err.Error())
	for _, token := range transientTokens {
		if strings.Contains(msg, token) {
			code := CodeConnection
			if strings.Contains(token, "time") || strings.Contains(token, "deadline") {
				code = CodeLLMTimeout
			}
			return New(code, "transient infrastructure failure", err)
		}
	}
	for _, token := range parseTokens {
		if strings.Contains(msg, token) {
			return New(CodeLLMParse, "malformed oracle output", err)
		}
	}

	return New(CodeInternal, "unexpected error", err)
}

// IsRetryable reports the retryable verdict for any error after
// classification.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable
}
