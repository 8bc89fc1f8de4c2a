// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// MockClient is a testing implementation of Client.
type MockClient struct {
	Response string
	Err      error

	// TextFunc, when set, overrides CompleteText entirely.
	TextFunc func(ctx context.Context, req TextRequest) (string, error)
}

func (m *MockClient) CompleteText(ctx context.Context, req TextRequest) (string, error) {
	if m.TextFunc != nil {
		return m.TextFunc(ctx, req)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

func (m *MockClient) CompleteStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error) {
	text, err := m.CompleteText(ctx, TextRequest{Prompt: req.Prompt, Timeout: req.Timeout})
	if err != nil {
		return nil, err
	}
	return ExtractJSONObject(text)
}

// ScriptedClient returns a pre-defined sequence of responses and counts
// calls. Useful for asserting how many oracle round-trips a flow makes.
type ScriptedClient struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	CallCount int
}

// NewScriptedClient creates a ScriptedClient that pops responses in order.
func NewScriptedClient(responses ...string) *ScriptedClient {
	return &ScriptedClient{Responses: responses}
}

func (s *ScriptedClient) next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Responses) == 0 {
		return "", errors.New("scripted client: no more responses available")
	}
	content := s.Responses[0]
	s.Responses = s.Responses[1:]
	return content, nil
}

func (s *ScriptedClient) CompleteText(_ context.Context, _ TextRequest) (string, error) {
	return s.next()
}

func (s *ScriptedClient) CompleteStructured(_ context.Context, _ StructuredRequest) (json.RawMessage, error) {
	text, err := s.next()
	if err != nil {
		return nil, err
	}
	return ExtractJSONObject(text)
}

// Calls returns how many times the client has been invoked.
func (s *ScriptedClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCount
}

var (
	_ Client = (*MockClient)(nil)
	_ Client = (*ScriptedClient)(nil)
)
