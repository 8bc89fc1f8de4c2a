// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rendez-ai/rendez/pkg/errors"
)

const defaultCallTimeout = 60 * time.Second

// ClientConfig configures the HTTP oracle client.
type ClientConfig struct {
	BaseURL string
	Model   string
	APIKey  string

	// Cloud selects the OpenAI-compatible /v1/chat/completions endpoint
	// instead of the local Ollama /api/generate endpoint.
	Cloud bool
}

// OllamaClient talks to a local Ollama server or an OpenAI-compatible cloud
// endpoint. It is stateless and safe for concurrent use; construct one per
// process and inject it.
type OllamaClient struct {
	cfg    ClientConfig
	client *http.Client
}

// NewOllama creates an oracle client for the configured backend.
func NewOllama(cfg ClientConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		cfg: cfg,
		// Per-call deadlines come from the request context; the transport
		// timeout is only a backstop.
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

// CompleteText implements Client.
func (c *OllamaClient) CompleteText(ctx context.Context, req TextRequest) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.cfg.Cloud {
		return c.chatCompletion(ctx, req)
	}
	return c.generate(ctx, req)
}

// CompleteStructured implements Client. The schema is appended to the prompt
// as an output contract; the answer is mined for its first valid JSON object.
func (c *OllamaClient) CompleteStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error) {
	prompt := fmt.Sprintf(
		"%s\n\nIMPORTANT: Respond with a single valid JSON object matching this schema:\n%s\n\nRespond ONLY with the JSON object, no other text.",
		req.Prompt, string(req.Schema),
	)

	text, err := c.CompleteText(ctx, TextRequest{
		Prompt:      prompt,
		System:      req.System,
		Temperature: 0.3, // lower temperature for structured output
		Timeout:     req.Timeout,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	obj, err := ExtractJSONObject(text)
	if err != nil {
		return nil, errors.New(errors.CodeLLMParse, "oracle returned no JSON object", err)
	}
	return obj, nil
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *OllamaClient) generate(ctx context.Context, req TextRequest) (string, error) {
	body := generateRequest{
		Model:  c.cfg.Model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
	}
	if req.JSONMode {
		body.Format = "json"
	}
	if req.Temperature != 0 {
		body.Options = map[string]any{"temperature": req.Temperature}
	}

	var out generateResponse
	if err := c.post(ctx, "/api/generate", body, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OllamaClient) chatCompletion(ctx context.Context, req TextRequest) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   2000,
	}
	if req.JSONMode {
		body.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	var out chatResponse
	if err := c.post(ctx, "/v1/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New(errors.CodeLLMParse, "oracle returned no choices", nil)
	}
	return out.Choices[0].Message.Content, nil
}

func (c *OllamaClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.New(errors.CodeInternal, "failed to encode oracle request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.New(errors.CodeInternal, "failed to build oracle request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Cloud && c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.New(errors.CodeLLMTimeout, "oracle call timed out", err)
		}
		return errors.New(errors.CodeConnection, "oracle call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.CodeConnection, fmt.Sprintf("oracle returned status %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(errors.CodeLLMParse, "failed to decode oracle response", err)
	}
	return nil
}

var _ Client = (*OllamaClient)(nil)
