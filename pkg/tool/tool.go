// SPDX-License-Identifier: Apache-2.0

// Package tool defines the capability contract for the action layer: schemas
// the planner can discover, strict parameter validation, and a registry that
// exports the catalog in plain JSON-Schema and MCP form.
package tool

import (
	"context"
	"fmt"
	"strings"
)

// Metadata carries behaviour hints the planner and orchestrator act on.
// Destructive and ReadOnly are mutually exclusive; the registry enforces it.
type Metadata struct {
	Destructive  bool `json:"destructive_hint"`
	ReadOnly     bool `json:"read_only_hint"`
	Idempotent   bool `json:"idempotent_hint"`
	OpenWorld    bool `json:"open_world_hint"`
	RequiresAuth bool `json:"requires_auth_hint"`
	MockMode     bool `json:"mock_mode"`
}

// Parameter describes one input of a capability using JSON-Schema types
// ("string", "integer", "number", "boolean", "array", "object").
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     any
	Enum        []string
}

// Schema is the discoverable surface of a capability.
type Schema struct {
	Name        string
	Description string
	Parameters  []Parameter
	Metadata    Metadata
}

// RequiredParams returns the names of the required parameters in declaration
// order.
func (s Schema) RequiredParams() []string {
	var required []string
	for _, p := range s.Parameters {
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return required
}

// InputSchema renders the parameter list as a JSON-Schema object. Unknown
// properties are rejected so a hallucinated parameter name fails loudly at
// the model boundary instead of being silently dropped.
func (s Schema) InputSchema() map[string]any {
	properties := make(map[string]any, len(s.Parameters))
	for _, p := range s.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if required := s.RequiredParams(); len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// JSONSchema renders the full discovery document for one capability,
// compatible with OpenAI function calling and MCP tool definitions.
func (s Schema) JSONSchema() map[string]any {
	return map[string]any{
		"name":        s.Name,
		"description": s.Description,
		"inputSchema": s.InputSchema(),
		"metadata": map[string]any{
			"destructive_hint":   s.Metadata.Destructive,
			"read_only_hint":     s.Metadata.ReadOnly,
			"idempotent_hint":    s.Metadata.Idempotent,
			"open_world_hint":    s.Metadata.OpenWorld,
			"requires_auth_hint": s.Metadata.RequiresAuth,
			"mock_mode":          s.Metadata.MockMode,
		},
	}
}

// Tool is an executable capability. Execute reports domain failures through
// the error return; it must not panic past this boundary, and it must not
// mutate the params map it receives.
type Tool interface {
	Schema() Schema
	Execute(ctx context.Context, params map[string]any) (map[string]any, error)
}

// MissingParameterError is the typed outcome of ValidateParams when one or
// more required parameters are absent.
type MissingParameterError struct {
	Tool    string
	Missing []string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("tool %s: missing required parameter(s): %s", e.Tool, strings.Join(e.Missing, ", "))
}

// ValidateParams checks that every required parameter of the schema is
// present. Presence is the contract: a key set to nil counts as supplied.
func ValidateParams(s Schema, params map[string]any) error {
	var missing []string
	for _, name := range s.RequiredParams() {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingParameterError{Tool: s.Name, Missing: missing}
	}
	return nil
}
