// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry is the central catalog of capabilities. Registration order is
// preserved so discovery output is deterministic.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the catalog, replacing any previous tool with the
// same name. A schema flagged both destructive and read-only is contradictory
// and is rejected.
func (r *Registry) Register(t Tool) error {
	schema := t.Schema()
	if schema.Name == "" {
		return fmt.Errorf("tool schema has no name")
	}
	if schema.Metadata.Destructive && schema.Metadata.ReadOnly {
		return fmt.Errorf("tool %s: destructive and read-only hints are mutually exclusive", schema.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.tools[schema.Name] = t

	slog.Info("tool.registered", "name", schema.Name, "mock_mode", schema.Metadata.MockMode)
	return nil
}

// Get returns the tool by name. Absence is not an error; the execution
// engine synthesizes a failed result for unknown tools.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names lists registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Schemas returns every registered schema in registration order.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}

// Discovery returns the full catalog as JSON-Schema discovery documents.
func (r *Registry) Discovery() []map[string]any {
	schemas := r.Schemas()
	docs := make([]map[string]any, 0, len(schemas))
	for _, s := range schemas {
		docs = append(docs, s.JSONSchema())
	}
	return docs
}

// Status is the operational report for one registered tool.
type Status struct {
	Name         string `json:"name"`
	MockMode     bool   `json:"mock_mode"`
	RequiresAuth bool   `json:"requires_auth"`
	Destructive  bool   `json:"destructive"`
	ReadOnly     bool   `json:"read_only"`
}

// Statuses reports the operational state of every tool, in registration
// order. Used by the CLI to show which capabilities run in mock mode.
func (r *Registry) Statuses() []Status {
	schemas := r.Schemas()
	statuses := make([]Status, 0, len(schemas))
	for _, s := range schemas {
		statuses = append(statuses, Status{
			Name:         s.Name,
			MockMode:     s.Metadata.MockMode,
			RequiresAuth: s.Metadata.RequiresAuth,
			Destructive:  s.Metadata.Destructive,
			ReadOnly:     s.Metadata.ReadOnly,
		})
	}
	return statuses
}
