// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// MCPTool converts a capability schema into an MCP tool definition so
// MCP-convention callers consume the same catalog as plain JSON-Schema ones.
func MCPTool(s Schema) mcp.Tool {
	raw, _ := json.Marshal(s.InputSchema())
	return mcp.Tool{
		Name:           s.Name,
		Description:    s.Description,
		RawInputSchema: json.RawMessage(raw),
		Annotations: mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(s.Metadata.ReadOnly),
			DestructiveHint: mcp.ToBoolPtr(s.Metadata.Destructive),
			IdempotentHint:  mcp.ToBoolPtr(s.Metadata.Idempotent),
			OpenWorldHint:   mcp.ToBoolPtr(s.Metadata.OpenWorld),
		},
	}
}

// DiscoverMCP exports the whole registry as MCP tool definitions in
// registration order.
func DiscoverMCP(r *Registry) []mcp.Tool {
	schemas := r.Schemas()
	tools := make([]mcp.Tool, 0, len(schemas))
	for _, s := range schemas {
		tools = append(tools, MCPTool(s))
	}
	return tools
}
