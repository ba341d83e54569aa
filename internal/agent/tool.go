package agent

import (
	"context"
	"encoding/json"
)

// Permission names the business-system access a tool needs. The
// runtime checks it against the principal's grants before every
// execution; a tool with a zero Permission requires no check.
type Permission struct {
	// Resource is the record type or report the tool touches.
	Resource string

	// Operation is the kind of access (read, write, submit).
	Operation string
}

// Required reports whether this permission must be checked.
func (p Permission) Required() bool {
	return p.Resource != ""
}

// Tool defines the interface for executable agent tools.
//
// Implementing a Tool:
//
//	type RevenueTool struct{ erp erp.Client }
//
//	func (t *RevenueTool) Name() string { return "get_revenue" }
//
//	func (t *RevenueTool) Description() string {
//	    return "Returns revenue totals for a period"
//	}
//
//	func (t *RevenueTool) Schema() json.RawMessage {
//	    return json.RawMessage(`{
//	        "type": "object",
//	        "properties": {
//	            "period": {"type": "string", "enum": ["monthly", "quarterly", "yearly"]}
//	        },
//	        "required": ["period"]
//	    }`)
//	}
//
//	func (t *RevenueTool) Permission() agent.Permission {
//	    return agent.Permission{Resource: "Sales Invoice", Operation: "read"}
//	}
//
//	func (t *RevenueTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
//	    ...
//	}
type Tool interface {
	// Name returns the tool name for LLM function calling.
	// Must be a valid function name (alphanumeric, underscores).
	Name() string

	// Description returns a natural language description of what the
	// tool does. This helps the model decide when to use it.
	Description() string

	// Schema returns the JSON Schema defining the tool's parameters.
	Schema() json.RawMessage

	// Permission declares the access the runtime must verify before
	// executing the tool.
	Permission() Permission

	// Execute runs the tool with the given JSON parameters. The params
	// have already been validated against Schema().
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult contains the output from a tool execution.
//
// Errors the model should see and recover from are communicated via
// IsError=true rather than a Go error.
type ToolResult struct {
	// Content is the tool's output (text or JSON).
	Content string `json:"content"`

	// IsError indicates this result represents an error condition.
	IsError bool `json:"is_error,omitempty"`

	// RecordsReturned is how many business records the tool read, for
	// the audit trail.
	RecordsReturned int `json:"records_returned,omitempty"`

	// DataAccessed names the record types or reports the tool read.
	DataAccessed []string `json:"data_accessed,omitempty"`
}
