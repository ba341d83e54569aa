package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool parameter limits to prevent resource exhaustion
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (1MB).
	MaxToolParamsSize = 1 << 20
)

// ToolRegistry manages available tools with thread-safe registration
// and lookup. Parameter schemas are compiled once at registration so
// every invocation can be validated cheaply.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry creates a new empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry, compiling its parameter
// schema. A tool with the same name is replaced. A tool whose schema
// does not compile is rejected.
func (r *ToolRegistry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("tool name %q exceeds %d characters", name, MaxToolNameLength)
	}

	var schema *jsonschema.Schema
	if raw := tool.Schema(); len(raw) > 0 {
		compiled, err := jsonschema.CompileString(name+".json", string(raw))
		if err != nil {
			return fmt.Errorf("invalid schema for tool %q: %w", name, err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	if schema != nil {
		r.schemas[name] = schema
	} else {
		delete(r.schemas, name)
	}
	return nil
}

// Unregister removes a tool from the registry by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// ValidateParams checks params against the tool's compiled schema.
// Returns a ToolError of type invalid_input on failure, or not_found
// when the tool is unknown.
func (r *ToolRegistry) ValidateParams(name string, params json.RawMessage) error {
	if len(params) > MaxToolParamsSize {
		return NewToolError(name, fmt.Errorf("parameters exceed %d bytes", MaxToolParamsSize)).
			WithType(ToolErrorInvalidInput)
	}

	r.mu.RLock()
	_, known := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !known {
		return NewToolError(name, ErrToolNotFound).WithType(ToolErrorNotFound)
	}
	if schema == nil {
		return nil
	}

	var decoded any
	if len(params) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(params, &decoded); err != nil {
		return NewToolError(name, fmt.Errorf("parameters are not valid JSON: %w", err)).
			WithType(ToolErrorInvalidInput)
	}
	if err := schema.Validate(decoded); err != nil {
		return NewToolError(name, err).WithType(ToolErrorInvalidInput)
	}
	return nil
}

// List returns all registered tools sorted by name, for passing to LLM
// providers.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}
