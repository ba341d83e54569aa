package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for agent operations
var (
	// ErrMaxIterations indicates the tool loop exceeded its iteration limit
	ErrMaxIterations = errors.New("max iterations exceeded")

	// ErrNoProvider indicates no LLM provider is configured
	ErrNoProvider = errors.New("no provider configured")

	// ErrToolNotFound indicates a requested tool doesn't exist
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolTimeout indicates a tool execution timed out
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrToolPanic indicates a tool panicked during execution
	ErrToolPanic = errors.New("tool panicked")
)

// ToolErrorType categorizes tool execution errors for retry logic and
// audit classification.
type ToolErrorType string

const (
	// ToolErrorNotFound indicates the tool doesn't exist
	ToolErrorNotFound ToolErrorType = "not_found"

	// ToolErrorInvalidInput indicates parameters failed schema validation
	ToolErrorInvalidInput ToolErrorType = "invalid_input"

	// ToolErrorTimeout indicates the tool timed out
	ToolErrorTimeout ToolErrorType = "timeout"

	// ToolErrorPermission indicates the permission check failed
	ToolErrorPermission ToolErrorType = "permission"

	// ToolErrorExecution indicates a runtime error during execution
	ToolErrorExecution ToolErrorType = "execution"

	// ToolErrorPanic indicates the tool panicked
	ToolErrorPanic ToolErrorType = "panic"

	// ToolErrorUnknown indicates an unclassified error
	ToolErrorUnknown ToolErrorType = "unknown"
)

// IsRetryable returns true if this error type suggests retrying may
// succeed. Permission and validation failures never are.
func (t ToolErrorType) IsRetryable() bool {
	return t == ToolErrorTimeout
}

// ToolError is a structured error from tool execution with
// categorization for retry logic and audit records.
type ToolError struct {
	// Type categorizes the error
	Type ToolErrorType

	// ToolName is the name of the tool that failed
	ToolName string

	// ToolCallID is the ID of the tool call that failed
	ToolCallID string

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Type))
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError creates a ToolError of unknown type; refine with
// WithType.
func NewToolError(toolName string, cause error) *ToolError {
	err := &ToolError{
		ToolName: toolName,
		Cause:    cause,
		Type:     ToolErrorUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
	}
	return err
}

// WithType sets the error category.
func (e *ToolError) WithType(t ToolErrorType) *ToolError {
	e.Type = t
	return e
}

// WithToolCallID attaches the originating tool call ID.
func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

// GetToolError extracts a ToolError from an error chain.
func GetToolError(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// IsToolRetryable reports whether the error chain carries a retryable
// tool error.
func IsToolRetryable(err error) bool {
	if toolErr, ok := GetToolError(err); ok {
		return toolErr.Type.IsRetryable()
	}
	return false
}
