// Package providers contains LLM backend implementations of the
// agent.LLMProvider interface.
package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailureReason categorizes why a provider request failed, driving the
// retry decision at the model-call boundary.
type FailureReason string

const (
	// FailureRateLimit indicates rate limiting (HTTP 429)
	FailureRateLimit FailureReason = "rate_limit"

	// FailureAuth indicates authentication failure (HTTP 401, 403)
	FailureAuth FailureReason = "auth"

	// FailureTimeout indicates request timeout
	FailureTimeout FailureReason = "timeout"

	// FailureServerError indicates server-side issues (HTTP 5xx)
	FailureServerError FailureReason = "server_error"

	// FailureInvalidRequest indicates client-side issues (HTTP 400)
	FailureInvalidRequest FailureReason = "invalid_request"

	// FailureModelUnavailable indicates the model is not available
	FailureModelUnavailable FailureReason = "model_unavailable"

	// FailureUnknown indicates an unclassified error
	FailureUnknown FailureReason = "unknown"
)

// IsRetryable returns true if the failure reason suggests retrying may
// succeed.
func (r FailureReason) IsRetryable() bool {
	switch r {
	case FailureRateLimit, FailureTimeout, FailureServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a structured error from an LLM provider with the
// context needed for retry decisions and debugging.
type ProviderError struct {
	// Reason categorizes the error
	Reason FailureReason

	// Provider is the provider name ("anthropic", "openai")
	Provider string

	// Model is the model that was requested
	Model string

	// Status is the HTTP status code, if applicable
	Status int

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a ProviderError, classifying the cause by
// its message.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   FailureUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = ClassifyError(cause)
	}
	return err
}

// WithStatus adds the HTTP status and reclassifies.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := classifyStatusCode(status); reason != FailureUnknown {
		e.Reason = reason
	}
	return e
}

// IsRetryable reports whether the error chain carries a retryable
// provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.IsRetryable()
	}
	return false
}

// ClassifyError inspects an error message and returns a FailureReason.
func ClassifyError(err error) FailureReason {
	if err == nil {
		return FailureUnknown
	}
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "deadline exceeded"):
		return FailureTimeout
	case strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "rate_limit"),
		strings.Contains(errStr, "too many requests"),
		strings.Contains(errStr, "429"):
		return FailureRateLimit
	case strings.Contains(errStr, "unauthorized"),
		strings.Contains(errStr, "invalid api key"),
		strings.Contains(errStr, "authentication"),
		strings.Contains(errStr, "401"),
		strings.Contains(errStr, "403"):
		return FailureAuth
	case strings.Contains(errStr, "model not found"),
		strings.Contains(errStr, "model_not_found"),
		strings.Contains(errStr, "does not exist"):
		return FailureModelUnavailable
	case strings.Contains(errStr, "internal server"),
		strings.Contains(errStr, "server error"),
		strings.Contains(errStr, "overloaded"),
		strings.Contains(errStr, "500"),
		strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"),
		strings.Contains(errStr, "529"):
		return FailureServerError
	default:
		return FailureUnknown
	}
}

func classifyStatusCode(status int) FailureReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailureAuth
	case status == http.StatusTooManyRequests:
		return FailureRateLimit
	case status == http.StatusBadRequest:
		return FailureInvalidRequest
	case status == http.StatusNotFound:
		return FailureModelUnavailable
	case status >= 500:
		return FailureServerError
	default:
		return FailureUnknown
	}
}
