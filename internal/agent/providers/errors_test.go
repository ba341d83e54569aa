package providers

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want FailureReason
	}{
		{"request timeout", FailureTimeout},
		{"context deadline exceeded", FailureTimeout},
		{"rate limit exceeded", FailureRateLimit},
		{"429 too many requests", FailureRateLimit},
		{"invalid api key provided", FailureAuth},
		{"401 unauthorized", FailureAuth},
		{"model not found", FailureModelUnavailable},
		{"internal server error", FailureServerError},
		{"overloaded_error: Overloaded", FailureServerError},
		{"529 overloaded", FailureServerError},
		{"something odd happened", FailureUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := ClassifyError(errors.New(tt.msg)); got != tt.want {
				t.Fatalf("ClassifyError(%q) = %s, want %s", tt.msg, got, tt.want)
			}
		})
	}

	if got := ClassifyError(nil); got != FailureUnknown {
		t.Fatalf("ClassifyError(nil) = %s", got)
	}
}

func TestFailureReasonRetryable(t *testing.T) {
	retryable := []FailureReason{FailureRateLimit, FailureTimeout, FailureServerError}
	for _, r := range retryable {
		if !r.IsRetryable() {
			t.Errorf("%s should be retryable", r)
		}
	}
	terminal := []FailureReason{FailureAuth, FailureInvalidRequest, FailureModelUnavailable, FailureUnknown}
	for _, r := range terminal {
		if r.IsRetryable() {
			t.Errorf("%s should not be retryable", r)
		}
	}
}

func TestWithStatusReclassifies(t *testing.T) {
	err := NewProviderError("openai", "gpt-4o", errors.New("request failed"))
	if err.Reason != FailureUnknown {
		t.Fatalf("initial reason = %s", err.Reason)
	}

	err = err.WithStatus(429)
	if err.Reason != FailureRateLimit {
		t.Fatalf("reason after 429 = %s", err.Reason)
	}
	if !IsRetryable(err) {
		t.Fatal("429 should be retryable")
	}

	auth := NewProviderError("openai", "gpt-4o", errors.New("request failed")).WithStatus(401)
	if auth.Reason != FailureAuth {
		t.Fatalf("reason after 401 = %s", auth.Reason)
	}
	if IsRetryable(auth) {
		t.Fatal("auth failures should not be retryable")
	}
}

func TestProviderErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewProviderError("anthropic", "claude-sonnet-4-20250514", cause).WithStatus(503)

	msg := err.Error()
	for _, want := range []string{"[server_error]", "anthropic", "model=claude-sonnet-4-20250514", "status=503"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not in chain")
	}

	wrapped := fmt.Errorf("complete: %w", err)
	if !IsRetryable(wrapped) {
		t.Fatal("IsRetryable should see through wrapping")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatal("plain errors are not retryable")
	}
}
