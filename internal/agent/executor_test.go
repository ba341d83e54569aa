package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/sage/pkg/models"
)

func newTestExecutor(t *testing.T, tools ...Tool) (*Executor, *ToolRegistry) {
	t.Helper()
	reg := NewToolRegistry()
	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("register %s: %v", tool.Name(), err)
		}
	}
	return NewExecutor(reg, &ExecutorConfig{MaxConcurrency: 3, Timeout: time.Second}, nil, nil), reg
}

func TestExecutorResultsInRequestOrder(t *testing.T) {
	echo := &stubTool{
		name: "echo",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			var in struct {
				Value string `json:"value"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, err
			}
			return &ToolResult{Content: in.Value}, nil
		},
	}
	exec, _ := newTestExecutor(t, echo)

	var calls []models.ToolCall
	for i := 0; i < 6; i++ {
		calls = append(calls, models.ToolCall{
			ID:    fmt.Sprintf("call-%d", i),
			Name:  "echo",
			Input: json.RawMessage(fmt.Sprintf(`{"value": "v%d"}`, i)),
		})
	}

	results := exec.ExecuteAll(context.Background(), calls)
	if len(results) != 6 {
		t.Fatalf("got %d results, want 6", len(results))
	}
	for i, res := range results {
		if res.Error != nil {
			t.Fatalf("call %d errored: %v", i, res.Error)
		}
		if want := fmt.Sprintf("v%d", i); res.Result.Content != want {
			t.Fatalf("results[%d] = %q, want %q", i, res.Result.Content, want)
		}
		if res.ToolCallID != calls[i].ID {
			t.Fatalf("results[%d].ToolCallID = %q, want %q", i, res.ToolCallID, calls[i].ID)
		}
	}
}

func TestExecutorUnknownTool(t *testing.T) {
	exec, _ := newTestExecutor(t)
	res := exec.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "nope"})
	toolErr, ok := GetToolError(res.Error)
	if !ok || toolErr.Type != ToolErrorNotFound {
		t.Fatalf("expected not_found, got %v", res.Error)
	}
}

func TestExecutorValidationShieldsTool(t *testing.T) {
	var executions atomic.Int32
	tool := &stubTool{
		name:   "get_revenue",
		schema: json.RawMessage(periodSchema),
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			executions.Add(1)
			return &ToolResult{Content: "ok"}, nil
		},
	}
	exec, _ := newTestExecutor(t, tool)

	res := exec.Execute(context.Background(), models.ToolCall{
		ID:    "c1",
		Name:  "get_revenue",
		Input: json.RawMessage(`{"period": "daily"}`),
	})
	toolErr, ok := GetToolError(res.Error)
	if !ok || toolErr.Type != ToolErrorInvalidInput {
		t.Fatalf("expected invalid_input, got %v", res.Error)
	}
	if executions.Load() != 0 {
		t.Fatal("tool executed despite failed validation")
	}
}

func TestExecutorRecoversPanic(t *testing.T) {
	tool := &stubTool{
		name: "boom",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			panic("nil map write")
		},
	}
	exec, _ := newTestExecutor(t, tool)

	res := exec.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "boom"})
	toolErr, ok := GetToolError(res.Error)
	if !ok || toolErr.Type != ToolErrorPanic {
		t.Fatalf("expected panic error, got %v", res.Error)
	}
	if !errors.Is(res.Error, ErrToolPanic) {
		t.Fatalf("expected ErrToolPanic in chain, got %v", res.Error)
	}
}

func TestExecutorTimeout(t *testing.T) {
	tool := &stubTool{
		name: "slow",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			select {
			case <-time.After(5 * time.Second):
				return &ToolResult{Content: "late"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	reg := NewToolRegistry()
	if err := reg.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}
	exec := NewExecutor(reg, &ExecutorConfig{MaxConcurrency: 1, Timeout: 20 * time.Millisecond}, nil, nil)

	res := exec.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "slow"})
	toolErr, ok := GetToolError(res.Error)
	if !ok || toolErr.Type != ToolErrorTimeout {
		t.Fatalf("expected timeout, got %v", res.Error)
	}
	if !IsToolRetryable(res.Error) {
		t.Fatal("timeouts should be retryable")
	}
}

func TestExecutorWrapsExecutionErrors(t *testing.T) {
	cause := errors.New("connection refused")
	tool := &stubTool{
		name: "flaky",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return nil, cause
		},
	}
	exec, _ := newTestExecutor(t, tool)

	res := exec.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "flaky"})
	toolErr, ok := GetToolError(res.Error)
	if !ok || toolErr.Type != ToolErrorExecution {
		t.Fatalf("expected execution error, got %v", res.Error)
	}
	if !errors.Is(res.Error, cause) {
		t.Fatal("cause not preserved in chain")
	}
	if toolErr.ToolCallID != "c1" {
		t.Fatalf("ToolCallID = %q", toolErr.ToolCallID)
	}
}

func TestExecutorCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Fill the semaphore so the cancelled context is observed at acquire.
	block := make(chan struct{})
	busy := &stubTool{
		name: "busy",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			<-block
			return &ToolResult{}, nil
		},
	}
	reg := NewToolRegistry()
	if err := reg.Register(busy); err != nil {
		t.Fatalf("register: %v", err)
	}
	single := NewExecutor(reg, &ExecutorConfig{MaxConcurrency: 1, Timeout: time.Second}, nil, nil)
	go single.Execute(context.Background(), models.ToolCall{ID: "b", Name: "busy"})
	time.Sleep(10 * time.Millisecond)

	res := single.Execute(ctx, models.ToolCall{ID: "c1", Name: "busy"})
	close(block)
	toolErr, ok := GetToolError(res.Error)
	if !ok || toolErr.Type != ToolErrorTimeout {
		t.Fatalf("expected timeout classification, got %v", res.Error)
	}
}
