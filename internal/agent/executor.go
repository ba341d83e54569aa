package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/sage/internal/observability"
	"github.com/haasonsaas/sage/pkg/models"
)

// ExecutorConfig configures the parallel tool executor.
type ExecutorConfig struct {
	// MaxConcurrency limits the number of parallel tool executions.
	// Default: 5
	MaxConcurrency int

	// Timeout bounds each tool execution.
	// Default: 30s
	Timeout time.Duration
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency: 5,
		Timeout:        30 * time.Second,
	}
}

// Executor runs tool calls with bounded concurrency, per-call
// timeouts, and panic isolation. It validates parameters against the
// registry's compiled schemas before execution.
type Executor struct {
	registry *ToolRegistry
	config   *ExecutorConfig
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	// Semaphore for concurrency limiting
	sem chan struct{}
}

// NewExecutor creates a tool executor over the given registry.
// If config is nil, DefaultExecutorConfig is used.
func NewExecutor(registry *ToolRegistry, config *ExecutorConfig, metrics *observability.Metrics, tracer *observability.Tracer) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Executor{
		registry: registry,
		config:   config,
		metrics:  metrics,
		tracer:   tracer,
		sem:      make(chan struct{}, config.MaxConcurrency),
	}
}

// ExecutionResult holds the outcome of a single tool execution.
type ExecutionResult struct {
	ToolCallID string
	ToolName   string
	Result     *ToolResult
	Error      error
	Duration   time.Duration
}

// ExecuteAll runs the calls in parallel under the concurrency limit.
// Results are returned in the same order as the input calls.
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall) []*ExecutionResult {
	if len(calls) == 0 {
		return nil
	}

	results := make([]*ExecutionResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, tc)
		}(i, call)
	}
	wg.Wait()
	return results
}

// Execute runs a single tool call. The error carries a ToolError
// classifying the failure; schema violations never reach the tool.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) *ExecutionResult {
	start := time.Now()
	result := &ExecutionResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}

	// Acquire semaphore for backpressure
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		result.Error = NewToolError(call.Name, ctx.Err()).
			WithType(ToolErrorTimeout).
			WithToolCallID(call.ID)
		result.Duration = time.Since(start)
		return result
	}

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.TraceToolExecution(ctx, call.Name)
		defer span.End()
	}

	if err := e.registry.ValidateParams(call.Name, call.Input); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		e.observe(call.Name, start, err)
		if span != nil {
			observability.RecordError(span, err)
		}
		return result
	}

	tool, _ := e.registry.Get(call.Name)
	execResult, execErr := e.executeWithTimeout(ctx, tool, call)
	result.Result = execResult
	result.Error = execErr
	result.Duration = time.Since(start)
	e.observe(call.Name, start, execErr)
	if span != nil {
		observability.RecordError(span, execErr)
	}
	return result
}

func (e *Executor) observe(toolName string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		if toolErr, ok := GetToolError(err); ok && toolErr.Type == ToolErrorPermission {
			status = "permission_denied"
		}
	}
	e.metrics.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	e.metrics.ToolExecutionDuration.WithLabelValues(toolName).Observe(time.Since(start).Seconds())
}

// executeWithTimeout runs the tool under the configured timeout,
// converting panics into classified errors.
func (e *Executor) executeWithTimeout(ctx context.Context, tool Tool, call models.ToolCall) (*ToolResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	type execResult struct {
		result *ToolResult
		err    error
	}
	resultCh := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				err := NewToolError(call.Name, fmt.Errorf("%w: %v\n%s", ErrToolPanic, r, stack)).
					WithType(ToolErrorPanic).
					WithToolCallID(call.ID)
				resultCh <- execResult{err: err}
			}
		}()

		result, err := tool.Execute(execCtx, call.Input)
		if err != nil {
			toolErr := NewToolError(call.Name, err).
				WithType(ToolErrorExecution).
				WithToolCallID(call.ID)
			resultCh <- execResult{err: toolErr}
			return
		}
		resultCh <- execResult{result: result}
	}()

	select {
	case res := <-resultCh:
		return res.result, res.err
	case <-execCtx.Done():
		return nil, NewToolError(call.Name, ErrToolTimeout).
			WithType(ToolErrorTimeout).
			WithToolCallID(call.ID)
	}
}
