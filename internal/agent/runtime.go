package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/sage/internal/audit"
	"github.com/haasonsaas/sage/internal/erp"
	"github.com/haasonsaas/sage/internal/observability"
	"github.com/haasonsaas/sage/internal/retry"
	"github.com/haasonsaas/sage/pkg/models"
)

// RuntimeConfig configures the turn loop.
type RuntimeConfig struct {
	// MaxIterations bounds how many model calls one turn may make.
	// Default: 5
	MaxIterations int

	// MaxTokens limits each model response. Default: 4096
	MaxTokens int

	// ModelTimeout bounds each model call. Default: 60s
	ModelTimeout time.Duration

	// Retry controls retries at the model-call boundary.
	Retry retry.Config
}

// DefaultRuntimeConfig returns the default runtime configuration.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		MaxIterations: 5,
		MaxTokens:     4096,
		ModelTimeout:  60 * time.Second,
		Retry:         retry.DefaultConfig(),
	}
}

// Runtime drives the model/tool loop for one conversational turn. It
// owns permission checks, tool execution, and the per-tool audit
// records; the caller owns session state and the turn-level audit
// entry.
type Runtime struct {
	provider LLMProvider
	registry *ToolRegistry
	executor *Executor
	erp      erp.Client
	recorder *audit.Recorder
	builder  *ContextBuilder
	config   RuntimeConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// NewRuntime assembles a turn runtime.
func NewRuntime(
	provider LLMProvider,
	registry *ToolRegistry,
	executor *Executor,
	erpClient erp.Client,
	recorder *audit.Recorder,
	builder *ContextBuilder,
	config RuntimeConfig,
	logger *observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) *Runtime {
	if config.MaxIterations <= 0 {
		config.MaxIterations = 5
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	if config.ModelTimeout <= 0 {
		config.ModelTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if builder == nil {
		builder = NewContextBuilder(0)
	}
	return &Runtime{
		provider: provider,
		registry: registry,
		executor: executor,
		erp:      erpClient,
		recorder: recorder,
		builder:  builder,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
	}
}

// TurnRequest carries everything the runtime needs for one turn.
type TurnRequest struct {
	// SessionID and PrincipalID identify the conversation.
	SessionID   string
	PrincipalID string

	// AuditEntryID is the pre-allocated ID of the turn's audit entry,
	// so tool records written during the turn can reference it.
	AuditEntryID string

	// Model optionally overrides the provider's default model.
	Model string

	// System is the system prompt for this turn.
	System string

	// History is the stored conversation before this turn.
	History []*models.Message

	// Query is the user's message for this turn.
	Query string
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	// Text is the assistant's final text.
	Text string

	// ModelUsed is the model that produced the final response.
	ModelUsed string

	// ToolCallCount is how many tool executions the turn made.
	ToolCallCount int

	// TotalTokens sums prompt and completion tokens over all model
	// calls in the turn.
	TotalTokens int

	// DataAccessed names the record types and reports read by tools.
	DataAccessed []string

	// PermissionChecksPassed is false when any tool call was denied.
	PermissionChecksPassed bool

	// Iterations is how many model calls the turn made.
	Iterations int
}

// ErrTurnCancelled indicates the caller's context was cancelled before
// the turn produced a final response.
var ErrTurnCancelled = errors.New("turn cancelled")

// RunTurn executes the model/tool loop until the model produces a
// final text response or the iteration budget runs out. On the last
// iteration the model is told to conclude and tools are withheld.
func (r *Runtime) RunTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	if r.provider == nil {
		return nil, ErrNoProvider
	}

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.TraceTurn(ctx, req.SessionID, req.PrincipalID)
		defer span.End()
	}

	messages := r.builder.Build(req.History)
	messages = append(messages, CompletionMessage{Role: "user", Content: req.Query})

	result := &TurnResult{PermissionChecksPassed: true}
	accessed := map[string]bool{}

	for iteration := 1; iteration <= r.config.MaxIterations; iteration++ {
		result.Iterations = iteration

		if ctx.Err() != nil {
			return nil, ErrTurnCancelled
		}

		lastIteration := iteration == r.config.MaxIterations
		creq := &CompletionRequest{
			Model:     req.Model,
			System:    req.System,
			Messages:  messages,
			MaxTokens: r.config.MaxTokens,
		}
		if !lastIteration {
			creq.Tools = r.registry.List()
		} else if iteration > 1 {
			// Budget exhausted: force a conclusion instead of more tools.
			creq.Messages = append(creq.Messages, CompletionMessage{
				Role:    "user",
				Content: concludeDirective,
			})
		}

		resp, err := r.complete(ctx, creq)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, ErrTurnCancelled
			}
			return nil, err
		}

		result.TotalTokens += resp.TotalTokens()
		result.ModelUsed = resp.Model

		if len(resp.ToolCalls) == 0 {
			result.Text = resp.Text
			result.DataAccessed = sortedKeys(accessed)
			return result, nil
		}

		toolResults := r.runToolBatch(ctx, req, resp.ToolCalls, result, accessed)
		if ctx.Err() != nil {
			// Tools finished on the detached context for the audit
			// trail, but the caller is gone; discard the results.
			return nil, ErrTurnCancelled
		}

		messages = append(messages, CompletionMessage{
			Role:      "assistant",
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		messages = append(messages, CompletionMessage{
			Role:        "tool",
			ToolResults: toolResults,
		})
	}

	result.DataAccessed = sortedKeys(accessed)
	return result, fmt.Errorf("%w after %d iterations", ErrMaxIterations, r.config.MaxIterations)
}

// complete calls the provider with timeout, tracing, metrics, and
// retries. Non-retryable provider failures stop the retry loop.
func (r *Runtime) complete(ctx context.Context, creq *CompletionRequest) (*CompletionResponse, error) {
	resp, res := retry.DoWithValue(ctx, r.config.Retry, func() (*CompletionResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.config.ModelTimeout)
		defer cancel()

		if r.tracer != nil {
			var span trace.Span
			callCtx, span = r.tracer.TraceLLMRequest(callCtx, r.provider.Name(), creq.Model)
			defer span.End()
		}

		start := time.Now()
		resp, err := r.provider.Complete(callCtx, creq)
		r.observeModelCall(creq.Model, start, resp, err)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, retry.Permanent(err)
			}
			if !providerRetryable(err) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	})
	if res.Err != nil {
		var pe *retry.PermanentError
		if errors.As(res.Err, &pe) {
			return nil, pe.Err
		}
		return nil, res.Err
	}
	return resp, nil
}

func (r *Runtime) observeModelCall(model string, start time.Time, resp *CompletionResponse, err error) {
	if r.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	name := r.provider.Name()
	r.metrics.LLMRequestCounter.WithLabelValues(name, model, status).Inc()
	r.metrics.LLMRequestDuration.WithLabelValues(name, model).Observe(time.Since(start).Seconds())
	if resp != nil {
		r.metrics.LLMTokensUsed.WithLabelValues(name, model).Add(float64(resp.TotalTokens()))
	}
}

// runToolBatch checks permissions, records, and executes the model's
// tool calls, returning results in request order. Execution runs on a
// context detached from caller cancellation so in-flight tools finish
// and their audit records complete.
func (r *Runtime) runToolBatch(ctx context.Context, req *TurnRequest, calls []models.ToolCall, result *TurnResult, accessed map[string]bool) []models.ToolResult {
	execCtx := erp.WithPrincipal(context.WithoutCancel(ctx), req.PrincipalID)

	type slot struct {
		record   *models.ToolCallRecord
		allowed  bool
		denial   string
		checkErr error
	}
	slots := make([]slot, len(calls))
	var allowedCalls []models.ToolCall

	for i, call := range calls {
		result.ToolCallCount++
		slots[i].record = r.recorder.BeginToolCall(execCtx, req.AuditEntryID, req.SessionID, call.Name, call.Input)

		allowed, denial, err := r.checkPermission(execCtx, req.PrincipalID, call.Name)
		slots[i].allowed = allowed
		slots[i].denial = denial
		slots[i].checkErr = err
		switch {
		case err != nil:
			if r.metrics != nil {
				r.metrics.ToolExecutionCounter.WithLabelValues(call.Name, "error").Inc()
			}
			r.logger.Error(ctx, "tool permission check failed",
				"session_id", req.SessionID,
				"principal_id", req.PrincipalID,
				"tool", call.Name,
				"error", err,
			)
		case allowed:
			allowedCalls = append(allowedCalls, call)
		default:
			result.PermissionChecksPassed = false
			if r.metrics != nil {
				r.metrics.ToolExecutionCounter.WithLabelValues(call.Name, "permission_denied").Inc()
			}
			r.logger.Warn(ctx, "tool permission denied",
				"session_id", req.SessionID,
				"principal_id", req.PrincipalID,
				"tool", call.Name,
			)
		}
	}

	execResults := r.executor.ExecuteAll(execCtx, allowedCalls)

	out := make([]models.ToolResult, len(calls))
	execPos := 0
	for i, call := range calls {
		s := slots[i]
		if s.checkErr != nil {
			out[i] = models.ToolResult{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("The %s tool is temporarily unavailable.", call.Name),
				IsError:    true,
			}
			r.recorder.CompleteToolCall(execCtx, s.record, models.ToolCallError, "", s.checkErr.Error(), 0)
			continue
		}
		if !s.allowed {
			out[i] = models.ToolResult{
				ToolCallID: call.ID,
				Content:    s.denial,
				IsError:    true,
			}
			r.recorder.CompleteToolCall(execCtx, s.record, models.ToolCallPermissionDenied, "", s.denial, 0)
			continue
		}

		er := execResults[execPos]
		execPos++

		if er.Error != nil {
			out[i] = models.ToolResult{
				ToolCallID: call.ID,
				Content:    toolFailureMessage(er.Error),
				IsError:    true,
			}
			r.recorder.CompleteToolCall(execCtx, s.record, models.ToolCallError, "", er.Error.Error(), 0)
			continue
		}

		tr := er.Result
		out[i] = models.ToolResult{
			ToolCallID: call.ID,
			Content:    tr.Content,
			IsError:    tr.IsError,
		}
		for _, d := range tr.DataAccessed {
			accessed[d] = true
		}
		status := models.ToolCallSuccess
		if tr.IsError {
			status = models.ToolCallError
		}
		r.recorder.CompleteToolCall(execCtx, s.record, status, tr.Content, "", tr.RecordsReturned)
	}
	return out
}

// checkPermission verifies the tool's declared permission for the
// principal. Unknown tools pass through; the executor reports them as
// not_found.
func (r *Runtime) checkPermission(ctx context.Context, principalID, toolName string) (allowed bool, denial string, err error) {
	tool, ok := r.registry.Get(toolName)
	if !ok {
		return true, "", nil
	}
	perm := tool.Permission()
	if !perm.Required() {
		return true, "", nil
	}
	if r.erp == nil {
		return false, "", errors.New("permission backend not configured")
	}

	granted, err := r.erp.HasPermission(ctx, principalID, perm.Resource, erp.Operation(perm.Operation))
	if err != nil {
		return false, "", fmt.Errorf("permission check: %w", err)
	}
	if !granted {
		deniedErr := &erp.PermissionDeniedError{
			PrincipalID: principalID,
			Resource:    perm.Resource,
			Op:          erp.Operation(perm.Operation),
		}
		return false, deniedErr.Error(), nil
	}
	return true, "", nil
}

// toolFailureMessage renders an execution failure for the model, which
// may still recover and answer from other data.
func toolFailureMessage(err error) string {
	if toolErr, ok := GetToolError(err); ok {
		switch toolErr.Type {
		case ToolErrorTimeout:
			return fmt.Sprintf("tool %s timed out", toolErr.ToolName)
		case ToolErrorInvalidInput:
			return fmt.Sprintf("invalid parameters for %s: %s", toolErr.ToolName, toolErr.Message)
		case ToolErrorNotFound:
			return fmt.Sprintf("unknown tool: %s", toolErr.ToolName)
		}
	}
	return fmt.Sprintf("tool execution failed: %v", err)
}

func providerRetryable(err error) bool {
	type retryable interface{ IsRetryable() bool }
	var pe interface {
		error
		retryable
	}
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
