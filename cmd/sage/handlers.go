package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/sage/internal/agent"
	"github.com/haasonsaas/sage/internal/agent/providers"
	"github.com/haasonsaas/sage/internal/audit"
	"github.com/haasonsaas/sage/internal/config"
	"github.com/haasonsaas/sage/internal/erp"
	"github.com/haasonsaas/sage/internal/observability"
	"github.com/haasonsaas/sage/internal/ratelimit"
	"github.com/haasonsaas/sage/internal/response"
	"github.com/haasonsaas/sage/internal/retry"
	"github.com/haasonsaas/sage/internal/service"
	"github.com/haasonsaas/sage/internal/sessions"
	"github.com/haasonsaas/sage/internal/tools/finance"
	"github.com/haasonsaas/sage/internal/tools/report"
)

const defaultConfigPath = "sage.yaml"

// sweepInterval is how often serve expires stale sessions.
const sweepInterval = 10 * time.Minute

// resolveConfigPath falls back to built-in defaults when the default
// config file does not exist, so `sage chat` works out of the box.
func resolveConfigPath(path string) string {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); err != nil {
			return ""
		}
	}
	return path
}

// =============================================================================
// Engine Assembly
// =============================================================================

// app holds one fully wired engine instance plus everything that needs
// closing on shutdown.
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	registry *prometheus.Registry
	chat     *service.ChatService

	// closers run in reverse order on Close.
	closers []func(context.Context) error
}

// buildApp loads configuration and assembles the full engine: stores,
// limiter, provider, tool registry, runtime, and chat service.
func buildApp(ctx context.Context, configPath string, debug, demo bool) (*app, error) {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	slog.SetDefault(logger.Slog())

	a := &app{cfg: cfg, logger: logger}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	a.registry = registry

	tracer, shutdownTracer, err := observability.NewTracer(ctx, observability.TraceConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "sage",
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SamplingRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	store, auditStore, err := a.openStores()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	manager := sessions.NewManager(store, sessions.ManagerConfig{
		ExpiryThreshold: cfg.Session.ExpiryThreshold,
	}, logger, metrics)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Enabled: cfg.RateLimit.Enabled,
		Limit:   cfg.RateLimit.Limit,
		Window:  cfg.RateLimit.Window,
	})

	// The business data collaborator. Until a live backend is wired in,
	// this is an in-process dataset; --demo fills it with sample books.
	erpClient := erp.NewMemoryClient().AllowAll()
	if demo {
		erp.SeedDemo(erpClient, time.Now())
	}

	toolRegistry := agent.NewToolRegistry()
	toolset := finance.Tools(erpClient, finance.Config{
		RecordLimit: cfg.Agent.RecordLimit,
	})
	toolset = append(toolset, report.Tools(erpClient, report.Config{
		DefaultRows: cfg.Agent.RecordLimit,
		MaxRows:     cfg.Agent.MaxRecordLimit,
	})...)
	for _, t := range toolset {
		if err := toolRegistry.Register(t); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to register tool %s: %w", t.Name(), err)
		}
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	retryCfg := retry.DefaultConfig()
	if cfg.Agent.MaxRetries > 0 {
		retryCfg.MaxAttempts = cfg.Agent.MaxRetries
	}

	executor := agent.NewExecutor(toolRegistry, &agent.ExecutorConfig{
		Timeout: cfg.Agent.ToolTimeout,
	}, metrics, tracer)
	builder := agent.NewContextBuilder(cfg.Session.ContextWindow)
	recorder := audit.NewRecorder(auditStore, logger, metrics)

	runtime := agent.NewRuntime(
		provider,
		toolRegistry,
		executor,
		erpClient,
		recorder,
		builder,
		agent.RuntimeConfig{
			MaxIterations: cfg.Agent.MaxIterations,
			MaxTokens:     cfg.Agent.MaxTokens,
			ModelTimeout:  cfg.Agent.ModelTimeout,
			Retry:         retryCfg,
		},
		logger,
		metrics,
		tracer,
	)

	a.chat = service.NewChatService(
		manager,
		store,
		limiter,
		runtime,
		recorder,
		response.NewShaper(logger),
		builder,
		service.ChatConfig{MaxMessageLength: cfg.Session.MaxMessageLength},
		logger,
		metrics,
	)

	logger.Info(ctx, "engine assembled",
		"provider", provider.Name(),
		"tools", len(toolset),
		"database", storeLabel(cfg.Database.Path),
		"demo", demo,
	)
	return a, nil
}

// openStores opens the session and audit stores. An empty database
// path keeps everything in memory.
func (a *app) openStores() (sessions.Store, audit.Store, error) {
	path := a.cfg.Database.Path
	if path == "" {
		return sessions.NewMemoryStore(), audit.NewMemoryStore(), nil
	}

	store, err := sessions.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	maxConns := a.cfg.Database.MaxConnections
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	if lifetime := a.cfg.Database.ConnMaxLifetime; lifetime > 0 {
		db.SetConnMaxLifetime(lifetime)
	}
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })

	auditStore, err := audit.NewSQLiteStore(db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return auditStore.Close() })

	return store, auditStore, nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close(ctx context.Context) error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildProvider creates the configured LLM provider. API keys fall
// back to the conventional environment variables.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	name := cfg.LLM.DefaultProvider
	if name == "" {
		name = "openai"
	}
	pc := cfg.LLM.Providers[name]

	switch name {
	case "openai":
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
			BaseURL:      pc.BaseURL,
		}), nil
	case "anthropic":
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
			BaseURL:      pc.BaseURL,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}

func storeLabel(path string) string {
	if path == "" {
		return "memory"
	}
	return path
}

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe implements the serve command logic.
// It handles engine assembly, the metrics listener, the stale-session
// sweeper, and graceful shutdown.
func runServe(ctx context.Context, configPath string, debug, demo bool) error {
	slog.Info("starting Sage engine",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := buildApp(ctx, configPath, debug, demo)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	addr := fmt.Sprintf("%s:%d", app.cfg.Server.Host, app.cfg.Server.MetricsPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	go sweepSessions(ctx, app)

	slog.Info("Sage engine started", "metrics_addr", addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			app.Close(context.Background())
			return err
		}
	}
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Close(shutdownCtx)
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := app.Close(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("Sage engine stopped gracefully")
	return nil
}

// sweepSessions periodically expires sessions idle past the threshold.
func sweepSessions(ctx context.Context, app *app) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.chat.ExpireSessions(ctx)
			if err != nil {
				app.logger.Warn(ctx, "session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired stale sessions", "count", n)
			}
		}
	}
}

// =============================================================================
// Chat Command Handler
// =============================================================================

// runChat implements the interactive chat command. Each input line is
// one full turn through the engine.
func runChat(cmd *cobra.Command, configPath, principal, company string, debug bool) error {
	ctx := cmd.Context()

	app, err := buildApp(ctx, configPath, debug, true)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	sess, err := app.chat.CreateSession(ctx, principal, company)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer app.chat.CloseSession(context.Background(), sess.ID, principal)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s as %s. Type a question, or \"exit\" to quit.\n", sess.ID, principal)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		reply, err := app.chat.SendMessage(ctx, sess.ID, principal, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		fmt.Fprintf(out, "\n%s\n\n", reply.Text)
		if reply.Chart != nil {
			chart, err := json.MarshalIndent(reply.Chart, "", "  ")
			if err == nil {
				fmt.Fprintf(out, "[chart]\n%s\n\n", chart)
			}
		}
	}
	return scanner.Err()
}

// =============================================================================
// Expire Sessions Command Handler
// =============================================================================

// runExpireSessions implements the expire-sessions command against the
// configured database, without assembling the full engine.
func runExpireSessions(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	var store sessions.Store
	if cfg.Database.Path == "" {
		store = sessions.NewMemoryStore()
	} else {
		sqlStore, err := sessions.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	}

	manager := sessions.NewManager(store, sessions.ManagerConfig{
		ExpiryThreshold: cfg.Session.ExpiryThreshold,
	}, logger, nil)

	n, err := manager.ExpireStale(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Expired %d stale sessions\n", n)
	return nil
}
