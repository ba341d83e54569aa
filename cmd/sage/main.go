// Package main provides the CLI entry point for the Sage conversational
// business-data agent.
//
// Sage answers natural-language questions about financial and operational
// data by orchestrating an LLM with permission-gated, read-only tools.
// Sessions, rate limits, and a full audit trail are managed per principal.
//
// # Basic Usage
//
// Start the server:
//
//	sage serve --config sage.yaml
//
// Talk to the agent from a terminal:
//
//	sage chat --principal admin@example.com
//
// Expire stale sessions (run from cron):
//
//	sage expire-sessions --config sage.yaml
//
// # Environment Variables
//
// Configuration values may reference environment variables with ${VAR}
// syntax. Commonly used:
//
//   - OPENAI_API_KEY: OpenAI API key
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	// Default logger for command plumbing; serve replaces it with the
	// configured one.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sage",
		Short: "Sage - Conversational business-data agent",
		Long: `Sage answers questions about business data through an LLM with
permission-gated, read-only tools.

Supported LLM providers: OpenAI (GPT), Anthropic (Claude)
Available tools: financial reports, revenue, expenses, arbitrary reports

Documentation: https://github.com/haasonsaas/sage`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildExpireSessionsCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}
