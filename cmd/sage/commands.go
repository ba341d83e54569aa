package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the agent engine.
// This is the primary command for running Sage in production.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		demo       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Sage agent engine",
		Long: `Start the Sage agent engine with the configured provider and stores.

The server will:
1. Load configuration from the specified file (or sage.yaml)
2. Open the SQLite session and audit stores
3. Initialize the LLM provider and the tool registry
4. Start the HTTP listener for health checks and metrics
5. Sweep stale sessions periodically

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  sage serve

  # Start with custom config
  sage serve --config /etc/sage/production.yaml

  # Start with seeded demo data and debug logging
  sage serve --demo --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug, demo)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")
	cmd.Flags().BoolVar(&demo, "demo", false,
		"Seed the in-memory business data with a demo dataset")

	return cmd
}

// =============================================================================
// Chat Command
// =============================================================================

// buildChatCmd creates the "chat" command: an interactive terminal
// conversation against a local engine instance.
func buildChatCmd() *cobra.Command {
	var (
		configPath string
		principal  string
		company    string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent from the terminal",
		Long: `Start an interactive conversation with the agent.

A fresh session is created for the given principal, and each line you
type runs one full turn (rate limit, tools, audit) through the same
engine serve uses. Demo business data is seeded so the tools have
something to query. Type "exit" or press Ctrl-D to quit.`,
		Example: `  # Chat as the default principal
  sage chat

  # Chat as a specific principal scoped to one company
  sage chat --principal jane@example.com --company "Sage Demo Inc"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath, principal, company, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")
	cmd.Flags().StringVar(&principal, "principal", "admin@example.com",
		"Principal ID to chat as")
	cmd.Flags().StringVar(&company, "company", "",
		"Company context for the session")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// =============================================================================
// Expire Sessions Command
// =============================================================================

// buildExpireSessionsCmd creates the "expire-sessions" command, meant to
// run from cron against the shared database.
func buildExpireSessionsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "expire-sessions",
		Short: "Expire sessions idle past the configured threshold",
		Example: `  # Typically run from cron
  sage expire-sessions --config /etc/sage/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpireSessions(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")

	return cmd
}

// =============================================================================
// Version Command
// =============================================================================

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sage %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
			return nil
		},
	}
}
