package main

import (
	"github.com/spf13/cobra"

	"github.com/discord-agent/orchestrator/internal/profile"
)

// buildServeCmd creates the "serve" command that runs the bot.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Discord agent",
		Long: `Start the Discord agent with all configured providers and tools.

The server will:
1. Load and validate configuration
2. Construct the Discord transport adapter
3. Initialize the LLM Gateway's four model roles
4. Build the tool registry and the orchestrator graph
5. Start the reminder scheduler and trend-following engine
6. Connect to Discord and begin serving requests

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  orchestrator serve

  # Start with a custom config
  orchestrator serve --config /etc/orchestrator/production.yaml

  # Start with debug logging
  orchestrator serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", profile.DefaultConfigPath(),
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}
