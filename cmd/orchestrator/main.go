// Package main provides the CLI entry point for the Discord conversational
// agent: a single-process orchestration core (plan → execute → reflect →
// finalize) fronted by a Discord transport, with a scheduled-event
// reminder system and a trend-following reactive loop running alongside
// it.
//
// # Basic Usage
//
// Start the bot:
//
//	orchestrator serve --config orchestrator.yaml
//
// # Environment Variables
//
//   - DISCORD_BOT_TOKEN: Discord bot token (required)
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY: LLM provider
//     credentials, required for whichever providers are routed in config
//   - AWS credentials (environment, shared config, or IAM role) when
//     llm.bedrock.enabled is true
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/discord-agent/orchestrator/internal/profile"
)

// Build information, populated by ldflags during build.
var (
	version     = "dev"
	commit      = "none"
	date        = "unknown"
	profileName string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Discord conversational agent orchestrator",
		Long: `Orchestrator runs a Discord bot backed by a deterministic
plan/execute/reflect/finalize agent graph, a pluggable tool registry
(web search, video summary, reminders), a persistent reminder scheduler,
and a trend-following reactive loop.`,
		Version:      versionString(),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Profile name (uses ~/.orchestrator/profiles/<name>.yaml)")

	rootCmd.AddCommand(buildServeCmd())

	return rootCmd
}

func versionString() string {
	return version + " (commit: " + commit + ", built: " + date + ")"
}

func resolveConfigPath(path string) string {
	if profileName != "" {
		return profile.ProfileConfigPath(profileName)
	}
	if path == "" || path == profile.DefaultConfigName {
		return profile.DefaultConfigPath()
	}
	return path
}
