// Package main provides the interactive tester CLI: a terminal REPL that
// drives the same Conversation Model, LLM Gateway, Tool Registry, and
// Orchestrator Graph as the Discord transport, minus everything Discord-
// specific (no channel/guild emoji context, no reminder scheduler, no
// trend-following engine). Useful for iterating on prompts, tool behavior,
// and persona config without a live Discord connection.
//
// # Basic Usage
//
//	orchestrator-test token issue --user alice
//	orchestrator-test chat --token <signed-token>
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/discord-agent/orchestrator/internal/profile"
)

var (
	version     = "dev"
	commit      = "none"
	profileName string
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "orchestrator-test",
		Short:   "Interactive tester for the orchestrator core",
		Version: version + " (commit: " + commit + ")",
	}
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Profile name (uses ~/.orchestrator/profiles/<name>.yaml)")

	rootCmd.AddCommand(buildTokenCmd())
	rootCmd.AddCommand(buildChatCmd())

	return rootCmd
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
