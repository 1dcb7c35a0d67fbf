package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/internal/profile"
	"github.com/discord-agent/orchestrator/internal/session"
)

// buildTokenCmd creates the "token" command group for minting the JWT
// session tokens the "chat" command expects.
func buildTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage interactive-tester session tokens",
	}
	cmd.AddCommand(buildTokenIssueCmd())
	return cmd
}

func buildTokenIssueCmd() *cobra.Command {
	var (
		configPath string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed session token for a tester user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(configPath))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			auth := session.NewTesterAuth(cfg.Session.Tester.Secret, cfg.Session.Tester.Expiry)
			token, err := auth.IssueToken(session.TesterIdentity{UserID: userID})
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", profile.DefaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&userID, "user", "", "User id to bind the token to (required)")
	cobra.CheckErr(cmd.MarkFlagRequired("user"))

	return cmd
}
