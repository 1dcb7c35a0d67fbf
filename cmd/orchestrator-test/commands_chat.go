package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/internal/convo"
	"github.com/discord-agent/orchestrator/internal/orchestrator"
	"github.com/discord-agent/orchestrator/internal/profile"
	"github.com/discord-agent/orchestrator/internal/progress"
	"github.com/discord-agent/orchestrator/internal/session"
	"github.com/discord-agent/orchestrator/internal/wiring"
	"github.com/discord-agent/orchestrator/pkg/models"
)

// buildChatCmd creates the "chat" command: a terminal REPL against the
// orchestrator core, skipping every Discord-specific collaborator (emoji
// context, reminder scheduler, trend-following engine).
func buildChatCmd() *cobra.Command {
	var (
		configPath string
		token      string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session against the orchestrator core",
		Long: `Start a REPL that sends each line of input through the same
Conversation Model, LLM Gateway, Tool Registry, and Orchestrator Graph the
Discord transport uses. Type a blank line or Ctrl-D to exit.

Requires either --token (a token minted by "token issue") or --user when
session.tester.secret is unset in config (auth disabled, any user id is
accepted directly).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd, resolveConfigPath(configPath), token, userID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", profile.DefaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&token, "token", "", "Signed tester session token (from 'token issue')")
	cmd.Flags().StringVar(&userID, "user", "tester", "User id to act as when tester auth is disabled")

	return cmd
}

func runChat(ctx context.Context, cmd *cobra.Command, configPath, token, userID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	identity, err := resolveTesterIdentity(cfg.Session.Tester, token, userID)
	if err != nil {
		return err
	}

	gateway, err := wiring.BuildGateway(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to build llm gateway: %w", err)
	}
	registry := wiring.BuildToolRegistry(gateway)

	enabledTools := make(map[string]int)
	for name, t := range cfg.Agent.Tools {
		if t.Enabled {
			enabledTools[name] = t.Priority
		}
	}

	graph := orchestrator.NewGraph(gateway, registry, cfg.Agent.Behavior, cfg.Streaming, enabledTools)

	sink := &consoleSink{out: cmd.OutOrStdout()}
	handler := session.NewHandler(
		cfg.Session.Permissions,
		cfg.Discord.Limits,
		cfg.Discord.InputMedia,
		graph,
		session.NewMessageCache(cfg.Session.MessageCache),
		func(session.Request) progress.Observer { return sink },
	)

	actor := session.Actor{UserID: identity.UserID, ChannelID: "tester-console", IsDM: true}

	fmt.Fprintf(cmd.OutOrStdout(), "chatting as %s. blank line or Ctrl-D to exit.\n", identity.UserID)

	var history []models.Message
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for turn := 1; ; turn++ {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			break
		}

		now := time.Now()
		sink.reset()
		req := session.Request{
			Request: convo.Request{
				UtteranceID:   strconv.Itoa(turn),
				UtteranceText: line,
				History:       history,
			},
			Actor:     actor,
			Mentioned: true,
		}

		if err := handler.Handle(ctx, req); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "error: %v\n", err)
			continue
		}

		history = append(history,
			models.Message{ID: req.UtteranceID + "-user", Role: models.RoleUser, Content: models.Content{Text: line}, CreatedAt: now},
			models.Message{ID: req.UtteranceID + "-assistant", Role: models.RoleAssistant, Content: models.Content{Text: sink.final}, CreatedAt: time.Now()},
		)
	}

	return scanner.Err()
}

// resolveTesterIdentity validates token when tester auth is enabled
// (cfg.Secret set), otherwise falls back to the --user flag directly.
func resolveTesterIdentity(cfg config.TesterConfig, token, userID string) (session.TesterIdentity, error) {
	if cfg.Secret == "" {
		return session.TesterIdentity{UserID: userID}, nil
	}
	if token == "" {
		return session.TesterIdentity{}, fmt.Errorf("session.tester.secret is set: --token is required (mint one with 'token issue')")
	}
	auth := session.NewTesterAuth(cfg.Secret, cfg.Expiry)
	return auth.ValidateToken(token)
}
