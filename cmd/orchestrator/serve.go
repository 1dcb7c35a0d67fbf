package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/discord-agent/orchestrator/internal/channels/discord"
	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/internal/emoji"
	"github.com/discord-agent/orchestrator/internal/orchestrator"
	"github.com/discord-agent/orchestrator/internal/scheduler"
	"github.com/discord-agent/orchestrator/internal/session"
	"github.com/discord-agent/orchestrator/internal/trend"
	"github.com/discord-agent/orchestrator/internal/urldetect"
	"github.com/discord-agent/orchestrator/internal/wiring"
	"github.com/discord-agent/orchestrator/pkg/models"
)

const videoSummaryToolName = "video_summary"

// runServe implements the serve command: build every collaborator in
// dependency order, attach, connect, and block until a shutdown signal.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	slog.Info("starting orchestrator", "version", version, "commit", commit, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	token := os.Getenv("DISCORD_BOT_TOKEN")
	if token == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	adapter, err := discord.New(discord.FromDiscordConfig(cfg.Discord, token))
	if err != nil {
		return fmt.Errorf("failed to build discord adapter: %w", err)
	}

	emojiCtx := emoji.NewContext(adapter.EmojiSource(), "")

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

	graph := orchestrator.NewGraph(
		gateway,
		registry,
		cfg.Agent.Behavior,
		cfg.Streaming,
		enabledTools,
		orchestrator.WithURLDetector(urldetect.NewVideoLinkDetector(videoSummaryToolName)),
		orchestrator.WithEmojiContext(emojiCtx),
	)

	personaSelector := &dynamicPersonaSelector{}
	if err := personaSelector.update(cfg.PromptSystem.Persona); err != nil {
		return fmt.Errorf("failed to scan persona directory: %w", err)
	}

	configWatcher, err := config.WatchFile(ctx, configPath, func(reloaded *config.Config) {
		if err := personaSelector.update(reloaded.PromptSystem.Persona); err != nil {
			slog.Warn("persona directory rescan failed", "error", err)
			return
		}
		slog.Info("config change detected: persona list rescanned; other settings require a restart to take effect")
	})
	if err != nil {
		slog.Warn("config file watch disabled", "error", err)
	} else {
		defer configWatcher.Close()
	}

	reminderScheduler, err := scheduler.NewScheduler(
		scheduler.ParamsFromConfig(cfg.Reminder),
		reminderFireFunc(adapter),
		scheduler.WithStore(scheduler.NewStoreFromConfig(cfg.Reminder)),
	)
	if err != nil {
		return fmt.Errorf("failed to build reminder scheduler: %w", err)
	}

	var trendEngine *trend.Engine
	if cfg.TrendFollowing.Enabled {
		trendEngine = trend.NewEngine(
			cfg.TrendFollowing,
			trendEmitFunc(adapter),
			trend.WithEmojiReplyGenerator(&gatewayEmojiReplyGenerator{gateway: gateway}),
		)
	}

	handlerOpts := []session.Option{
		session.WithScheduler(reminderScheduler),
		session.WithPersonaSelector(personaSelector),
	}
	if trendEngine != nil {
		handlerOpts = append(handlerOpts, session.WithTrendEngine(trendEngine))
	}

	handler := session.NewHandler(
		cfg.Session.Permissions,
		cfg.Discord.Limits,
		cfg.Discord.InputMedia,
		graph,
		session.NewMessageCache(cfg.Session.MessageCache),
		adapter.ObserverFactory(),
		handlerOpts...,
	)

	adapter.Attach(handler)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reminderScheduler.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- adapter.Start(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	reminderScheduler.Stop()
	if err := adapter.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("orchestrator stopped gracefully")
	return nil
}

// reminderFireFunc delivers a fired reminder back into the Discord channel
// it was set from.
func reminderFireFunc(adapter *discord.Adapter) scheduler.FireFunc {
	return func(ctx context.Context, r models.ReminderDetails) error {
		return adapter.SendMessage(ctx, r.ChannelRef, fmt.Sprintf("⏰ Reminder: %s", r.Content))
	}
}
