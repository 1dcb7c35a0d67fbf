package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/discord-agent/orchestrator/internal/channels/discord"
	"github.com/discord-agent/orchestrator/internal/llm"
	"github.com/discord-agent/orchestrator/internal/trend"
)

// gatewayEmojiReplyGenerator backs trend.EmojiReplyGenerator with the
// progress_blurb role: an emoji-only reply is the same "short, cheap"
// shape that role already exists for.
type gatewayEmojiReplyGenerator struct {
	gateway *llm.Gateway
}

func (g *gatewayEmojiReplyGenerator) GenerateEmojiReply(ctx context.Context, recent []string) (string, error) {
	req := &llm.CompletionRequest{
		System: "Reply with a single emoji (or a short run of emoji) that fits the recent messages. No words.",
		Messages: []llm.CompletionMessage{
			{Role: "user", Content: strings.Join(recent, "\n")},
		},
	}
	chunks, err := g.gateway.Complete(ctx, llm.RoleProgressBlurb, req)
	if err != nil {
		return "", fmt.Errorf("emoji reply: %w", err)
	}
	var sb strings.Builder
	for c := range chunks {
		if c.Err != nil {
			return "", fmt.Errorf("emoji reply: %w", c.Err)
		}
		sb.WriteString(c.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

// trendEmitFunc delivers a trend Decision back into Discord. ModeReaction
// has no target message id available on Decision (the engine only tracks
// per-channel cooldown state, not the triggering message), so it degrades
// to posting the emoji as a message rather than reacting to anything in
// particular; ModeContent and ModeEmoji post their Content verbatim.
func trendEmitFunc(adapter *discord.Adapter) trend.EmitFunc {
	return func(ctx context.Context, decision trend.Decision) error {
		switch decision.Mode {
		case trend.ModeReaction:
			return adapter.SendMessage(ctx, decision.ChannelID, decision.ReactionEmoji)
		default:
			return adapter.SendMessage(ctx, decision.ChannelID, decision.Content)
		}
	}
}
