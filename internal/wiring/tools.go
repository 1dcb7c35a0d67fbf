package wiring

import (
	"context"
	"fmt"
	"strings"

	"github.com/discord-agent/orchestrator/internal/llm"
	"github.com/discord-agent/orchestrator/internal/tools"
	"github.com/discord-agent/orchestrator/internal/tools/reminder"
	"github.com/discord-agent/orchestrator/internal/tools/videosummary"
	"github.com/discord-agent/orchestrator/internal/tools/websearch"
)

// gatewaySummarizer implements videosummary.Summarizer by asking the
// finalizer role to summarize a video from its URL alone (no transcript
// fetch is wired; the model is expected to recognize well-known videos or
// decline gracefully). A dedicated LLM role isn't worth adding for this one
// tool, so it reuses RoleFinalizer.
type gatewaySummarizer struct {
	gateway *llm.Gateway
}

func (s *gatewaySummarizer) Summarize(ctx context.Context, videoURL string) (string, error) {
	req := &llm.CompletionRequest{
		System: "Summarize the video at the given URL in 2-3 sentences. If you cannot access or identify the video, say so plainly.",
		Messages: []llm.CompletionMessage{
			{Role: "user", Content: videoURL},
		},
	}

	chunks, err := s.gateway.Complete(ctx, llm.RoleFinalizer, req)
	if err != nil {
		return "", fmt.Errorf("video summary: %w", err)
	}

	var sb strings.Builder
	for c := range chunks {
		if c.Err != nil {
			return "", fmt.Errorf("video summary: %w", c.Err)
		}
		sb.WriteString(c.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

// BuildToolRegistry registers the three in-scope tools: web search, video
// summary, and reminder-setting.
func BuildToolRegistry(gateway *llm.Gateway) *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(reminder.New())
	registry.Register(websearch.New(websearch.NewDuckDuckGoBackend(websearch.NewDefaultHTTPClient()), websearch.Config{}))
	registry.Register(videosummary.New(&gatewaySummarizer{gateway: gateway}, videosummary.DefaultTTL))
	return registry
}
