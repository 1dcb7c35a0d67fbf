package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// AnthropicProvider is a pluggable backend used for the planner/finalizer
// roles, typically as a fallback_chain member alongside Gemini.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	DefaultModel string
}

// NewAnthropicProvider constructs an AnthropicProvider. APIKey is required.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &AnthropicProvider{client: client, defaultModel: cfg.DefaultModel}, nil
}

func (p *AnthropicProvider) Name() string        { return "anthropic" }
func (p *AnthropicProvider) SupportsTools() bool { return true }

func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxOr(req.MaxTokens, 4096)),
		Messages:  p.convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = p.convertTools(req.Tools)
	}

	out := make(chan *CompletionChunk)
	go func() {
		defer close(out)

		stream := p.client.Messages.NewStreaming(ctx, params)
		var currentToolName, currentToolInput string
		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_delta":
				if delta := event.Delta; delta.Text != "" {
					out <- &CompletionChunk{Text: delta.Text}
				}
			case "content_block_start":
				if event.ContentBlock.Type == "tool_use" {
					currentToolName = event.ContentBlock.Name
				}
			case "content_block_stop":
				if currentToolName != "" {
					out <- &CompletionChunk{ToolCall: &models.ToolCall{
						Name:      currentToolName,
						Arguments: []byte(currentToolInput),
					}}
					currentToolName, currentToolInput = "", ""
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- &CompletionChunk{Err: err}
			return
		}
		out <- &CompletionChunk{Done: true}
	}()
	return out, nil
}

func (p *AnthropicProvider) convertMessages(messages []CompletionMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		role := anthropic.MessageParamRoleUser
		if m.Role == "assistant" {
			role = anthropic.MessageParamRoleAssistant
		}

		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for _, img := range m.Images {
			data, err := base64.StdEncoding.DecodeString(img.Base64)
			if err == nil {
				blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, string(data)))
			}
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

func (p *AnthropicProvider) convertTools(decls []ToolDecl) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(decls))
	for _, d := range decls {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
			},
		})
	}
	return out
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
