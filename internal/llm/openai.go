package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// OpenAIProvider is a pluggable backend, used as a fallback_chain member.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	DefaultModel string
}

// NewOpenAIProvider constructs an OpenAIProvider. APIKey is required.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openai.GPT4o
	}
	return &OpenAIProvider{client: openai.NewClient(cfg.APIKey), defaultModel: cfg.DefaultModel}, nil
}

func (p *OpenAIProvider) Name() string        { return "openai" }
func (p *OpenAIProvider) SupportsTools() bool { return true }

func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := p.convertMessages(req.System, req.Messages)
	params := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		Stream:    true,
	}
	if req.Temperature > 0 {
		params.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = p.convertTools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: create stream: %w", err)
	}

	out := make(chan *CompletionChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if err != nil {
				if err.Error() == "EOF" {
					out <- &CompletionChunk{Done: true}
					return
				}
				out <- &CompletionChunk{Err: err}
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content != "" {
					out <- &CompletionChunk{Text: choice.Delta.Content}
				}
				for _, tc := range choice.Delta.ToolCalls {
					if tc.Function.Name != "" {
						out <- &CompletionChunk{ToolCall: &models.ToolCall{
							Name:      tc.Function.Name,
							Arguments: json.RawMessage(tc.Function.Arguments),
						}}
					}
				}
			}
		}
	}()
	return out, nil
}

func (p *OpenAIProvider) convertMessages(system string, messages []CompletionMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		case "tool":
			role = openai.ChatMessageRoleTool
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func (p *OpenAIProvider) convertTools(decls []ToolDecl) []openai.Tool {
	out := make([]openai.Tool, 0, len(decls))
	for _, d := range decls {
		var params map[string]any
		_ = json.Unmarshal(d.Schema, &params)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
