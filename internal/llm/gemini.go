package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// GeminiProvider is the default LLM Gateway backend (spec §6 names
// GEMINI_API_KEY as the required environment variable).
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
}

// GeminiConfig configures a GeminiProvider.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
}

// NewGeminiProvider constructs a GeminiProvider. APIKey is required.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &GeminiProvider{client: client, defaultModel: cfg.DefaultModel}, nil
}

func (p *GeminiProvider) Name() string        { return "gemini" }
func (p *GeminiProvider) SupportsTools() bool { return true }

func (p *GeminiProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	contents, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("gemini: convert messages: %w", err)
	}
	config := p.buildConfig(req)

	out := make(chan *CompletionChunk)
	go func() {
		defer close(out)
		streamIter := p.client.Models.GenerateContentStream(ctx, model, contents, config)
		if err := p.processStream(ctx, streamIter, out); err != nil {
			out <- &CompletionChunk{Err: err}
			return
		}
		out <- &CompletionChunk{Done: true}
	}()
	return out, nil
}

func (p *GeminiProvider) processStream(ctx context.Context, streamIter iter.Seq2[*genai.GenerateContentResponse, error], out chan<- *CompletionChunk) error {
	for resp, err := range streamIter {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}
		if resp == nil {
			continue
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					out <- &CompletionChunk{Text: part.Text}
				}
				if part.FunctionCall != nil {
					argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						argsJSON = []byte("{}")
					}
					out <- &CompletionChunk{ToolCall: &models.ToolCall{
						Name:      part.FunctionCall.Name,
						Arguments: argsJSON,
					}}
				}
			}
		}
	}
	return nil
}

func (p *GeminiProvider) convertMessages(messages []CompletionMessage) ([]*genai.Content, error) {
	var result []*genai.Content
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		content := &genai.Content{}
		switch msg.Role {
		case "user", "tool":
			content.Role = genai.RoleUser
		case "assistant":
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}

		for _, img := range msg.Images {
			data, err := base64.StdEncoding.DecodeString(img.Base64)
			if err != nil {
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{
				InlineData: &genai.Blob{Data: data, MIMEType: img.MimeType},
			})
		}

		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}

		for _, tr := range msg.ToolResults {
			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Content), &response); err != nil {
				response = map[string]any{"result": tr.Content, "success": tr.Success}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: tr.ToolName, Response: response},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result, nil
}

func (p *GeminiProvider) buildConfig(req *CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if len(req.Tools) > 0 {
		config.Tools = p.convertTools(req.Tools)
	}
	return config
}

func (p *GeminiProvider) convertTools(decls []ToolDecl) []*genai.Tool {
	fns := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		var schema map[string]any
		_ = json.Unmarshal(d.Schema, &schema)
		fns = append(fns, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  schemaToGenai(schema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fns}}
}

// schemaToGenai performs a shallow conversion of a JSON-schema-as-map into
// genai.Schema; only the subset our tool schemas actually use (object/
// string/integer properties, required list) is handled.
func schemaToGenai(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{Type: genai.TypeObject}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if propMap, ok := raw.(map[string]any); ok {
				s.Properties[name] = &genai.Schema{
					Type:        jsonTypeToGenai(propMap["type"]),
					Description: stringOr(propMap["description"]),
				}
			}
		}
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if s2, ok := r.(string); ok {
				s.Required = append(s.Required, s2)
			}
		}
	}
	return s
}

func jsonTypeToGenai(t any) genai.Type {
	switch fmt.Sprint(t) {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func stringOr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
