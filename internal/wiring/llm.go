// Package wiring builds the shared LLM Gateway and Tool Registry
// collaborators used by both cmd/orchestrator (the Discord transport) and
// cmd/orchestrator-test (the interactive tester), so the two entrypoints
// never drift on how a config.LLMConfig becomes a *llm.Gateway.
package wiring

import (
	"context"
	"fmt"
	"os"

	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/internal/llm"
)

// buildProvider constructs the named provider, reading its API key from the
// environment variable config.RequiredAPIKeyEnvVar names (bedrock instead
// uses the AWS default credential chain and cfg.Bedrock).
func buildProvider(ctx context.Context, cfg config.LLMConfig, name string) (llm.Provider, error) {
	switch name {
	case "anthropic":
		return llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey: os.Getenv(config.RequiredAPIKeyEnvVar("anthropic")),
		})
	case "openai":
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey: os.Getenv(config.RequiredAPIKeyEnvVar("openai")),
		})
	case "gemini", "google":
		return llm.NewGeminiProvider(ctx, llm.GeminiConfig{
			APIKey: os.Getenv(config.RequiredAPIKeyEnvVar("gemini")),
		})
	case "bedrock":
		return llm.NewBedrockProvider(ctx, llm.BedrockConfig{
			Region:       cfg.Bedrock.Region,
			DefaultModel: cfg.Bedrock.ModelID,
		})
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
}

// BuildGateway wires the four model roles and the fallback chain from
// config, constructing (and caching, since roles commonly share a provider)
// one Provider instance per distinct provider name.
func BuildGateway(ctx context.Context, cfg config.LLMConfig) (*llm.Gateway, error) {
	providers := make(map[string]llm.Provider)
	resolve := func(name string) (llm.Provider, error) {
		if name == "" {
			name = cfg.DefaultProvider
		}
		if p, ok := providers[name]; ok {
			return p, nil
		}
		p, err := buildProvider(ctx, cfg, name)
		if err != nil {
			return nil, err
		}
		providers[name] = p
		return p, nil
	}

	gw := llm.NewGateway()

	roles := []struct {
		role llm.Role
		rm   config.RoleModelConfig
	}{
		{llm.RolePlanner, cfg.Models.Planner},
		{llm.RoleFinalizer, cfg.Models.Finalizer},
		{llm.RoleReflector, cfg.Models.Reflector},
		{llm.RoleProgressBlurb, cfg.Models.ProgressBlurb},
	}
	for _, r := range roles {
		providerName := r.rm.Provider
		if providerName == "bedrock" && r.rm.Model == "" {
			// Bedrock's model lives in cfg.Bedrock.ModelID, not the role's
			// own Model field, since one Bedrock endpoint serves every role
			// that routes to it.
			r.rm.Model = cfg.Bedrock.ModelID
		}
		p, err := resolve(providerName)
		if err != nil {
			return nil, fmt.Errorf("llm: role %s: %w", r.role, err)
		}
		gw.Route(r.role, p, r.rm.Model, r.rm.Temperature, r.rm.MaxOutputTokens)
	}

	if len(cfg.FallbackChain) > 0 {
		chain := make([]llm.Provider, 0, len(cfg.FallbackChain))
		for _, name := range cfg.FallbackChain {
			p, err := resolve(name)
			if err != nil {
				return nil, fmt.Errorf("llm: fallback_chain: %w", err)
			}
			chain = append(chain, p)
		}
		gw.WithFallbackChain(chain...)
	}

	return gw, nil
}
