package config

import "fmt"

// LLMConfig configures the LLM Gateway's four model roles and its optional
// Bedrock-hosted backend (spec §4.3, SPEC_FULL §11).
type LLMConfig struct {
	// DefaultProvider names the backend used for any role that doesn't
	// override it. Default: "gemini".
	DefaultProvider string `yaml:"default_provider"`

	Models ModelRoles `yaml:"models"`

	Bedrock BedrockConfig `yaml:"bedrock"`

	// FallbackChain lists providers tried in order when DefaultProvider (or
	// a role's own provider) returns a ProviderError/RateLimited failure.
	FallbackChain []string `yaml:"fallback_chain"`
}

// ModelRoles holds the per-role model configuration named in spec §2/§4.3:
// planner, finalizer, reflector, and progress_blurb.
type ModelRoles struct {
	Planner       RoleModelConfig `yaml:"planner"`
	Finalizer     RoleModelConfig `yaml:"finalizer"`
	Reflector     RoleModelConfig `yaml:"reflector"`
	ProgressBlurb RoleModelConfig `yaml:"progress_blurb"`
}

// RoleModelConfig is the per-role model selection and sampling parameters.
type RoleModelConfig struct {
	// Provider overrides LLMConfig.DefaultProvider for this role only.
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// BedrockConfig gates the optional AWS Bedrock-hosted backend.
type BedrockConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`

	// ModelID is the Bedrock model identifier (e.g.
	// "anthropic.claude-3-5-sonnet-20241022-v2:0") used when a role's
	// Provider is "bedrock".
	ModelID string `yaml:"model_id"`
}

func validateLLMConfig(cfg *LLMConfig) error {
	valid := map[string]bool{"gemini": true, "anthropic": true, "openai": true, "bedrock": true}

	provider := cfg.DefaultProvider
	if provider == "" {
		provider = "gemini"
	}
	if !valid[provider] {
		return fmt.Errorf("llm.default_provider %q is not a known provider", provider)
	}

	for _, p := range cfg.FallbackChain {
		if !valid[p] {
			return fmt.Errorf("llm.fallback_chain entry %q is not a known provider", p)
		}
	}

	roles := map[string]RoleModelConfig{
		"planner":        cfg.Models.Planner,
		"finalizer":      cfg.Models.Finalizer,
		"reflector":      cfg.Models.Reflector,
		"progress_blurb": cfg.Models.ProgressBlurb,
	}
	for name, role := range roles {
		p := role.Provider
		if p == "" {
			p = provider
		}
		if !valid[p] {
			return fmt.Errorf("llm.models.%s.provider %q is not a known provider", name, p)
		}
		if p == "bedrock" && !cfg.Bedrock.Enabled {
			return fmt.Errorf("llm.models.%s routes to bedrock but llm.bedrock.enabled is false", name)
		}
		if role.Temperature < 0 || role.Temperature > 2 {
			return fmt.Errorf("llm.models.%s.temperature must be in [0,2]", name)
		}
	}

	if cfg.Bedrock.Enabled && cfg.Bedrock.Region == "" {
		return fmt.Errorf("llm.bedrock.region is required when llm.bedrock.enabled is true")
	}

	return nil
}
