// Package config loads and validates the orchestration core's configuration
// surface (spec §4.9 / SPEC_FULL §10). Config files are YAML or JSON5,
// decoded in strict mode (unknown keys are a load error), support
// environment-variable interpolation, and may be split across files via
// $include directives (see loader.go).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the root configuration object.
type Config struct {
	System       SystemConfig       `yaml:"system"`
	Agent        AgentConfig        `yaml:"agent"`
	LLM          LLMConfig          `yaml:"llm"`
	Streaming    StreamingConfig    `yaml:"streaming"`
	Progress     map[string]TransportProgressConfig `yaml:"progress"`
	Reminder     ReminderConfig     `yaml:"reminder"`
	TrendFollowing TrendFollowingConfig `yaml:"trend_following"`
	Discord      DiscordConfig      `yaml:"discord"`
	PromptSystem PromptSystemConfig `yaml:"prompt_system"`
	Logging      LoggingConfig      `yaml:"logging"`
	Session      SessionConfig      `yaml:"session"`
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	// Timezone controls reminder parsing and timestamp display (IANA name,
	// e.g. "America/Los_Angeles"). Default: "UTC".
	Timezone string `yaml:"timezone"`
}

// AgentConfig groups the Orchestrator Graph's behavior and tool knobs.
type AgentConfig struct {
	Behavior AgentBehaviorConfig        `yaml:"behavior"`
	Tools    map[string]AgentToolConfig `yaml:"tools"`
}

// AgentBehaviorConfig configures the Plan/Execute/Reflect/Finalize loop.
type AgentBehaviorConfig struct {
	// MaxToolRounds upper-bounds the Plan->Execute->Reflect loop. 0 disables
	// tool use entirely. Default: 3.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// TimeoutPerRound bounds the wallclock of one Execute round. Default: 30s.
	TimeoutPerRound time.Duration `yaml:"timeout_per_round"`

	// EnableReflection, if false, skips Reflect (treated as is_sufficient=true).
	// Load applies no default: an absent key leaves it false.
	EnableReflection bool `yaml:"enable_reflection"`
}

// AgentToolConfig is the per-tool gating/ordering entry under agent.tools.<name>.
type AgentToolConfig struct {
	Enabled  bool `yaml:"enabled"`
	Priority int  `yaml:"priority"`
}

// StreamingConfig controls Finalize streaming.
type StreamingConfig struct {
	Enabled bool `yaml:"enabled"`

	// MinContentLength is decoded but not read anywhere: Finalize's streaming
	// decision depends only on Enabled and on observers being registered.
	// Default: 0.
	MinContentLength int `yaml:"min_content_length"`
}

// TransportProgressConfig tunes the Progress Bus per transport (keyed by
// transport name, e.g. "discord", under `progress:` in the config file).
type TransportProgressConfig struct {
	UpdateInterval       time.Duration     `yaml:"update_interval"`
	UseEmbeds            bool              `yaml:"use_embeds"`
	CleanupDelay         time.Duration     `yaml:"cleanup_delay"`
	AutoGenerateMessages bool              `yaml:"auto_generate_messages"`
	Messages             map[string]string `yaml:"messages"`
}

// ReminderConfig configures the Event Scheduler (C6).
type ReminderConfig struct {
	Enabled              bool   `yaml:"enabled"`
	PersistenceFile      string `yaml:"persistence_file"`
	MaxRemindersPerUser  int    `yaml:"max_reminders_per_user"`
	CleanupExpiredEvents bool   `yaml:"cleanup_expired_events"`

	// GraceWindow: on restart, events whose fire_at is in the past by more
	// than this are dropped instead of fired immediately. Default: 0 (fire
	// immediately).
	GraceWindow time.Duration `yaml:"grace_window"`

	// MaxRetryAttempts bounds retries of a failing fire callback.
	MaxRetryAttempts int `yaml:"max_retry_attempts"`
}

// TrendFollowingConfig configures the Trend-Following Engine (C7).
type TrendFollowingConfig struct {
	Enabled                bool     `yaml:"enabled"`
	AllowedChannels        []string `yaml:"allowed_channels"`
	CooldownSeconds        int      `yaml:"cooldown_seconds"`
	ReactionThreshold      int      `yaml:"reaction_threshold"`
	ContentThreshold       int      `yaml:"content_threshold"`
	EmojiThreshold         int      `yaml:"emoji_threshold"`
	EnableProbabilistic    bool     `yaml:"enable_probabilistic"`
	BaseProbability        float64  `yaml:"base_probability"`
	ProbabilityBoostFactor float64  `yaml:"probability_boost_factor"`
	MaxProbability         float64  `yaml:"max_probability"`
}

// DiscordConfig shapes input handling and the connection itself for the
// Discord transport (C1 inputs, plus the session glue's transport wiring).
type DiscordConfig struct {
	Limits     DiscordLimitsConfig     `yaml:"limits"`
	InputMedia DiscordInputMediaConfig `yaml:"input_media"`

	// MaxReconnectAttempts bounds the adapter's reconnect loop. Default: 5.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	// ReconnectBackoff caps the exponential backoff between attempts.
	// Default: 60s.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// RateLimit and RateBurst throttle outbound Discord API calls.
	// Defaults: 5 ops/sec, burst 10.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// GlobalEmojiGuildIDs lists guilds whose custom emoji are available from
	// any guild's prompt context, merged under guild-specific emoji of the
	// same name (spec §4.8).
	GlobalEmojiGuildIDs []string `yaml:"global_emoji_guild_ids"`
}

// DiscordLimitsConfig caps conversation collection (spec §4.1).
type DiscordLimitsConfig struct {
	MaxText     int `yaml:"max_text"`
	MaxImages   int `yaml:"max_images"`
	MaxMessages int `yaml:"max_messages"`
}

// DiscordInputMediaConfig controls animated-image sub-sampling.
type DiscordInputMediaConfig struct {
	MaxAnimatedFrames int `yaml:"max_animated_frames"`
}

// PromptSystemConfig groups persona selection settings.
type PromptSystemConfig struct {
	Persona PersonaConfig `yaml:"persona"`
}

// PersonaConfig configures persona selection (spec §4.5 Plan node, step 1).
type PersonaConfig struct {
	Enabled         bool     `yaml:"enabled"`
	RandomSelection bool     `yaml:"random_selection"`
	DefaultPersona  string   `yaml:"default_persona"`
	PersonaDirectory string  `yaml:"persona_directory"`
	Available       []string `yaml:"-"` // not set by Load; cmd/orchestrator scans PersonaDirectory itself
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Load reads, strictly decodes, defaults, and validates the configuration
// file at path. Unknown keys are rejected. $include directives are resolved
// relative to the including file (see loader.go).
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applySystemDefaults(&cfg.System)
	applyAgentDefaults(&cfg.Agent)
	applyLLMDefaults(&cfg.LLM)
	applyStreamingDefaults(&cfg.Streaming)
	applyReminderDefaults(&cfg.Reminder)
	applyTrendFollowingDefaults(&cfg.TrendFollowing)
	applyDiscordDefaults(&cfg.Discord)
	applyPersonaDefaults(&cfg.PromptSystem.Persona)
	applyLoggingDefaults(&cfg.Logging)
	applySessionDefaults(&cfg.Session)
}

func applySystemDefaults(cfg *SystemConfig) {
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
}

func applyAgentDefaults(cfg *AgentConfig) {
	if cfg.Behavior.MaxToolRounds == 0 {
		cfg.Behavior.MaxToolRounds = 3
	}
	if cfg.Behavior.TimeoutPerRound == 0 {
		cfg.Behavior.TimeoutPerRound = 30 * time.Second
	}
	// EnableReflection is not defaulted: the zero value for bool is false,
	// so an explicit "enable_reflection: false" and an absent key are
	// indistinguishable here, and both leave reflection off.
	if cfg.Tools == nil {
		cfg.Tools = map[string]AgentToolConfig{}
	}
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "gemini"
	}
	if cfg.Models.Planner.MaxOutputTokens == 0 {
		cfg.Models.Planner.MaxOutputTokens = 2048
	}
	if cfg.Models.Planner.Temperature == 0 {
		cfg.Models.Planner.Temperature = 0.2
	}
	if cfg.Models.Finalizer.MaxOutputTokens == 0 {
		cfg.Models.Finalizer.MaxOutputTokens = 4096
	}
	if cfg.Models.Finalizer.Temperature == 0 {
		cfg.Models.Finalizer.Temperature = 0.7
	}
	if cfg.Models.Reflector.MaxOutputTokens == 0 {
		cfg.Models.Reflector.MaxOutputTokens = 256
	}
	if cfg.Models.ProgressBlurb.MaxOutputTokens == 0 {
		cfg.Models.ProgressBlurb.MaxOutputTokens = 20
	}
}

func applyStreamingDefaults(cfg *StreamingConfig) {
	// Enabled is not defaulted, so an absent key leaves streaming off;
	// MinContentLength's zero value (0) is already its default.
}

func applyReminderDefaults(cfg *ReminderConfig) {
	if cfg.PersistenceFile == "" {
		cfg.PersistenceFile = "reminders.json"
	}
	if cfg.MaxRemindersPerUser == 0 {
		cfg.MaxRemindersPerUser = 50
	}
	if cfg.MaxRetryAttempts == 0 {
		cfg.MaxRetryAttempts = 5
	}
}

func applyTrendFollowingDefaults(cfg *TrendFollowingConfig) {
	if cfg.CooldownSeconds == 0 {
		cfg.CooldownSeconds = 60
	}
	if cfg.ReactionThreshold == 0 {
		cfg.ReactionThreshold = 3
	}
	if cfg.ContentThreshold == 0 {
		cfg.ContentThreshold = 3
	}
	if cfg.EmojiThreshold == 0 {
		cfg.EmojiThreshold = 3
	}
	if cfg.BaseProbability == 0 {
		cfg.BaseProbability = 0.5
	}
	if cfg.ProbabilityBoostFactor == 0 {
		cfg.ProbabilityBoostFactor = 0.15
	}
	if cfg.MaxProbability == 0 {
		cfg.MaxProbability = 0.95
	}
}

func applyDiscordDefaults(cfg *DiscordConfig) {
	if cfg.Limits.MaxText == 0 {
		cfg.Limits.MaxText = 8000
	}
	if cfg.Limits.MaxImages == 0 {
		cfg.Limits.MaxImages = 4
	}
	if cfg.Limits.MaxMessages == 0 {
		cfg.Limits.MaxMessages = 20
	}
	if cfg.InputMedia.MaxAnimatedFrames == 0 {
		cfg.InputMedia.MaxAnimatedFrames = 4
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 60 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 10
	}
}

func applyPersonaDefaults(cfg *PersonaConfig) {
	if cfg.DefaultPersona == "" {
		cfg.DefaultPersona = "default"
	}
	if cfg.PersonaDirectory == "" {
		cfg.PersonaDirectory = "personas"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

// validateConfig enforces §4.9's "strict" rule: an enabled component whose
// prerequisites are missing is a configuration error, not a runtime one.
func validateConfig(cfg *Config) error {
	if _, err := time.LoadLocation(cfg.System.Timezone); err != nil {
		return fmt.Errorf("system.timezone %q is invalid: %w", cfg.System.Timezone, err)
	}

	if cfg.Agent.Behavior.MaxToolRounds < 0 {
		return fmt.Errorf("agent.behavior.max_tool_rounds must be >= 0")
	}

	if err := validateLLMConfig(&cfg.LLM); err != nil {
		return err
	}

	if cfg.Reminder.Enabled && cfg.Reminder.MaxRemindersPerUser <= 0 {
		return fmt.Errorf("reminder.max_reminders_per_user must be > 0 when reminders are enabled")
	}

	tf := cfg.TrendFollowing
	if tf.Enabled {
		if tf.BaseProbability < 0 || tf.BaseProbability > 1 {
			return fmt.Errorf("trend_following.base_probability must be in [0,1]")
		}
		if tf.MaxProbability < tf.BaseProbability || tf.MaxProbability > 1 {
			return fmt.Errorf("trend_following.max_probability must be in [base_probability,1]")
		}
	}

	return nil
}

// RequiredAPIKeyEnvVar returns the environment variable name whose presence
// is required for the given LLM provider, per spec §6.
func RequiredAPIKeyEnvVar(provider string) string {
	switch strings.ToLower(provider) {
	case "gemini", "google":
		return "GEMINI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "bedrock":
		return "" // AWS credentials resolved via the default SDK chain, not a single env var.
	default:
		return ""
	}
}

func envOrError(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is not set", name)
	}
	return v, nil
}
