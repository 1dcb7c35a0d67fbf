package config

import "time"

// SessionConfig groups Session Glue's (C10) gating and cache knobs.
type SessionConfig struct {
	Permissions  PermissionConfig  `yaml:"permissions"`
	MessageCache MessageCacheConfig `yaml:"message_cache"`
	Tester       TesterConfig      `yaml:"tester"`
}

// PermissionConfig implements spec §4.10 step 1: allow-list/block-list for
// users and roles, channel gating, DM gating, and a maintenance-mode
// short-circuit. An empty allow-list means "no restriction"; a non-empty
// one means only listed ids pass. Block-lists always take precedence.
type PermissionConfig struct {
	AllowedUserIDs    []string `yaml:"allowed_user_ids"`
	BlockedUserIDs    []string `yaml:"blocked_user_ids"`
	AllowedRoleIDs    []string `yaml:"allowed_role_ids"`
	BlockedRoleIDs    []string `yaml:"blocked_role_ids"`
	AllowedChannelIDs []string `yaml:"allowed_channel_ids"`
	BlockedChannelIDs []string `yaml:"blocked_channel_ids"`

	// AllowDMs, if false, rejects any request arriving outside a guild
	// channel. Load applies no default: an absent key leaves it false.
	AllowDMs bool `yaml:"allow_dms"`

	// MaintenanceMode, if true, rejects every request regardless of the
	// lists above.
	MaintenanceMode bool `yaml:"maintenance_mode"`
}

// MessageCacheConfig bounds the per-channel message cache Session Glue
// maintains for the Trend-Following Engine (spec §4.10 step 8).
type MessageCacheConfig struct {
	MaxAge        time.Duration `yaml:"max_age"`
	MaxPerChannel int           `yaml:"max_per_channel"`
}

// TesterConfig configures the interactive tester CLI's JWT-secured session
// tokens (spec §6).
type TesterConfig struct {
	// Secret signs and verifies tester session tokens. Required when the
	// tester CLI entrypoint is used; irrelevant to the chat transport.
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.MessageCache.MaxAge == 0 {
		cfg.MessageCache.MaxAge = 10 * time.Minute
	}
	if cfg.MessageCache.MaxPerChannel == 0 {
		cfg.MessageCache.MaxPerChannel = 50
	}
	if cfg.Tester.Expiry == 0 {
		cfg.Tester.Expiry = time.Hour
	}
	// AllowDMs' zero value (false) is indistinguishable from an explicit
	// `allow_dms: false`, the same documented limitation as
	// AgentBehaviorConfig.EnableReflection; defaulting it true here would
	// make an explicit false impossible to express, so it is left as-is.
}
