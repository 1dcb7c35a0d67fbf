package session

import (
	"sync"
	"time"

	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/internal/trend"
)

// cachedMessage is one entry in a channel's recent-message window, enough
// to derive trend.TextSignals without re-fetching from the transport.
type cachedMessage struct {
	content           string
	botParticipated   bool
	emojiOnly         string // non-empty when content is entirely emoji/emoji-like
	emojiParticipated bool
	at                time.Time
}

// MessageCache is Session Glue's per-channel recent-message window (spec
// §4.10 step 8), feeding the Trend-Following Engine's content/emoji signals.
// Eviction is by age or size, whichever triggers first, mirroring the
// trend engine's own per-channel-mutex-map idiom.
type MessageCache struct {
	mu        sync.Mutex
	byChannel map[string][]cachedMessage
	maxAge    time.Duration
	maxSize   int
	now       func() time.Time
}

// NewMessageCache builds a cache from config, applying SPEC_FULL defaults
// if cfg is zero-valued.
func NewMessageCache(cfg config.MessageCacheConfig) *MessageCache {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	maxSize := cfg.MaxPerChannel
	if maxSize <= 0 {
		maxSize = 50
	}
	return &MessageCache{
		byChannel: make(map[string][]cachedMessage),
		maxAge:    maxAge,
		maxSize:   maxSize,
		now:       time.Now,
	}
}

// Add records one message's trend-relevant signals for channelID.
func (c *MessageCache) Add(channelID, content string, botParticipated bool, emojiOnly string, emojiParticipated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := append(c.byChannel[channelID], cachedMessage{
		content:           content,
		botParticipated:   botParticipated,
		emojiOnly:         emojiOnly,
		emojiParticipated: emojiParticipated,
		at:                c.now(),
	})
	c.byChannel[channelID] = c.evict(entries)
}

func (c *MessageCache) evict(entries []cachedMessage) []cachedMessage {
	cutoff := c.now().Add(-c.maxAge)
	kept := entries[:0:0]
	for _, e := range entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) > c.maxSize {
		kept = kept[len(kept)-c.maxSize:]
	}
	return kept
}

// Signals builds the trend.TextSignals the Trend-Following Engine needs to
// evaluate channelID's recent activity.
func (c *MessageCache) Signals(channelID string) trend.TextSignals {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.evict(c.byChannel[channelID])
	c.byChannel[channelID] = entries

	var signals trend.TextSignals
	for _, e := range entries {
		signals.RecentContent = append(signals.RecentContent, e.content)
		if e.botParticipated {
			signals.ContentBotParticipated = true
		}
		if e.emojiOnly != "" {
			signals.RecentEmojiOnly = append(signals.RecentEmojiOnly, e.emojiOnly)
		}
		if e.emojiParticipated {
			signals.EmojiBotParticipated = true
		}
	}
	return signals
}
