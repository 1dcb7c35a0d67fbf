package trend

import "context"

// ConsiderReaction evaluates the reaction-trend mode for one reaction
// emoji on one message. count is the current reaction count; botAdded
// reports whether the bot itself already added this same reaction
// (bot-loop guard). Returns true if a decision was made to follow (the
// actual emission happens asynchronously after the delayed-emission
// window).
func (e *Engine) ConsiderReaction(ctx context.Context, channelID, emoji string, count int, botAdded bool) bool {
	if !e.allowed(channelID) || botAdded {
		return false
	}

	cs := e.channel(channelID)
	if !cs.reactionMu.TryLock() {
		return false // another reaction decision is in flight; abort cleanly rather than queue
	}

	now := e.now()
	if now.Sub(cs.lastReactFire) < e.cooldown() {
		cs.reactionMu.Unlock()
		return false
	}
	if !e.gate(count, e.cfg.ReactionThreshold) {
		cs.reactionMu.Unlock()
		return false
	}
	cs.lastReactFire = now // claim the cooldown window before releasing the lock
	cs.reactionMu.Unlock()

	decision := Decision{ChannelID: channelID, Mode: ModeReaction, ReactionEmoji: emoji}
	go e.delayedEmit(ctx, &cs.reactionMu, &cs.lastReactFire, now, decision)
	return true
}

// TextSignals bundles the content- and emoji-trend observations for the
// most recent messages in a channel, most-recent last.
type TextSignals struct {
	// RecentContent is the normalized content (text or sticker id) of the
	// last N messages, where N is at least content_threshold.
	RecentContent          []string
	ContentBotParticipated bool

	// RecentEmojiOnly is the raw content of the last N messages that were
	// each composed exclusively of emoji, where N is at least
	// emoji_threshold.
	RecentEmojiOnly      []string
	EmojiBotParticipated bool
}

// ConsiderText evaluates content-trend and, only if content-trend does
// not fire, emoji-trend (spec §4.7: content strictly outranks emoji).
// Returns true if a decision was made to follow.
func (e *Engine) ConsiderText(ctx context.Context, channelID string, signals TextSignals) bool {
	if !e.allowed(channelID) {
		return false
	}

	cs := e.channel(channelID)
	if !cs.textMu.TryLock() {
		return false
	}

	now := e.now()
	if now.Sub(cs.lastTextFire) < e.cooldown() {
		cs.textMu.Unlock()
		return false
	}

	decision, ok := e.decideContent(channelID, signals)
	if !ok {
		decision, ok = e.decideEmoji(ctx, channelID, signals)
	}
	if !ok {
		cs.textMu.Unlock()
		return false
	}
	cs.lastTextFire = now // claim the cooldown window before releasing the lock
	cs.textMu.Unlock()

	go e.delayedEmit(ctx, &cs.textMu, &cs.lastTextFire, now, decision)
	return true
}

func (e *Engine) decideContent(channelID string, signals TextSignals) (Decision, bool) {
	if signals.ContentBotParticipated {
		return Decision{}, false
	}
	threshold := e.cfg.ContentThreshold
	if threshold <= 0 || len(signals.RecentContent) < threshold {
		return Decision{}, false
	}
	window := signals.RecentContent[len(signals.RecentContent)-threshold:]
	first := normalizeText(window[0])
	if first == "" {
		return Decision{}, false
	}
	for _, c := range window[1:] {
		if normalizeText(c) != first {
			return Decision{}, false
		}
	}
	if !e.gate(len(signals.RecentContent), threshold) {
		return Decision{}, false
	}
	return Decision{ChannelID: channelID, Mode: ModeContent, Content: window[len(window)-1]}, true
}

func (e *Engine) decideEmoji(ctx context.Context, channelID string, signals TextSignals) (Decision, bool) {
	if signals.EmojiBotParticipated || e.emojiGen == nil {
		return Decision{}, false
	}
	threshold := e.cfg.EmojiThreshold
	if threshold <= 0 || len(signals.RecentEmojiOnly) < threshold {
		return Decision{}, false
	}
	if !e.gate(len(signals.RecentEmojiOnly), threshold) {
		return Decision{}, false
	}
	reply, err := e.emojiGen.GenerateEmojiReply(ctx, signals.RecentEmojiOnly)
	if err != nil || reply == "" {
		return Decision{}, false
	}
	return Decision{ChannelID: channelID, Mode: ModeEmoji, Content: reply}, true
}
