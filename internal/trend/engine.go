// Package trend implements the Trend-Following Engine: a reactive loop,
// independent of the Orchestrator Graph, that notices repetition in a
// channel (reactions piling up, identical messages, emoji-only runs) and
// occasionally joins in. It never calls into the graph; the caller
// supplies an EmitFunc that performs the actual send/react.
package trend

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/discord-agent/orchestrator/internal/config"
)

// Mode identifies which of the three trend surfaces produced a Decision.
type Mode string

const (
	ModeReaction Mode = "reaction"
	ModeContent  Mode = "content"
	ModeEmoji    Mode = "emoji"
)

// Decision is what the engine wants to do, handed to EmitFunc after the
// delayed-emission window and re-check.
type Decision struct {
	ChannelID     string
	Mode          Mode
	ReactionEmoji string // set when Mode == ModeReaction
	Content       string // set when Mode == ModeContent or ModeEmoji
}

// EmitFunc performs the actual send (a message or a reaction add). The
// engine calls it after the delayed-emission window, having re-verified
// the decision still holds.
type EmitFunc func(ctx context.Context, decision Decision) error

// EmojiReplyGenerator produces a new emoji-only reply for the emoji-trend
// mode, given the recent run of emoji-only messages. Typically backed by
// an LLM role.
type EmojiReplyGenerator interface {
	GenerateEmojiReply(ctx context.Context, recent []string) (string, error)
}

type channelState struct {
	textMu        sync.Mutex
	reactionMu    sync.Mutex
	lastTextFire  time.Time
	lastReactFire time.Time
}

// Engine tracks per-channel cooldowns and decides, on each relevant chat
// event, whether to follow a trend. All methods are safe for concurrent
// use across channels; within one channel, decisions are serialized.
type Engine struct {
	cfg      config.TrendFollowingConfig
	emit     EmitFunc
	emojiGen EmojiReplyGenerator
	now      func() time.Time
	sleep    func(time.Duration)

	randMu sync.Mutex
	rand   *rand.Rand

	mu       sync.Mutex
	channels map[string]*channelState
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithEmojiReplyGenerator installs the emoji-trend reply generator. If
// unset, the emoji-trend mode never fires.
func WithEmojiReplyGenerator(gen EmojiReplyGenerator) Option {
	return func(e *Engine) { e.emojiGen = gen }
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSleep overrides the delayed-emission sleep function, for tests that
// want it synchronous or instrumented.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithRandSource overrides the random source backing both the delayed
// emission jitter and the probabilistic gate, for deterministic tests.
func WithRandSource(src *rand.Rand) Option {
	return func(e *Engine) {
		if src != nil {
			e.rand = src
		}
	}
}

// NewEngine constructs an Engine from config. emit is required; emit is
// never called synchronously from Consider* — always from a background
// goroutine after the delayed-emission window.
func NewEngine(cfg config.TrendFollowingConfig, emit EmitFunc, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		emit:     emit,
		now:      time.Now,
		sleep:    time.Sleep,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		channels: make(map[string]*channelState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) channel(id string) *channelState {
	e.mu.Lock()
	defer e.mu.Unlock()
	cs, ok := e.channels[id]
	if !ok {
		cs = &channelState{}
		e.channels[id] = cs
	}
	return cs
}

func (e *Engine) allowed(channelID string) bool {
	if !e.cfg.Enabled {
		return false
	}
	if len(e.cfg.AllowedChannels) == 0 {
		return true
	}
	for _, id := range e.cfg.AllowedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

func (e *Engine) cooldown() time.Duration {
	if e.cfg.CooldownSeconds <= 0 {
		return 0
	}
	return time.Duration(e.cfg.CooldownSeconds) * time.Second
}

// gate applies the probabilistic roll (spec §4.7): p = min(max_probability,
// base_probability + max(0, count-threshold) * boost_factor). With
// enable_probabilistic=false it is a hard threshold, already satisfied by
// the caller's count >= threshold check.
func (e *Engine) gate(count, threshold int) bool {
	if count < threshold {
		return false
	}
	if !e.cfg.EnableProbabilistic {
		return true
	}
	p := e.cfg.BaseProbability + float64(max0(count-threshold))*e.cfg.ProbabilityBoostFactor
	if e.cfg.MaxProbability > 0 && p > e.cfg.MaxProbability {
		p = e.cfg.MaxProbability
	}
	e.randMu.Lock()
	roll := e.rand.Float64()
	e.randMu.Unlock()
	return roll < p
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// delayedEmit sleeps a random 0.5-3s, then re-checks that no newer
// decision has claimed the channel's cooldown in the meantime before
// calling EmitFunc, preventing a double-send when two decisions raced.
// decisionTime is the cooldown-start value the deciding Consider* call
// already wrote to *lastFire before spawning this goroutine.
func (e *Engine) delayedEmit(ctx context.Context, mu *sync.Mutex, lastFire *time.Time, decisionTime time.Time, decision Decision) {
	e.randMu.Lock()
	delay := 500*time.Millisecond + time.Duration(e.rand.Float64()*float64(2500*time.Millisecond))
	e.randMu.Unlock()
	e.sleep(delay)

	mu.Lock()
	defer mu.Unlock()

	if !lastFire.Equal(decisionTime) {
		return // a newer decision has since claimed this cooldown window
	}
	if err := e.emit(ctx, decision); err != nil {
		*lastFire = time.Time{} // emission failed; release the cooldown claim
	}
}

// normalizeText lower-cases and collapses whitespace for content-trend
// identity comparison.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
