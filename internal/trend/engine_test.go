package trend

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/discord-agent/orchestrator/internal/config"
)

func testEngine(t *testing.T, cfg config.TrendFollowingConfig, emit EmitFunc, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithSleep(func(time.Duration) {}),
		WithRandSource(rand.New(rand.NewSource(1))),
	}, opts...)
	return NewEngine(cfg, emit, opts...)
}

func waitForEmit(t *testing.T, ch <-chan Decision) Decision {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emission")
		return Decision{}
	}
}

func recordingEmit() (EmitFunc, chan Decision) {
	ch := make(chan Decision, 8)
	return func(ctx context.Context, d Decision) error {
		ch <- d
		return nil
	}, ch
}

func TestConsiderReaction_FiresAtThreshold(t *testing.T) {
	emit, ch := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{Enabled: true, ReactionThreshold: 3}, emit)

	if !e.ConsiderReaction(context.Background(), "c1", "🔥", 3, false) {
		t.Fatal("expected reaction trend to fire at threshold")
	}
	d := waitForEmit(t, ch)
	if d.Mode != ModeReaction || d.ReactionEmoji != "🔥" {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestConsiderReaction_BelowThresholdDoesNotFire(t *testing.T) {
	emit, _ := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{Enabled: true, ReactionThreshold: 5}, emit)

	if e.ConsiderReaction(context.Background(), "c1", "🔥", 2, false) {
		t.Fatal("expected no fire below threshold")
	}
}

func TestConsiderReaction_BotLoopGuardSuppresses(t *testing.T) {
	emit, _ := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{Enabled: true, ReactionThreshold: 1}, emit)

	if e.ConsiderReaction(context.Background(), "c1", "🔥", 5, true) {
		t.Fatal("expected bot-loop guard to suppress")
	}
}

func TestConsiderReaction_ChannelAllowList(t *testing.T) {
	emit, _ := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{Enabled: true, AllowedChannels: []string{"other"}, ReactionThreshold: 1}, emit)

	if e.ConsiderReaction(context.Background(), "c1", "🔥", 5, false) {
		t.Fatal("expected channel not on allow-list to be rejected")
	}
}

func TestConsiderText_ContentTrendFires(t *testing.T) {
	emit, ch := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{Enabled: true, ContentThreshold: 3}, emit)

	ok := e.ConsiderText(context.Background(), "c1", TextSignals{
		RecentContent: []string{"LOL", "lol", "  lol  "},
	})
	if !ok {
		t.Fatal("expected content trend to fire")
	}
	d := waitForEmit(t, ch)
	if d.Mode != ModeContent {
		t.Errorf("unexpected mode: %+v", d)
	}
}

func TestConsiderText_ContentTrendRequiresIdenticalNormalizedContent(t *testing.T) {
	emit, _ := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{Enabled: true, ContentThreshold: 3}, emit)

	if e.ConsiderText(context.Background(), "c1", TextSignals{
		RecentContent: []string{"lol", "lol", "not the same"},
	}) {
		t.Fatal("expected no fire when recent content diverges")
	}
}

func TestConsiderText_ContentTrendPriorityOverEmoji(t *testing.T) {
	emit, ch := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{Enabled: true, ContentThreshold: 2, EmojiThreshold: 2}, emit,
		WithEmojiReplyGenerator(stubEmojiGen{reply: "🎉"}))

	ok := e.ConsiderText(context.Background(), "c1", TextSignals{
		RecentContent:   []string{"same", "same"},
		RecentEmojiOnly: []string{"🎉🎉", "🎉🎉"},
	})
	if !ok {
		t.Fatal("expected a fire")
	}
	d := waitForEmit(t, ch)
	if d.Mode != ModeContent {
		t.Fatalf("expected content trend to win over emoji trend, got %+v", d)
	}
}

func TestConsiderText_EmojiTrendFiresWhenContentDoesNot(t *testing.T) {
	emit, ch := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{Enabled: true, ContentThreshold: 3, EmojiThreshold: 2}, emit,
		WithEmojiReplyGenerator(stubEmojiGen{reply: "🎉"}))

	ok := e.ConsiderText(context.Background(), "c1", TextSignals{
		RecentContent:   []string{"a", "b"},
		RecentEmojiOnly: []string{"🎉", "🎉"},
	})
	if !ok {
		t.Fatal("expected emoji trend to fire")
	}
	d := waitForEmit(t, ch)
	if d.Mode != ModeEmoji || d.Content != "🎉" {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestConsiderText_EmojiBotParticipatedSuppresses(t *testing.T) {
	emit, _ := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{Enabled: true, EmojiThreshold: 2}, emit,
		WithEmojiReplyGenerator(stubEmojiGen{reply: "🎉"}))

	if e.ConsiderText(context.Background(), "c1", TextSignals{
		RecentEmojiOnly:      []string{"🎉", "🎉"},
		EmojiBotParticipated: true,
	}) {
		t.Fatal("expected bot-loop guard to suppress emoji trend")
	}
}

func TestCooldown_SuppressesSecondFireWithinWindow(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	emit, ch := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{Enabled: true, ReactionThreshold: 1, CooldownSeconds: 60}, emit, WithNow(clock))

	if !e.ConsiderReaction(context.Background(), "c1", "🔥", 1, false) {
		t.Fatal("expected first fire")
	}
	waitForEmit(t, ch)

	if e.ConsiderReaction(context.Background(), "c1", "🔥", 1, false) {
		t.Fatal("expected cooldown to suppress second fire")
	}

	now = now.Add(61 * time.Second)
	if !e.ConsiderReaction(context.Background(), "c1", "🔥", 1, false) {
		t.Fatal("expected fire again once cooldown elapsed")
	}
}

func TestProbabilisticGate_NeverFiresAtZeroProbability(t *testing.T) {
	emit, _ := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{
		Enabled:             true,
		ReactionThreshold:   1,
		EnableProbabilistic: true,
		BaseProbability:     0,
		MaxProbability:      0,
	}, emit)

	if e.ConsiderReaction(context.Background(), "c1", "🔥", 1, false) {
		t.Fatal("expected zero-probability gate to never fire")
	}
}

func TestConsiderReaction_ConcurrentCallsSerializePerChannel(t *testing.T) {
	emit, ch := recordingEmit()
	e := testEngine(t, config.TrendFollowingConfig{Enabled: true, ReactionThreshold: 1, CooldownSeconds: 60}, emit)

	var wg sync.WaitGroup
	fired := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fired <- e.ConsiderReaction(context.Background(), "c1", "🔥", 1, false)
		}()
	}
	wg.Wait()
	close(fired)

	count := 0
	for f := range fired {
		if f {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one winner across concurrent callers, got %d", count)
	}
	waitForEmit(t, ch)
}

type stubEmojiGen struct {
	reply string
	err   error
}

func (s stubEmojiGen) GenerateEmojiReply(ctx context.Context, recent []string) (string, error) {
	return s.reply, s.err
}
