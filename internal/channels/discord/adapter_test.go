package discord

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/internal/convo"
	"github.com/discord-agent/orchestrator/internal/llm"
	"github.com/discord-agent/orchestrator/internal/orchestrator"
	"github.com/discord-agent/orchestrator/internal/progress"
	"github.com/discord-agent/orchestrator/internal/session"
	"github.com/discord-agent/orchestrator/internal/tools"
	"github.com/discord-agent/orchestrator/pkg/models"
)

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for missing token")
	}

	cfg = Config{Token: "t"}
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxReconnectAttempts != 5 || cfg.RateLimit != 5 || cfg.RateBurst != 10 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestFromDiscordConfig(t *testing.T) {
	dc := config.DiscordConfig{
		MaxReconnectAttempts: 3,
		ReconnectBackoff:     time.Minute,
		RateLimit:            2,
		RateBurst:            4,
		GlobalEmojiGuildIDs:  []string{"g1"},
	}
	cfg := FromDiscordConfig(dc, "tok")
	if cfg.Token != "tok" || cfg.MaxReconnectAttempts != 3 || len(cfg.GlobalEmojiGuildIDs) != 1 {
		t.Fatalf("unexpected conversion: %+v", cfg)
	}
}

// fakeSession implements discordSession for tests that never touch the
// network.
type fakeSession struct {
	sentMessages   []string
	replySends     []string
	edits          []string
	reactionUsers  []*discordgo.User
	reactionsAdded []string
	sendErr        error
	editErr        error
}

func (f *fakeSession) Open() error  { return nil }
func (f *fakeSession) Close() error { return nil }

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sentMessages = append(f.sentMessages, content)
	return &discordgo.Message{ID: "placeholder"}, nil
}

func (f *fakeSession) ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.replySends = append(f.replySends, content)
	return &discordgo.Message{ID: "reply-placeholder"}, nil
}

func (f *fakeSession) ChannelMessageEdit(channelID, messageID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, content)
	return &discordgo.Message{ID: messageID}, nil
}

func (f *fakeSession) MessageReactions(channelID, messageID, emojiID string, limit int, beforeID, afterID string, _ ...discordgo.RequestOption) ([]*discordgo.User, error) {
	return f.reactionUsers, nil
}

func (f *fakeSession) MessageReactionAdd(channelID, messageID, emojiID string, _ ...discordgo.RequestOption) error {
	f.reactionsAdded = append(f.reactionsAdded, emojiID)
	return nil
}

func (f *fakeSession) AddHandler(handler interface{}) func() { return func() {} }

func newTestAdapter(t *testing.T, fs *fakeSession) *Adapter {
	t.Helper()
	gw := llm.NewGateway()
	gw.Route(llm.RoleFinalizer, &stubProvider{}, "m", 0, 0)
	behavior := config.AgentBehaviorConfig{MaxToolRounds: 0, TimeoutPerRound: time.Second}
	graph := orchestrator.NewGraph(gw, tools.NewRegistry(), behavior, config.StreamingConfig{}, nil)
	h := session.NewHandler(
		config.PermissionConfig{},
		config.DiscordLimitsConfig{MaxText: 10000, MaxImages: 4, MaxMessages: 20},
		config.DiscordInputMediaConfig{MaxAnimatedFrames: 4},
		graph,
		session.NewMessageCache(config.MessageCacheConfig{}),
		func(session.Request) progress.Observer { return nil },
	)

	a, err := New(Config{Token: "t"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Attach(h)
	a.session = fs
	a.ctx = context.Background()
	return a
}

type stubProvider struct{}

func (stubProvider) Name() string        { return "stub" }
func (stubProvider) SupportsTools() bool { return false }
func (stubProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (<-chan *llm.CompletionChunk, error) {
	ch := make(chan *llm.CompletionChunk, 2)
	ch <- &llm.CompletionChunk{Text: "ok"}
	ch <- &llm.CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func TestBuildRequest_DetectsMention(t *testing.T) {
	a := newTestAdapter(t, &fakeSession{})
	a.botID = "bot1"

	m := &discordgo.Message{
		ID:        "msg1",
		ChannelID: "chan1",
		Content:   "hello <@bot1>",
		Author:    &discordgo.User{ID: "user1"},
		Mentions:  []*discordgo.User{{ID: "bot1"}},
	}

	req, err := a.buildRequest(context.Background(), m)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if !req.Mentioned {
		t.Fatal("expected mentioned to be true")
	}
	if req.Actor.UserID != "user1" || req.Actor.ChannelID != "chan1" {
		t.Fatalf("unexpected actor: %+v", req.Actor)
	}
	if req.UtteranceID != "msg1" {
		t.Fatalf("unexpected utterance id: %s", req.UtteranceID)
	}
}

func TestBuildRequest_DMHasNoGuild(t *testing.T) {
	a := newTestAdapter(t, &fakeSession{})
	m := &discordgo.Message{ID: "m1", ChannelID: "c1", Author: &discordgo.User{ID: "u1"}}

	req, err := a.buildRequest(context.Background(), m)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if !req.Actor.IsDM {
		t.Fatal("expected IsDM true for a message with no guild id")
	}
}

func TestCollectAttachments_SkipsNonImages(t *testing.T) {
	a := newTestAdapter(t, &fakeSession{})
	atts := []*discordgo.MessageAttachment{
		{URL: "https://example.test/doc.pdf", ContentType: "application/pdf"},
	}
	out := a.collectAttachments(context.Background(), atts)
	if len(out) != 0 {
		t.Fatalf("expected pdf attachment to be skipped, got %d", len(out))
	}
}

func TestProcessReaction_CountsFromSessionLookup(t *testing.T) {
	fs := &fakeSession{reactionUsers: []*discordgo.User{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}}}
	a := newTestAdapter(t, fs)

	r := &discordgo.MessageReactionAdd{
		MessageReaction: &discordgo.MessageReaction{
			UserID:    "reactor",
			ChannelID: "chan1",
			MessageID: "msg1",
			Emoji:     discordgo.Emoji{Name: "👍"},
		},
	}

	// processReaction dispatches into the handler synchronously here since
	// it is called directly rather than through the AddHandler goroutine.
	a.processReaction(r)
}

func TestObserverEdit_SendsThenEditsPlaceholder(t *testing.T) {
	fs := &fakeSession{}
	a := newTestAdapter(t, fs)

	obs := a.newObserver("chan1", "")
	obs.OnProgress(&models.ProgressEvent{Message: "thinking..."})
	obs.OnCompletion("final answer", nil)

	if len(fs.sentMessages) != 1 {
		t.Fatalf("expected one placeholder send, got sends=%v edits=%v", fs.sentMessages, fs.edits)
	}
	if len(fs.edits) != 2 || fs.edits[1] != "final answer" {
		t.Fatalf("expected final edit to carry the completion text, got %v", fs.edits)
	}
}

func TestObserverEdit_AppendsSourcesOnCompletion(t *testing.T) {
	fs := &fakeSession{}
	a := newTestAdapter(t, fs)

	obs := a.newObserver("chan1", "")
	obs.OnCompletion("answer", []models.Source{{Title: "Doc", URL: "https://example.test"}})

	if len(fs.edits) != 1 {
		t.Fatalf("expected one edit, got %v", fs.edits)
	}
	if got := fs.edits[0]; got == "answer" {
		t.Fatalf("expected sources to be appended, got %q", got)
	}
}

func TestObserverEdit_FallsBackToSendWhenPlaceholderFailed(t *testing.T) {
	fs := &fakeSession{sendErr: errors.New("boom")}
	a := newTestAdapter(t, fs)

	obs := a.newObserver("chan1", "")
	if obs.messageID != "" {
		t.Fatal("expected no placeholder id when the send failed")
	}

	obs.OnCompletion("final", nil)
	if len(fs.edits) != 0 {
		t.Fatalf("expected no edits without a placeholder, got %v", fs.edits)
	}
}

func TestCapabilities_ReportsDiscordLimits(t *testing.T) {
	a := newTestAdapter(t, &fakeSession{})
	caps := a.Capabilities()
	if !caps.Send || !caps.Edit || !caps.Reply {
		t.Fatalf("expected send/edit/reply support, got %+v", caps)
	}
	if caps.MaxMessageLength != 2000 {
		t.Fatalf("expected discord's 2000-char limit, got %d", caps.MaxMessageLength)
	}
}

func TestSendReply_UsesMessageReference(t *testing.T) {
	fs := &fakeSession{}
	a := newTestAdapter(t, fs)

	if err := a.SendReply(context.Background(), "chan1", "triggering-msg", "hi there"); err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if len(fs.replySends) != 1 || fs.replySends[0] != "hi there" {
		t.Fatalf("expected one threaded reply, got %v", fs.replySends)
	}
}

func TestObserverFactory_ThreadsReplyToTriggeringUtterance(t *testing.T) {
	fs := &fakeSession{}
	a := newTestAdapter(t, fs)

	obs := a.ObserverFactory()(session.Request{
		Request: convo.Request{UtteranceID: "msg1"},
		Actor:   session.Actor{ChannelID: "chan1"},
	})
	obs.OnCompletion("final answer", nil)

	if len(fs.replySends) != 1 {
		t.Fatalf("expected the placeholder to be sent as a reply, got sends=%v replies=%v", fs.sentMessages, fs.replySends)
	}
}

func TestObserverFinalize_SplitsOverlongContentAcrossMessages(t *testing.T) {
	fs := &fakeSession{}
	a := newTestAdapter(t, fs)

	obs := a.newObserver("chan1", "")
	obs.OnCompletion(strings.Repeat("word ", 1000), nil)

	if len(fs.edits) != 1 {
		t.Fatalf("expected exactly one edit for the first chunk, got %v", len(fs.edits))
	}
	if len(fs.sentMessages) < 2 {
		t.Fatalf("expected overflow chunks sent as follow-up messages, got %d sends", len(fs.sentMessages))
	}
}

func TestGuildEmojis_NilStateReturnsNil(t *testing.T) {
	if got := guildEmojis(nil, "g1"); got != nil {
		t.Fatalf("expected nil for nil state, got %v", got)
	}
}

func TestEmojiSource_GlobalMergesConfiguredGuilds(t *testing.T) {
	a := newTestAdapter(t, &fakeSession{})
	a.cfg.GlobalEmojiGuildIDs = []string{"g1", "g2"}
	src := a.EmojiSource()
	if got := src.GlobalEmojis(); got != nil {
		t.Fatalf("expected nil without live state, got %v", got)
	}
}
