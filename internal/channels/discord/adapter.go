// Package discord is the Discord transport: it turns discordgo events into
// session.Handler invocations, supplies the emoji.Source the Emoji/Media
// Context resolves against, and renders progress/streaming/completion
// events back as message edits (spec §4.8, §4.10).
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-agent/orchestrator/internal/channels"
	"github.com/discord-agent/orchestrator/internal/channels/utils"
	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/internal/convo"
	"github.com/discord-agent/orchestrator/internal/emoji"
	"github.com/discord-agent/orchestrator/internal/progress"
	"github.com/discord-agent/orchestrator/internal/session"
	"github.com/discord-agent/orchestrator/pkg/models"
)

// discordSession is the subset of *discordgo.Session the adapter drives,
// narrow enough to fake in tests.
type discordSession interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactions(channelID, messageID, emojiID string, limit int, beforeID, afterID string, options ...discordgo.RequestOption) ([]*discordgo.User, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

// Config configures the adapter's connection, throttling, and emoji
// resolution.
type Config struct {
	// Token is the bot token from the Discord Developer Portal (required).
	// Kept out of the YAML config surface; spec §6 sources it from the
	// environment.
	Token string

	MaxReconnectAttempts int
	ReconnectBackoff     time.Duration
	RateLimit            float64
	RateBurst            int

	// GlobalEmojiGuildIDs lists guilds whose custom emoji are available from
	// any guild's prompt context (spec §4.8).
	GlobalEmojiGuildIDs []string

	Logger *slog.Logger
}

// FromDiscordConfig builds an adapter Config from the loaded configuration
// plus a bot token obtained separately (e.g. os.Getenv("DISCORD_BOT_TOKEN")).
func FromDiscordConfig(cfg config.DiscordConfig, token string) Config {
	return Config{
		Token:                token,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectBackoff:     cfg.ReconnectBackoff,
		RateLimit:            cfg.RateLimit,
		RateBurst:            cfg.RateBurst,
		GlobalEmojiGuildIDs:  cfg.GlobalEmojiGuildIDs,
	}
}

func (c *Config) validate() error {
	if c.Token == "" {
		return channels.ErrConfig("discord bot token is required", nil)
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectBackoff == 0 {
		c.ReconnectBackoff = 60 * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = 5
	}
	if c.RateBurst == 0 {
		c.RateBurst = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter owns one discordgo session, dispatches inbound events into a
// session.Handler, and doubles as the emoji.Source the Orchestrator's
// Finalize node and the Emoji/Media Context consult.
type Adapter struct {
	cfg     Config
	session discordSession
	state   *discordgo.State // nil in tests that fake discordSession
	botID   string

	handler *session.Handler
	logger  *slog.Logger

	rateLimiter *channels.RateLimiter
	health      *channels.BaseHealthAdapter
	reconnector *channels.Reconnector
	chunker     *channels.MessageChunker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Adapter. Call Attach to wire in the session.Handler before
// Start — EmojiSource and ObserverFactory may be used beforehand, since the
// Graph they feed typically must exist before the Handler that Attach needs.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger.With("adapter", "discord")
	health := channels.NewBaseHealthAdapter("discord", logger)
	return &Adapter{
		cfg:         cfg,
		logger:      logger,
		rateLimiter: channels.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		health:      health,
		chunker:     channels.ChunkerFromCapabilities(discordCapabilities),
		reconnector: &channels.Reconnector{
			Config: channels.ReconnectConfig{
				MaxAttempts:  cfg.MaxReconnectAttempts,
				InitialDelay: 2 * time.Second,
				MaxDelay:     cfg.ReconnectBackoff,
				Factor:       2,
				Jitter:       true,
			},
			Logger: logger,
			Health: health,
		},
	}, nil
}

// Attach wires the session.Handler that inbound events are dispatched to.
// Must be called before Start.
func (a *Adapter) Attach(handler *session.Handler) {
	a.handler = handler
}

// Start opens the Discord connection and registers event handlers.
func (a *Adapter) Start(ctx context.Context) error {
	if a.handler == nil {
		return channels.ErrConfig("discord adapter started without a handler attached", nil)
	}
	a.ctx, a.cancel = context.WithCancel(ctx)

	if a.session == nil {
		dg, err := discordgo.New("Bot " + a.cfg.Token)
		if err != nil {
			return channels.ErrAuthentication("failed to create discord session", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages |
			discordgo.IntentsGuildMessageReactions | discordgo.IntentsMessageContent
		a.session = dg
		a.state = dg.State
	}

	a.session.AddHandler(a.handleReady)
	a.session.AddHandler(a.handleMessageCreate)
	a.session.AddHandler(a.handleReactionAdd)

	if err := a.reconnector.Run(a.ctx, func(ctx context.Context) error {
		return a.session.Open()
	}); err != nil {
		return channels.ErrConnection("failed to connect to discord", err)
	}

	a.health.SetStatus(true, "")
	a.health.RecordConnectionOpened()
	a.logger.Info("discord adapter started")
	return nil
}

// Stop closes the Discord connection, waiting for in-flight handlers to
// finish or ctx to expire.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("stop timeout, forcing shutdown")
	}

	if err := a.session.Close(); err != nil {
		a.health.SetStatus(false, err.Error())
		return channels.ErrConnection("failed to close discord session", err)
	}
	a.health.SetStatus(false, "")
	a.health.RecordConnectionClosed()
	return nil
}

// Health reports the adapter's connection status for the supervising
// process's readiness checks.
func (a *Adapter) Health(ctx context.Context) channels.HealthStatus {
	return a.health.HealthCheck(ctx)
}

// SendMessage posts content to channelID, rate-limited the same way the
// progress observer's edits are. Used by the Event Scheduler's FireFunc and
// the Trend-Following Engine's EmitFunc to deliver back into Discord.
// Content longer than Discord's 2000-character limit is split across
// multiple messages by the adapter's chunker.
func (a *Adapter) SendMessage(ctx context.Context, channelID, content string) error {
	chunks := a.chunker.Chunk(content)
	if len(chunks) == 0 {
		chunks = []string{content}
	}
	for _, chunk := range chunks {
		if err := a.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := a.session.ChannelMessageSend(channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// AddReaction reacts to messageID in channelID with emojiID, rate-limited.
func (a *Adapter) AddReaction(ctx context.Context, channelID, messageID, emojiID string) error {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	return a.session.MessageReactionAdd(channelID, messageID, emojiID)
}

// discordCapabilities describes what this transport supports, used to size
// the outbound chunker to Discord's 2000-character message limit.
var discordCapabilities = channels.Capabilities{
	Send:             true,
	Edit:             true,
	React:            true,
	Reply:            true,
	Typing:           true,
	RichText:         true,
	MaxMessageLength: 2000,
}

// Capabilities reports the features this adapter supports, satisfying
// channels.MessageActionsAdapter.
func (a *Adapter) Capabilities() channels.Capabilities {
	return discordCapabilities
}

// SendReply sends content as a threaded reply to replyToID, satisfying
// channels.ReplyableAdapter. Overlong content is split across multiple
// messages by the adapter's chunker; only the first is sent as a reply.
func (a *Adapter) SendReply(ctx context.Context, channelID, replyToID, content string) error {
	_, err := a.sendReply(ctx, channelID, replyToID, content)
	return err
}

func (a *Adapter) sendReply(ctx context.Context, channelID, replyToID, content string) (*discordgo.Message, error) {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	chunks := a.chunker.Chunk(content)
	if len(chunks) == 0 {
		chunks = []string{content}
	}
	msg, err := a.session.ChannelMessageSendReply(channelID, chunks[0], &discordgo.MessageReference{
		MessageID: replyToID,
		ChannelID: channelID,
	})
	if err != nil {
		return nil, err
	}
	for _, extra := range chunks[1:] {
		if err := a.rateLimiter.Wait(ctx); err != nil {
			return msg, nil
		}
		if _, err := a.session.ChannelMessageSend(channelID, extra); err != nil {
			a.logger.Warn("failed to send overflow chunk", "error", err, "channel_id", channelID)
			break
		}
	}
	return msg, nil
}

func (a *Adapter) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	a.botID = r.User.ID
	a.health.SetStatus(true, "")
	a.logger.Info("discord connection ready", "user", r.User.Username, "guilds", len(r.Guilds))
}

func (a *Adapter) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	a.health.RecordMessageReceived()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.processMessage(m.Message)
	}()
}

func (a *Adapter) processMessage(m *discordgo.Message) {
	ctx := a.runContext()

	req, err := a.buildRequest(ctx, m)
	if err != nil {
		a.logger.Error("failed to build session request", "error", err, "channel_id", m.ChannelID)
		return
	}

	if err := a.handler.Handle(ctx, req); err != nil {
		a.logger.Warn("session handle failed", "error", err, "channel_id", m.ChannelID)
	}
}

func (a *Adapter) runContext() context.Context {
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

func (a *Adapter) buildRequest(ctx context.Context, m *discordgo.Message) (session.Request, error) {
	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == a.botID {
			mentioned = true
			break
		}
	}

	var roleIDs []string
	if m.Member != nil {
		roleIDs = m.Member.Roles
	}

	return session.Request{
		Request: convo.Request{
			UtteranceID:   m.ID,
			UtteranceText: m.Content,
			Attachments:   a.collectAttachments(ctx, m.Attachments),
		},
		Actor: session.Actor{
			UserID:    m.Author.ID,
			RoleIDs:   roleIDs,
			ChannelID: m.ChannelID,
			IsDM:      m.GuildID == "",
		},
		Mentioned: mentioned,
	}, nil
}

func (a *Adapter) collectAttachments(ctx context.Context, atts []*discordgo.MessageAttachment) []convo.Attachment {
	out := make([]convo.Attachment, 0, len(atts))
	for _, att := range atts {
		if !strings.HasPrefix(att.ContentType, "image/") {
			continue
		}
		data, err := utils.DownloadURL(ctx, att.URL, utils.DownloadOptions{MaxSize: 20 << 20})
		if err != nil {
			a.logger.Warn("failed to download attachment", "error", err, "url", att.URL)
			continue
		}
		out = append(out, convo.Attachment{
			MimeType: att.ContentType,
			Data:     data,
			Animated: att.ContentType == "image/gif",
		})
	}
	return out
}

func (a *Adapter) handleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.UserID == a.botID {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.processReaction(r)
	}()
}

func (a *Adapter) processReaction(r *discordgo.MessageReactionAdd) {
	ctx := a.runContext()

	emojiID := r.Emoji.APIName()
	count := 1
	if users, err := a.session.MessageReactions(r.ChannelID, r.MessageID, emojiID, 100, "", ""); err == nil {
		count = len(users)
	}

	req := session.Request{
		Actor: session.Actor{
			UserID:    r.UserID,
			ChannelID: r.ChannelID,
			IsDM:      r.GuildID == "",
		},
		Reaction: &session.ReactionEvent{
			Emoji:    emojiID,
			Count:    count,
			BotAdded: false,
		},
	}

	if err := a.handler.Handle(ctx, req); err != nil {
		a.logger.Warn("session handle failed for reaction", "error", err, "channel_id", r.ChannelID)
	}
}

// ObserverFactory returns the transport's session.ObserverFactory: a fresh
// placeholder message per invocation, edited as the graph makes progress.
func (a *Adapter) ObserverFactory() session.ObserverFactory {
	return func(req session.Request) progress.Observer {
		return a.newObserver(req.Actor.ChannelID, req.Request.UtteranceID)
	}
}

// newObserver sends the placeholder message as a threaded reply to the
// triggering utterance when one is known, via SendReply/ReplyableAdapter,
// falling back to a plain send otherwise (e.g. reaction-triggered turns).
func (a *Adapter) newObserver(channelID, replyToID string) *observer {
	ctx := a.runContext()
	o := &observer{adapter: a, channelID: channelID, replyToID: replyToID}

	if replyToID != "" {
		msg, err := a.sendReply(ctx, channelID, replyToID, "...")
		if err != nil {
			a.logger.Warn("failed to send placeholder reply", "error", err, "channel_id", channelID)
			return o
		}
		o.messageID = msg.ID
		return o
	}

	if err := a.rateLimiter.Wait(ctx); err != nil {
		return o
	}
	msg, err := a.session.ChannelMessageSend(channelID, "...")
	if err != nil {
		a.logger.Warn("failed to send placeholder message", "error", err, "channel_id", channelID)
		return o
	}
	o.messageID = msg.ID
	return o
}

// emojiSource adapts an Adapter's live discordgo state into an emoji.Source,
// keeping internal/emoji decoupled from discordgo (spec §4.8). It holds a
// reference to the Adapter rather than a state snapshot, since callers
// typically need an emoji.Source to build the Graph before Start has opened
// the connection and populated Adapter.state.
type emojiSource struct {
	adapter *Adapter
}

// EmojiSource returns the emoji.Source backed by this adapter's live guild
// state, wired into orchestrator.WithEmojiContext via emoji.NewContext. Safe
// to call before Start; guild state resolves lazily once connected.
func (a *Adapter) EmojiSource() emoji.Source {
	return &emojiSource{adapter: a}
}

func (s *emojiSource) GlobalEmojis() []emoji.Emoji {
	var out []emoji.Emoji
	for _, guildID := range s.adapter.cfg.GlobalEmojiGuildIDs {
		out = append(out, guildEmojis(s.adapter.state, guildID)...)
	}
	return out
}

func (s *emojiSource) GuildEmojis(guildID string) []emoji.Emoji {
	return guildEmojis(s.adapter.state, guildID)
}

func guildEmojis(state *discordgo.State, guildID string) []emoji.Emoji {
	if state == nil || guildID == "" {
		return nil
	}
	g, err := state.Guild(guildID)
	if err != nil || g == nil {
		return nil
	}
	out := make([]emoji.Emoji, 0, len(g.Emojis))
	for _, e := range g.Emojis {
		out = append(out, emoji.Emoji{ID: e.ID, Name: e.Name, Animated: e.Animated})
	}
	return out
}

// observer implements progress.Observer by editing a single placeholder
// message as the graph reports progress and, finally, its answer.
type observer struct {
	adapter   *Adapter
	channelID string
	replyToID string
	messageID string

	mu  sync.Mutex
	buf strings.Builder
}

// edit updates the placeholder message in place with the content seen so
// far. It is used for in-progress ticks, so it shows at most one chunk's
// worth of content (clipped at a natural boundary by the adapter's
// chunker) rather than overflowing into follow-up messages; the full,
// properly chunked text is only sent once finalize is called.
func (o *observer) edit(content string) {
	if content == "" {
		return
	}
	a := o.adapter
	if chunks := a.chunker.Chunk(content); len(chunks) > 0 {
		content = chunks[0]
	}
	if o.messageID == "" {
		o.send(content)
		return
	}
	if err := a.rateLimiter.Wait(a.runContext()); err != nil {
		return
	}
	if _, err := a.session.ChannelMessageEdit(o.channelID, o.messageID, content); err != nil {
		a.logger.Debug("failed to edit message", "error", err, "channel_id", o.channelID, "message_id", o.messageID)
	}
}

// finalize delivers the complete content, splitting it across as many
// messages as the chunker requires: the first replaces the placeholder via
// edit, the rest are sent as follow-up messages.
func (o *observer) finalize(content string) {
	if content == "" {
		return
	}
	a := o.adapter
	chunks := a.chunker.Chunk(content)
	if len(chunks) == 0 {
		chunks = []string{content}
	}

	if o.messageID == "" {
		o.send(chunks[0])
	} else if err := a.rateLimiter.Wait(a.runContext()); err != nil {
		return
	} else if _, err := a.session.ChannelMessageEdit(o.channelID, o.messageID, chunks[0]); err != nil {
		a.logger.Debug("failed to edit message", "error", err, "channel_id", o.channelID, "message_id", o.messageID)
	}

	for _, extra := range chunks[1:] {
		if err := a.rateLimiter.Wait(a.runContext()); err != nil {
			return
		}
		if _, err := a.session.ChannelMessageSend(o.channelID, extra); err != nil {
			a.logger.Warn("failed to send overflow chunk", "error", err, "channel_id", o.channelID)
			return
		}
	}
}

func (o *observer) send(content string) {
	a := o.adapter
	if o.replyToID != "" {
		msg, err := a.sendReply(a.runContext(), o.channelID, o.replyToID, content)
		if err != nil {
			a.logger.Warn("failed to send reply", "error", err, "channel_id", o.channelID)
			return
		}
		o.messageID = msg.ID
		return
	}
	if err := a.rateLimiter.Wait(a.runContext()); err != nil {
		return
	}
	msg, err := a.session.ChannelMessageSend(o.channelID, content)
	if err != nil {
		a.logger.Warn("failed to send message", "error", err, "channel_id", o.channelID)
		return
	}
	o.messageID = msg.ID
}

func (o *observer) OnProgress(ev *models.ProgressEvent) {
	if ev == nil || ev.Message == "" {
		return
	}
	o.edit(ev.Message)
}

func (o *observer) OnStreamingChunk(chunk *models.StreamingChunk) {
	if chunk == nil || chunk.IsFinal {
		return
	}
	o.mu.Lock()
	o.buf.WriteString(chunk.Content)
	content := o.buf.String()
	o.mu.Unlock()
	o.edit(content)
}

func (o *observer) OnStreamingComplete() {}

func (o *observer) OnCompletion(finalText string, sources []models.Source) {
	content := finalText
	if len(sources) > 0 {
		var b strings.Builder
		b.WriteString(content)
		b.WriteString("\n\nSources:\n")
		for _, s := range sources {
			fmt.Fprintf(&b, "- [%s](%s)\n", s.Title, s.URL)
		}
		content = b.String()
	}
	o.finalize(content)
}

func (o *observer) OnError(err error) {
	o.finalize("Something went wrong: " + err.Error())
}
