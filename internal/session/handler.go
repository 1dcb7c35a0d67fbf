package session

import (
	"context"
	"errors"
	"log"

	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/internal/convo"
	"github.com/discord-agent/orchestrator/internal/orchestrator"
	"github.com/discord-agent/orchestrator/internal/progress"
	"github.com/discord-agent/orchestrator/internal/scheduler"
	"github.com/discord-agent/orchestrator/internal/tools/reminder"
	"github.com/discord-agent/orchestrator/internal/trend"
	"github.com/discord-agent/orchestrator/pkg/models"
)

// ReactionEvent describes an incoming reaction-add, offered to the
// Trend-Following Engine ahead of any graph invocation.
type ReactionEvent struct {
	Emoji    string
	Count    int
	BotAdded bool
}

// Request is one incoming event for Session Glue to process: either a
// direct invocation (the bot was addressed) or an ambient channel message/
// reaction that only the Trend-Following Engine may act on.
type Request struct {
	convo.Request

	Actor Actor

	// Mentioned is true when the bot was directly addressed (a mention or
	// a reply to it); the trend-following offer (step 2) only applies to
	// ambient traffic, so Mentioned requests skip straight to Collect.
	Mentioned bool

	// Reaction is set when this event originated from a reaction add
	// rather than a message; Collect is never invoked for reaction events.
	Reaction *ReactionEvent

	// GlobalMetadata is forwarded into GraphState as opaque prompt context
	// (e.g. a channel/user summary the caller has already assembled).
	GlobalMetadata string
}

// ObserverFactory builds the transport-appropriate progress.Observer for
// one invocation (spec §4.10 step 4); the core never knows the observer's
// concrete (e.g. Discord embed) shape.
type ObserverFactory func(req Request) progress.Observer

// Handler wires the Conversation Model, Orchestrator Graph, Progress Bus,
// Event Scheduler, and Trend-Following Engine into the 8-step sequence of
// spec §4.10, grounded on the overall build-state/run/persist-or-deliver
// shape of the teacher's AgenticLoop.Run request-entry sequence.
type Handler struct {
	permissions config.PermissionConfig
	limits      config.DiscordLimitsConfig
	media       config.DiscordInputMediaConfig

	graph     *orchestrator.Graph
	scheduler *scheduler.Scheduler
	trend     *trend.Engine
	personas  orchestrator.PersonaSelector
	cache     *MessageCache
	observers ObserverFactory
	logger    *log.Logger
}

// Option configures optional Handler collaborators.
type Option func(*Handler)

// WithScheduler wires reminder hand-off (step 6).
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(h *Handler) { h.scheduler = s }
}

// WithTrendEngine wires the trend-following offer (step 2).
func WithTrendEngine(e *trend.Engine) Option {
	return func(h *Handler) { h.trend = e }
}

// WithPersonaSelector installs the persona chosen before the first Plan
// entry.
func WithPersonaSelector(s orchestrator.PersonaSelector) Option {
	return func(h *Handler) { h.personas = s }
}

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler builds a Handler. observers must not be nil.
func NewHandler(
	permissions config.PermissionConfig,
	limits config.DiscordLimitsConfig,
	media config.DiscordInputMediaConfig,
	graph *orchestrator.Graph,
	cache *MessageCache,
	observers ObserverFactory,
	opts ...Option,
) *Handler {
	h := &Handler{
		permissions: permissions,
		limits:      limits,
		media:       media,
		graph:       graph,
		cache:       cache,
		observers:   observers,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle runs the full spec §4.10 sequence for one request.
func (h *Handler) Handle(ctx context.Context, req Request) error {
	if err := CheckPermission(h.permissions, req.Actor); err != nil {
		h.logger.Printf("session: denied channel=%s user=%s reason=%v", req.Actor.ChannelID, req.Actor.UserID, err)
		return err
	}

	if !req.Mentioned && h.trend != nil {
		if h.offerToTrend(ctx, req) {
			return nil
		}
		if req.Reaction != nil {
			return nil // reaction events never reach the graph directly
		}
	} else if req.Reaction != nil {
		return nil
	}

	messages, err := convo.Collect(req.Request, h.limits, h.media)
	if err != nil {
		h.logger.Printf("session: collect failed channel=%s taxonomy=%s err=%v", req.Actor.ChannelID, models.ErrorKindInputTooLarge, err)
		return err
	}

	h.recordForTrend(req, messages)

	state := orchestrator.NewGraphState(messages, req.GlobalMetadata)
	if h.personas != nil {
		state.CurrentPersona = h.personas.Select()
	}

	bus := progress.NewBus()
	defer bus.Close()
	bus.Register(h.observers(req), nil)

	ctx = reminder.WithContext(ctx, reminder.Context{
		ChannelRef: req.Actor.ChannelID,
		UserRef:    req.Actor.UserID,
	})

	if err := h.graph.Run(ctx, bus, state); err != nil {
		h.logger.Printf("session: run failed channel=%s taxonomy=%s err=%v", req.Actor.ChannelID, taxonomyCode(err), err)
		return err
	}

	for _, reminder := range state.Reminders {
		if h.scheduler == nil {
			continue
		}
		if _, err := h.scheduler.Schedule(reminder); err != nil {
			h.logger.Printf("session: reminder schedule failed channel=%s err=%v", req.Actor.ChannelID, err)
		}
	}

	return nil
}

// offerToTrend implements step 2: the Trend-Following Engine gets first
// look at ambient activity, and a claim short-circuits the rest of the
// pipeline.
func (h *Handler) offerToTrend(ctx context.Context, req Request) bool {
	if req.Reaction != nil {
		return h.trend.ConsiderReaction(ctx, req.Actor.ChannelID, req.Reaction.Emoji, req.Reaction.Count, req.Reaction.BotAdded)
	}
	return h.trend.ConsiderText(ctx, req.Actor.ChannelID, h.cache.Signals(req.Actor.ChannelID))
}

// recordForTrend feeds the just-collected current message into the
// per-channel cache so later ambient events have fresh signals (step 8).
func (h *Handler) recordForTrend(req Request, messages []models.Message) {
	if h.cache == nil || len(messages) == 0 {
		return
	}
	current := messages[len(messages)-1]
	h.cache.Add(req.Actor.ChannelID, current.Content.Text, true, "", false)
}

// taxonomyCode extracts the models.ErrorKind taxonomy code for logging
// (spec §4.10 step 7), falling back to a generic code when err carries none.
func taxonomyCode(err error) models.ErrorKind {
	var graphErr *orchestrator.GraphError
	if errors.As(err, &graphErr) {
		return graphErr.Kind
	}
	return models.ErrorKindProviderError
}
