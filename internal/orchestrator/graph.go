package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/internal/llm"
	"github.com/discord-agent/orchestrator/internal/progress"
	"github.com/discord-agent/orchestrator/internal/tools"
	"github.com/discord-agent/orchestrator/pkg/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/discord-agent/orchestrator/internal/orchestrator")

// URLDetector implements the Plan node's pre-detection hook: given the
// latest user utterance, it returns a deterministic ToolCall (e.g. a video
// URL matched against a url-summary tool) or nil if nothing matched.
type URLDetector interface {
	Detect(lastUserMessage string) *models.ToolCall
}

// EmojiContext supplies Finalize's prompt-context block and repairs
// malformed emoji tokens in generated output (spec §4.8). A nil EmojiContext
// is a no-op passthrough.
type EmojiContext interface {
	PromptContext() string
	Repair(text string) string
}

// PersonaSelector resolves current_persona on first entry into Plan.
type PersonaSelector interface {
	Select() string
}

// StaticPersonaSelector chooses uniformly at random from Available when
// RandomSelection is set, else always returns Default.
type StaticPersonaSelector struct {
	Available       []string
	Default         string
	RandomSelection bool
}

// Select implements PersonaSelector.
func (s StaticPersonaSelector) Select() string {
	if s.RandomSelection && len(s.Available) > 0 {
		return s.Available[rand.Intn(len(s.Available))]
	}
	return s.Default
}

// Graph wires the LLM Gateway, Tool Registry, and configured behavior knobs
// into one Plan→Execute→Reflect→Finalize run.
type Graph struct {
	gateway  *llm.Gateway
	registry *tools.Registry
	behavior config.AgentBehaviorConfig
	streaming config.StreamingConfig

	enabledTools map[string]int // tool name -> priority override

	personas     PersonaSelector
	urlDetector  URLDetector
	emoji        EmojiContext

	now func() time.Time
}

// Option configures optional Graph collaborators.
type Option func(*Graph)

// WithPersonaSelector overrides the default (no persona) selector.
func WithPersonaSelector(s PersonaSelector) Option {
	return func(g *Graph) { g.personas = s }
}

// WithURLDetector installs the Plan node's pre-detection hook.
func WithURLDetector(d URLDetector) Option {
	return func(g *Graph) { g.urlDetector = d }
}

// WithEmojiContext installs the Finalize prompt-context/repair collaborator.
func WithEmojiContext(e EmojiContext) Option {
	return func(g *Graph) { g.emoji = e }
}

// WithClock overrides the graph's time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

// NewGraph constructs a Graph. enabledTools maps tool name to its dispatch
// priority (see config.AgentConfig.Tools, filtered to enabled=true).
func NewGraph(gateway *llm.Gateway, registry *tools.Registry, behavior config.AgentBehaviorConfig, streaming config.StreamingConfig, enabledTools map[string]int, opts ...Option) *Graph {
	g := &Graph{
		gateway:      gateway,
		registry:     registry,
		behavior:     behavior,
		streaming:    streaming,
		enabledTools: enabledTools,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ErrCancelled is returned by Run when ctx is cancelled mid-flight; the
// caller must treat GraphState.FinalAnswer as unset.
var ErrCancelled = errors.New("orchestrator: run cancelled")

// node identifies the next step the Run loop should take.
type node int

const (
	nodePlan node = iota
	nodeExecute
	nodeReflect
	nodeFinalize
)

// Run drives the graph to completion (or cancellation), following the
// routing rules: Plan -> (Execute | Finalize); Execute -> Reflect;
// Reflect -> (Finalize | Plan). Finalize is terminal. bus may be nil, in
// which case no progress is reported.
func (g *Graph) Run(ctx context.Context, bus *progress.Bus, state *GraphState) error {
	runCtx, runSpan := tracer.Start(ctx, "orchestrator.run")
	defer runSpan.End()
	ctx = runCtx

	next := nodePlan

	for {
		if err := ctx.Err(); err != nil {
			g.emitError(ctx, bus, err)
			return ErrCancelled
		}

		nodeCtx, span := tracer.Start(ctx, nodeName(next), trace.WithAttributes(
			attribute.Int("tool_round", state.ToolRound),
		))

		switch next {
		case nodePlan:
			g.planNode(nodeCtx, bus, state)
			if state.Plan.NeedsTools {
				next = nodeExecute
			} else {
				next = nodeFinalize
			}

		case nodeExecute:
			g.executeNode(nodeCtx, bus, state)
			next = nodeReflect

		case nodeReflect:
			if state.ToolRound >= g.behavior.MaxToolRounds {
				state.IsSufficient = true
			} else if !g.behavior.EnableReflection {
				state.IsSufficient = true
			} else {
				g.reflectNode(nodeCtx, bus, state)
			}
			if state.IsSufficient || state.ToolRound >= g.behavior.MaxToolRounds {
				next = nodeFinalize
			} else {
				state.Plan = nil
				state.ToolResults = nil
				next = nodePlan
			}

		case nodeFinalize:
			if err := g.finalizeNode(nodeCtx, bus, state); err != nil {
				span.End()
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					g.emitError(ctx, bus, err)
					return ErrCancelled
				}
				g.emitError(ctx, bus, err)
				return err
			}
			state.Finished = true
			span.End()
			return nil
		}
		span.End()
	}
}

func nodeName(n node) string {
	switch n {
	case nodePlan:
		return "plan"
	case nodeExecute:
		return "execute"
	case nodeReflect:
		return "reflect"
	case nodeFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

func (g *Graph) emitProgress(ctx context.Context, bus *progress.Bus, event *models.ProgressEvent) {
	if bus == nil {
		return
	}
	bus.OnProgress(ctx, event)
}

func (g *Graph) emitError(ctx context.Context, bus *progress.Bus, err error) {
	if bus == nil {
		return
	}
	kind := models.ErrorKindProviderError
	if errors.Is(err, context.Canceled) {
		kind = models.ErrorKindCancelled
	}
	bus.OnError(ctx, &GraphError{Kind: kind, Cause: err})
}

func pct(p int) *int { return &p }

// normalizeContent lower-cases and collapses whitespace, for the de-dup
// comparison used when merging tool results into AggregatedToolResults.
func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
