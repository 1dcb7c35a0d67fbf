package progress

import (
	"context"
	"strings"

	"github.com/discord-agent/orchestrator/internal/llm"
	"github.com/discord-agent/orchestrator/pkg/models"
)

// maxBlurbCodePoints is the spec's hard cap on an auto-generated progress
// blurb; anything longer is truncated with an ellipsis.
const maxBlurbCodePoints = 16

// noBlurbStages are high-frequency stages the bus never auto-generates a
// blurb for, even when enabled — the LLM round-trip cost isn't worth it for
// ticks this rapid.
var noBlurbStages = map[models.ProgressStage]bool{
	models.StageToolStatus: true,
	models.StageStreaming:  true,
}

// staticBlurbs is the fallback template set, used when auto-generation is
// disabled or the progress_blurb call fails.
var staticBlurbs = map[models.ProgressStage]string{
	models.StageStarting:       "starting…",
	models.StageGenerateQuery:  "thinking…",
	models.StageToolStatus:     "working…",
	models.StageSearching:      "searching…",
	models.StageAnalyzing:      "analyzing…",
	models.StageReflection:     "double-checking…",
	models.StageFinalizeAnswer: "writing answer…",
	models.StageStreaming:      "",
	models.StageCompleted:      "done",
	models.StageError:          "hit an error",
	models.StageTimeout:        "timed out",
	models.StageToolExecution:  "running tools…",
}

// BlurbGenerator fills in ProgressEvent.Message when the core leaves it
// empty, by calling the progress_blurb LLM role, falling back to a static
// per-stage template on any failure.
type BlurbGenerator struct {
	gateway *llm.Gateway
	enabled bool
}

// NewBlurbGenerator returns a generator that calls gateway's progress_blurb
// route when enabled is true. When gateway is nil, or enabled is false, it
// always uses the static templates.
func NewBlurbGenerator(gateway *llm.Gateway, enabled bool) *BlurbGenerator {
	return &BlurbGenerator{gateway: gateway, enabled: enabled && gateway != nil}
}

// Fill returns event unchanged if event.Message is already set or the stage
// is excluded from auto-generation; otherwise it populates event.Message,
// generated or templated.
func (g *BlurbGenerator) Fill(ctx context.Context, event *models.ProgressEvent, recentContext string) *models.ProgressEvent {
	if event == nil || event.Message != "" {
		return event
	}
	if noBlurbStages[event.Stage] {
		return event
	}
	if !g.enabled {
		event.Message = staticBlurbs[event.Stage]
		return event
	}

	blurb, err := g.generate(ctx, event.Stage, recentContext)
	if err != nil || blurb == "" {
		event.Message = staticBlurbs[event.Stage]
		return event
	}
	event.Message = blurb
	return event
}

func (g *BlurbGenerator) generate(ctx context.Context, stage models.ProgressStage, recentContext string) (string, error) {
	instruction := stageInstruction(stage)
	req := &llm.CompletionRequest{
		System:    "Reply with a single short status phrase, no punctuation besides an ellipsis, no quotes.",
		Messages:  []llm.CompletionMessage{{Role: "user", Content: instruction + "\n\nContext:\n" + recentContext}},
		MaxTokens: 20,
	}

	chunks, err := g.gateway.Complete(ctx, llm.RoleProgressBlurb, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for c := range chunks {
		if c.Err != nil {
			return "", c.Err
		}
		sb.WriteString(c.Text)
		if c.Done {
			break
		}
	}
	return truncateCodePoints(strings.TrimSpace(sb.String()), maxBlurbCodePoints), nil
}

func stageInstruction(stage models.ProgressStage) string {
	switch stage {
	case models.StageGenerateQuery:
		return "Describe, in a few words, that the assistant is deciding what to do next."
	case models.StageSearching:
		return "Describe, in a few words, that the assistant is searching for information."
	case models.StageAnalyzing:
		return "Describe, in a few words, that the assistant is analyzing gathered information."
	case models.StageReflection:
		return "Describe, in a few words, that the assistant is double-checking its answer."
	case models.StageFinalizeAnswer:
		return "Describe, in a few words, that the assistant is composing its final answer."
	case models.StageToolExecution:
		return "Describe, in a few words, that the assistant is running a tool."
	default:
		return "Describe, in a few words, the assistant's current activity."
	}
}

// truncateCodePoints rune-slices s to at most n code points, appending an
// ellipsis when truncation occurs.
func truncateCodePoints(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}
