package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/discord-agent/orchestrator/internal/llm"
	"github.com/discord-agent/orchestrator/internal/progress"
	"github.com/discord-agent/orchestrator/pkg/models"
)

// flushBoundaryChars are characters that terminate a buffered streaming
// segment, so an emoji-repair pass never splits a token mid-chunk (spec
// §4.8: "never split a token across chunks").
const flushBoundaryChars = " \t\n>"

// finalizeNode implements finalize_answer (spec §4.5).
func (g *Graph) finalizeNode(ctx context.Context, bus *progress.Bus, state *GraphState) error {
	req := g.buildFinalizeRequest(state)

	shouldStream := g.streaming.Enabled && bus != nil && bus.HasObservers()

	chunks, err := g.gateway.Complete(ctx, llm.RoleFinalizer, req)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	if shouldStream {
		return g.finalizeStreaming(ctx, bus, state, chunks)
	}
	return g.finalizeWhole(ctx, bus, state, chunks)
}

func (g *Graph) buildFinalizeRequest(state *GraphState) *llm.CompletionRequest {
	var sb strings.Builder
	sb.WriteString("Compose the final answer to the user's request.")
	sb.WriteString(" Current time: " + g.now().Format(time.RFC3339) + ".")
	if state.CurrentPersona != "" {
		sb.WriteString(" Persona: " + state.CurrentPersona + ".")
	}
	if len(state.AggregatedToolResults) > 0 {
		sb.WriteString("\n\nGathered information:\n")
		sb.WriteString(renderAggregatedResults(state.AggregatedToolResults))
	}
	if g.emoji != nil {
		if block := g.emoji.PromptContext(); block != "" {
			sb.WriteString("\n\n" + block)
		}
	}
	if state.GlobalMetadata != "" {
		sb.WriteString("\n\nContext: " + state.GlobalMetadata)
	}

	return &llm.CompletionRequest{
		System:   sb.String(),
		Messages: conversationMessages(state.Messages),
	}
}

// finalizeStreaming consumes chunks incrementally, buffering a trailing
// possibly-partial emoji token until a flush boundary is observed before
// applying the repair pass and emitting to observers.
func (g *Graph) finalizeStreaming(ctx context.Context, bus *progress.Bus, state *GraphState, chunks <-chan *llm.CompletionChunk) error {
	g.emitProgress(ctx, bus, &models.ProgressEvent{Stage: models.StageStreaming})

	var full strings.Builder
	var pending string

	for c := range chunks {
		if c.Err != nil {
			bus.OnStreamingComplete(ctx)
			return fmt.Errorf("finalize stream: %w", c.Err)
		}
		if c.Text == "" {
			if c.Done {
				break
			}
			continue
		}

		pending += c.Text
		flush, rest := splitAtFlushBoundary(pending)
		pending = rest
		if flush == "" {
			if c.Done {
				flush, pending = pending, ""
			} else {
				continue
			}
		}

		repaired := g.repair(flush)
		full.WriteString(repaired)
		bus.OnStreamingChunk(ctx, &models.StreamingChunk{Content: repaired})

		if c.Done {
			break
		}
	}

	if pending != "" {
		repaired := g.repair(pending)
		full.WriteString(repaired)
		bus.OnStreamingChunk(ctx, &models.StreamingChunk{Content: repaired, IsFinal: true})
	} else {
		bus.OnStreamingChunk(ctx, &models.StreamingChunk{Content: "", IsFinal: true})
	}

	bus.OnStreamingComplete(ctx)

	state.FinalAnswer = full.String()
	bus.OnCompletion(ctx, state.FinalAnswer, state.Sources)
	g.emitProgress(ctx, bus, &models.ProgressEvent{Stage: models.StageCompleted, ProgressPct: pct(100)})
	return nil
}

func (g *Graph) finalizeWhole(ctx context.Context, bus *progress.Bus, state *GraphState, chunks <-chan *llm.CompletionChunk) error {
	g.emitProgress(ctx, bus, &models.ProgressEvent{Stage: models.StageFinalizeAnswer, ProgressPct: pct(90)})

	var sb strings.Builder
	for c := range chunks {
		if c.Err != nil {
			return fmt.Errorf("finalize: %w", c.Err)
		}
		sb.WriteString(c.Text)
		if c.Done {
			break
		}
	}

	state.FinalAnswer = g.repair(sb.String())
	if bus != nil {
		bus.OnCompletion(ctx, state.FinalAnswer, state.Sources)
	}
	g.emitProgress(ctx, bus, &models.ProgressEvent{Stage: models.StageCompleted, ProgressPct: pct(100)})
	return nil
}

func (g *Graph) repair(text string) string {
	if g.emoji == nil {
		return text
	}
	return g.emoji.Repair(text)
}

// splitAtFlushBoundary returns the prefix of s up to and including the last
// flush-boundary character, and the remaining suffix to keep buffering. If
// no boundary is present, the whole string is held back.
func splitAtFlushBoundary(s string) (flush, rest string) {
	idx := strings.LastIndexAny(s, flushBoundaryChars)
	if idx < 0 {
		return "", s
	}
	return s[:idx+1], s[idx+1:]
}
