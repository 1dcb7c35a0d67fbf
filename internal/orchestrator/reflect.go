package orchestrator

import (
	"context"
	"strconv"
	"strings"

	"github.com/discord-agent/orchestrator/internal/llm"
	"github.com/discord-agent/orchestrator/internal/progress"
	"github.com/discord-agent/orchestrator/pkg/models"
)

// reflectNode implements reflection (spec §4.5). Only invoked when
// ToolRound < MaxToolRounds and reflection is enabled (the Run loop handles
// the skip cases). If every call in the round failed, sufficiency is
// unconditionally false regardless of what the reflector would say.
func (g *Graph) reflectNode(ctx context.Context, bus *progress.Bus, state *GraphState) {
	g.emitProgress(ctx, bus, &models.ProgressEvent{Stage: models.StageReflection, ProgressPct: pct(70)})

	if !anySucceeded(state.ToolResults) {
		state.IsSufficient = false
		state.ReflectionReasoning = "all tool calls failed in round " + strconv.Itoa(state.ToolRound)
		return
	}

	req := &llm.CompletionRequest{
		System:   "Given the accumulated tool results, decide whether they sufficiently answer the original request. Reply 'sufficient' or 'insufficient' followed by a brief reason.",
		Messages: append(conversationMessages(state.Messages), llm.CompletionMessage{
			Role:    "user",
			Content: renderAggregatedResults(state.AggregatedToolResults),
		}),
	}

	chunks, err := g.gateway.Complete(ctx, llm.RoleReflector, req)
	if err != nil {
		// Gateway failure during reflection is treated conservatively: keep
		// going for another round rather than risk finalizing on a bad plan,
		// unless this was already the last permitted round.
		state.IsSufficient = false
		state.ReflectionReasoning = "reflection call failed: " + err.Error()
		return
	}

	var sb strings.Builder
	for c := range chunks {
		if c.Err != nil {
			break
		}
		sb.WriteString(c.Text)
		if c.Done {
			break
		}
	}

	reply := strings.ToLower(strings.TrimSpace(sb.String()))
	state.IsSufficient = strings.HasPrefix(reply, "sufficient")
	state.ReflectionReasoning = sb.String()
}

func renderAggregatedResults(results []models.ToolExecutionResult) string {
	var sb strings.Builder
	for _, r := range results {
		sb.WriteString(r.ToolName)
		sb.WriteString(": ")
		sb.WriteString(r.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
