package orchestrator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/discord-agent/orchestrator/internal/progress"
	"github.com/discord-agent/orchestrator/pkg/models"
)

// minToolTimeout is the floor applied when dividing a round's remaining
// wallclock budget across concurrent tool calls.
const minToolTimeout = 2 * time.Second

// executeNode implements execute_tools_node (spec §4.5). Runs only when
// plan.needs_tools; dispatches all plan.tool_calls in parallel.
func (g *Graph) executeNode(ctx context.Context, bus *progress.Bus, state *GraphState) {
	calls := state.Plan.ToolCalls
	if len(calls) == 0 {
		state.ToolRound++
		return
	}

	perCall := g.behavior.TimeoutPerRound / time.Duration(len(calls))
	if perCall < minToolTimeout {
		perCall = minToolTimeout
	}

	g.emitProgress(ctx, bus, &models.ProgressEvent{
		Stage:   models.StageToolExecution,
		Meta:    map[string]any{"status": toolStatusLine(calls, nil)},
	})

	results := make([]models.ToolExecutionResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c models.ToolCall) {
			defer wg.Done()
			results[idx] = g.registry.Dispatch(ctx, c, perCall)
		}(i, call)
	}
	wg.Wait()

	g.emitProgress(ctx, bus, &models.ProgressEvent{
		Stage: models.StageToolStatus,
		Meta:  map[string]any{"status": toolStatusLine(calls, results)},
	})

	state.ToolResults = results
	mergeAggregated(state, results)
	mergeSources(state, results)
	collectReminders(state, results)
	state.ToolRound++
}

// toolStatusLine renders one symbol per call: '.' pending/running when
// results is nil, else '+'/'x' per outcome.
func toolStatusLine(calls []models.ToolCall, results []models.ToolExecutionResult) string {
	var sb strings.Builder
	for i := range calls {
		if results == nil {
			sb.WriteByte('.')
			continue
		}
		if results[i].Success {
			sb.WriteByte('+')
		} else {
			sb.WriteByte('x')
		}
	}
	return sb.String()
}

// mergeAggregated folds this round's results into AggregatedToolResults:
// ordered by priority ascending then insertion order, de-duplicated by
// exact textual equality of normalized content.
func mergeAggregated(state *GraphState, results []models.ToolExecutionResult) {
	seen := make(map[string]bool, len(state.AggregatedToolResults))
	for _, r := range state.AggregatedToolResults {
		seen[normalizeContent(r.Content)] = true
	}

	merged := append([]models.ToolExecutionResult(nil), state.AggregatedToolResults...)
	for _, r := range results {
		key := normalizeContent(r.Content)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Priority < merged[j].Priority
	})
	state.AggregatedToolResults = merged
}

// mergeSources appends sources from successful results, de-duplicated by URL.
func mergeSources(state *GraphState, results []models.ToolExecutionResult) {
	seen := make(map[string]bool, len(state.Sources))
	for _, s := range state.Sources {
		seen[s.URL] = true
	}
	for _, r := range results {
		if !r.Success {
			continue
		}
		for _, s := range r.Sources {
			if seen[s.URL] {
				continue
			}
			seen[s.URL] = true
			state.Sources = append(state.Sources, s)
		}
	}
}

func collectReminders(state *GraphState, results []models.ToolExecutionResult) {
	for _, r := range results {
		if r.Success && r.SideEffect != nil {
			state.Reminders = append(state.Reminders, *r.SideEffect)
		}
	}
}

// anySucceeded reports whether at least one result in this round succeeded.
func anySucceeded(results []models.ToolExecutionResult) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}
