package orchestrator

import (
	"context"
	"strings"

	"github.com/discord-agent/orchestrator/internal/llm"
	"github.com/discord-agent/orchestrator/internal/progress"
	"github.com/discord-agent/orchestrator/pkg/models"
	"github.com/google/uuid"
)

// planNode implements generate_query_or_plan (spec §4.5).
func (g *Graph) planNode(ctx context.Context, bus *progress.Bus, state *GraphState) {
	if state.CurrentPersona == "" && g.personas != nil {
		state.CurrentPersona = g.personas.Select()
	}

	g.emitProgress(ctx, bus, &models.ProgressEvent{Stage: models.StageGenerateQuery, ProgressPct: pct(20)})

	if g.behavior.MaxToolRounds == 0 {
		state.Plan = &models.AgentPlan{NeedsTools: false}
		return
	}

	var preDetected []models.ToolCall
	if g.urlDetector != nil {
		if call := g.urlDetector.Detect(lastUserUtterance(state.Messages)); call != nil {
			if call.ID == "" {
				call.ID = uuid.NewString()
			}
			if call.TaskID == "" {
				call.TaskID = call.ID
			}
			preDetected = append(preDetected, *call)
		}
	}

	llmCalls, reasoning := g.callPlanner(ctx, state)

	toolCalls := append(append([]models.ToolCall(nil), preDetected...), llmCalls...)

	if len(toolCalls) > 0 {
		state.Plan = &models.AgentPlan{NeedsTools: true, ToolCalls: toolCalls, Reasoning: reasoning}
	} else {
		state.Plan = &models.AgentPlan{NeedsTools: false, Reasoning: reasoning}
	}
}

func (g *Graph) callPlanner(ctx context.Context, state *GraphState) ([]models.ToolCall, string) {
	decls := g.toolDecls()
	req := &llm.CompletionRequest{
		System:   g.plannerSystemPrompt(state),
		Messages: conversationMessages(state.Messages),
		Tools:    decls,
	}

	chunks, err := g.gateway.Complete(ctx, llm.RolePlanner, req)
	if err != nil {
		return nil, ""
	}

	var calls []models.ToolCall
	var text strings.Builder
	for c := range chunks {
		if c.Err != nil {
			break
		}
		if c.Text != "" {
			text.WriteString(c.Text)
		}
		if c.ToolCall != nil {
			tc := *c.ToolCall
			if tc.ID == "" {
				tc.ID = uuid.NewString()
			}
			if tc.TaskID == "" {
				tc.TaskID = tc.ID
			}
			calls = append(calls, tc)
		}
		if c.Done {
			break
		}
	}
	return calls, text.String()
}

func (g *Graph) toolDecls() []llm.ToolDecl {
	tools := g.registry.Enabled(g.enabledTools)
	decls := make([]llm.ToolDecl, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, llm.ToolDecl{Name: t.Name(), Description: t.Description(), Schema: t.SchemaJSON()})
	}
	return decls
}

func (g *Graph) plannerSystemPrompt(state *GraphState) string {
	var sb strings.Builder
	sb.WriteString("Decide whether answering requires invoking any bound tools. ")
	sb.WriteString("If so, call them; otherwise respond that no tools are needed.")
	if state.CurrentPersona != "" {
		sb.WriteString(" Persona: " + state.CurrentPersona + ".")
	}
	if g.emoji != nil {
		if ctxBlock := g.emoji.PromptContext(); ctxBlock != "" {
			sb.WriteString("\n\n" + ctxBlock)
		}
	}
	if state.GlobalMetadata != "" {
		sb.WriteString("\n\nContext: " + state.GlobalMetadata)
	}
	return sb.String()
}

// conversationMessages flattens models.Message into llm.CompletionMessage,
// joining multi-part content into its textual representation.
func conversationMessages(messages []models.Message) []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := string(m.Role)
		content := m.Content.Text
		var images []models.ImagePart
		if content == "" && len(m.Content.Parts) > 0 {
			var sb strings.Builder
			for _, p := range m.Content.Parts {
				switch p.Type {
				case models.PartText:
					sb.WriteString(p.Text)
				case models.PartImage:
					if p.Image != nil {
						images = append(images, *p.Image)
					}
				case models.PartToolResult:
					if p.ToolResult != nil {
						sb.WriteString(p.ToolResult.Content)
					}
				}
			}
			content = sb.String()
		}
		out = append(out, llm.CompletionMessage{Role: role, Content: content, Images: images})
	}
	return out
}
