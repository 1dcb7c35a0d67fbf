// Package orchestrator implements the Orchestrator Graph (spec §4.5): the
// Plan→Execute→Reflect→Finalize state machine that drives one request
// end-to-end, consulting the LLM Gateway and Tool Registry and reporting
// through the Progress Bus.
package orchestrator

import (
	"unicode/utf8"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// maxResearchTopicCodePoints caps the research_topic seed derived from the
// latest user utterance.
const maxResearchTopicCodePoints = 200

// GraphState is reset per invocation and threaded through every node.
type GraphState struct {
	Messages  []models.Message
	ToolRound int
	Plan      *models.AgentPlan

	// ResearchTopic is a truncated prefix of the latest user utterance,
	// used to seed prompts.
	ResearchTopic string

	ToolResults           []models.ToolExecutionResult
	AggregatedToolResults []models.ToolExecutionResult

	IsSufficient        bool
	ReflectionReasoning string

	FinalAnswer string
	Sources     []models.Source

	Finished bool

	CurrentPersona string
	GlobalMetadata string

	// Reminders accumulates ReminderDetails side effects collected during
	// Execute, for the caller (Session Glue, C10) to hand to the scheduler.
	Reminders []models.ReminderDetails
}

// NewGraphState builds the initial state for one invocation from the
// collected conversation messages and an opaque metadata hint (e.g. a
// channel/user summary) forwarded into prompts.
func NewGraphState(messages []models.Message, globalMetadata string) *GraphState {
	return &GraphState{
		Messages:      messages,
		ResearchTopic: truncateCodePoints(lastUserUtterance(messages), maxResearchTopicCodePoints),
		GlobalMetadata: globalMetadata,
	}
}

func lastUserUtterance(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			if messages[i].Content.Text != "" {
				return messages[i].Content.Text
			}
			for _, p := range messages[i].Content.Parts {
				if p.Type == models.PartText {
					return p.Text
				}
			}
		}
	}
	return ""
}

func truncateCodePoints(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
