// Package models holds the wire and data types shared across the
// orchestration core: conversation messages, tool calls and results,
// reminders, and progress events.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// PartType discriminates the kind of a content Part.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolResult PartType = "tool_result"
)

// Part is one element of a multimodal message's ordered content.
// Exactly one of Text, Image, or ToolResult is populated, selected by Type.
type Part struct {
	Type PartType `json:"type"`

	// Text holds the text content when Type == PartText.
	Text string `json:"text,omitempty"`

	// Image holds an inline base64-encoded image when Type == PartImage.
	Image *ImagePart `json:"image,omitempty"`

	// ToolResult references a prior tool result when Type == PartToolResult.
	ToolResult *ToolResultRef `json:"tool_result,omitempty"`
}

// ImagePart is an inline image, base64-encoded with its MIME type.
type ImagePart struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

// ToolResultRef points at a tool result included as conversation context.
type ToolResultRef struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// Content is either a plain string or an ordered list of Parts.
// Exactly one of Text or Parts is set.
type Content struct {
	Text  string `json:"text,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// IsEmpty reports whether the content carries no text and no parts.
func (c Content) IsEmpty() bool {
	return c.Text == "" && len(c.Parts) == 0
}

// Message is a single turn in a conversation, immutable after collection.
type Message struct {
	// ID is the originator-assigned id used for de-duplication.
	ID      string  `json:"id"`
	Role    Role    `json:"role"`
	Content Content `json:"content"`

	// Metadata carries an optional originator id and timestamp hint.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt orders messages; assigned at collection time if absent from
	// metadata.
	CreatedAt time.Time `json:"created_at"`
}

// ToolCall is a structured decision by the planner LLM to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Priority  int             `json:"priority"`
}

// ErrorKind categorizes a tool execution or gateway failure for the
// Orchestrator and for observer-facing diagnostics.
type ErrorKind string

const (
	ErrorKindNone                    ErrorKind = ""
	ErrorKindTransientNetwork        ErrorKind = "transient_network"
	ErrorKindRateLimited             ErrorKind = "rate_limited"
	ErrorKindInvalidStructuredOutput ErrorKind = "invalid_structured_output"
	ErrorKindContextOverflow         ErrorKind = "context_overflow"
	ErrorKindProviderError           ErrorKind = "provider_error"
	ErrorKindCancelled               ErrorKind = "cancelled"
	ErrorKindToolFailure             ErrorKind = "tool_failure"
	ErrorKindConfigInvalid           ErrorKind = "config_invalid"
	ErrorKindInputTooLarge           ErrorKind = "input_too_large"
	ErrorKindQuotaExceeded           ErrorKind = "quota_exceeded"
)

// Source is a citation harvested from a successful tool result.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ToolExecutionResult is the outcome of dispatching one ToolCall.
type ToolExecutionResult struct {
	TaskID    string    `json:"task_id"`
	ToolName  string    `json:"tool_name"`
	Success   bool      `json:"success"`
	Content   string    `json:"content"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Sources   []Source  `json:"sources,omitempty"`

	// SideEffect is present only for the reminder-setting tool on success.
	SideEffect *ReminderDetails `json:"side_effect,omitempty"`

	// Priority is copied from the originating ToolCall for aggregation
	// ordering; not part of the wire envelope.
	Priority int `json:"-"`
}

// ReminderDetails is the side effect returned by the reminder-setting tool.
// The tool never schedules it directly; the Orchestrator hands it to the
// Event Scheduler.
type ReminderDetails struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	FireAt     time.Time `json:"fire_at"`
	ChannelRef string    `json:"channel_ref"`
	UserRef    string    `json:"user_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProgressStage is a closed set of orchestrator lifecycle stages.
type ProgressStage string

const (
	StageStarting       ProgressStage = "starting"
	StageGenerateQuery  ProgressStage = "generate_query"
	StageToolStatus     ProgressStage = "tool_status"
	StageSearching      ProgressStage = "searching"
	StageAnalyzing      ProgressStage = "analyzing"
	StageReflection     ProgressStage = "reflection"
	StageFinalizeAnswer ProgressStage = "finalize_answer"
	StageStreaming      ProgressStage = "streaming"
	StageCompleted      ProgressStage = "completed"
	StageError          ProgressStage = "error"
	StageTimeout        ProgressStage = "timeout"
	StageToolExecution  ProgressStage = "tool_execution"
)

// ProgressEvent is emitted by the Orchestrator to the Progress Bus on stage
// transitions and periodic mid-stage ticks.
type ProgressEvent struct {
	Stage       ProgressStage  `json:"stage"`
	Message     string         `json:"message,omitempty"`
	ProgressPct *int           `json:"progress_pct,omitempty"`
	ETASeconds  *int           `json:"eta_seconds,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// StreamingChunk is a partial substring of the final answer delivered
// during Finalize.
type StreamingChunk struct {
	Content string `json:"content"`
	IsFinal bool   `json:"is_final"`
}

// AgentPlan is the Plan node's structured decision.
type AgentPlan struct {
	NeedsTools bool       `json:"needs_tools"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

// Session represents a single Discord conversation thread (a channel, or a
// channel+thread pair) the orchestrator tracks state for.
type Session struct {
	ID        string         `json:"id"`
	GuildID   string         `json:"guild_id,omitempty"`
	ChannelID string         `json:"channel_id"`
	UserID    string         `json:"user_id"`
	Key       string         `json:"key"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
