// Package urldetect implements the Plan node's pre-detection hook (spec
// §4.5 step 4): recognizing deterministic URL patterns — video links — in
// the last user message and synthesizing a video_summary ToolCall so the
// plan doesn't depend on the planner LLM noticing the link itself.
package urldetect

import (
	"encoding/json"
	"regexp"

	"github.com/google/uuid"

	"github.com/discord-agent/orchestrator/pkg/models"
)

var videoURLPattern = regexp.MustCompile(
	`https?://(?:www\.)?(?:youtube\.com/watch\?v=[\w-]+|youtu\.be/[\w-]+|vimeo\.com/\d+|tiktok\.com/@[\w.]+/video/\d+)\S*`,
)

// VideoLinkDetector matches the first recognized video URL in a message and
// emits a deterministic call to the named video-summary tool.
type VideoLinkDetector struct {
	// ToolName is the registered video-summary tool's name, normally
	// "video_summary".
	ToolName string
}

// NewVideoLinkDetector returns a detector that calls toolName on a match.
func NewVideoLinkDetector(toolName string) VideoLinkDetector {
	return VideoLinkDetector{ToolName: toolName}
}

// Detect implements orchestrator.URLDetector.
func (d VideoLinkDetector) Detect(lastUserMessage string) *models.ToolCall {
	match := videoURLPattern.FindString(lastUserMessage)
	if match == "" {
		return nil
	}
	args, err := json.Marshal(map[string]string{"url": match})
	if err != nil {
		return nil
	}
	return &models.ToolCall{
		ID:        uuid.NewString(),
		Name:      d.ToolName,
		Arguments: args,
		Priority:  0,
	}
}
