// Package convo implements the Conversation Model: collecting a request's
// current utterance plus history into a bounded, deduplicated, ordered
// []models.Message ready for the Orchestrator Graph.
package convo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/pkg/models"
)

// hardLimitCodePoints is the absolute ceiling no truncation can rescue a
// request from; exceeding it after limit enforcement is a caller error, not
// something Collect can silently fix.
const hardLimitCodePoints = 200_000

// ErrInputTooLarge is returned when content remains over the hard limit
// even after limit enforcement.
var ErrInputTooLarge = errors.New("convo: input too large")

// Attachment is one piece of inline media attached to the current
// utterance, as received from the transport before normalization.
type Attachment struct {
	MimeType string
	Data     []byte
	Animated bool
}

// Request is one Collect invocation's input: the current turn plus
// candidate history the caller has already fetched from the transport
// (order and completeness of History are not assumed; Collect dedupes and
// sorts it).
type Request struct {
	UtteranceID   string
	UtteranceText string
	Attachments   []Attachment
	History       []models.Message
}

// Collect normalizes req into the ordered message slice the Orchestrator
// Graph consumes, plus a human-readable media summary appended to the
// final user message. Fails with ErrInputTooLarge when content remains
// over the hard limit after truncation (spec §4.1).
func Collect(req Request, limits config.DiscordLimitsConfig, media config.DiscordInputMediaConfig) ([]models.Message, error) {
	history := dedupeAndOrder(req.History)
	current, mediaSummary, err := buildCurrentMessage(req, limits, media)
	if err != nil {
		return nil, err
	}

	history = append(history, current)
	history = truncateMessageCount(history, limits.MaxMessages)
	history = truncateTotalText(history, limits.MaxText)

	if over, exceeded := enforceHardLimit(history); exceeded {
		return nil, fmt.Errorf("%w: %d code points over the %d-code-point limit", ErrInputTooLarge, over, hardLimitCodePoints)
	}
	_ = mediaSummary // already folded into current's trailing text by buildCurrentMessage

	return history, nil
}

// dedupeAndOrder removes duplicate-id messages (first occurrence wins),
// assigns a monotonic CreatedAt to any message missing one (preserving
// receive order), and sorts the result by CreatedAt ascending, stably.
func dedupeAndOrder(in []models.Message) []models.Message {
	seen := make(map[string]bool, len(in))
	out := make([]models.Message, 0, len(in))

	base := time.Now()
	for i, m := range in {
		if m.ID != "" && seen[m.ID] {
			continue
		}
		if m.ID != "" {
			seen[m.ID] = true
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = base.Add(time.Duration(i) * time.Nanosecond)
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// truncateMessageCount drops the oldest messages until len(messages) <= max
// (0 means unlimited).
func truncateMessageCount(messages []models.Message, max int) []models.Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}
	return messages[len(messages)-max:]
}

// truncateTotalText drops whole messages, oldest first, until the summed
// code-point length of every message's text content is within max (0 means
// unlimited). The most recent message (the current turn) is never dropped.
func truncateTotalText(messages []models.Message, max int) []models.Message {
	if max <= 0 || len(messages) == 0 {
		return messages
	}
	for len(messages) > 1 && totalTextCodePoints(messages) > max {
		messages = messages[1:]
	}
	return messages
}

func totalTextCodePoints(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += codePointLen(m.Content.Text)
		for _, p := range m.Content.Parts {
			total += codePointLen(p.Text)
		}
	}
	return total
}

// enforceHardLimit reports how many code points, if any, the collected
// messages remain over hardLimitCodePoints.
func enforceHardLimit(messages []models.Message) (over int, exceeded bool) {
	total := totalTextCodePoints(messages)
	if total <= hardLimitCodePoints {
		return 0, false
	}
	return total - hardLimitCodePoints, true
}

// codePointLen counts runes, not bytes, per spec's code-point-aware limits.
func codePointLen(s string) int {
	return len([]rune(s))
}

// buildCurrentMessage assembles the current utterance into a Message:
// images (subject to limits.MaxImages, oldest-dropped-first) become
// Parts, animated attachments are sub-sampled to at most
// media.MaxAnimatedFrames frames, and a trailing marker summarizing
// included media is appended to the text.
func buildCurrentMessage(req Request, limits config.DiscordLimitsConfig, media config.DiscordInputMediaConfig) (models.Message, string, error) {
	attachments := req.Attachments
	maxImages := limits.MaxImages
	if maxImages > 0 && len(attachments) > maxImages {
		attachments = attachments[len(attachments)-maxImages:]
	}

	var parts []models.Part
	staticCount, animatedCount := 0, 0

	for _, a := range attachments {
		if a.Animated {
			frames, err := subsampleFrames(a, media.MaxAnimatedFrames)
			if err != nil {
				return models.Message{}, "", fmt.Errorf("convo: sub-sampling animated attachment: %w", err)
			}
			for _, f := range frames {
				parts = append(parts, models.Part{Type: models.PartImage, Image: &models.ImagePart{MimeType: a.MimeType, Base64: f}})
			}
			animatedCount++
			continue
		}

		b64, err := normalizeStaticImage(a)
		if err != nil {
			return models.Message{}, "", fmt.Errorf("convo: normalizing attachment: %w", err)
		}
		parts = append(parts, models.Part{Type: models.PartImage, Image: &models.ImagePart{MimeType: a.MimeType, Base64: b64}})
		staticCount++
	}

	summary := mediaSummary(staticCount, animatedCount)
	text := req.UtteranceText
	if summary != "" {
		if text != "" {
			text = text + "\n" + summary
		} else {
			text = summary
		}
	}

	if len(parts) > 0 {
		parts = append([]models.Part{{Type: models.PartText, Text: text}}, parts...)
		return models.Message{
			ID:        req.UtteranceID,
			Role:      models.RoleUser,
			Content:   models.Content{Parts: parts},
			CreatedAt: time.Now(),
		}, summary, nil
	}

	return models.Message{
		ID:        req.UtteranceID,
		Role:      models.RoleUser,
		Content:   models.Content{Text: text},
		CreatedAt: time.Now(),
	}, summary, nil
}

// mediaSummary renders the human-visible marker spec §4.1 requires, e.g.
// "[包含: 2圖片, 1動畫]". Returns "" when nothing was included.
func mediaSummary(staticCount, animatedCount int) string {
	var parts []string
	if staticCount > 0 {
		parts = append(parts, fmt.Sprintf("%d圖片", staticCount))
	}
	if animatedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d動畫", animatedCount))
	}
	if len(parts) == 0 {
		return ""
	}
	return "[包含: " + strings.Join(parts, ", ") + "]"
}
