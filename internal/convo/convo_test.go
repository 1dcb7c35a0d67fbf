package convo

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"strings"
	"testing"
	"time"

	"github.com/discord-agent/orchestrator/internal/config"
	"github.com/discord-agent/orchestrator/pkg/models"
)

func defaultLimits() config.DiscordLimitsConfig {
	return config.DiscordLimitsConfig{MaxText: 10_000, MaxImages: 4, MaxMessages: 20}
}

func defaultMedia() config.DiscordInputMediaConfig {
	return config.DiscordInputMediaConfig{MaxAnimatedFrames: 4}
}

func TestCollect_DedupesByIDKeepingFirstOccurrence(t *testing.T) {
	history := []models.Message{
		{ID: "m1", Role: models.RoleUser, Content: models.Content{Text: "first"}, CreatedAt: time.Unix(100, 0)},
		{ID: "m1", Role: models.RoleUser, Content: models.Content{Text: "duplicate"}, CreatedAt: time.Unix(200, 0)},
	}

	out, err := Collect(Request{UtteranceText: "hi", History: history}, defaultLimits(), defaultMedia())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := 0
	for _, m := range out {
		if m.ID == "m1" {
			count++
			if m.Content.Text != "first" {
				t.Errorf("expected first occurrence to win, got %q", m.Content.Text)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one m1, got %d", count)
	}
}

func TestCollect_SortsHistoryByCreatedAtAscending(t *testing.T) {
	history := []models.Message{
		{ID: "b", Role: models.RoleUser, Content: models.Content{Text: "second"}, CreatedAt: time.Unix(200, 0)},
		{ID: "a", Role: models.RoleUser, Content: models.Content{Text: "first"}, CreatedAt: time.Unix(100, 0)},
	}

	out, err := Collect(Request{UtteranceText: "hi", History: history}, defaultLimits(), defaultMedia())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("expected ascending order a,b, got %v, %v", out[0].ID, out[1].ID)
	}
}

func TestCollect_MissingTimestampsPreserveReceiveOrder(t *testing.T) {
	history := []models.Message{
		{ID: "a", Role: models.RoleUser, Content: models.Content{Text: "one"}},
		{ID: "b", Role: models.RoleUser, Content: models.Content{Text: "two"}},
		{ID: "c", Role: models.RoleUser, Content: models.Content{Text: "three"}},
	}

	out, err := Collect(Request{UtteranceText: "hi", History: history}, defaultLimits(), defaultMedia())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].ID != "a" || out[1].ID != "b" || out[2].ID != "c" {
		t.Fatalf("expected receive order a,b,c preserved, got %v", idsOf(out[:3]))
	}
}

func idsOf(messages []models.Message) []string {
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	return ids
}

func TestCollect_TruncatesMessageCountDroppingOldestFirst(t *testing.T) {
	var history []models.Message
	for i := 0; i < 10; i++ {
		history = append(history, models.Message{
			ID:        string(rune('a' + i)),
			Role:      models.RoleUser,
			Content:   models.Content{Text: "msg"},
			CreatedAt: time.Unix(int64(i), 0),
		})
	}

	limits := defaultLimits()
	limits.MaxMessages = 3 // 2 history + current

	out, err := Collect(Request{UtteranceText: "current", History: history}, limits, defaultMedia())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 messages after truncation, got %d", len(out))
	}
	if out[len(out)-1].Content.Text != "current" {
		t.Fatalf("expected current utterance to survive truncation")
	}
}

func TestCollect_AppendsMediaSummaryMarker(t *testing.T) {
	out, err := Collect(Request{
		UtteranceText: "look at this",
		Attachments: []Attachment{
			{MimeType: "image/png", Data: []byte("fake-png-bytes")},
		},
	}, defaultLimits(), defaultMedia())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current := out[len(out)-1]
	var text string
	for _, p := range current.Content.Parts {
		if p.Type == models.PartText {
			text = p.Text
		}
	}
	if !strings.Contains(text, "1圖片") {
		t.Errorf("expected media summary marker in %q", text)
	}
}

func TestCollect_SubsamplesAnimatedGIFToMaxFrames(t *testing.T) {
	gifData := buildTestGIF(t, 10)

	out, err := Collect(Request{
		UtteranceText: "watch",
		Attachments: []Attachment{
			{MimeType: "image/gif", Data: gifData, Animated: true},
		},
	}, defaultLimits(), config.DiscordInputMediaConfig{MaxAnimatedFrames: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current := out[len(out)-1]
	imageParts := 0
	for _, p := range current.Content.Parts {
		if p.Type == models.PartImage {
			imageParts++
		}
	}
	if imageParts != 3 {
		t.Fatalf("expected 3 sub-sampled frames, got %d", imageParts)
	}
}

func TestCollect_DropsExcessImagesOldestFirst(t *testing.T) {
	limits := defaultLimits()
	limits.MaxImages = 1

	out, err := Collect(Request{
		UtteranceText: "two images",
		Attachments: []Attachment{
			{MimeType: "image/png", Data: []byte("first")},
			{MimeType: "image/png", Data: []byte("second")},
		},
	}, limits, defaultMedia())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current := out[len(out)-1]
	imageParts := 0
	for _, p := range current.Content.Parts {
		if p.Type == models.PartImage {
			imageParts++
			if p.Image.Base64 == "" {
				t.Errorf("expected non-empty base64")
			}
		}
	}
	if imageParts != 1 {
		t.Fatalf("expected 1 surviving image, got %d", imageParts)
	}
}

func TestCollect_ReturnsInputTooLargeOverHardLimit(t *testing.T) {
	huge := strings.Repeat("x", hardLimitCodePoints+1)

	limits := defaultLimits()
	limits.MaxText = 0 // disable the soft truncation so the hard check is exercised

	_, err := Collect(Request{UtteranceText: huge}, limits, defaultMedia())
	if err == nil {
		t.Fatal("expected ErrInputTooLarge")
	}
}

func buildTestGIF(t *testing.T, frameCount int) []byte {
	t.Helper()
	g := &gif.GIF{}
	palette := []color.Color{color.White, color.Black}
	for i := 0; i < frameCount; i++ {
		img := image.NewPaletted(image.Rect(0, 0, 2, 2), palette)
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatalf("building test gif: %v", err)
	}
	return buf.Bytes()
}
