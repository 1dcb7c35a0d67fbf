package urldetect

import (
	"encoding/json"
	"testing"
)

func TestDetect_MatchesYouTubeLink(t *testing.T) {
	d := NewVideoLinkDetector("video_summary")
	call := d.Detect("check this out https://www.youtube.com/watch?v=abc123 neat right")
	if call == nil {
		t.Fatal("expected a match")
	}
	if call.Name != "video_summary" {
		t.Fatalf("unexpected tool name: %s", call.Name)
	}
	var args struct{ URL string }
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		t.Fatalf("unmarshal args: %v", err)
	}
	if args.URL == "" {
		t.Fatal("expected a non-empty url")
	}
}

func TestDetect_NoMatch(t *testing.T) {
	d := NewVideoLinkDetector("video_summary")
	if call := d.Detect("just some regular text, no links here"); call != nil {
		t.Fatalf("expected no match, got %+v", call)
	}
}

func TestDetect_IgnoresNonVideoURLs(t *testing.T) {
	d := NewVideoLinkDetector("video_summary")
	if call := d.Detect("see https://example.com/page for details"); call != nil {
		t.Fatalf("expected no match for a non-video url, got %+v", call)
	}
}
