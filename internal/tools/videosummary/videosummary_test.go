package videosummary

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type countingSummarizer struct {
	calls   int
	summary string
}

func (s *countingSummarizer) Summarize(ctx context.Context, videoURL string) (string, error) {
	s.calls++
	return s.summary, nil
}

func TestExecute_CachesByCanonicalID(t *testing.T) {
	summarizer := &countingSummarizer{summary: "a video about gophers"}
	tool := New(summarizer, time.Hour)

	args, _ := json.Marshal(input{URL: "https://www.youtube.com/watch?v=abc123"})
	first := tool.Execute(context.Background(), args)
	if !first.Success || first.Content != "a video about gophers" {
		t.Fatalf("unexpected first result: %+v", first)
	}

	args2, _ := json.Marshal(input{URL: "https://youtu.be/abc123"})
	second := tool.Execute(context.Background(), args2)
	if !second.Success {
		t.Fatalf("unexpected second result: %+v", second)
	}
	if summarizer.calls != 1 {
		t.Errorf("expected cache hit to avoid re-summarizing, got %d calls", summarizer.calls)
	}
}

func TestExecute_ExpiresAfterTTL(t *testing.T) {
	summarizer := &countingSummarizer{summary: "x"}
	tool := New(summarizer, time.Millisecond)
	start := time.Now()
	tool.now = func() time.Time { return start }

	args, _ := json.Marshal(input{URL: "https://youtu.be/zzz"})
	tool.Execute(context.Background(), args)

	tool.now = func() time.Time { return start.Add(time.Hour) }
	tool.Execute(context.Background(), args)

	if summarizer.calls != 2 {
		t.Errorf("expected expired entry to trigger re-summarization, got %d calls", summarizer.calls)
	}
}

var errSummarize = errors.New("boom")

type failingSummarizer struct{}

func (failingSummarizer) Summarize(ctx context.Context, videoURL string) (string, error) {
	return "", errSummarize
}

func TestExecute_PropagatesSummarizerError(t *testing.T) {
	tool := New(failingSummarizer{}, time.Hour)
	args, _ := json.Marshal(input{URL: "https://youtu.be/fail"})

	res := tool.Execute(context.Background(), args)
	if res.Success {
		t.Fatal("expected failure")
	}
}
