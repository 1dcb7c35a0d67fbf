package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/discord-agent/orchestrator/pkg/models"
)

type recordingObserver struct {
	mu         sync.Mutex
	progress   []*models.ProgressEvent
	chunks     []*models.StreamingChunk
	completed  bool
	completion string
	errs       []error
}

func (r *recordingObserver) OnProgress(event *models.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, event)
}

func (r *recordingObserver) OnStreamingChunk(chunk *models.StreamingChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
}

func (r *recordingObserver) OnStreamingComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = true
}

func (r *recordingObserver) OnCompletion(finalText string, sources []models.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completion = finalText
}

func (r *recordingObserver) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingObserver) snapshotChunks() []*models.StreamingChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.StreamingChunk(nil), r.chunks...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestBus_DeliversInOrder(t *testing.T) {
	obs := &recordingObserver{}
	bus := NewBus()
	bus.Register(obs, nil)
	ctx := context.Background()

	bus.OnProgress(ctx, &models.ProgressEvent{Stage: models.StageStarting})
	bus.OnProgress(ctx, &models.ProgressEvent{Stage: models.StageSearching})
	bus.OnCompletion(ctx, "final answer", nil)
	bus.Close()

	if len(obs.progress) != 2 {
		t.Fatalf("expected 2 progress events, got %d", len(obs.progress))
	}
	if obs.progress[0].Stage != models.StageStarting || obs.progress[1].Stage != models.StageSearching {
		t.Errorf("progress events out of order: %+v", obs.progress)
	}
	if obs.completion != "final answer" {
		t.Errorf("expected completion to be delivered, got %q", obs.completion)
	}
}

func TestBus_ObserverPanicDoesNotPropagate(t *testing.T) {
	bus := NewBus()
	bus.Register(panicObserver{}, nil)
	obs := &recordingObserver{}
	bus.Register(obs, nil)

	ctx := context.Background()
	bus.OnProgress(ctx, &models.ProgressEvent{Stage: models.StageStarting})
	bus.OnCompletion(ctx, "ok", nil)
	bus.Close()

	if obs.completion != "ok" {
		t.Errorf("expected second observer to still receive completion despite first panicking, got %q", obs.completion)
	}
}

type panicObserver struct{}

func (panicObserver) OnProgress(*models.ProgressEvent)              { panic("boom") }
func (panicObserver) OnStreamingChunk(*models.StreamingChunk)       { panic("boom") }
func (panicObserver) OnStreamingComplete()                          { panic("boom") }
func (panicObserver) OnCompletion(string, []models.Source)          { panic("boom") }
func (panicObserver) OnError(error)                                 { panic("boom") }

func TestBus_CoalescesChunksUntilFinal(t *testing.T) {
	obs := &recordingObserver{}
	bus := NewBus()
	bus.Register(obs, &CoalesceOptions{MinInterval: time.Hour, MaxBufferedChars: 10_000})

	ctx := context.Background()
	bus.OnStreamingChunk(ctx, &models.StreamingChunk{Content: "hello "})
	bus.OnStreamingChunk(ctx, &models.StreamingChunk{Content: "world", IsFinal: true})
	bus.Close()

	waitFor(t, func() bool { return len(obs.snapshotChunks()) == 1 })
	got := obs.snapshotChunks()
	if got[0].Content != "hello world" {
		t.Errorf("expected merged chunk %q, got %q", "hello world", got[0].Content)
	}
	if !got[0].IsFinal {
		t.Error("expected merged final chunk to carry IsFinal=true")
	}
}

func TestBus_CoalesceFlushesOnMaxSize(t *testing.T) {
	obs := &recordingObserver{}
	bus := NewBus()
	bus.Register(obs, &CoalesceOptions{MinInterval: time.Hour, MaxBufferedChars: 5})

	ctx := context.Background()
	bus.OnStreamingChunk(ctx, &models.StreamingChunk{Content: "123456"})
	bus.Close()

	waitFor(t, func() bool { return len(obs.snapshotChunks()) == 1 })
}

func TestTruncateCodePoints(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 16, "short"},
		{"this is a much longer phrase", 16, "this is a much …"},
		{"", 16, ""},
	}
	for _, c := range cases {
		if got := truncateCodePoints(c.in, c.n); got != c.want {
			t.Errorf("truncateCodePoints(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}
