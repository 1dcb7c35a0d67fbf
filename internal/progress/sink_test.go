package progress

import (
	"context"
	"testing"
	"time"

	"github.com/discord-agent/orchestrator/pkg/models"
)

func TestCallDroppable_FinalChunkIsNotDroppable(t *testing.T) {
	cases := []struct {
		name string
		c    call
		want bool
	}{
		{"progress tick", call{kind: callProgress}, true},
		{"non-final chunk", call{kind: callChunk, chunk: &models.StreamingChunk{}}, true},
		{"final chunk", call{kind: callChunk, chunk: &models.StreamingChunk{IsFinal: true}}, false},
		{"completion", call{kind: callCompletion}, false},
		{"error", call{kind: callError}, false},
	}
	for _, c := range cases {
		if got := c.c.droppable(); got != c.want {
			t.Errorf("%s: droppable() = %v, want %v", c.name, got, c.want)
		}
	}
}

// TestLane_FinalChunkSurvivesLowPriSaturation reproduces the backpressure
// scenario where a slow observer's low-priority lane is full of dropped
// non-final chunks: the final chunk must still be delivered, since it
// carries the tail of the answer and the chunk-concatenation-equals-
// final-text invariant depends on it.
func TestLane_FinalChunkSurvivesLowPriSaturation(t *testing.T) {
	obs := &recordingObserver{}
	block := make(chan struct{})
	blockingObs := &blockingObserver{recordingObserver: obs, block: block}

	// Block the lane's single worker goroutine on the first low-pri chunk so
	// the buffer backs up behind it.
	l := newLane(blockingObs, defaultHighPriBuffer, 1)

	ctx := context.Background()
	l.emit(ctx, call{kind: callChunk, chunk: &models.StreamingChunk{Content: "a"}})
	for i := 0; i < defaultLowPriBuffer*2; i++ {
		l.emit(ctx, call{kind: callChunk, chunk: &models.StreamingChunk{Content: "drop me"}})
	}
	l.emit(ctx, call{kind: callChunk, chunk: &models.StreamingChunk{Content: "tail", IsFinal: true}})

	close(block)
	l.close()

	waitFor(t, func() bool { return len(obs.snapshotChunks()) > 0 })
	chunks := obs.snapshotChunks()
	var sawFinal bool
	for _, c := range chunks {
		if c.IsFinal {
			if c.Content != "tail" {
				t.Fatalf("expected the final chunk's content to survive, got %+v", c)
			}
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Fatalf("expected the final chunk to be delivered despite lane saturation, got %+v", chunks)
	}
	if l.droppedCount() == 0 {
		t.Fatal("expected the low-pri lane to actually be saturated (some drops) for this test to be meaningful")
	}
}

type blockingObserver struct {
	*recordingObserver
	block   chan struct{}
	blocked bool
}

func (b *blockingObserver) OnStreamingChunk(chunk *models.StreamingChunk) {
	if !b.blocked {
		b.blocked = true
		<-b.block
	}
	b.recordingObserver.OnStreamingChunk(chunk)
}

func TestLane_DropsNonFinalChunksUnderSaturation(t *testing.T) {
	block := make(chan struct{})
	blockingObs := &blockingObserver{recordingObserver: &recordingObserver{}, block: block}
	l := newLane(blockingObs, defaultHighPriBuffer, 1)
	ctx := context.Background()

	// The first emit is picked up and blocks the worker goroutine immediately;
	// every emit after that piles up behind a 1-slot buffer and must drop.
	for i := 0; i < 10; i++ {
		l.emit(ctx, call{kind: callChunk, chunk: &models.StreamingChunk{Content: "x"}})
	}
	time.Sleep(10 * time.Millisecond)
	close(block)
	l.close()

	if l.droppedCount() == 0 {
		t.Error("expected at least one dropped non-final chunk under saturation")
	}
}
