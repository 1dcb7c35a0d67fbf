package progress

import (
	"sync"
	"time"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// CoalesceOptions bounds how long and how much a coalescer buffers before
// flushing a merged chunk to the wrapped observer.
type CoalesceOptions struct {
	// MinInterval is the minimum time between flushed chunks.
	MinInterval time.Duration
	// MaxBufferedChars is a hard ceiling on accumulated content; reaching it
	// forces an immediate flush regardless of MinInterval.
	MaxBufferedChars int
}

// DefaultCoalesceOptions mirrors the spec's suggested defaults: a half
// second minimum interval and a 1500-character ceiling to respect
// downstream transport message-size limits.
func DefaultCoalesceOptions() CoalesceOptions {
	return CoalesceOptions{MinInterval: 500 * time.Millisecond, MaxBufferedChars: 1500}
}

// coalescer wraps an Observer, batching OnStreamingChunk calls per
// MinInterval/MaxBufferedChars, flushing immediately on chunk.IsFinal and on
// OnStreamingComplete. All other calls pass through untouched.
type coalescer struct {
	next Observer
	opts CoalesceOptions

	mu        sync.Mutex
	buf       string
	lastFlush time.Time
}

func newCoalescer(next Observer, opts CoalesceOptions) *coalescer {
	if opts.MinInterval <= 0 {
		opts.MinInterval = 500 * time.Millisecond
	}
	if opts.MaxBufferedChars <= 0 {
		opts.MaxBufferedChars = 1500
	}
	return &coalescer{next: next, opts: opts, lastFlush: time.Now()}
}

func (c *coalescer) OnProgress(event *models.ProgressEvent) { c.next.OnProgress(event) }

func (c *coalescer) OnStreamingChunk(chunk *models.StreamingChunk) {
	if chunk == nil {
		return
	}
	c.mu.Lock()

	if chunk.IsFinal {
		merged := c.buf + chunk.Content
		c.buf = ""
		c.lastFlush = time.Now()
		c.mu.Unlock()
		c.next.OnStreamingChunk(&models.StreamingChunk{Content: merged, IsFinal: true})
		return
	}

	c.buf += chunk.Content
	overSize := len(c.buf) >= c.opts.MaxBufferedChars
	dueForFlush := time.Since(c.lastFlush) >= c.opts.MinInterval

	if overSize || dueForFlush {
		flushed := c.buf
		c.buf = ""
		c.lastFlush = time.Now()
		c.mu.Unlock()
		c.next.OnStreamingChunk(&models.StreamingChunk{Content: flushed})
		return
	}

	coalescedTotal.Inc()
	c.mu.Unlock()
}

func (c *coalescer) OnStreamingComplete() {
	c.mu.Lock()
	pending := c.buf
	c.buf = ""
	c.mu.Unlock()
	if pending != "" {
		c.next.OnStreamingChunk(&models.StreamingChunk{Content: pending})
	}
	c.next.OnStreamingComplete()
}

func (c *coalescer) OnCompletion(finalText string, sources []models.Source) {
	c.next.OnCompletion(finalText, sources)
}

func (c *coalescer) OnError(err error) {
	c.next.OnError(err)
}
