package progress

import (
	"context"
	"sync"

	"github.com/discord-agent/orchestrator/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultHighPriBuffer = 32
	defaultLowPriBuffer  = 256
)

var (
	deliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_bus_delivered_total",
		Help: "Number of progress bus calls delivered to an observer, by kind.",
	}, []string{"kind"})
	droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_bus_dropped_total",
		Help: "Number of droppable progress bus calls dropped due to a saturated observer lane.",
	})
	coalescedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_bus_coalesced_total",
		Help: "Number of streaming chunks merged into a prior pending chunk instead of delivered separately.",
	})
)

func init() {
	prometheus.MustRegister(deliveredTotal, droppedTotal, coalescedTotal)
}

// Bus is a per-invocation Progress Bus. One Bus exists per graph run;
// observers register with Register before the graph starts and the Bus is
// discarded (Close'd) once the invocation completes.
type Bus struct {
	mu    sync.RWMutex
	lanes []*lane
}

// NewBus returns an empty Bus. Call Register for each observer, then feed
// events via OnProgress/OnStreamingChunk/etc.
func NewBus() *Bus {
	return &Bus{}
}

// Register adds an observer. opts, if given, configures chunk coalescing;
// pass nil to deliver every chunk as emitted.
func (b *Bus) Register(observer Observer, opts *CoalesceOptions) {
	if observer == nil {
		return
	}
	if opts != nil {
		observer = newCoalescer(observer, *opts)
	}
	l := newLane(observer, defaultHighPriBuffer, defaultLowPriBuffer)
	b.mu.Lock()
	b.lanes = append(b.lanes, l)
	b.mu.Unlock()
}

func (b *Bus) emit(ctx context.Context, c call) {
	deliveredTotal.WithLabelValues(kindLabel(c.kind)).Inc()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.lanes {
		l.emit(ctx, c)
	}
}

func kindLabel(k callKind) string {
	switch k {
	case callProgress:
		return "progress"
	case callChunk:
		return "chunk"
	case callStreamingComplete:
		return "streaming_complete"
	case callCompletion:
		return "completion"
	case callError:
		return "error"
	default:
		return "unknown"
	}
}

// OnProgress broadcasts a stage transition or mid-stage tick to all observers.
func (b *Bus) OnProgress(ctx context.Context, event *models.ProgressEvent) {
	b.emit(ctx, call{kind: callProgress, progress: event})
}

// OnStreamingChunk broadcasts a partial answer chunk during Finalize.
func (b *Bus) OnStreamingChunk(ctx context.Context, chunk *models.StreamingChunk) {
	b.emit(ctx, call{kind: callChunk, chunk: chunk})
}

// OnStreamingComplete signals that no further chunks will arrive.
func (b *Bus) OnStreamingComplete(ctx context.Context) {
	b.emit(ctx, call{kind: callStreamingComplete})
}

// OnCompletion broadcasts the final answer exactly once, on success.
func (b *Bus) OnCompletion(ctx context.Context, finalText string, sources []models.Source) {
	b.emit(ctx, call{kind: callCompletion, finalText: finalText, sources: sources})
}

// OnError broadcasts an unrecoverable failure.
func (b *Bus) OnError(ctx context.Context, err error) {
	b.emit(ctx, call{kind: callError, err: err})
}

// HasObservers reports whether any observer is currently registered.
func (b *Bus) HasObservers() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lanes) > 0
}

// DroppedCount sums droppable-call drops across all registered lanes, for
// diagnostics/metrics.
func (b *Bus) DroppedCount() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total uint64
	for _, l := range b.lanes {
		total += l.droppedCount()
	}
	return total
}

// Close drains and stops every observer lane. Call once the invocation (and
// any streaming) has fully finished.
func (b *Bus) Close() {
	b.mu.RLock()
	lanes := append([]*lane(nil), b.lanes...)
	b.mu.RUnlock()
	for _, l := range lanes {
		l.close()
	}
}
