// Package progress implements the Progress Bus: a per-invocation fanout to
// registered Observers, each fed through its own backpressure lane so a slow
// transport can never stall the Orchestrator, plus optional chunk
// coalescing and auto-generated stage blurbs.
package progress

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// Observer is the per-invocation callback contract. Implementations must be
// safe for concurrent use; a Bus delivers calls to a given Observer strictly
// in emission order, but different Observers may be serviced concurrently.
type Observer interface {
	OnProgress(event *models.ProgressEvent)
	OnStreamingChunk(chunk *models.StreamingChunk)
	OnStreamingComplete()
	OnCompletion(finalText string, sources []models.Source)
	OnError(err error)
}

type callKind int

const (
	callProgress callKind = iota
	callChunk
	callStreamingComplete
	callCompletion
	callError
)

// call is the envelope carried through an observer's lane.
type call struct {
	kind      callKind
	progress  *models.ProgressEvent
	chunk     *models.StreamingChunk
	finalText string
	sources   []models.Source
	err       error
}

// terminal calls (completion/error) are never dropped under backpressure,
// nor is a final streaming chunk: it carries the tail of the answer, and
// dropping it would break the chunk-concatenation-equals-final-text
// invariant. Progress ticks and non-final chunks are droppable since a
// missed tick or intermediate chunk is harmless as long as the stream
// still completes.
func (c call) droppable() bool {
	if c.kind == callChunk {
		return c.chunk == nil || !c.chunk.IsFinal
	}
	return c.kind == callProgress
}

// lane is one observer's backpressure-isolated delivery pipe, mirroring the
// two-priority-channel merge pattern used for agent event delivery: a small
// buffered high-priority channel for terminal calls, a larger low-priority
// channel for high-volume calls, merged by run, which services highPri
// ahead of lowPri.
type lane struct {
	observer Observer
	highPri  chan call
	lowPri   chan call
	dropped  uint64
	closed   uint32
	done     chan struct{}
}

func newLane(observer Observer, highBuf, lowBuf int) *lane {
	l := &lane{
		observer: observer,
		highPri:  make(chan call, highBuf),
		lowPri:   make(chan call, lowBuf),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *lane) run() {
	defer close(l.done)
	for {
		select {
		case c, ok := <-l.highPri:
			if !ok {
				l.drainLowPri()
				return
			}
			l.deliver(c)
			continue
		default:
		}

		select {
		case c, ok := <-l.highPri:
			if !ok {
				l.drainLowPri()
				return
			}
			l.deliver(c)
		case c, ok := <-l.lowPri:
			if ok {
				l.deliver(c)
			}
		}
	}
}

func (l *lane) drainLowPri() {
	for c := range l.lowPri {
		l.deliver(c)
	}
}

// deliver invokes the observer, recovering from panics and never letting an
// observer failure propagate back into the orchestrator.
func (l *lane) deliver(c call) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("progress: observer panic recovered: %v", r)
		}
	}()
	switch c.kind {
	case callProgress:
		l.observer.OnProgress(c.progress)
	case callChunk:
		l.observer.OnStreamingChunk(c.chunk)
	case callStreamingComplete:
		l.observer.OnStreamingComplete()
	case callCompletion:
		l.observer.OnCompletion(c.finalText, c.sources)
	case callError:
		l.observer.OnError(c.err)
	}
}

func (l *lane) emit(ctx context.Context, c call) {
	if atomic.LoadUint32(&l.closed) == 1 {
		return
	}
	if c.droppable() {
		select {
		case l.lowPri <- c:
		default:
			atomic.AddUint64(&l.dropped, 1)
			log.Printf("progress: dropped event for observer, backpressure lane full (total dropped: %d)", atomic.LoadUint64(&l.dropped))
		}
		return
	}

	select {
	case l.highPri <- c:
	case <-ctx.Done():
		select {
		case l.highPri <- c:
		default:
			atomic.AddUint64(&l.dropped, 1)
		}
	}
}

func (l *lane) close() {
	if !atomic.CompareAndSwapUint32(&l.closed, 0, 1) {
		return
	}
	close(l.highPri)
	close(l.lowPri)
	<-l.done
}

func (l *lane) droppedCount() uint64 {
	return atomic.LoadUint64(&l.dropped)
}
