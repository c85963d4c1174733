// Package progress delivers decomposition and execution progress events.
package progress

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/decomp/pkg/models"
)

// DefaultBufferSize is the event buffer used when none is given.
const DefaultBufferSize = 256

// sendGrace is how long Emit waits on a full buffer before dropping.
const sendGrace = 100 * time.Millisecond

// Emitter is a non-blocking event channel. Producers never stall for longer
// than a short grace period; slow or absent consumers cause events to be
// dropped and counted.
type Emitter struct {
	events       chan models.ProgressEvent
	droppedCount atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Emitter{
		events: make(chan models.ProgressEvent, bufferSize),
	}
}

// Emit sends an event. A zero Timestamp is filled in. Emitting on a nil or
// closed Emitter is a no-op.
func (e *Emitter) Emit(event models.ProgressEvent) {
	if e == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(sendGrace):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[progress] WARNING: event buffer full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// Events returns the receive side of the event channel.
func (e *Emitter) Events() <-chan models.ProgressEvent {
	return e.events
}

// DroppedCount returns the total number of dropped events.
func (e *Emitter) DroppedCount() uint64 {
	if e == nil {
		return 0
	}
	return e.droppedCount.Load()
}

// Close closes the event channel. It is safe to call more than once.
func (e *Emitter) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.events)
}

// Fraction returns done/total clamped to [0, 1]. A zero total counts as done.
func Fraction(done, total int) float64 {
	if total <= 0 {
		return 1
	}
	f := float64(done) / float64(total)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
