package coordinator

import (
	"sync"
	"time"
)

// DefaultDiagnosticsDepth is how many entries each diagnostics buffer keeps.
const DefaultDiagnosticsDepth = 20

// BoundFifo is a fixed-capacity newest-first buffer. Pushing beyond
// capacity evicts the oldest entry.
//
// Thread Safety: safe for concurrent use.
type BoundFifo[T any] struct {
	mu    sync.RWMutex
	items []T
	max   int
}

// NewBoundFifo creates a buffer holding at most max entries.
func NewBoundFifo[T any](max int) *BoundFifo[T] {
	if max <= 0 {
		max = DefaultDiagnosticsDepth
	}
	return &BoundFifo[T]{max: max}
}

// Push inserts an entry at the front, evicting the oldest entry when full.
func (b *BoundFifo[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append([]T{item}, b.items...)
	if len(b.items) > b.max {
		b.items = b.items[:b.max]
	}
}

// Items returns a copy of the buffer contents, newest first.
func (b *BoundFifo[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of buffered entries.
func (b *BoundFifo[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Event is one diagnostics buffer entry.
type Event struct {
	// Time is when the event was recorded (UTC).
	Time time.Time `json:"time"`

	// Summary is a short human-readable description.
	Summary string `json:"summary"`

	// Detail carries event-specific payload fields, if any.
	Detail map[string]any `json:"detail,omitempty"`
}

// Recorder keeps rolling diagnostics for one device: recent push
// messages, recent commands, and recent refresh outcomes. A disabled
// recorder drops everything, so callers never need to branch.
type Recorder struct {
	enabled  bool
	Messages *BoundFifo[Event]
	Commands *BoundFifo[Event]
	Updates  *BoundFifo[Event]
}

// NewRecorder creates a diagnostics recorder with the given buffer depth.
func NewRecorder(enabled bool, depth int) *Recorder {
	return &Recorder{
		enabled:  enabled,
		Messages: NewBoundFifo[Event](depth),
		Commands: NewBoundFifo[Event](depth),
		Updates:  NewBoundFifo[Event](depth),
	}
}

// Enabled reports whether the recorder is keeping events.
func (r *Recorder) Enabled() bool {
	return r.enabled
}

// RecordMessage records a received push update.
func (r *Recorder) RecordMessage(summary string, detail map[string]any) {
	if !r.enabled {
		return
	}
	r.Messages.Push(Event{Time: time.Now().UTC(), Summary: summary, Detail: detail})
}

// RecordCommand records an executed command and its outcome.
func (r *Recorder) RecordCommand(name string, err error) {
	if !r.enabled {
		return
	}
	event := Event{Time: time.Now().UTC(), Summary: name}
	if err != nil {
		event.Detail = map[string]any{"error": err.Error()}
	}
	r.Commands.Push(event)
}

// RecordUpdate records a refresh outcome.
func (r *Recorder) RecordUpdate(source string, err error) {
	if !r.enabled {
		return
	}
	event := Event{Time: time.Now().UTC(), Summary: source}
	if err != nil {
		event.Detail = map[string]any{"error": err.Error()}
	}
	r.Updates.Push(event)
}

// Report is a point-in-time copy of all diagnostics buffers.
type Report struct {
	Enabled  bool    `json:"enabled"`
	Messages []Event `json:"messages"`
	Commands []Event `json:"commands"`
	Updates  []Event `json:"updates"`
}

// Snapshot returns a copy of the current buffer contents.
func (r *Recorder) Snapshot() Report {
	return Report{
		Enabled:  r.enabled,
		Messages: r.Messages.Items(),
		Commands: r.Commands.Items(),
		Updates:  r.Updates.Items(),
	}
}
