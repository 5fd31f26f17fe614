// Package events is the gate's notification channel: an append-only,
// strictly ordered observer list.
package events

import (
	"sync"
	"time"

	"github.com/gipsh/safe-approver-go/internal/types"
)

// Handler receives published events. It runs on the publisher's goroutine
// and must not call back into the Bus.
type Handler func(types.Event)

// Emitter is the publishing side of the bus.
type Emitter interface {
	Emit(types.Event) types.Event
}

// Bus delivers every event to every subscriber in subscription order.
type Bus struct {
	mu       sync.Mutex
	seq      uint64
	nextID   int
	handlers []subscription
	now      func() time.Time
}

type subscription struct {
	id int
	fn Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{now: time.Now}
}

// Subscribe registers fn and returns a func that removes it.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.handlers {
			if s.id == id {
				b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Emit stamps ev with the next sequence number and delivers it before
// returning. Delivery holds the bus lock so no two events interleave.
func (b *Bus) Emit(ev types.Event) types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev.Seq = b.seq
	ev.Time = b.now().UTC()
	for _, s := range b.handlers {
		s.fn(ev)
	}
	return ev
}

// Seq returns the sequence number of the last published event.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Recorder is a Handler that keeps every event it sees.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

// Handle appends ev.
func (r *Recorder) Handle(ev types.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []types.EventKind {
	evs := r.Events()
	out := make([]types.EventKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}
