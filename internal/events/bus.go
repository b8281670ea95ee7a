// Package events is the in-process notification fabric: components publish
// facts about data changes, interested parties subscribe. Publishing never
// blocks; a subscriber that cannot keep up loses events rather than stalling
// writers.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/farmkeeper/farmkeeper/internal/logging"
	"github.com/farmkeeper/farmkeeper/internal/models"
)

// DataSynced is published after each reconciliation pass, carrying the pass
// report.
const DataSynced = "data.synced"

// Name builds the event name for an entity change: "<kind>.created",
// "<kind>.updated" or "<kind>.deleted".
func Name(k models.Kind, op models.Operation) string {
	switch op {
	case models.OpCreate:
		return string(k) + ".created"
	case models.OpUpdate:
		return string(k) + ".updated"
	case models.OpDelete:
		return string(k) + ".deleted"
	default:
		return string(k) + "." + string(op)
	}
}

// Event is one published fact.
type Event struct {
	ID   string
	Name string
	At   time.Time
	Data any
}

// Bus fans events out to subscribers. The zero value is not usable; call
// NewBus.
type Bus struct {
	log logging.Logger

	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool

	dropped atomic.Uint64
}

// NewBus builds an empty bus.
func NewBus(log logging.Logger) *Bus {
	if log == nil {
		log = logging.Nop{}
	}
	return &Bus{
		log:  log,
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers a subscriber with the given channel buffer and returns
// its channel plus an unsubscribe function. The channel is closed on
// unsubscribe and on bus Close.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers e to every subscriber without blocking. Subscribers with
// a full buffer miss the event; the drop is counted and logged.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
			b.log.Warn(context.Background(), "event dropped, subscriber too slow",
				"event", e.Name, "subscriber", fmt.Sprintf("%d", id))
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close shuts the bus down: all subscriber channels are closed and further
// publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
