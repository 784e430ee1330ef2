package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const defaultSubscriberBuffer = 100

// InMemoryBus fans events out to subscribers over buffered channels. A
// subscriber that falls behind loses events instead of stalling publishers.
type InMemoryBus struct {
	mu          sync.RWMutex
	nextID      uint64
	buffer      int
	subscribers map[uint64]chan Event
	dropped     atomic.Uint64
}

func NewBus() *InMemoryBus {
	return &InMemoryBus{
		buffer:      defaultSubscriberBuffer,
		subscribers: make(map[uint64]chan Event),
	}
}

// WithBuffer sets the channel capacity for subsequent subscribers.
func (b *InMemoryBus) WithBuffer(size int) *InMemoryBus {
	if size > 0 {
		b.buffer = size
	}
	return b
}

// Publish fills in ID and Timestamp when missing and never blocks.
func (b *InMemoryBus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			total := b.dropped.Add(1)
			slog.Warn("event dropped for slow subscriber",
				"subscriber", id,
				"type", e.Type,
				"dropped_total", total,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan Event, b.buffer)
	b.subscribers[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subscribers, id)
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Dropped reports how many deliveries were skipped since the bus was created.
func (b *InMemoryBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Nop discards events; used where auditing is not wired.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe() (<-chan Event, func()) {
	return make(chan Event), func() {}
}
