// Package events is the in-process change feed. The facade publishes one
// Change per successful mutation; the WebSocket hub and any other interested
// component subscribe.
package events

import (
	"sync"
	"time"

	"github.com/agromarket/price-tracker/internal/metrics"
)

// Op is the kind of mutation.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// Change describes one mutated document. Kind is the collection name.
type Change struct {
	Kind string    `json:"kind"`
	Op   Op        `json:"op"`
	ID   string    `json:"id"`
	At   time.Time `json:"at"`
}

// Publisher is the write side of the broker.
type Publisher interface {
	Publish(c Change)
}

// Broker fans changes out to subscribers without ever blocking the
// publisher. A subscriber whose buffer is full misses the change.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]chan Change
	nextID int
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Change)}
}

// Publish delivers c to every subscriber with room in its buffer.
func (b *Broker) Publish(c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	metrics.EventsPublished.WithLabelValues(c.Kind, string(c.Op)).Inc()
	for _, ch := range b.subs {
		select {
		case ch <- c:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func unsubscribes
// and closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

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
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broker) Close() {
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
