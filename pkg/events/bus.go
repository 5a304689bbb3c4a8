package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscriber buffer capacity. A subscriber
// whose buffer overflows is dropped, never waited on.
const DefaultBufferSize = 256

// Bus fans published event batches out to every registered subscriber.
//
// Bus does not serialize publishes against attaches on its own: the store
// calls Register and Publish while holding its mutation lock, which is
// what makes the snapshot/live partition exact. The bus mutex only
// protects the subscriber map against concurrent Close calls from
// session goroutines.
type Bus struct {
	mu      sync.Mutex
	subs    map[string]*Subscriber
	bufSize int
	dropped atomic.Uint64
}

// NewBus creates a Bus with the default per-subscriber buffer size.
func NewBus() *Bus {
	return NewBusWithBuffer(DefaultBufferSize)
}

// NewBusWithBuffer creates a Bus with a custom per-subscriber buffer
// size. Used by tests to force overflow with few events.
func NewBusWithBuffer(size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{
		subs:    make(map[string]*Subscriber),
		bufSize: size,
	}
}

// Subscriber is one attached consumer. Events arrive on Events() in
// publish order until the channel closes. After close, Lagged reports
// whether the subscriber was dropped for falling behind.
type Subscriber struct {
	id     string
	ch     chan Event
	bus    *Bus
	lagged atomic.Bool
}

// Events returns the subscriber's delivery channel. The channel closes
// when the subscriber is dropped, closed, or the bus shuts down.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// ID returns the subscriber's unique id, used in logs.
func (s *Subscriber) ID() string {
	return s.id
}

// Lagged reports whether this subscriber was dropped because its buffer
// overflowed. Only meaningful once Events() has closed.
func (s *Subscriber) Lagged() bool {
	return s.lagged.Load()
}

// Close detaches the subscriber and closes its channel. Safe to call
// from any goroutine, and after the bus has already dropped it.
func (s *Subscriber) Close() {
	s.bus.remove(s.id)
}

// Register attaches a new subscriber and returns it. The caller is
// expected to hold whatever lock serializes registration against
// publishes (the store's).
func (b *Bus) Register() *Subscriber {
	sub := &Subscriber{
		id:  uuid.New().String(),
		ch:  make(chan Event, b.bufSize),
		bus: b,
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Publish delivers a batch to every subscriber, preserving order within
// and across batches. Delivery is a non-blocking enqueue: a subscriber
// whose buffer cannot hold the whole batch is marked lagged and
// dropped. Publish never blocks on a slow consumer.
func (b *Bus) Publish(batch []Event) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		if !b.enqueueLocked(sub, batch) {
			sub.lagged.Store(true)
			delete(b.subs, id)
			close(sub.ch)
			b.dropped.Add(1)
			slog.Warn("dropping lagged subscriber",
				"subscriber_id", sub.id, "buffer", b.bufSize)
		}
	}
}

// enqueueLocked tries to buffer the whole batch for one subscriber.
// Batches are all-or-nothing: a partial batch would break the pairing
// of correlated events, so the first full buffer fails the subscriber.
func (b *Bus) enqueueLocked(sub *Subscriber, batch []Event) bool {
	if cap(sub.ch)-len(sub.ch) < len(batch) {
		return false
	}
	for _, evt := range batch {
		sub.ch <- evt
	}
	return true
}

// remove detaches a subscriber by id, closing its channel if it is
// still registered. Idempotent: a subscriber already dropped by
// Publish is a no-op here.
func (b *Bus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Shutdown detaches every subscriber. In-flight buffered events remain
// readable until each channel drains; nothing new is delivered.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of currently attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// DroppedTotal returns the number of subscribers dropped for lagging
// since the bus was created.
func (b *Bus) DroppedTotal() uint64 {
	return b.dropped.Load()
}
