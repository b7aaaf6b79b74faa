// Package relay broadcasts order status changes to interested observers
// (chat views, list views, the SSE endpoint) without coupling them to the
// store. Delivery is fire-and-forget and at-most-once: a subscriber whose
// buffer is full misses the event, and there is no replay for late
// subscribers. Events for a single order arrive in commit order because the
// store publishes while holding its mutation lock.
package relay

import (
	"sync"

	"github.com/bianshufei/meetnow/internal/domain/order"
)

// Event describes a committed status change on one order.
type Event struct {
	OrderID   string
	NewStatus order.Status
}

// Relay fans out events to all current subscribers.
type Relay struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// New creates an empty Relay.
func New() *Relay {
	return &Relay{subs: make(map[int]chan Event)}
}

// Subscribe registers a new observer. The returned channel carries at most
// buffer undelivered events; once full, further events are dropped for this
// subscriber. The cancel function removes the subscription and closes the
// channel. It is safe to call cancel more than once.
func (r *Relay) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	r.mu.Lock()
	id := r.next
	r.next++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers evt to every current subscriber without blocking. A
// subscriber that cannot keep up loses the event; the mutation that produced
// it has already committed and is never rolled back.
func (r *Relay) Publish(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (r *Relay) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
