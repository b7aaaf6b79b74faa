// Package confirm models the meetup confirmation handshake: the two-step
// mutual agreement that promotes an order from pending to in_progress
// without a unilateral claim. The handshake is transient, per-order state —
// it is never persisted as its own store entity, and at most one request is
// outstanding per order at a time.
//
// The store transition to in_progress is only ever invoked as a consequence
// of an accepted handshake (or through the direct claim path); no single
// participant can force it alone.
package confirm

import (
	"fmt"
	"sync"

	"github.com/go-faster/errors"

	"github.com/bianshufei/meetnow/internal/domain/order"
)

// State is the handshake state for one order.
type State string

const (
	StateNone     State = "none"
	StatePending  State = "pending"
	StateAccepted State = "accepted"
	StateRejected State = "rejected"
)

// DefaultRejectionLimit caps how many times a rejected handshake may be
// re-initiated on one order, mirroring the message retry cap.
const DefaultRejectionLimit = 3

// Sentinel errors for out-of-sequence protocol use. The UI is expected to
// prevent these through disabled controls, so seeing one signals a
// UI/state desync worth logging.
var (
	ErrNoActiveRequest    = errors.New("no confirmation request is pending")
	ErrRequestOutstanding = errors.New("a confirmation request is already pending")
	ErrInitiatorResponse  = errors.New("initiator cannot respond to their own request")
	ErrNotParticipant     = errors.New("not a party to this order")
	ErrTooManyRequests    = errors.New("confirmation request limit reached for this order")
)

// InvalidStateError indicates the protocol was invoked while the order's
// status does not admit a handshake.
type InvalidStateError struct {
	Status order.Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order status %s does not allow a confirmation request", e.Status)
}

// OrderStore is the narrow store surface the protocol needs.
type OrderStore interface {
	Get(id string) (order.Order, error)
	Take(orderID, takerID string) (order.Order, error)
	UpdateStatus(orderID string, next order.Status) (order.Order, error)
}

// handshake tracks the outstanding request and the rejection count for one
// order. The rejection count survives resets until the order is claimed or
// leaves pending.
type handshake struct {
	state       State
	initiatorID string
	rejections  int
}

// Protocol manages confirmation handshakes across orders.
type Protocol struct {
	mu             sync.Mutex
	store          OrderStore
	handshakes     map[string]*handshake
	rejectionLimit int
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithRejectionLimit overrides the per-order rejected-request cap.
func WithRejectionLimit(n int) Option {
	return func(p *Protocol) { p.rejectionLimit = n }
}

// New creates a Protocol bound to the given store.
func New(store OrderStore, opts ...Option) *Protocol {
	p := &Protocol{
		store:          store,
		handshakes:     make(map[string]*handshake),
		rejectionLimit: DefaultRejectionLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Status returns the current handshake state and initiator for an order.
func (p *Protocol) Status(orderID string) (State, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.handshakes[orderID]
	if !ok || h.state != StatePending {
		return StateNone, ""
	}
	return StatePending, h.initiatorID
}

// Initiate opens a confirmation request on the order. On a pending order the
// initiator may be the creator or any prospective taker; on an in_progress
// order it must be one of the two participants. Terminal orders reject the
// request with InvalidStateError.
func (p *Protocol) Initiate(orderID, byID string) error {
	if byID == "" {
		return ErrNotParticipant
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o, err := p.store.Get(orderID)
	if err != nil {
		return err
	}

	switch o.Status {
	case order.StatusPending:
		// Anyone but nobody: the counterpart of an unclaimed order is
		// whichever prospective taker is chatting with the creator.
	case order.StatusInProgress:
		if !o.IsParticipant(byID) {
			return ErrNotParticipant
		}
	default:
		return &InvalidStateError{Status: o.Status}
	}

	h, ok := p.handshakes[orderID]
	if !ok {
		h = &handshake{state: StateNone}
		p.handshakes[orderID] = h
	}
	if h.state == StatePending {
		return ErrRequestOutstanding
	}
	if h.rejections >= p.rejectionLimit {
		return ErrTooManyRequests
	}

	h.state = StatePending
	h.initiatorID = byID
	return nil
}

// Accept completes an outstanding request. Only the non-initiating
// counterpart may accept. On a pending order acceptance claims the order for
// the non-creator party and drives the pending→in_progress transition; on an
// order already in_progress it is a no-op beyond resetting the handshake.
func (p *Protocol) Accept(orderID, byID string) error {
	p.mu.Lock()

	o, h, err := p.respondChecksLocked(orderID, byID)
	if err != nil {
		p.mu.Unlock()
		return err
	}

	// Consume the handshake before mutating the store: acceptance is
	// terminal for this handshake instance and a fresh request may follow.
	initiator := h.initiatorID
	delete(p.handshakes, orderID)
	p.mu.Unlock()

	if o.Status != order.StatusPending {
		// Already in progress: nothing to drive.
		return nil
	}

	// The non-creator party of the handshake becomes the taker. The store
	// lock is not held here, so the claim's take hook can re-enter Drop
	// without deadlocking.
	takerID := initiator
	if takerID == o.CreatorID {
		takerID = byID
	}
	if _, err := p.store.Take(orderID, takerID); err != nil {
		return errors.Wrap(err, "promote accepted order")
	}
	return nil
}

// Reject declines an outstanding request. The order stays pending, the
// handshake resets to none, and either side may try again until the
// rejection cap is reached.
func (p *Protocol) Reject(orderID, byID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, h, err := p.respondChecksLocked(orderID, byID)
	if err != nil {
		return err
	}

	h.state = StateNone
	h.initiatorID = ""
	h.rejections++
	return nil
}

// Drop discards all handshake state for an order. The store invokes it
// through the take hook when a direct claim lands, and the app calls it when
// an order reaches a terminal status.
func (p *Protocol) Drop(orderID string) {
	p.mu.Lock()
	delete(p.handshakes, orderID)
	p.mu.Unlock()
}

// respondChecksLocked validates an accept/reject attempt. Callers hold p.mu.
func (p *Protocol) respondChecksLocked(orderID, byID string) (order.Order, *handshake, error) {
	h, ok := p.handshakes[orderID]
	if !ok || h.state != StatePending {
		return order.Order{}, nil, ErrNoActiveRequest
	}
	if byID == h.initiatorID {
		return order.Order{}, nil, ErrInitiatorResponse
	}
	if byID == "" {
		return order.Order{}, nil, ErrNotParticipant
	}

	o, err := p.store.Get(orderID)
	if err != nil {
		return order.Order{}, nil, err
	}

	switch o.Status {
	case order.StatusPending:
		// The handshake parties are the initiator and the responder; one of
		// them must be the creator, the other is the prospective taker.
		if o.CreatorID != h.initiatorID && o.CreatorID != byID {
			return order.Order{}, nil, ErrNotParticipant
		}
	case order.StatusInProgress:
		if !o.IsParticipant(byID) {
			return order.Order{}, nil, ErrNotParticipant
		}
	default:
		// The order reached a terminal status while the request was
		// outstanding; the handshake is moot.
		delete(p.handshakes, orderID)
		return order.Order{}, nil, &InvalidStateError{Status: o.Status}
	}

	return o, h, nil
}
