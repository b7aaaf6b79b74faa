// Package store holds the authoritative mapping from order id to order
// record. Every read and write of order state funnels through a Store
// instance; there is no package-level singleton. One mutex serializes all
// mutations, validator checks, and event publication, so mutations on a
// single order are totally ordered and the relay observes them in commit
// order.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bianshufei/meetnow/internal/domain/order"
	"github.com/bianshufei/meetnow/internal/relay"
)

// Sentinel errors for order creation and claiming.
var (
	ErrCreatorRequired = errors.New("creator id required")
	ErrTakerRequired   = errors.New("taker id required")
	ErrOwnOrder        = errors.New("cannot take your own order")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrDuplicateID     = errors.New("order id already exists")
)

// Notifier receives an event for every committed status change.
type Notifier interface {
	Publish(evt relay.Event)
}

// Store is the single source of truth for orders.
type Store struct {
	mu       sync.Mutex
	orders   map[string]*order.Order
	notifier Notifier
	now      func() time.Time

	// takeHook runs after a successful claim, outside the store lock. The
	// confirmation protocol registers itself here so a direct claim cancels
	// any outstanding handshake on the same order.
	takeHook func(orderID string)
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets the event sink for status changes.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		orders: make(map[string]*order.Order),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTakeHook registers a callback invoked after every successful Take. It
// exists so the confirmation protocol can be wired in after construction;
// the protocol itself needs the store first.
func (s *Store) SetTakeHook(fn func(orderID string)) {
	s.mu.Lock()
	s.takeHook = fn
	s.mu.Unlock()
}

// CreateParams holds the input for posting a new order.
type CreateParams struct {
	CreatorID     string
	ScheduledTime time.Time
	Location      string
	Amount        decimal.Decimal
	Description   string
}

// Create posts a new pending order and returns a copy of the stored record.
func (s *Store) Create(p CreateParams) (order.Order, error) {
	if strings.TrimSpace(p.CreatorID) == "" {
		return order.Order{}, ErrCreatorRequired
	}
	if p.Amount.IsNegative() {
		return order.Order{}, ErrNegativeAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o := &order.Order{
		ID:            uuid.New().String(),
		Status:        order.StatusPending,
		CreatorID:     p.CreatorID,
		ScheduledTime: p.ScheduledTime,
		Location:      p.Location,
		Amount:        p.Amount,
		Description:   p.Description,
		CreatedAt:     s.now(),
	}
	s.orders[o.ID] = o
	return *o, nil
}

// Insert adds a fully formed order record, used when restoring a snapshot or
// seeding fixtures. It never overwrites an existing record and publishes no
// event.
func (s *Store) Insert(o order.Order) error {
	if o.ID == "" {
		return errors.New("order id required")
	}
	if !o.Status.Valid() {
		return errors.Errorf("invalid status %q for order %s", o.Status, o.ID)
	}
	if strings.TrimSpace(o.CreatorID) == "" {
		return ErrCreatorRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return ErrDuplicateID
	}
	s.orders[o.ID] = &o
	return nil
}

// Get returns a copy of the order with the given id.
func (s *Store) Get(id string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, &order.NotFoundError{ID: id}
	}
	return *o, nil
}

// Filter narrows the result of List. The zero value matches nothing useful:
// a viewer and role are required.
type Filter struct {
	ViewerID string
	Role     order.Role
	// Status narrows results to one status. The zero value means all.
	Status order.Status
}

// List returns the orders visible to the viewer in the given role, ordered
// by creation time (oldest first, id as tiebreaker).
//
// Creators see the orders they posted. Takers see the orders they have
// claimed plus every open pending order, so unclaimed work is discoverable.
func (s *Store) List(f Filter) []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []order.Order
	for _, o := range s.orders {
		if !matches(o, f) {
			continue
		}
		out = append(out, *o)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func matches(o *order.Order, f Filter) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	switch f.Role {
	case order.RoleCreator:
		return o.CreatorID == f.ViewerID
	case order.RoleTaker:
		if o.TakerID == f.ViewerID && f.ViewerID != "" {
			return true
		}
		return o.Status == order.StatusPending
	default:
		return false
	}
}

// Take claims a pending order for the given taker: it sets TakerID and
// transitions the order to in_progress through the validator. The claim
// cancels any outstanding confirmation handshake via the registered take
// hook.
func (s *Store) Take(orderID, takerID string) (order.Order, error) {
	if strings.TrimSpace(takerID) == "" {
		return order.Order{}, ErrTakerRequired
	}

	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return order.Order{}, &order.NotFoundError{ID: orderID}
	}
	if o.CreatorID == takerID {
		s.mu.Unlock()
		return order.Order{}, ErrOwnOrder
	}
	if o.Status != order.StatusPending {
		s.mu.Unlock()
		return order.Order{}, &order.InvalidTransitionError{From: o.Status, To: order.StatusInProgress}
	}
	if !order.CanTransition(o.Status, order.StatusInProgress) {
		s.mu.Unlock()
		return order.Order{}, &order.InvalidTransitionError{From: o.Status, To: order.StatusInProgress}
	}

	o.TakerID = takerID
	o.Status = order.StatusInProgress
	snapshot := *o
	s.publishLocked(relay.Event{OrderID: orderID, NewStatus: o.Status})
	hook := s.takeHook
	s.mu.Unlock()

	// The hook runs outside the lock: it calls back into the confirmation
	// protocol, which in turn holds its own lock around store calls.
	if hook != nil {
		hook(orderID)
	}
	return snapshot, nil
}

// UpdateStatus moves an order to the requested status if the transition
// table allows it, then publishes a status event.
func (s *Store) UpdateStatus(orderID string, next order.Status) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return order.Order{}, &order.NotFoundError{ID: orderID}
	}
	if !order.CanTransition(o.Status, next) {
		return order.Order{}, &order.InvalidTransitionError{From: o.Status, To: next}
	}

	o.Status = next
	s.publishLocked(relay.Event{OrderID: orderID, NewStatus: next})
	return *o, nil
}

// Len returns the number of stored orders.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// publishLocked emits a status event while holding the store lock, which
// keeps events for one order in commit order. Publish never blocks, so
// holding the lock here is safe.
func (s *Store) publishLocked(evt relay.Event) {
	if s.notifier != nil {
		s.notifier.Publish(evt)
	}
}
