// Package chat records per-order conversations and carries the confirmation
// handshake as specially tagged messages. Delivery is simulated: sends go
// through a Transport that may fail, and failed messages are retried by the
// user up to a fixed cap, after which they are permanently failed.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Kind tags a message. Confirmation signals ride the chat channel rather
// than a separate one; the confirm kinds drive the handshake protocol before
// the message is recorded.
type Kind string

const (
	KindText           Kind = "text"
	KindConfirmRequest Kind = "confirm_request"
	KindConfirmAccept  Kind = "confirm_accept"
	KindConfirmReject  Kind = "confirm_reject"
)

// Valid reports whether k is a known message kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindConfirmRequest, KindConfirmAccept, KindConfirmReject:
		return true
	}
	return false
}

// DeliveryState is the delivery outcome recorded on a message.
type DeliveryState string

const (
	DeliveryDelivered         DeliveryState = "delivered"
	DeliveryFailed            DeliveryState = "failed"
	DeliveryFailedPermanently DeliveryState = "failed_permanently"
)

// DefaultMaxRetries bounds user-initiated retries for a failed send.
const DefaultMaxRetries = 3

// Message is one chat message in an order's conversation.
type Message struct {
	ID       string
	OrderID  string
	SenderID string
	Kind     Kind
	Body     string
	SentAt   time.Time
	Delivery DeliveryState
	Retries  int
}

// Sentinel errors for sending and retrying.
var (
	ErrOrderRequired     = errors.New("order id required")
	ErrSenderRequired    = errors.New("sender id required")
	ErrUnknownKind       = errors.New("unknown message kind")
	ErrNotRetryable      = errors.New("message is not in a failed state")
	ErrPermanentlyFailed = errors.New("message permanently failed, retries exhausted")
)

// MessageNotFoundError indicates the referenced message id has no record.
type MessageNotFoundError struct {
	ID string
}

func (e *MessageNotFoundError) Error() string {
	return fmt.Sprintf("message %s not found", e.ID)
}

// ConfirmProtocol is the handshake surface the chat service drives when a
// confirm-tagged message is sent.
type ConfirmProtocol interface {
	Initiate(orderID, byID string) error
	Accept(orderID, byID string) error
	Reject(orderID, byID string) error
}

// Service records conversations and mediates sends through the transport.
type Service struct {
	transport  Transport
	protocol   ConfirmProtocol
	maxRetries int
	now        func() time.Time

	mu       sync.Mutex
	messages map[string]*Message
	byOrder  map[string][]string
}

// Option configures a Service.
type Option func(*Service)

// WithMaxRetries overrides the retry cap for failed sends.
func WithMaxRetries(n int) Option {
	return func(s *Service) { s.maxRetries = n }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a chat Service. protocol may be nil when confirmation
// messages are not in play (tests exercising plain text).
func NewService(transport Transport, protocol ConfirmProtocol, opts ...Option) *Service {
	s := &Service{
		transport:  transport,
		protocol:   protocol,
		maxRetries: DefaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
		messages:   make(map[string]*Message),
		byOrder:    make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendRequest holds the input for sending a message.
type SendRequest struct {
	OrderID  string
	SenderID string
	Kind     Kind
	Body     string
}

// Send validates the request, drives the confirmation protocol for tagged
// kinds, delivers through the transport, and records the message with its
// delivery outcome. A transport failure is not an error here: the message is
// recorded as failed and the caller may retry it. A protocol failure aborts
// the send entirely; nothing is recorded.
func (s *Service) Send(ctx context.Context, req SendRequest) (Message, error) {
	if req.OrderID == "" {
		return Message{}, ErrOrderRequired
	}
	if req.SenderID == "" {
		return Message{}, ErrSenderRequired
	}
	if req.Kind == "" {
		req.Kind = KindText
	}
	if !req.Kind.Valid() {
		return Message{}, ErrUnknownKind
	}

	if err := s.driveProtocol(req); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:       uuid.New().String(),
		OrderID:  req.OrderID,
		SenderID: req.SenderID,
		Kind:     req.Kind,
		Body:     req.Body,
		SentAt:   s.now(),
	}

	// Delivery happens outside the lock; a cancelled context abandons only
	// this send's outcome, the recorded state below stays committed.
	err := s.transport.Deliver(ctx, msg)
	if err != nil {
		msg.Delivery = DeliveryFailed
	} else {
		msg.Delivery = DeliveryDelivered
	}

	s.mu.Lock()
	s.messages[msg.ID] = &msg
	s.byOrder[msg.OrderID] = append(s.byOrder[msg.OrderID], msg.ID)
	s.mu.Unlock()

	return msg, nil
}

func (s *Service) driveProtocol(req SendRequest) error {
	if req.Kind == KindText {
		return nil
	}
	if s.protocol == nil {
		return errors.New("confirmation protocol not configured")
	}
	switch req.Kind {
	case KindConfirmRequest:
		return s.protocol.Initiate(req.OrderID, req.SenderID)
	case KindConfirmAccept:
		return s.protocol.Accept(req.OrderID, req.SenderID)
	case KindConfirmReject:
		return s.protocol.Reject(req.OrderID, req.SenderID)
	default:
		return ErrUnknownKind
	}
}

// Retry re-attempts delivery of a failed message. After maxRetries failed
// attempts the message flips to failed_permanently and further retries are
// refused without contacting the transport.
func (s *Service) Retry(ctx context.Context, messageID string) (Message, error) {
	s.mu.Lock()
	m, ok := s.messages[messageID]
	if !ok {
		s.mu.Unlock()
		return Message{}, &MessageNotFoundError{ID: messageID}
	}
	switch m.Delivery {
	case DeliveryFailedPermanently:
		s.mu.Unlock()
		return Message{}, ErrPermanentlyFailed
	case DeliveryFailed:
	default:
		s.mu.Unlock()
		return Message{}, ErrNotRetryable
	}
	attempt := *m
	s.mu.Unlock()

	err := s.transport.Deliver(ctx, attempt)

	s.mu.Lock()
	defer s.mu.Unlock()
	m.Retries++
	if err != nil {
		m.Delivery = DeliveryFailed
		if m.Retries >= s.maxRetries {
			m.Delivery = DeliveryFailedPermanently
		}
	} else {
		m.Delivery = DeliveryDelivered
	}
	return *m, nil
}

// Get returns a copy of one message.
func (s *Service) Get(messageID string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return Message{}, &MessageNotFoundError{ID: messageID}
	}
	return *m, nil
}

// History returns the order's messages in send order.
func (s *Service) History(orderID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byOrder[orderID]
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			out = append(out, *m)
		}
	}
	return out
}
