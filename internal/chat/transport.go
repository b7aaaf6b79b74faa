package chat

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// ErrSendFailed is a transient delivery failure. The sender may retry, up to
// the service's retry cap.
var ErrSendFailed = errors.New("message send failed")

// Transport delivers chat messages. The core does not own delivery; this
// interface is the seam where a real messaging backend would plug in.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// SimTransport simulates a messaging backend: deliveries take a fixed
// latency and every Nth delivery fails. It exists for the prototype's UI
// feedback loop and for exercising the retry path.
type SimTransport struct {
	latency   time.Duration
	failEvery int

	mu    sync.Mutex
	count int
}

// NewSimTransport creates a simulated transport. latency is the per-delivery
// delay; failEvery makes every Nth delivery fail with ErrSendFailed
// (0 disables failures).
func NewSimTransport(latency time.Duration, failEvery int) *SimTransport {
	return &SimTransport{latency: latency, failEvery: failEvery}
}

// Deliver waits out the simulated latency and reports success or a simulated
// failure. Cancelling the context abandons the wait; nothing is rolled back
// because nothing was committed.
func (t *SimTransport) Deliver(ctx context.Context, _ Message) error {
	if t.latency > 0 {
		timer := time.NewTimer(t.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if t.failEvery > 0 {
		t.mu.Lock()
		t.count++
		fail := t.count%t.failEvery == 0
		t.mu.Unlock()
		if fail {
			return ErrSendFailed
		}
	}
	return nil
}
