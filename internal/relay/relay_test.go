package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianshufei/meetnow/internal/domain/order"
)

func TestPublish_FansOut(t *testing.T) {
	r := New()
	a, cancelA := r.Subscribe(4)
	defer cancelA()
	b, cancelB := r.Subscribe(4)
	defer cancelB()

	evt := Event{OrderID: "o1", NewStatus: order.StatusInProgress}
	r.Publish(evt)

	assert.Equal(t, evt, <-a)
	assert.Equal(t, evt, <-b)
}

func TestPublish_DropsWhenBufferFull(t *testing.T) {
	r := New()
	ch, cancel := r.Subscribe(1)
	defer cancel()

	first := Event{OrderID: "o1", NewStatus: order.StatusInProgress}
	second := Event{OrderID: "o1", NewStatus: order.StatusCompleted}
	r.Publish(first)
	r.Publish(second) // buffer full, dropped

	require.Len(t, ch, 1)
	assert.Equal(t, first, <-ch)
	assert.Empty(t, ch)
}

func TestPublish_PerOrderOrdering(t *testing.T) {
	r := New()
	ch, cancel := r.Subscribe(8)
	defer cancel()

	seq := []order.Status{order.StatusInProgress, order.StatusCompleted}
	for _, s := range seq {
		r.Publish(Event{OrderID: "o1", NewStatus: s})
	}

	for _, want := range seq {
		assert.Equal(t, want, (<-ch).NewStatus)
	}
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	r := New()
	ch, cancel := r.Subscribe(1)

	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, r.SubscriberCount())

	// Publishing after cancellation must not panic or deliver.
	r.Publish(Event{OrderID: "o1", NewStatus: order.StatusCancelled})

	// Double cancel is a no-op.
	cancel()
}

func TestPublish_NoSubscribers(t *testing.T) {
	r := New()
	r.Publish(Event{OrderID: "o1", NewStatus: order.StatusInProgress})
	assert.Equal(t, 0, r.SubscriberCount())
}
