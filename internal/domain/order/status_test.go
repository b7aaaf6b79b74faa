package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_AllPairs(t *testing.T) {
	statuses := []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

	legal := map[[2]Status]bool{
		{StatusPending, StatusInProgress}:   true,
		{StatusPending, StatusCancelled}:    true,
		{StatusInProgress, StatusCompleted}: true,
		{StatusInProgress, StatusCancelled}: true,
	}

	// Exactly the four listed pairs are legal out of all 16.
	for _, from := range statuses {
		for _, to := range statuses {
			want := legal[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_SelfIsNotATransition(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled} {
		assert.False(t, CanTransition(s, s), "%s -> %s", s, s)
	}
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	assert.False(t, CanTransition(Status("bogus"), StatusPending))
	assert.False(t, CanTransition(StatusPending, Status("bogus")))
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Status("").Valid())
	assert.False(t, Status("done").Valid())
}
