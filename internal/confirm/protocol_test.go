package confirm_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianshufei/meetnow/internal/confirm"
	"github.com/bianshufei/meetnow/internal/domain/order"
	"github.com/bianshufei/meetnow/internal/store"
)

func newFixture(t *testing.T) (*store.Store, *confirm.Protocol, order.Order) {
	t.Helper()
	st := store.New()
	p := confirm.New(st)
	st.SetTakeHook(p.Drop)

	o, err := st.Create(store.CreateParams{
		CreatorID: "alice",
		Location:  "Central Park",
		Amount:    decimal.RequireFromString("25.00"),
	})
	require.NoError(t, err)
	return st, p, o
}

func TestInitiate(t *testing.T) {
	_, p, o := newFixture(t)

	require.NoError(t, p.Initiate(o.ID, "bob"))

	state, initiator := p.Status(o.ID)
	assert.Equal(t, confirm.StatePending, state)
	assert.Equal(t, "bob", initiator)
}

func TestInitiate_OnlyOneOutstanding(t *testing.T) {
	_, p, o := newFixture(t)

	require.NoError(t, p.Initiate(o.ID, "bob"))
	assert.ErrorIs(t, p.Initiate(o.ID, "alice"), confirm.ErrRequestOutstanding)
}

func TestInitiate_UnknownOrder(t *testing.T) {
	_, p, _ := newFixture(t)

	var nf *order.NotFoundError
	assert.ErrorAs(t, p.Initiate("missing", "bob"), &nf)
}

func TestInitiate_TerminalOrder(t *testing.T) {
	st, p, o := newFixture(t)
	_, err := st.Take(o.ID, "bob")
	require.NoError(t, err)
	_, err = st.UpdateStatus(o.ID, order.StatusCompleted)
	require.NoError(t, err)

	var ise *confirm.InvalidStateError
	require.ErrorAs(t, p.Initiate(o.ID, "alice"), &ise)
	assert.Equal(t, order.StatusCompleted, ise.Status)
}

func TestInitiate_InProgressRequiresParticipant(t *testing.T) {
	st, p, o := newFixture(t)
	_, err := st.Take(o.ID, "bob")
	require.NoError(t, err)

	assert.ErrorIs(t, p.Initiate(o.ID, "mallory"), confirm.ErrNotParticipant)
	require.NoError(t, p.Initiate(o.ID, "alice"))
}

func TestAccept_PromotesPendingOrder(t *testing.T) {
	st, p, o := newFixture(t)

	// Prospective taker asks, creator accepts.
	require.NoError(t, p.Initiate(o.ID, "bob"))
	require.NoError(t, p.Accept(o.ID, "alice"))

	got, err := st.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusInProgress, got.Status)
	assert.Equal(t, "bob", got.TakerID)

	state, _ := p.Status(o.ID)
	assert.Equal(t, confirm.StateNone, state)
}

func TestAccept_CreatorInitiated(t *testing.T) {
	st, p, o := newFixture(t)

	// Creator asks, the prospective taker accepts and becomes the taker.
	require.NoError(t, p.Initiate(o.ID, "alice"))
	require.NoError(t, p.Accept(o.ID, "bob"))

	got, err := st.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusInProgress, got.Status)
	assert.Equal(t, "bob", got.TakerID)
}

func TestAccept_InitiatorCannotRespond(t *testing.T) {
	_, p, o := newFixture(t)

	require.NoError(t, p.Initiate(o.ID, "bob"))
	assert.ErrorIs(t, p.Accept(o.ID, "bob"), confirm.ErrInitiatorResponse)
	assert.ErrorIs(t, p.Reject(o.ID, "bob"), confirm.ErrInitiatorResponse)
}

func TestAccept_WithoutRequest(t *testing.T) {
	_, p, o := newFixture(t)

	assert.ErrorIs(t, p.Accept(o.ID, "alice"), confirm.ErrNoActiveRequest)
	assert.ErrorIs(t, p.Reject(o.ID, "alice"), confirm.ErrNoActiveRequest)
}

func TestAccept_PendingRequiresCreatorParty(t *testing.T) {
	_, p, o := newFixture(t)

	// Two strangers cannot handshake a pending order between themselves.
	require.NoError(t, p.Initiate(o.ID, "bob"))
	assert.ErrorIs(t, p.Accept(o.ID, "mallory"), confirm.ErrNotParticipant)
}

func TestAccept_InProgressIsNoOp(t *testing.T) {
	st, p, o := newFixture(t)
	_, err := st.Take(o.ID, "bob")
	require.NoError(t, err)

	require.NoError(t, p.Initiate(o.ID, "alice"))
	require.NoError(t, p.Accept(o.ID, "bob"))

	got, err := st.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusInProgress, got.Status)
	assert.Equal(t, "bob", got.TakerID)
}

func TestReject_ResetsAndAllowsRetry(t *testing.T) {
	_, p, o := newFixture(t)

	require.NoError(t, p.Initiate(o.ID, "bob"))
	require.NoError(t, p.Reject(o.ID, "alice"))

	state, _ := p.Status(o.ID)
	assert.Equal(t, confirm.StateNone, state)

	// Either side may try again after a rejection.
	require.NoError(t, p.Initiate(o.ID, "alice"))
}

func TestReject_CapBoundsReinitiation(t *testing.T) {
	_, p, o := newFixture(t)

	for i := 0; i < confirm.DefaultRejectionLimit; i++ {
		require.NoError(t, p.Initiate(o.ID, "bob"))
		require.NoError(t, p.Reject(o.ID, "alice"))
	}

	assert.ErrorIs(t, p.Initiate(o.ID, "bob"), confirm.ErrTooManyRequests)
}

func TestDirectClaimDropsHandshake(t *testing.T) {
	st, p, o := newFixture(t)

	require.NoError(t, p.Initiate(o.ID, "bob"))

	// carol claims the order directly; the take hook clears the handshake.
	_, err := st.Take(o.ID, "carol")
	require.NoError(t, err)

	state, _ := p.Status(o.ID)
	assert.Equal(t, confirm.StateNone, state)
	assert.ErrorIs(t, p.Accept(o.ID, "alice"), confirm.ErrNoActiveRequest)
}

func TestRespond_TerminalOrderDropsHandshake(t *testing.T) {
	st, p, o := newFixture(t)

	require.NoError(t, p.Initiate(o.ID, "bob"))
	_, err := st.UpdateStatus(o.ID, order.StatusCancelled)
	require.NoError(t, err)

	var ise *confirm.InvalidStateError
	require.ErrorAs(t, p.Accept(o.ID, "alice"), &ise)
	assert.Equal(t, order.StatusCancelled, ise.Status)

	state, _ := p.Status(o.ID)
	assert.Equal(t, confirm.StateNone, state)
}
