package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a meetup request posted by a creator and optionally
// claimed by a taker. ID and the descriptive fields are immutable after
// creation; Status and TakerID change only through the store.
type Order struct {
	ID            string
	Status        Status
	CreatorID     string
	TakerID       string
	ScheduledTime time.Time
	Location      string
	Amount        decimal.Decimal
	Description   string
	CreatedAt     time.Time
}

// Role describes how a viewer relates to a specific order.
type Role string

const (
	RoleCreator Role = "creator"
	RoleTaker   Role = "taker"
	RoleNone    Role = "none"
)

// RoleOf derives the viewer's role for this order. Roles are never stored;
// they follow from the identity fields.
func (o *Order) RoleOf(viewerID string) Role {
	switch {
	case viewerID == "":
		return RoleNone
	case viewerID == o.CreatorID:
		return RoleCreator
	case viewerID == o.TakerID && o.TakerID != "":
		return RoleTaker
	default:
		return RoleNone
	}
}

// IsParticipant reports whether the viewer is one of the order's two parties.
func (o *Order) IsParticipant(viewerID string) bool {
	return o.RoleOf(viewerID) != RoleNone
}
