// Package reserve decides whether a group's reserve fund can cover a member's
// escrow shortfall before a scheduled payout.
package reserve

import (
	"context"

	"github.com/google/uuid"
)

// CoverRequest asks the reserve to make sure UserID holds at least ExpectedAmount in escrow.
type CoverRequest struct {
	GroupID        uuid.UUID `json:"groupId"`
	UserID         uuid.UUID `json:"userId"`
	ExpectedAmount int64     `json:"expectedAmount"`
	PayoutID       uuid.UUID `json:"payoutId"`
}

// Coverer tops up escrow from the reserve. A false result with a nil error is a decline.
type Coverer interface {
	Cover(ctx context.Context, req CoverRequest) (bool, error)
}
