package payouts

import "github.com/angelmondragon/rosca-settlement/pkg/enums"

var allowedTransitions = map[enums.PayoutStatus][]enums.PayoutStatus{
	enums.PayoutStatusPending:    {enums.PayoutStatusProcessing, enums.PayoutStatusFailed},
	enums.PayoutStatusProcessing: {enums.PayoutStatusCompleted, enums.PayoutStatusFailed},
}

// CanTransition reports whether a payout may move from one status to another.
// Completed and failed are terminal.
func CanTransition(from, to enums.PayoutStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ChargeIDFor is the idempotent dispatch id sent to the gateway for a payout.
func ChargeIDFor(payoutID string) string {
	return "payout_" + payoutID
}
