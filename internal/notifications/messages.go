package notifications

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

var failureBodies = map[enums.FailureCategory]string{
	enums.FailureNoPaymentMethod:   "We could not send your payout because no payment method is on file. Add one to receive it.",
	enums.FailureInsufficientFunds: "Your payout could not be sent because the group pot is short this cycle.",
	enums.FailureGatewayDeclined:   "Your payout was declined by the payment provider.",
	enums.FailureProcessingError:   "Your payout could not be processed. Our team has been notified.",
}

// PayoutSent tells the recipient their payout is on its way.
func PayoutSent(payoutID, recipientID uuid.UUID, net int64, currency string, instant bool) Notification {
	title := "Payout sent"
	if instant {
		title = "Instant payout sent"
	}
	return Notification{
		UserIDs:       []uuid.UUID{recipientID},
		Title:         title,
		Body:          fmt.Sprintf("%d %s is on its way to your payment method.", net, currency),
		Data:          map[string]string{"type": "payout_sent", "payoutId": payoutID.String()},
		AggregateType: enums.AggregatePayout,
		AggregateID:   payoutID,
	}
}

// PayoutFailed carries only the failure category, never gateway text.
func PayoutFailed(payoutID, recipientID uuid.UUID, category enums.FailureCategory) Notification {
	body, ok := failureBodies[category]
	if !ok {
		body = failureBodies[enums.FailureProcessingError]
		category = enums.FailureProcessingError
	}
	return Notification{
		UserIDs:       []uuid.UUID{recipientID},
		Title:         "Payout failed",
		Body:          body,
		Data:          map[string]string{"type": "payout_failed", "payoutId": payoutID.String(), "category": category.String()},
		AggregateType: enums.AggregatePayout,
		AggregateID:   payoutID,
	}
}

// ContributionFailed asks the contributor to try again.
func ContributionFailed(contributionID, userID uuid.UUID) Notification {
	return Notification{
		UserIDs:       []uuid.UUID{userID},
		Title:         "Contribution failed",
		Body:          "Your contribution payment did not go through. Please try again.",
		Data:          map[string]string{"type": "contribution_failed", "contributionId": contributionID.String()},
		AggregateType: enums.AggregateContribution,
		AggregateID:   contributionID,
	}
}
