package gateway

import (
	"strings"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

var (
	successStatuses = map[string]struct{}{
		"success":    {},
		"successful": {},
		"succeeded":  {},
		"completed":  {},
		"paid":       {},
	}
	failureStatuses = map[string]struct{}{
		"failed":    {},
		"failure":   {},
		"declined":  {},
		"rejected":  {},
		"cancelled": {},
		"canceled":  {},
		"reversed":  {},
		"expired":   {},
	}
)

// MapStatus translates the gateway vocabulary into a payout status. Anything
// outside the success or failure sets (including an empty string) stays processing.
func MapStatus(raw string) enums.PayoutStatus {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := successStatuses[normalized]; ok {
		return enums.PayoutStatusCompleted
	}
	if _, ok := failureStatuses[normalized]; ok {
		return enums.PayoutStatusFailed
	}
	return enums.PayoutStatusProcessing
}
