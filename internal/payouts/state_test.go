package payouts

import (
	"testing"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to enums.PayoutStatus
		want     bool
	}{
		{enums.PayoutStatusPending, enums.PayoutStatusProcessing, true},
		{enums.PayoutStatusPending, enums.PayoutStatusFailed, true},
		{enums.PayoutStatusProcessing, enums.PayoutStatusCompleted, true},
		{enums.PayoutStatusProcessing, enums.PayoutStatusFailed, true},
		{enums.PayoutStatusPending, enums.PayoutStatusCompleted, false},
		{enums.PayoutStatusCompleted, enums.PayoutStatusFailed, false},
		{enums.PayoutStatusFailed, enums.PayoutStatusPending, false},
		{enums.PayoutStatusFailed, enums.PayoutStatusProcessing, false},
		{enums.PayoutStatusProcessing, enums.PayoutStatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestChargeIDFor(t *testing.T) {
	if got := ChargeIDFor("abc"); got != "payout_abc" {
		t.Fatalf("unexpected charge id %q", got)
	}
}
