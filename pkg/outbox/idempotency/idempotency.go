// Package idempotency keeps a short-lived redis mark per published outbox
// event. A publisher that crashes after Pub/Sub accepted a message but before
// published_at was written finds the mark on restart and skips the resend.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/redis"
)

var errEventIDRequired = errors.New("event id is required")

type Guard struct {
	store redis.IdempotencyStore
	scope string
	ttl   time.Duration
	now   func() time.Time
}

// NewGuard scopes marks to worker. Keys look like
// rosca:idempotency:evt:<worker>:<event id>.
func NewGuard(store redis.IdempotencyStore, worker string, ttl time.Duration) (*Guard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case worker == "":
		return nil, errors.New("worker name is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, scope: "evt:" + worker, ttl: ttl, now: time.Now}, nil
}

// Claim marks eventID and reports whether this call placed the mark. False
// means an earlier attempt already handed the event off.
func (g *Guard) Claim(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, errEventIDRequired
	}
	placed, err := g.store.SetNX(ctx, g.key(eventID), g.now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return placed, nil
}

// Release drops the mark after a failed publish so the retry goes out.
func (g *Guard) Release(ctx context.Context, eventID uuid.UUID) error {
	if eventID == uuid.Nil {
		return errEventIDRequired
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *Guard) key(eventID uuid.UUID) string {
	return g.store.IdempotencyKey(g.scope, eventID.String())
}
