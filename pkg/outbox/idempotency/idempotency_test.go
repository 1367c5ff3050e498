package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]time.Duration{}}
}

func (m *memoryStore) Get(context.Context, string) (string, error) { return "", nil }

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "rosca:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func TestGuardClaimOnce(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewGuard(store, "outbox-publisher", 24*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	placed, err := guard.Claim(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, placed)

	placed, err = guard.Claim(ctx, eventID)
	require.NoError(t, err)
	assert.False(t, placed)

	key := "rosca:idempotency:evt:outbox-publisher:" + eventID.String()
	assert.Equal(t, 24*time.Hour, store.keys[key])
}

func TestGuardReleaseAllowsReclaim(t *testing.T) {
	guard, err := NewGuard(newMemoryStore(), "outbox-publisher", time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	_, err = guard.Claim(ctx, eventID)
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, eventID))

	placed, err := guard.Claim(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, placed)
}

func TestGuardErrors(t *testing.T) {
	store := newMemoryStore()
	store.err = assert.AnError
	guard, err := NewGuard(store, "outbox-publisher", time.Hour)
	require.NoError(t, err)

	_, err = guard.Claim(context.Background(), uuid.New())
	assert.ErrorIs(t, err, assert.AnError)
	_, err = guard.Claim(context.Background(), uuid.Nil)
	assert.Error(t, err)
	assert.Error(t, guard.Release(context.Background(), uuid.Nil))

	_, err = NewGuard(nil, "outbox-publisher", time.Hour)
	assert.Error(t, err)
	_, err = NewGuard(store, "", time.Hour)
	assert.Error(t, err)
}
