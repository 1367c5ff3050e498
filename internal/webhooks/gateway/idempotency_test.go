package gatewaywebhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	keys map[string]struct{}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if _, ok := f.keys[key]; ok {
		return "1", nil
	}
	return "", nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.keys == nil {
		f.keys = map[string]struct{}{}
	}
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = struct{}{}
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "rosca:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.keys, k)
	}
	return nil
}

func TestIdempotencyGuardMarksAndReleases(t *testing.T) {
	store := &fakeStore{}
	guard, err := NewIdempotencyGuard(store, time.Hour, "gateway")
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(context.Background(), "payout_1:completed")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Contains(t, store.keys, "rosca:idempotency:gateway:payout_1:completed")

	seen, err = guard.CheckAndMark(context.Background(), "payout_1:completed")
	require.NoError(t, err)
	assert.True(t, seen)

	// a different mapped status is a distinct delivery
	seen, err = guard.CheckAndMark(context.Background(), "payout_1:failed")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, guard.Delete(context.Background(), "payout_1:completed"))
	seen, err = guard.CheckAndMark(context.Background(), "payout_1:completed")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuardValidation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour, "gateway")
	assert.Error(t, err)
	_, err = NewIdempotencyGuard(&fakeStore{}, time.Hour, "")
	assert.Error(t, err)
	guard, err := NewIdempotencyGuard(&fakeStore{}, 0, "gateway")
	require.NoError(t, err)
	_, err = guard.CheckAndMark(context.Background(), "")
	assert.Error(t, err)
}
