package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 30 * time.Minute

// Lock gives one cron replica the cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// refresher is implemented by locks whose lease can be extended mid-cycle.
type refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	LockKey(name string) string
}

// RedisLock is a lease on a single redis key. The value is a per-acquire token,
// and release and refresh only touch the key while it still holds that token,
// so a replica whose lease expired can never free a lock someone else now holds.
type RedisLock struct {
	store  lockStore
	key    string
	ttl    time.Duration
	holder string

	mu    sync.Mutex
	token string
}

// NewRedisLock builds the lock named name. holder prefixes the token (the
// worker instance id) so the current owner is visible with a plain GET.
func NewRedisLock(store lockStore, name, holder string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case name == "":
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: store.LockKey(name), ttl: ttl, holder: holder}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	if l.holder != "" {
		token = l.holder + ":" + token
	}
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return false, nil
	}
	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return true, nil
}

// Refresh extends the lease. False means the lease was lost.
func (l *RedisLock) Refresh(ctx context.Context) (bool, error) {
	l.mu.Lock()
	token := l.token
	l.mu.Unlock()
	if token == "" {
		return false, nil
	}
	ok, err := l.store.ExpireIfValue(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("refresh %s: %w", l.key, err)
	}
	if !ok {
		l.forget(token)
	}
	return ok, nil
}

// Release is a no-op when this instance holds no lease.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	if _, err := l.store.DelIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	l.forget(token)
	return nil
}

func (l *RedisLock) forget(token string) {
	l.mu.Lock()
	if l.token == token {
		l.token = ""
	}
	l.mu.Unlock()
}
