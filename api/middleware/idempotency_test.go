package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
)

type memoryIdempotencyStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryIdempotencyStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string { return scope + "#" + id }

func (m *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
		delete(m.ttls, k)
	}
	return nil
}

const instantPath = "/api/v1/payouts/7f1c/instant"

func idempotentRequest(caller uuid.UUID, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, instantPath, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req.WithContext(WithPrincipal(req.Context(), Principal{UserID: caller, Role: enums.RoleMember}))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotencyRequiresKey(t *testing.T) {
	called := false
	handler := Idempotency(newMemoryIdempotencyStore(), MoneyIdempotencyTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest(uuid.New(), "", `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
	assert.False(t, called)
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	handler := Idempotency(store, MoneyIdempotencyTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"processing"}`))
	}))
	caller := uuid.New()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest(caller, "k1", `{"pin":"1234"}`))
	require.Equal(t, http.StatusAccepted, first.Code)
	assert.Empty(t, first.Header().Get(ReplayedHeader))

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, idempotentRequest(caller, "k1", `{"pin":"1234"}`))
	assert.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get(ReplayedHeader))
	assert.JSONEq(t, `{"status":"processing"}`, replay.Body.String())
	assert.Equal(t, 1, calls)

	for _, ttl := range store.ttls {
		assert.Equal(t, MoneyIdempotencyTTL, ttl)
	}
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	calls := 0
	handler := Idempotency(newMemoryIdempotencyStore(), 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(uuid.New(), "shared", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(uuid.New(), "shared", `{}`))

	assert.Equal(t, 2, calls)
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	handler := Idempotency(newMemoryIdempotencyStore(), 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	caller := uuid.New()

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(caller, "k2", `{"pin":"1234"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest(caller, "k2", `{"pin":"9999"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyReportsInFlightDuplicate(t *testing.T) {
	store := newMemoryIdempotencyStore()
	caller := uuid.New()
	var inner *httptest.ResponseRecorder

	var handler http.Handler
	handler = Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if inner == nil {
			// a duplicate arriving while the first request is still running
			inner = httptest.NewRecorder()
			handler.ServeHTTP(inner, idempotentRequest(caller, "k3", `{}`))
		}
		w.WriteHeader(http.StatusOK)
	}))

	outer := httptest.NewRecorder()
	handler.ServeHTTP(outer, idempotentRequest(caller, "k3", `{}`))

	assert.Equal(t, http.StatusOK, outer.Code)
	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, inner))
}

func TestIdempotencyDoesNotRecordServerErrors(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	handler := Idempotency(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	caller := uuid.New()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest(caller, "k4", `{}`))
	assert.Equal(t, http.StatusBadGateway, first.Code)
	assert.Empty(t, store.data)

	retry := httptest.NewRecorder()
	handler.ServeHTTP(retry, idempotentRequest(caller, "k4", `{}`))
	assert.Equal(t, http.StatusOK, retry.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyPassesThroughWithoutStore(t *testing.T) {
	handler := Idempotency(nil, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest(uuid.New(), "", `{}`))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
