package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gatewaywebhook "github.com/angelmondragon/rosca-settlement/internal/webhooks/gateway"
	"github.com/angelmondragon/rosca-settlement/pkg/security"
)

const testSecret = "whsec_test"

var completedPayout = []byte(`{"event_type":"api.payout","data":{"transaction":{"charge_id":"payout_abc","status":"success","ref_id":"r-1"}}}`)

func TestGatewayWebhook_SuccessAndIdempotent(t *testing.T) {
	service := &fakeGatewayService{}
	metrics := &countingMetrics{}
	handler := newHandler(t, service, testSecret, metrics)

	rec := post(handler, completedPayout, security.SignPayload(testSecret, completedPayout))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, service.events, 1)
	assert.Equal(t, "payout_abc", service.events[0].Data.Transaction.ChargeID)

	replay := post(handler, completedPayout, security.SignPayload(testSecret, completedPayout))
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Contains(t, replay.Body.String(), "duplicate")
	assert.Len(t, service.events, 1)
	assert.Equal(t, 1, metrics.get("api.payout", "processed"))
	assert.Equal(t, 1, metrics.get("api.payout", "duplicate"))
}

func TestGatewayWebhook_RejectsBadSignatures(t *testing.T) {
	service := &fakeGatewayService{}
	handler := newHandler(t, service, testSecret, nil)

	missing := post(handler, completedPayout, "")
	assert.Equal(t, http.StatusUnauthorized, missing.Code)

	wrong := post(handler, completedPayout, security.SignPayload("other-secret", completedPayout))
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)

	garbage := post(handler, completedPayout, "not-hex")
	assert.Equal(t, http.StatusUnauthorized, garbage.Code)

	assert.Empty(t, service.events)
}

func TestGatewayWebhook_SkipsVerificationWithoutSecret(t *testing.T) {
	service := &fakeGatewayService{}
	handler := newHandler(t, service, "", nil)

	rec := post(handler, completedPayout, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, service.events, 1)
}

func TestGatewayWebhook_UnknownEventType(t *testing.T) {
	body := []byte(`{"event_type":"api.refund","data":{"transaction":{"charge_id":"c1","status":"success"}}}`)
	service := &fakeGatewayService{}
	handler := newHandler(t, service, testSecret, nil)

	rec := post(handler, body, security.SignPayload(testSecret, body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, service.events)
}

func TestGatewayWebhook_RejectsOversizedBody(t *testing.T) {
	body := append(append([]byte(nil), completedPayout...), bytes.Repeat([]byte(" "), maxPayloadBytes)...)
	service := &fakeGatewayService{}
	handler := newHandler(t, service, testSecret, nil)

	rec := post(handler, body, security.SignPayload(testSecret, body))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "exceeds")
	assert.Empty(t, service.events)
}

func TestGatewayWebhook_FailedHandlingReleasesGuard(t *testing.T) {
	service := &fakeGatewayService{err: errors.New("db unavailable")}
	handler := newHandler(t, service, testSecret, nil)

	first := post(handler, completedPayout, security.SignPayload(testSecret, completedPayout))
	assert.Equal(t, http.StatusInternalServerError, first.Code)

	service.err = nil
	second := post(handler, completedPayout, security.SignPayload(testSecret, completedPayout))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, service.events, 2)
}

func newHandler(t *testing.T, service *fakeGatewayService, secret string, metrics *countingMetrics) http.HandlerFunc {
	t.Helper()
	guard, err := gatewaywebhook.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "gateway-webhook")
	require.NoError(t, err)
	params := GatewayWebhookParams{Service: service, Guard: guard, Secret: secret}
	if metrics != nil {
		params.Metrics = metrics
	}
	return GatewayWebhook(params)
}

func post(handler http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type fakeGatewayService struct {
	events []*gatewaywebhook.Event
	err    error
}

func (f *fakeGatewayService) HandleEvent(_ context.Context, event *gatewaywebhook.Event) error {
	f.events = append(f.events, event)
	return f.err
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) IncWebhook(eventType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[eventType+"|"+outcome]++
}

func (m *countingMetrics) get(eventType, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[eventType+"|"+outcome]
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{
		data: make(map[string]string),
	}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("rosca:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
