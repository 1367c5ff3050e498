package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rosca-settlement/internal/instantpayout"
	"github.com/angelmondragon/rosca-settlement/internal/payouts"
	pkgAuth "github.com/angelmondragon/rosca-settlement/pkg/auth"
	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	"github.com/angelmondragon/rosca-settlement/pkg/metrics"
	"github.com/angelmondragon/rosca-settlement/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryRedis struct {
	data   map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

type stubPayouts struct{ payouts.Service }

func (stubPayouts) Get(_ context.Context, requesterID, payoutID uuid.UUID) (*payouts.PayoutDTO, error) {
	return &payouts.PayoutDTO{ID: payoutID, RecipientID: requesterID}, nil
}

func (stubPayouts) List(context.Context, pagination.Params, payouts.ListFilters) (*payouts.AdminPayoutList, error) {
	return &payouts.AdminPayoutList{}, nil
}

type stubInstant struct{ calls int }

func (s *stubInstant) Request(_ context.Context, input instantpayout.Input) (*instantpayout.Result, error) {
	s.calls++
	return &instantpayout.Result{PayoutID: input.PayoutID, Status: enums.PayoutStatusCompleted}, nil
}

func (s *stubInstant) SetPIN(context.Context, uuid.UUID, string) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "rosca", ExpirationMinutes: 60},
		RateLimit: config.RateLimitConfig{
			InstantWindow:    time.Minute,
			InstantUserLimit: 100,
		},
	}
}

func bearer(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func newTestRouter(t *testing.T, instant *stubInstant) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	return NewRouter(Dependencies{
		Config:         cfg,
		DB:             stubPinger{},
		Redis:          newMemoryRedis(),
		Gatherer:       reg,
		Payouts:        stubPayouts{},
		InstantPayouts: instant,
		Metrics:        metrics.NewSettlementMetrics(reg),
	}), cfg
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t, &stubInstant{})

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health/ready", "", nil).Code)

	rec := do(router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMemberRoutesRequireAuth(t *testing.T) {
	router, cfg := newTestRouter(t, &stubInstant{})
	path := "/api/v1/payouts/" + uuid.NewString()

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, path, "", nil).Code)

	rec := do(router, http.MethodGet, path, "", map[string]string{"Authorization": bearer(t, cfg, enums.RoleMember)})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router, cfg := newTestRouter(t, &stubInstant{})

	member := do(router, http.MethodGet, "/api/admin/v1/payouts", "", map[string]string{"Authorization": bearer(t, cfg, enums.RoleMember)})
	assert.Equal(t, http.StatusForbidden, member.Code)

	admin := do(router, http.MethodGet, "/api/admin/v1/payouts", "", map[string]string{"Authorization": bearer(t, cfg, enums.RoleAdmin)})
	assert.Equal(t, http.StatusOK, admin.Code, admin.Body.String())
}

func TestInstantPayoutIsIdempotent(t *testing.T) {
	instant := &stubInstant{}
	router, cfg := newTestRouter(t, instant)
	path := "/api/v1/payouts/" + uuid.NewString() + "/instant"
	auth := bearer(t, cfg, enums.RoleMember)

	missing := do(router, http.MethodPost, path, `{"pin":"1234"}`, map[string]string{"Authorization": auth})
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, 0, instant.calls)

	headers := map[string]string{"Authorization": auth, "Idempotency-Key": "k-1"}
	first := do(router, http.MethodPost, path, `{"pin":"1234"}`, headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	replay := do(router, http.MethodPost, path, `{"pin":"1234"}`, headers)
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, first.Body.String(), replay.Body.String())
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, instant.calls)
}

func TestWebhookRouteIsPublic(t *testing.T) {
	router, _ := newTestRouter(t, &stubInstant{})
	// no webhook service wired: the route exists but reports it is unavailable
	rec := do(router, http.MethodPost, "/api/v1/webhooks/gateway", `{}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
