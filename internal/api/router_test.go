package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EricDistort/QuberX/internal/handler"
	"github.com/EricDistort/QuberX/internal/infrastructure/auth"
	"github.com/EricDistort/QuberX/internal/infrastructure/observability"
	"github.com/EricDistort/QuberX/internal/infrastructure/redis"
	"github.com/EricDistort/QuberX/internal/models"
	service "github.com/EricDistort/QuberX/internal/services"
)

type memorySessions struct {
	mu     sync.Mutex
	values map[string]string
}

func (s *memorySessions) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (s *memorySessions) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value.(string)
	return nil
}

func (s *memorySessions) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

func (s *memorySessions) Ping(context.Context) error { return nil }
func (s *memorySessions) Close() error               { return nil }

// stubLedger answers balance reads; any other method panics.
type stubLedger struct {
	service.LedgerService
}

func (stubLedger) GetBalances(_ context.Context, _ int64) (*models.Balances, error) {
	return &models.Balances{AccountNumber: "1000000001", Balance: decimal.NewFromInt(5)}, nil
}

func (stubLedger) GetAuditTrail(_ context.Context, _, _ string) ([]models.AuditEntry, error) {
	return nil, nil
}

func newTestServer(t *testing.T, limiter *RateLimiter) (*httptest.Server, string) {
	t.Helper()
	sessions := &memorySessions{values: map[string]string{}}
	tokens := auth.NewTokenManager("secret", time.Hour)
	token, err := tokens.GenerateJWT(1, "1000000001")
	require.NoError(t, err)
	require.NoError(t, sessions.Set(context.Background(), auth.SessionKey(1), token, time.Hour))

	h := handler.NewHandler(nil, stubLedger{})
	router := SetupRouter(h, RouterConfig{
		Sessions:   sessions,
		Tokens:     tokens,
		AdminToken: "admin-secret",
		Limiter:    limiter,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, token
}

func get(t *testing.T, url string, headers map[string]string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestRouter_Authentication(t *testing.T) {
	srv, token := newTestServer(t, nil)

	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/balance", nil))
	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/balance", map[string]string{"Authorization": "Bearer nope"}))
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/balance", map[string]string{"Authorization": "Bearer " + token}))
}

func TestRouter_AdminToken(t *testing.T) {
	srv, token := newTestServer(t, nil)

	assert.Equal(t, http.StatusForbidden, get(t, srv.URL+"/admin/audit/account/1", nil))
	assert.Equal(t, http.StatusForbidden, get(t, srv.URL+"/admin/audit/account/1", map[string]string{"Authorization": "Bearer " + token}))
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/admin/audit/account/1", map[string]string{"X-Admin-Token": "admin-secret"}))
}

func TestRouter_RateLimit(t *testing.T) {
	srv, token := newTestServer(t, NewRateLimiter(0.001, 2))
	headers := map[string]string{"Authorization": "Bearer " + token}

	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/balance", headers))
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/balance", headers))
	assert.Equal(t, http.StatusTooManyRequests, get(t, srv.URL+"/balance", headers))
}

func TestRouter_RecordsRouteTemplate(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	counter := observability.HTTPRequests.WithLabelValues(http.MethodGet, "/admin/audit/{entity}/{id}", "403")
	value := func() float64 {
		var m dto.Metric
		require.NoError(t, counter.Write(&m))
		return m.GetCounter().GetValue()
	}
	before := value()

	get(t, srv.URL+"/admin/audit/deposit/42", nil)

	assert.Equal(t, before+1, value())
}

func TestRateLimiter_PerAccount(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1))
	assert.True(t, l.Allow(2))
}

func TestRateLimiter_SweepDropsIdleAccounts(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(0.001, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow(1))
	now = now.Add(20 * time.Minute)
	assert.True(t, l.Allow(2))
	assert.False(t, l.Allow(2))
	require.Equal(t, 2, l.size())

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, l.Sweep(30*time.Minute))
	assert.Equal(t, 1, l.size())

	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(2))

	var unset *RateLimiter
	assert.Zero(t, unset.Sweep(time.Minute))
}
