package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/EricDistort/QuberX/internal/config"
	"github.com/EricDistort/QuberX/internal/infrastructure/redis"
	"github.com/EricDistort/QuberX/internal/models"
	"github.com/EricDistort/QuberX/internal/repository/memory"
)

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	// beforeSet runs once, ahead of the next Set.
	beforeSet func()
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	hook := f.beforeSet
	f.beforeSet = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value.(string)
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeRedis) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}

func (f *fakeRedis) Ping(context.Context) error { return nil }
func (f *fakeRedis) Close() error               { return nil }

type recordingProducer struct {
	mu     sync.Mutex
	events []models.LedgerEvent
}

func (p *recordingProducer) Send(_ context.Context, _ string, _ int64, value []byte) error {
	var e models.LedgerEvent
	if err := json.Unmarshal(value, &e); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) ofType(t models.EventType) []models.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.LedgerEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type ledgerFixture struct {
	svc      *ledgerService
	store    *memory.Store
	redis    *fakeRedis
	producer *recordingProducer
	events   *EventPublisher
}

func newLedgerFixture(t *testing.T, policy Policy) *ledgerFixture {
	t.Helper()
	store := memory.NewStore()
	rc := newFakeRedis()
	producer := &recordingProducer{}
	events := NewEventPublisher(producer, "ledger-events")
	events.backoff = 0
	return &ledgerFixture{
		svc:      NewLedgerService(store, NewBalanceCache(rc, 5*time.Minute), events, policy),
		store:    store,
		redis:    rc,
		producer: producer,
		events:   events,
	}
}

func defaultPolicy() Policy {
	return PolicyFromConfig(config.DefaultPolicy())
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// account creates an account with the given balances, bypassing the
// ledger.
func (f *ledgerFixture) account(t *testing.T, number, referrer string, balance, withdrawal string) *models.Account {
	t.Helper()
	ctx := context.Background()
	acc := &models.Account{
		AccountNumber:         number,
		Username:              "user-" + number,
		PasswordHash:          "x",
		ReferrerAccountNumber: referrer,
	}
	require.NoError(t, f.store.Repos().Accounts.Create(ctx, acc))
	_, err := f.store.Repos().Accounts.ApplyDelta(ctx, acc.ID, models.BalanceDelta{
		Balance:          dec(balance),
		WithdrawalAmount: dec(withdrawal),
	})
	require.NoError(t, err)
	return acc
}

func (f *ledgerFixture) balances(t *testing.T, id int64) models.Balances {
	t.Helper()
	acc, err := f.store.Repos().Accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return acc.Balances()
}
