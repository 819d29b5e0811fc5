package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EricDistort/QuberX/internal/config"
	"github.com/EricDistort/QuberX/internal/models"
	"github.com/EricDistort/QuberX/internal/repository/memory"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRunner(t *testing.T) (*JobRunner, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	jr := NewJobRunner(store, config.DefaultPolicy())
	jr.now = func() time.Time { return base }
	return jr, store
}

func newAccount(t *testing.T, store *memory.Store, number string) *models.Account {
	t.Helper()
	acc := &models.Account{AccountNumber: number, Username: "user" + number, PasswordHash: "hash"}
	require.NoError(t, store.Repos().Accounts.Create(context.Background(), acc))
	return acc
}

func reserveAt(t *testing.T, store *memory.Store, at time.Time, key string, accountID int64) {
	t.Helper()
	store.SetClock(func() time.Time { return at })
	require.NoError(t, store.Repos().Idempotency.Reserve(context.Background(), &models.IdempotencyRecord{
		Key:         key,
		AccountID:   accountID,
		Operation:   "transfer",
		RequestHash: "h",
	}))
}

func TestPruneIdempotencyKeys(t *testing.T) {
	jr, store := newRunner(t)
	ctx := context.Background()
	acc := newAccount(t, store, "1000000001")

	reserveAt(t, store, base.Add(-25*time.Hour), "1:old", acc.ID)
	reserveAt(t, store, base.Add(-time.Hour), "1:fresh", acc.ID)

	n, err := jr.pruneIdempotencyKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.Repos().Idempotency.Get(ctx, "1:old")
	assert.Error(t, err)
	rec, err := store.Repos().Idempotency.Get(ctx, "1:fresh")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, rec.AccountID)
}

func TestPruneIdempotencyKeys_StoreFailure(t *testing.T) {
	jr, store := newRunner(t)
	store.InjectFault("idempotency.DeleteOlderThan", errors.New("connection reset"))

	_, err := jr.pruneIdempotencyKeys(context.Background())
	assert.ErrorContains(t, err, "connection reset")

	assert.NotPanics(t, jr.PruneIdempotencyKeys)
}

func TestReconcile_CountsStalePending(t *testing.T) {
	jr, store := newRunner(t)
	ctx := context.Background()
	acc := newAccount(t, store, "1000000001")
	_, err := store.Repos().Accounts.ApplyDelta(ctx, acc.ID, models.BalanceDelta{WithdrawalAmount: decimal.NewFromInt(50)})
	require.NoError(t, err)

	store.SetClock(func() time.Time { return base.Add(-96 * time.Hour) })
	require.NoError(t, store.Repos().Deposits.Create(ctx, &models.DepositRequest{
		AccountID: acc.ID, TxHash: "0xold", ClaimedAmount: decimal.NewFromInt(10),
	}))
	require.NoError(t, store.Repos().Withdrawals.Create(ctx, &models.WithdrawalRequest{
		AccountID: acc.ID, Wallet: "w", Amount: decimal.NewFromInt(5),
	}))

	store.SetClock(func() time.Time { return base.Add(-time.Hour) })
	require.NoError(t, store.Repos().Deposits.Create(ctx, &models.DepositRequest{
		AccountID: acc.ID, TxHash: "0xnew", ClaimedAmount: decimal.NewFromInt(10),
	}))

	report, err := jr.reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.NegativeAccounts)
	assert.Equal(t, 1, report.StaleDeposits)
	assert.Equal(t, 1, report.StaleWithdrawals)
	assert.False(t, report.Clean())
}

func TestReconcile_Clean(t *testing.T) {
	jr, store := newRunner(t)
	newAccount(t, store, "1000000001")

	report, err := jr.reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestReconcile_StoreFailure(t *testing.T) {
	jr, store := newRunner(t)
	store.InjectFault("withdrawals.CountPendingBefore", errors.New("timeout"))

	_, err := jr.reconcile(context.Background())
	assert.ErrorContains(t, err, "stale withdrawals")
}

func TestRunWithRecovery_SurvivesPanic(t *testing.T) {
	jr, _ := newRunner(t)
	ran := false

	assert.NotPanics(t, func() {
		jr.runWithRecovery("Exploding", func(context.Context) error {
			ran = true
			panic("boom")
		})
	})
	assert.True(t, ran)
}
