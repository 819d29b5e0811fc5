package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"

	"github.com/EricDistort/QuberX/internal/repository"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

type Store struct {
	db         *sql.DB
	maxRetries int
}

func NewStore(db *sql.DB, maxRetries int) *Store {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Store{db: db, maxRetries: maxRetries}
}

func newRepositories(q querier) repository.Repositories {
	return repository.Repositories{
		Accounts:     NewPostgresAccountRepository(q),
		Transactions: NewPostgresTransactionRepository(q),
		Deposits:     NewPostgresDepositRepository(q),
		Withdrawals:  NewPostgresWithdrawalRepository(q),
		Purchases:    NewPostgresPurchaseRepository(q),
		Products:     NewPostgresProductRepository(q),
		Audit:        NewPostgresAuditRepository(q),
		Idempotency:  NewPostgresIdempotencyRepository(q),
	}
}

func (s *Store) Repos() repository.Repositories {
	return newRepositories(s.db)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r repository.Repositories) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) || attempt >= s.maxRetries {
			break
		}
		slog.Warn("transaction conflict, retrying", "attempt", attempt+1, "error", err)
	}
	if err != nil && isRetryable(err) {
		return pkgerrors.NewStorageError("transaction retries exhausted", err)
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, r repository.Repositories) error) (err error) {
	ctx, done := observe(ctx, "store", "WithinTx")
	defer done(&err)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		return pkgerrors.NewStorageError("begin", err)
	}

	// Ensure rollback on error
	defer func() {
		if tx == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
			slog.Error("rollback failed", "error", rbErr, "cause", err)
		}
	}()

	if err = fn(ctx, newRepositories(tx)); err != nil {
		return err
	}

	commitErr := tx.Commit()
	tx = nil
	if commitErr != nil {
		slog.Error("failed to commit transaction", "error", commitErr)
		if isRetryable(commitErr) {
			return commitErr
		}
		return pkgerrors.NewStorageError("commit", commitErr)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return pkgerrors.NewStorageError("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
