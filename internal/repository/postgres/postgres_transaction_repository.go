package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/EricDistort/QuberX/internal/models"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

type PostgresTransactionRepository struct {
	db querier
}

func NewPostgresTransactionRepository(db querier) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) (id int64, err error) {
	ctx, done := observe(ctx, "transaction-repository", "CreateTransaction")
	defer done(&err)

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return 0, err
	}
	if !tx.Amount.IsPositive() {
		err = pkgerrors.ErrInvalidAmount
		slog.Error("amount must be positive", "method", "Create", "amount", tx.Amount, "error", err)
		return 0, err
	}

	query := `INSERT INTO transactions (reference, sender_account_number, receiver_account_number, amount) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query, tx.Reference, tx.SenderAccountNumber, tx.ReceiverAccountNumber, tx.Amount).
		Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		slog.Error("failed to create transaction", "method", "Create",
			"sender", tx.SenderAccountNumber, "receiver", tx.ReceiverAccountNumber, "error", err)
		return 0, wrapErr("create transaction", err)
	}

	slog.Info("transaction created", "method", "Create", "id", tx.ID, "reference", tx.Reference,
		"sender", tx.SenderAccountNumber, "receiver", tx.ReceiverAccountNumber, "amount", tx.Amount)
	return tx.ID, nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id int64) (tx *models.Transaction, err error) {
	ctx, done := observe(ctx, "transaction-repository", "GetTransactionByID", attribute.Int64("transaction_id", id))
	defer done(&err)

	var t models.Transaction
	query := `SELECT id, reference, sender_account_number, receiver_account_number, amount, created_at FROM transactions WHERE id = $1`
	err = r.db.QueryRowContext(ctx, query, id).
		Scan(&t.ID, &t.Reference, &t.SenderAccountNumber, &t.ReceiverAccountNumber, &t.Amount, &t.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if err != nil {
		slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		return nil, wrapErr("get transaction by id", err)
	}
	return &t, nil
}

// ListByAccount returns transfers where the account is either side,
// newest first.
func (r *PostgresTransactionRepository) ListByAccount(ctx context.Context, accountNumber string, limit int) (txs []models.Transaction, err error) {
	ctx, done := observe(ctx, "transaction-repository", "ListTransactionsByAccount", attribute.String("account_number", accountNumber))
	defer done(&err)

	query := `
		SELECT id, reference, sender_account_number, receiver_account_number, amount, created_at
		FROM transactions
		WHERE sender_account_number = $1 OR receiver_account_number = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, accountNumber, limit)
	if err != nil {
		slog.Error("failed to list transactions", "method", "ListByAccount", "account_number", accountNumber, "error", err)
		return nil, wrapErr("list transactions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Transaction
		if err = rows.Scan(&t.ID, &t.Reference, &t.SenderAccountNumber, &t.ReceiverAccountNumber, &t.Amount, &t.CreatedAt); err != nil {
			return nil, wrapErr("scan transaction", err)
		}
		txs = append(txs, t)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapErr("iterate transactions", err)
	}
	return txs, nil
}
