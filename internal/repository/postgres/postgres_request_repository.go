package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/EricDistort/QuberX/internal/models"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

const depositColumns = `id, user_id, tx_hash, claimed_amount, approved_amount, COALESCE(referrer_override, ''), status, created_at, processed_at`

type PostgresDepositRepository struct {
	db querier
}

func NewPostgresDepositRepository(db querier) *PostgresDepositRepository {
	return &PostgresDepositRepository{db: db}
}

func scanDeposit(row scanner) (*models.DepositRequest, error) {
	var d models.DepositRequest
	var processed sql.NullTime
	err := row.Scan(&d.ID, &d.AccountID, &d.TxHash, &d.ClaimedAmount, &d.ApprovedAmount,
		&d.ReferrerOverride, &d.Status, &d.CreatedAt, &processed)
	if err != nil {
		return nil, err
	}
	d.ProcessedAt = timePtr(processed)
	return &d, nil
}

func (r *PostgresDepositRepository) Create(ctx context.Context, d *models.DepositRequest) (err error) {
	ctx, done := observe(ctx, "deposit-repository", "CreateDeposit")
	defer done(&err)

	query := `
		INSERT INTO deposits (user_id, tx_hash, claimed_amount, referrer_override, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, approved_amount, created_at
	`
	err = r.db.QueryRowContext(ctx, query, d.AccountID, d.TxHash, d.ClaimedAmount, nullString(d.ReferrerOverride), models.StatusPending).
		Scan(&d.ID, &d.ApprovedAmount, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.ErrDuplicateTxHash
		}
		slog.Error("failed to create deposit", "method", "Create", "account_id", d.AccountID, "error", err)
		return wrapErr("create deposit", err)
	}
	d.Status = models.StatusPending
	return nil
}

func (r *PostgresDepositRepository) GetForUpdate(ctx context.Context, id int64) (d *models.DepositRequest, err error) {
	ctx, done := observe(ctx, "deposit-repository", "GetDepositForUpdate", attribute.Int64("deposit_id", id))
	defer done(&err)

	d, err = scanDeposit(r.db.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrDepositNotFound
	}
	if err != nil {
		return nil, wrapErr("get deposit", err)
	}
	return d, nil
}

func (r *PostgresDepositRepository) Resolve(ctx context.Context, id int64, status models.RequestStatus, approvedAmount decimal.Decimal) (d *models.DepositRequest, err error) {
	ctx, done := observe(ctx, "deposit-repository", "ResolveDeposit", attribute.Int64("deposit_id", id))
	defer done(&err)

	query := `
		UPDATE deposits
		SET status = $2, approved_amount = $3, processed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + depositColumns
	d, err = scanDeposit(r.db.QueryRowContext(ctx, query, id, status, approvedAmount))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrAlreadyProcessed
	}
	if err != nil {
		slog.Error("failed to resolve deposit", "method", "Resolve", "deposit_id", id, "error", err)
		return nil, wrapErr("resolve deposit", err)
	}
	return d, nil
}

func (r *PostgresDepositRepository) ListByAccount(ctx context.Context, accountID int64) (out []models.DepositRequest, err error) {
	ctx, done := observe(ctx, "deposit-repository", "ListDeposits")
	defer done(&err)

	rows, err := r.db.QueryContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, wrapErr("list deposits", err)
	}
	defer rows.Close()
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, wrapErr("scan deposit", err)
		}
		out = append(out, *d)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapErr("iterate deposits", err)
	}
	return out, nil
}

func (r *PostgresDepositRepository) CountPendingBefore(ctx context.Context, before time.Time) (n int, err error) {
	ctx, done := observe(ctx, "deposit-repository", "CountPendingDeposits")
	defer done(&err)

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deposits WHERE status = 'pending' AND created_at < $1`, before).Scan(&n)
	if err != nil {
		return 0, wrapErr("count pending deposits", err)
	}
	return n, nil
}

const withdrawalColumns = `id, user_id, wallet, amount, status, created_at, processed_at`

type PostgresWithdrawalRepository struct {
	db querier
}

func NewPostgresWithdrawalRepository(db querier) *PostgresWithdrawalRepository {
	return &PostgresWithdrawalRepository{db: db}
}

func scanWithdrawal(row scanner) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	var processed sql.NullTime
	if err := row.Scan(&w.ID, &w.AccountID, &w.Wallet, &w.Amount, &w.Status, &w.CreatedAt, &processed); err != nil {
		return nil, err
	}
	w.ProcessedAt = timePtr(processed)
	return &w, nil
}

func (r *PostgresWithdrawalRepository) Create(ctx context.Context, w *models.WithdrawalRequest) (err error) {
	ctx, done := observe(ctx, "withdrawal-repository", "CreateWithdrawal")
	defer done(&err)

	query := `INSERT INTO withdrawals (user_id, wallet, amount, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query, w.AccountID, w.Wallet, w.Amount, models.StatusPending).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		slog.Error("failed to create withdrawal", "method", "Create", "account_id", w.AccountID, "error", err)
		return wrapErr("create withdrawal", err)
	}
	w.Status = models.StatusPending
	return nil
}

func (r *PostgresWithdrawalRepository) GetForUpdate(ctx context.Context, id int64) (w *models.WithdrawalRequest, err error) {
	ctx, done := observe(ctx, "withdrawal-repository", "GetWithdrawalForUpdate", attribute.Int64("withdrawal_id", id))
	defer done(&err)

	w, err = scanWithdrawal(r.db.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, wrapErr("get withdrawal", err)
	}
	return w, nil
}

func (r *PostgresWithdrawalRepository) Resolve(ctx context.Context, id int64, status models.RequestStatus) (w *models.WithdrawalRequest, err error) {
	ctx, done := observe(ctx, "withdrawal-repository", "ResolveWithdrawal", attribute.Int64("withdrawal_id", id))
	defer done(&err)

	query := `
		UPDATE withdrawals
		SET status = $2, processed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + withdrawalColumns
	w, err = scanWithdrawal(r.db.QueryRowContext(ctx, query, id, status))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrAlreadyProcessed
	}
	if err != nil {
		slog.Error("failed to resolve withdrawal", "method", "Resolve", "withdrawal_id", id, "error", err)
		return nil, wrapErr("resolve withdrawal", err)
	}
	return w, nil
}

func (r *PostgresWithdrawalRepository) ListByAccount(ctx context.Context, accountID int64) (out []models.WithdrawalRequest, err error) {
	ctx, done := observe(ctx, "withdrawal-repository", "ListWithdrawals")
	defer done(&err)

	rows, err := r.db.QueryContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, wrapErr("list withdrawals", err)
	}
	defer rows.Close()
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, wrapErr("scan withdrawal", err)
		}
		out = append(out, *w)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapErr("iterate withdrawals", err)
	}
	return out, nil
}

func (r *PostgresWithdrawalRepository) CountPendingBefore(ctx context.Context, before time.Time) (n int, err error) {
	ctx, done := observe(ctx, "withdrawal-repository", "CountPendingWithdrawals")
	defer done(&err)

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM withdrawals WHERE status = 'pending' AND created_at < $1`, before).Scan(&n)
	if err != nil {
		return 0, wrapErr("count pending withdrawals", err)
	}
	return n, nil
}
