package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/EricDistort/QuberX/internal/models"
	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

const accountColumns = `id, account_number, username, COALESCE(email, ''), COALESCE(phone, ''), password_hash,
	balance, withdrawal_amount, direct_business, COALESCE(referrer_account_number, ''), status, created_at, updated_at`

type PostgresAccountRepository struct {
	db querier
}

func NewPostgresAccountRepository(db querier) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

func scanAccount(row scanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.AccountNumber,
		&a.Username,
		&a.Email,
		&a.Phone,
		&a.PasswordHash,
		&a.Balance,
		&a.WithdrawalAmount,
		&a.DirectBusiness,
		&a.ReferrerAccountNumber,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *models.Account) (err error) {
	ctx, done := observe(ctx, "account-repository", "CreateAccount")
	defer done(&err)

	if account == nil {
		return pkgerrors.ErrNilAccount
	}
	if account.Username == "" || account.PasswordHash == "" || account.AccountNumber == "" {
		return pkgerrors.NewValidationError("account", "account number, username and password are required")
	}
	if account.Status == "" {
		account.Status = models.AccountStatusActive
	}

	query := `
	INSERT INTO users (account_number, username, email, phone, password_hash, referrer_account_number, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, balance, withdrawal_amount, direct_business, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		account.AccountNumber,
		account.Username,
		nullString(account.Email),
		nullString(account.Phone),
		account.PasswordHash,
		nullString(account.ReferrerAccountNumber),
		account.Status,
	).Scan(&account.ID, &account.Balance, &account.WithdrawalAmount, &account.DirectBusiness, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(pqConstraint(err), "account_number") {
				return pkgerrors.ErrAccountNumberTaken
			}
			return pkgerrors.ErrDuplicateContact
		}
		slog.Error("failed to create account", "method", "Create", "username", account.Username, "error", err)
		return wrapErr("create account", err)
	}

	slog.Info("account created", "method", "Create", "id", account.ID, "account_number", account.AccountNumber)
	return nil
}

func (r *PostgresAccountRepository) getOne(ctx context.Context, method, query string, arg any) (acc *models.Account, err error) {
	ctx, done := observe(ctx, "account-repository", method)
	defer done(&err)

	acc, err = scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrAccountNotFound
	}
	if err != nil {
		slog.Error("failed to get account", "method", method, "key", arg, "error", err)
		return nil, wrapErr("get account", err)
	}
	return acc, nil
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.getOne(ctx, "GetAccountByID", `SELECT `+accountColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresAccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	if accountNumber == "" {
		return nil, pkgerrors.ErrAccountNotFound
	}
	return r.getOne(ctx, "GetAccountByNumber", `SELECT `+accountColumns+` FROM users WHERE account_number = $1`, accountNumber)
}

func (r *PostgresAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	if username == "" {
		return nil, pkgerrors.ErrAccountNotFound
	}
	return r.getOne(ctx, "GetAccountByUsername", `SELECT `+accountColumns+` FROM users WHERE username = $1`, username)
}

func (r *PostgresAccountRepository) GetForUpdate(ctx context.Context, id int64) (*models.Account, error) {
	return r.getOne(ctx, "GetAccountForUpdate", `SELECT `+accountColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresAccountRepository) ApplyDelta(ctx context.Context, id int64, delta models.BalanceDelta) (acc *models.Account, err error) {
	ctx, done := observe(ctx, "account-repository", "ApplyDelta", attribute.Int64("account_id", id))
	defer done(&err)

	query := `
		UPDATE users
		SET balance = balance + $2,
			withdrawal_amount = withdrawal_amount + $3,
			direct_business = direct_business + $4,
			updated_at = NOW()
		WHERE id = $1
		AND balance + $2 >= 0
		AND withdrawal_amount + $3 >= 0
		AND direct_business + $4 >= 0
		RETURNING ` + accountColumns

	acc, err = scanAccount(r.db.QueryRowContext(ctx, query, id, delta.Balance, delta.WithdrawalAmount, delta.DirectBusiness))
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Warn("balance guard rejected update", "method", "ApplyDelta", "account_id", id,
			"balance_delta", delta.Balance, "withdrawal_delta", delta.WithdrawalAmount, "direct_business_delta", delta.DirectBusiness)
		return nil, pkgerrors.ErrInsufficientFunds
	}
	if err != nil {
		slog.Error("failed to apply balance delta", "method", "ApplyDelta", "account_id", id, "error", err)
		return nil, wrapErr("apply balance delta", err)
	}
	return acc, nil
}

func (r *PostgresAccountRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) (err error) {
	ctx, done := observe(ctx, "account-repository", "UpdatePassword")
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return wrapErr("update password", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("update password", err)
	}
	if n == 0 {
		return pkgerrors.ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) (err error) {
	ctx, done := observe(ctx, "account-repository", "UpdateAccountStatus", attribute.Int64("account_id", id))
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		slog.Error("failed to update account status", "method", "UpdateStatus", "account_id", id, "error", err)
		return wrapErr("update account status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("update account status", err)
	}
	if n == 0 {
		return pkgerrors.ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) list(ctx context.Context, method, query string, args ...any) (accounts []models.Account, err error) {
	ctx, done := observe(ctx, "account-repository", method)
	defer done(&err)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list accounts", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, wrapErr("scan account", err)
		}
		accounts = append(accounts, *a)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapErr("iterate accounts", err)
	}
	return accounts, nil
}

func (r *PostgresAccountRepository) ListReferrals(ctx context.Context, referrerAccountNumber string) ([]models.Account, error) {
	return r.list(ctx, "ListReferrals",
		`SELECT `+accountColumns+` FROM users WHERE referrer_account_number = $1 ORDER BY created_at, id`,
		referrerAccountNumber)
}

func (r *PostgresAccountRepository) ListNegativeBalances(ctx context.Context) ([]models.Account, error) {
	return r.list(ctx, "ListNegativeBalances",
		`SELECT `+accountColumns+` FROM users WHERE balance < 0 OR withdrawal_amount < 0 OR direct_business < 0`)
}
