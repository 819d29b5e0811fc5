package repository

import (
	"context"

	"github.com/EricDistort/QuberX/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	// GetForUpdate reads the account and holds its row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*models.Account, error)
	// ApplyDelta adds delta to every balance field in one compare-and-set
	// step. It fails with ErrInsufficientFunds when any field would go
	// negative, leaving the row untouched.
	ApplyDelta(ctx context.Context, id int64, delta models.BalanceDelta) (*models.Account, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error
	ListReferrals(ctx context.Context, referrerAccountNumber string) ([]models.Account, error)
	ListNegativeBalances(ctx context.Context) ([]models.Account, error)
}
