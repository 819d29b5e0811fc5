package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/EricDistort/QuberX/internal/models"
)

type DepositRepository interface {
	Create(ctx context.Context, d *models.DepositRequest) error
	GetForUpdate(ctx context.Context, id int64) (*models.DepositRequest, error)
	// Resolve moves a pending request to status. ErrAlreadyProcessed is
	// returned if it is no longer pending.
	Resolve(ctx context.Context, id int64, status models.RequestStatus, approvedAmount decimal.Decimal) (*models.DepositRequest, error)
	ListByAccount(ctx context.Context, accountID int64) ([]models.DepositRequest, error)
	CountPendingBefore(ctx context.Context, before time.Time) (int, error)
}

type WithdrawalRepository interface {
	Create(ctx context.Context, w *models.WithdrawalRequest) error
	GetForUpdate(ctx context.Context, id int64) (*models.WithdrawalRequest, error)
	Resolve(ctx context.Context, id int64, status models.RequestStatus) (*models.WithdrawalRequest, error)
	ListByAccount(ctx context.Context, accountID int64) ([]models.WithdrawalRequest, error)
	CountPendingBefore(ctx context.Context, before time.Time) (int, error)
}

type PurchaseRepository interface {
	Create(ctx context.Context, p *models.Purchase) error
	GetForUpdate(ctx context.Context, id int64) (*models.Purchase, error)
	UpdateStatus(ctx context.Context, id int64, from, to models.PurchaseStatus) (*models.Purchase, error)
	ListByAccount(ctx context.Context, accountID int64) ([]models.Purchase, error)
}

type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	ListActive(ctx context.Context) ([]models.Product, error)
}
