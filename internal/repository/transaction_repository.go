package repository

import (
	"context"

	"github.com/EricDistort/QuberX/internal/models"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	ListByAccount(ctx context.Context, accountNumber string, limit int) ([]models.Transaction, error)
}
