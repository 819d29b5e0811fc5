package repository

import (
	"context"
	"time"

	"github.com/EricDistort/QuberX/internal/models"
)

type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error)
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	// Reserve inserts the record. A concurrent holder of the same key
	// yields ErrRequestInProgress.
	Reserve(ctx context.Context, rec *models.IdempotencyRecord) error
	Complete(ctx context.Context, key string, response []byte) error
	Delete(ctx context.Context, key string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
