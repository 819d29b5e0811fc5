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

const purchaseColumns = `id, user_id, product_id, price, contact_name, phone, address, status, created_at, updated_at`

type PostgresPurchaseRepository struct {
	db querier
}

func NewPostgresPurchaseRepository(db querier) *PostgresPurchaseRepository {
	return &PostgresPurchaseRepository{db: db}
}

func scanPurchase(row scanner) (*models.Purchase, error) {
	var p models.Purchase
	err := row.Scan(&p.ID, &p.AccountID, &p.ProductID, &p.Price, &p.ContactName, &p.Phone, &p.Address,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPurchaseRepository) Create(ctx context.Context, p *models.Purchase) (err error) {
	ctx, done := observe(ctx, "purchase-repository", "CreatePurchase")
	defer done(&err)

	query := `
		INSERT INTO purchases (user_id, product_id, price, contact_name, phone, address, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query, p.AccountID, p.ProductID, p.Price, p.ContactName, p.Phone, p.Address, models.PurchasePending).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		slog.Error("failed to create purchase", "method", "Create", "account_id", p.AccountID, "product_id", p.ProductID, "error", err)
		return wrapErr("create purchase", err)
	}
	p.Status = models.PurchasePending
	return nil
}

func (r *PostgresPurchaseRepository) GetForUpdate(ctx context.Context, id int64) (p *models.Purchase, err error) {
	ctx, done := observe(ctx, "purchase-repository", "GetPurchaseForUpdate", attribute.Int64("purchase_id", id))
	defer done(&err)

	p, err = scanPurchase(r.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, wrapErr("get purchase", err)
	}
	return p, nil
}

// UpdateStatus moves the purchase from one status to the next. If the row
// is no longer in from, ErrInvalidStatusTransition is returned.
func (r *PostgresPurchaseRepository) UpdateStatus(ctx context.Context, id int64, from, to models.PurchaseStatus) (p *models.Purchase, err error) {
	ctx, done := observe(ctx, "purchase-repository", "UpdatePurchaseStatus", attribute.Int64("purchase_id", id))
	defer done(&err)

	query := `
		UPDATE purchases SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + purchaseColumns
	p, err = scanPurchase(r.db.QueryRowContext(ctx, query, id, from, to))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrInvalidStatusTransition
	}
	if err != nil {
		slog.Error("failed to update purchase status", "method", "UpdateStatus", "purchase_id", id, "error", err)
		return nil, wrapErr("update purchase status", err)
	}
	return p, nil
}

func (r *PostgresPurchaseRepository) ListByAccount(ctx context.Context, accountID int64) (out []models.Purchase, err error) {
	ctx, done := observe(ctx, "purchase-repository", "ListPurchases")
	defer done(&err)

	rows, err := r.db.QueryContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, wrapErr("list purchases", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, wrapErr("scan purchase", err)
		}
		out = append(out, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapErr("iterate purchases", err)
	}
	return out, nil
}

type PostgresProductRepository struct {
	db querier
}

func NewPostgresProductRepository(db querier) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id int64) (p *models.Product, err error) {
	ctx, done := observe(ctx, "product-repository", "GetProductByID", attribute.Int64("product_id", id))
	defer done(&err)

	var prod models.Product
	query := `SELECT id, name, price, COALESCE(image_url, ''), active FROM products WHERE id = $1`
	err = r.db.QueryRowContext(ctx, query, id).Scan(&prod.ID, &prod.Name, &prod.Price, &prod.ImageURL, &prod.Active)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrProductNotFound
	}
	if err != nil {
		return nil, wrapErr("get product", err)
	}
	return &prod, nil
}

func (r *PostgresProductRepository) ListActive(ctx context.Context) (out []models.Product, err error) {
	ctx, done := observe(ctx, "product-repository", "ListProducts")
	defer done(&err)

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, price, COALESCE(image_url, ''), active FROM products WHERE active ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list products", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Product
		if err = rows.Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL, &p.Active); err != nil {
			return nil, wrapErr("scan product", err)
		}
		out = append(out, p)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapErr("iterate products", err)
	}
	return out, nil
}
