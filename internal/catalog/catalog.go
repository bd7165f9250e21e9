// Package catalog exposes the product attributes sale pricing depends on.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/klyraworks/fulfil/internal/platform/db"
)

// Product carries the pricing-relevant product attributes.
type Product struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	SKU           string
	Name          string
	TaxRate       decimal.Decimal
	TaxApplicable bool
	IsPerishable  bool
	StandardCost  decimal.Decimal
}

var ErrProductNotFound = errors.New("catalog: product not found")

// Repository reads products from PostgreSQL.
type Repository struct{}

// NewRepository constructs Repository.
func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Product(ctx context.Context, q db.Querier, tenantID, productID uuid.UUID) (Product, error) {
	var p Product
	err := q.QueryRow(ctx, `SELECT id, tenant_id, sku, name, tax_rate, tax_applicable, is_perishable, standard_cost
		FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, productID).
		Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.TaxRate, &p.TaxApplicable, &p.IsPerishable, &p.StandardCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}
