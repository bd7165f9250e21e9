package credit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/klyraworks/fulfil/internal/platform/db"
)

// Repository persists customer credit in PostgreSQL.
type Repository struct{}

// NewRepository constructs Repository.
func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) CreditForUpdate(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID) (CustomerCredit, error) {
	return r.credit(ctx, q, tenantID, customerID, true)
}

func (r *Repository) Credit(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID) (CustomerCredit, error) {
	return r.credit(ctx, q, tenantID, customerID, false)
}

func (r *Repository) credit(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID, lock bool) (CustomerCredit, error) {
	query := `SELECT id, tenant_id, credit_limit, credit_available, updated_at FROM customers WHERE tenant_id=$1 AND id=$2`
	if lock {
		query += ` FOR UPDATE`
	}
	var cc CustomerCredit
	err := q.QueryRow(ctx, query, tenantID, customerID).
		Scan(&cc.CustomerID, &cc.TenantID, &cc.Limit, &cc.Available, &cc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomerCredit{}, ErrCustomerNotFound
		}
		return CustomerCredit{}, err
	}
	return cc, nil
}

func (r *Repository) UpdateAvailable(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID, available decimal.Decimal) error {
	tag, err := q.Exec(ctx, `UPDATE customers SET credit_available=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		tenantID, customerID, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
