package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/klyraworks/fulfil/internal/platform/db"
)

// Repository persists payments in PostgreSQL.
type Repository struct{}

// NewRepository constructs Repository.
func NewRepository() *Repository {
	return &Repository{}
}

const paymentColumns = `id, tenant_id, sale_id, number, amount, method, created_at, reversed_at`

func (r *Repository) Insert(ctx context.Context, q db.Querier, p Payment) error {
	_, err := q.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.TenantID, p.SaleID, p.Number, p.Amount, p.Method, p.CreatedAt, p.ReversedAt)
	return err
}

func (r *Repository) PaymentForUpdate(ctx context.Context, q db.Querier, tenantID, paymentID uuid.UUID) (Payment, error) {
	row := q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, paymentID)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func (r *Repository) Payment(ctx context.Context, q db.Querier, tenantID, paymentID uuid.UUID) (Payment, error) {
	row := q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE tenant_id=$1 AND id=$2`, tenantID, paymentID)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func (r *Repository) MarkReversed(ctx context.Context, q db.Querier, tenantID, paymentID uuid.UUID, at time.Time) error {
	tag, err := q.Exec(ctx, `UPDATE payments SET reversed_at=$3
		WHERE tenant_id=$1 AND id=$2 AND reversed_at IS NULL`, tenantID, paymentID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

func (r *Repository) ActiveTotal(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE tenant_id=$1 AND sale_id=$2 AND reversed_at IS NULL`, tenantID, saleID).Scan(&total)
	return total, err
}

func (r *Repository) ListBySale(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) ([]Payment, error) {
	rows, err := q.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE tenant_id=$1 AND sale_id=$2 ORDER BY created_at, number`, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.TenantID, &p.SaleID, &p.Number, &p.Amount, &p.Method, &p.CreatedAt, &p.ReversedAt)
	return p, err
}
