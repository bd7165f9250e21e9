package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/klyraworks/fulfil/internal/platform/db"
)

// Repository persists sales in PostgreSQL.
type Repository struct{}

// NewRepository constructs Repository.
func NewRepository() *Repository {
	return &Repository{}
}

const saleColumns = `id, tenant_id, number, customer_id, warehouse_id, payment_type, state,
	subtotal, order_discount, tax, total, outstanding,
	invoice_number, invoice_authorized, void_reason,
	created_at, updated_at, confirmed_at, invoiced_at, voided_at`

const lineColumns = `id, sale_id, product_id, qty, unit_price, line_discount, tax_rate, tax_amount, line_total`

func (r *Repository) Insert(ctx context.Context, q db.Querier, sale Sale) error {
	_, err := q.Exec(ctx, `INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		sale.ID, sale.TenantID, sale.Number, sale.CustomerID, sale.WarehouseID, sale.PaymentType, sale.State,
		sale.Subtotal, sale.OrderDiscount, sale.Tax, sale.Total, sale.Outstanding,
		sale.InvoiceNumber, sale.InvoiceAuthorized, sale.VoidReason,
		sale.CreatedAt, sale.UpdatedAt, sale.ConfirmedAt, sale.InvoicedAt, sale.VoidedAt)
	if err != nil {
		return fmt.Errorf("insert sale %s: %w", sale.Number, err)
	}
	return r.insertLines(ctx, q, sale.Lines)
}

func (r *Repository) Sale(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) (Sale, error) {
	return r.sale(ctx, q, tenantID, saleID, false)
}

func (r *Repository) SaleForUpdate(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) (Sale, error) {
	return r.sale(ctx, q, tenantID, saleID, true)
}

func (r *Repository) sale(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID, lock bool) (Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE tenant_id=$1 AND id=$2`
	if lock {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRow(ctx, query, tenantID, saleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, err
	}
	lines, err := r.lines(ctx, q, saleID)
	if err != nil {
		return Sale{}, err
	}
	sale.Lines = lines
	return sale, nil
}

// UpdateDraft rewrites head fields and replaces the line set wholesale.
// Lines are immutable outside draft, so delete-and-reinsert is safe here.
func (r *Repository) UpdateDraft(ctx context.Context, q db.Querier, sale Sale) error {
	if err := r.UpdateHead(ctx, q, sale); err != nil {
		return err
	}
	if _, err := q.Exec(ctx, `DELETE FROM sale_lines WHERE sale_id=$1`, sale.ID); err != nil {
		return fmt.Errorf("delete lines for sale %s: %w", sale.ID, err)
	}
	return r.insertLines(ctx, q, sale.Lines)
}

func (r *Repository) UpdateHead(ctx context.Context, q db.Querier, sale Sale) error {
	tag, err := q.Exec(ctx, `UPDATE sales SET
			state=$3, subtotal=$4, order_discount=$5, tax=$6, total=$7, outstanding=$8,
			invoice_number=$9, invoice_authorized=$10, void_reason=$11,
			updated_at=$12, confirmed_at=$13, invoiced_at=$14, voided_at=$15
		WHERE tenant_id=$1 AND id=$2`,
		sale.TenantID, sale.ID,
		sale.State, sale.Subtotal, sale.OrderDiscount, sale.Tax, sale.Total, sale.Outstanding,
		sale.InvoiceNumber, sale.InvoiceAuthorized, sale.VoidReason,
		sale.UpdatedAt, sale.ConfirmedAt, sale.InvoicedAt, sale.VoidedAt)
	if err != nil {
		return fmt.Errorf("update sale %s: %w", sale.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, q db.Querier, tenantID uuid.UUID, req ListSalesRequest) ([]Sale, int, error) {
	where := `WHERE tenant_id=$1`
	args := []any{tenantID}
	if req.State != "" {
		args = append(args, req.State)
		where += fmt.Sprintf(` AND state=$%d`, len(args))
	}
	if req.CustomerID != nil {
		args = append(args, *req.CustomerID)
		where += fmt.Sprintf(` AND customer_id=$%d`, len(args))
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM sales `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, req.Limit, req.Offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT `+saleColumns+` FROM sales %s
		ORDER BY created_at DESC, number DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sale)
	}
	return out, total, rows.Err()
}

func (r *Repository) insertLines(ctx context.Context, q db.Querier, lines []SaleLine) error {
	for _, l := range lines {
		_, err := q.Exec(ctx, `INSERT INTO sale_lines (`+lineColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			l.ID, l.SaleID, l.ProductID, l.Qty, l.UnitPrice, l.LineDiscount, l.TaxRate, l.TaxAmount, l.LineTotal)
		if err != nil {
			return fmt.Errorf("insert line for sale %s: %w", l.SaleID, err)
		}
	}
	return nil
}

func (r *Repository) lines(ctx context.Context, q db.Querier, saleID uuid.UUID) ([]SaleLine, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM sale_lines WHERE sale_id=$1 ORDER BY product_id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SaleLine
	for rows.Next() {
		var l SaleLine
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Qty, &l.UnitPrice, &l.LineDiscount, &l.TaxRate, &l.TaxAmount, &l.LineTotal); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.TenantID, &s.Number, &s.CustomerID, &s.WarehouseID, &s.PaymentType, &s.State,
		&s.Subtotal, &s.OrderDiscount, &s.Tax, &s.Total, &s.Outstanding,
		&s.InvoiceNumber, &s.InvoiceAuthorized, &s.VoidReason,
		&s.CreatedAt, &s.UpdatedAt, &s.ConfirmedAt, &s.InvoicedAt, &s.VoidedAt)
	return s, err
}
