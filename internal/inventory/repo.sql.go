package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/klyraworks/fulfil/internal/platform/db"
)

// Repository persists stock lines and movements in PostgreSQL.
type Repository struct{}

// NewRepository constructs Repository.
func NewRepository() *Repository {
	return &Repository{}
}

const stockLineColumns = `tenant_id, product_id, warehouse_id, on_hand, reserved, avg_cost, updated_at`

func (r *Repository) StockLineForUpdate(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID) (StockLine, error) {
	return r.stockLine(ctx, q, tenantID, productID, warehouseID, true)
}

func (r *Repository) StockLine(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID) (StockLine, error) {
	return r.stockLine(ctx, q, tenantID, productID, warehouseID, false)
}

func (r *Repository) stockLine(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID, lock bool) (StockLine, error) {
	query := `SELECT ` + stockLineColumns + ` FROM stock_lines WHERE tenant_id=$1 AND product_id=$2 AND warehouse_id=$3`
	if lock {
		query += ` FOR UPDATE`
	}
	var line StockLine
	err := q.QueryRow(ctx, query, tenantID, productID, warehouseID).
		Scan(&line.TenantID, &line.ProductID, &line.WarehouseID, &line.OnHand, &line.Reserved, &line.AvgCost, &line.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No row yet: a zero line keyed for the upsert.
			return StockLine{TenantID: tenantID, ProductID: productID, WarehouseID: warehouseID}, nil
		}
		return StockLine{}, err
	}
	return line, nil
}

func (r *Repository) UpsertStockLine(ctx context.Context, q db.Querier, line StockLine) error {
	_, err := q.Exec(ctx, `INSERT INTO stock_lines (tenant_id, product_id, warehouse_id, on_hand, reserved, avg_cost, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (tenant_id, product_id, warehouse_id)
DO UPDATE SET on_hand=EXCLUDED.on_hand, reserved=EXCLUDED.reserved, avg_cost=EXCLUDED.avg_cost, updated_at=NOW()`,
		line.TenantID, line.ProductID, line.WarehouseID, line.OnHand, line.Reserved, line.AvgCost)
	return err
}

const movementColumns = `id, tenant_id, number, movement_type, product_id, warehouse_id, qty, unit_cost, on_hand_before, on_hand_after, sale_id, reversal_of, note, created_at`

func (r *Repository) InsertMovement(ctx context.Context, q db.Querier, m Movement) error {
	_, err := q.Exec(ctx, `INSERT INTO stock_movements (`+movementColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		m.ID, m.TenantID, m.Number, string(m.Type), m.ProductID, m.WarehouseID, m.Qty, m.UnitCost,
		m.OnHandBefore, m.OnHandAfter, m.SaleID, m.ReversalOf, m.Note, m.CreatedAt)
	return err
}

func (r *Repository) UnreversedSaleMovements(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) ([]Movement, error) {
	rows, err := q.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements m
WHERE m.tenant_id=$1 AND m.sale_id=$2 AND m.reversal_of IS NULL
AND NOT EXISTS (SELECT 1 FROM stock_movements r WHERE r.tenant_id=m.tenant_id AND r.reversal_of=m.id)
ORDER BY m.product_id ASC, m.warehouse_id ASC`, tenantID, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func (r *Repository) Movements(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := q.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE tenant_id=$1 AND product_id=$2 AND warehouse_id=$3
ORDER BY created_at ASC, number ASC
LIMIT $4`, tenantID, productID, warehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMovements(rows)
}

func scanMovements(rows pgx.Rows) ([]Movement, error) {
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var typ string
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Number, &typ, &m.ProductID, &m.WarehouseID, &m.Qty, &m.UnitCost,
			&m.OnHandBefore, &m.OnHandAfter, &m.SaleID, &m.ReversalOf, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(typ)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}
