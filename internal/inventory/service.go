package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/klyraworks/fulfil/internal/platform/db"
)

// Store exposes the stock rows and movement ledger used by the service.
type Store interface {
	// StockLineForUpdate loads the row under an exclusive lock, returning a
	// zero-quantity line when none exists yet.
	StockLineForUpdate(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID) (StockLine, error)
	// StockLine loads the row without locking.
	StockLine(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID) (StockLine, error)
	UpsertStockLine(ctx context.Context, q db.Querier, line StockLine) error
	InsertMovement(ctx context.Context, q db.Querier, m Movement) error
	// UnreversedSaleMovements lists movements referencing the sale that have
	// no inverse movement yet, ordered by (product, warehouse).
	UnreversedSaleMovements(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) ([]Movement, error)
	// Movements lists ledger entries for a stock line, oldest first.
	Movements(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID, limit int) ([]Movement, error)
}

// Sequence issues movement numbers inside the caller's transaction.
type Sequence interface {
	Next(ctx context.Context, q db.Querier, tenantID uuid.UUID, scope string, date time.Time) (string, error)
}

// movement number scope
const scopeMovement = "MOV"

// Ledger coordinates stock mutations. Every mutating operation runs under
// the per-(product, warehouse) row lock taken by StockLineForUpdate;
// check-then-act therefore happens inside one lock-held critical section.
type Ledger struct {
	store Store
	seq   Sequence
	now   func() time.Time
}

// NewLedger builds a Ledger.
func NewLedger(store Store, seq Sequence) *Ledger {
	return &Ledger{store: store, seq: seq, now: func() time.Time { return time.Now().UTC() }}
}

// CheckAvailable reports whether qty can be consumed right now. Outside a
// lock this is advisory only; Consume re-checks under the row lock.
func (l *Ledger) CheckAvailable(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID, qty int64) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	line, err := l.store.StockLine(ctx, q, tenantID, productID, warehouseID)
	if err != nil {
		return false, err
	}
	return line.Available() >= qty, nil
}

// Consume decrements on-hand stock and appends an out movement priced at
// the current average cost.
func (l *Ledger) Consume(ctx context.Context, q db.Querier, in ConsumeInput) (Movement, error) {
	if in.Qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	line, err := l.store.StockLineForUpdate(ctx, q, in.TenantID, in.ProductID, in.WarehouseID)
	if err != nil {
		return Movement{}, err
	}
	if line.Available() < in.Qty {
		return Movement{}, &InsufficientStockError{
			ProductID:   in.ProductID,
			WarehouseID: in.WarehouseID,
			Requested:   in.Qty,
			Available:   line.Available(),
		}
	}
	return l.apply(ctx, q, line, MovementOut, -in.Qty, line.AvgCost, in.SaleID, nil, in.Note)
}

// Restock increments on-hand stock, appends an in movement and recomputes
// the weighted-average cost.
func (l *Ledger) Restock(ctx context.Context, q db.Querier, in RestockInput) (Movement, error) {
	if in.Qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if in.UnitCost.Sign() < 0 {
		return Movement{}, ErrInvalidUnitCost
	}
	line, err := l.store.StockLineForUpdate(ctx, q, in.TenantID, in.ProductID, in.WarehouseID)
	if err != nil {
		return Movement{}, err
	}
	return l.apply(ctx, q, line, MovementIn, in.Qty, in.UnitCost, in.SaleID, nil, in.Note)
}

// Adjust applies a signed stock correction.
func (l *Ledger) Adjust(ctx context.Context, q db.Querier, in AdjustInput) (Movement, error) {
	if in.Qty == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if in.Qty > 0 && in.UnitCost.Sign() < 0 {
		return Movement{}, ErrInvalidUnitCost
	}
	line, err := l.store.StockLineForUpdate(ctx, q, in.TenantID, in.ProductID, in.WarehouseID)
	if err != nil {
		return Movement{}, err
	}
	if in.Qty < 0 && line.Available() < -in.Qty {
		return Movement{}, &InsufficientStockError{
			ProductID:   in.ProductID,
			WarehouseID: in.WarehouseID,
			Requested:   -in.Qty,
			Available:   line.Available(),
		}
	}
	cost := in.UnitCost
	if in.Qty < 0 {
		cost = line.AvgCost
	}
	return l.apply(ctx, q, line, MovementAdjustment, in.Qty, cost, nil, nil, in.Note)
}

// Reserve places a provisional hold on stock without consuming it.
func (l *Ledger) Reserve(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	line, err := l.store.StockLineForUpdate(ctx, q, tenantID, productID, warehouseID)
	if err != nil {
		return err
	}
	if line.Available() < qty {
		return &InsufficientStockError{
			ProductID:   productID,
			WarehouseID: warehouseID,
			Requested:   qty,
			Available:   line.Available(),
		}
	}
	line.Reserved += qty
	line.UpdatedAt = l.now()
	return l.store.UpsertStockLine(ctx, q, line)
}

// ReleaseReservation returns previously reserved stock to the available pool.
func (l *Ledger) ReleaseReservation(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	line, err := l.store.StockLineForUpdate(ctx, q, tenantID, productID, warehouseID)
	if err != nil {
		return err
	}
	if line.Reserved < qty {
		return ErrReservationUnderflow
	}
	line.Reserved -= qty
	line.UpdatedAt = l.now()
	return l.store.UpsertStockLine(ctx, q, line)
}

// Reverse appends the exact inverse of a prior movement at the same
// quantity and unit cost, linked through ReversalOf. Used exclusively by
// void reversal.
func (l *Ledger) Reverse(ctx context.Context, q db.Querier, m Movement) (Movement, error) {
	line, err := l.store.StockLineForUpdate(ctx, q, m.TenantID, m.ProductID, m.WarehouseID)
	if err != nil {
		return Movement{}, err
	}
	qty := -m.Qty
	if qty < 0 && line.Available() < -qty {
		return Movement{}, &InsufficientStockError{
			ProductID:   m.ProductID,
			WarehouseID: m.WarehouseID,
			Requested:   -qty,
			Available:   line.Available(),
		}
	}
	inverse := MovementIn
	if qty < 0 {
		inverse = MovementOut
	}
	reversalOf := m.ID
	return l.apply(ctx, q, line, inverse, qty, m.UnitCost, m.SaleID, &reversalOf, "reversal of "+m.Number)
}

// UnreversedSaleMovements lists the movements a sale's confirm produced
// that have not been countered yet.
func (l *Ledger) UnreversedSaleMovements(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) ([]Movement, error) {
	return l.store.UnreversedSaleMovements(ctx, q, tenantID, saleID)
}

// StockLine returns the current quantity record without locking.
func (l *Ledger) StockLine(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID) (StockLine, error) {
	return l.store.StockLine(ctx, q, tenantID, productID, warehouseID)
}

// Movements lists ledger entries for a stock line.
func (l *Ledger) Movements(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID, limit int) ([]Movement, error) {
	return l.store.Movements(ctx, q, tenantID, productID, warehouseID, limit)
}

// apply writes the movement and the updated line. qtyChange is signed.
func (l *Ledger) apply(ctx context.Context, q db.Querier, line StockLine, typ MovementType, qtyChange int64, unitCost decimal.Decimal, saleID, reversalOf *uuid.UUID, note string) (Movement, error) {
	now := l.now()
	before := line.OnHand
	after := before + qtyChange
	if after < line.Reserved {
		// Would break 0 <= reserved <= on_hand.
		return Movement{}, &InsufficientStockError{
			ProductID:   line.ProductID,
			WarehouseID: line.WarehouseID,
			Requested:   -qtyChange,
			Available:   line.Available(),
		}
	}

	if qtyChange > 0 {
		oldValue := decimal.NewFromInt(before).Mul(line.AvgCost)
		newValue := decimal.NewFromInt(qtyChange).Mul(unitCost)
		line.AvgCost = oldValue.Add(newValue).Div(decimal.NewFromInt(after))
	} else if after == 0 {
		line.AvgCost = decimal.Zero
	}
	line.OnHand = after
	line.UpdatedAt = now

	number, err := l.seq.Next(ctx, q, line.TenantID, scopeMovement, now)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: movement number: %w", err)
	}

	m := Movement{
		ID:           uuid.New(),
		TenantID:     line.TenantID,
		Number:       number,
		Type:         typ,
		ProductID:    line.ProductID,
		WarehouseID:  line.WarehouseID,
		Qty:          qtyChange,
		UnitCost:     unitCost,
		OnHandBefore: before,
		OnHandAfter:  after,
		SaleID:       saleID,
		ReversalOf:   reversalOf,
		Note:         note,
		CreatedAt:    now,
	}
	if err := l.store.InsertMovement(ctx, q, m); err != nil {
		return Movement{}, err
	}
	if err := l.store.UpsertStockLine(ctx, q, line); err != nil {
		return Movement{}, err
	}
	return m, nil
}
