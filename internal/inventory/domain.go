// Package inventory owns authoritative stock quantities and the immutable
// movement ledger behind them.
package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement.
	MovementIn MovementType = "in"
	// MovementOut represents an outbound movement.
	MovementOut MovementType = "out"
	// MovementTransfer marks the two legs of a warehouse transfer.
	MovementTransfer MovementType = "transfer"
	// MovementAdjustment indicates a manual stock count correction.
	MovementAdjustment MovementType = "adjustment"
)

// StockLine holds the per-(product, warehouse) quantity record.
// Invariants: 0 <= Reserved <= OnHand; Available() is never negative.
type StockLine struct {
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	OnHand      int64
	Reserved    int64
	AvgCost     decimal.Decimal
	UpdatedAt   time.Time
}

// Available reports the quantity not held by a reservation.
func (l StockLine) Available() int64 {
	return l.OnHand - l.Reserved
}

// Movement is an append-only ledger entry. Qty is the signed on-hand
// delta (positive inbound, negative outbound), so a stock line's on-hand
// quantity always equals the running sum of its movements. Rows are never
// updated or deleted, only countered by an inverse movement linked via
// ReversalOf.
type Movement struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Number       string
	Type         MovementType
	ProductID    uuid.UUID
	WarehouseID  uuid.UUID
	Qty          int64
	UnitCost     decimal.Decimal
	OnHandBefore int64
	OnHandAfter  int64
	SaleID       *uuid.UUID
	ReversalOf   *uuid.UUID
	Note         string
	CreatedAt    time.Time
}

// ConsumeInput describes an outbound movement request.
type ConsumeInput struct {
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Qty         int64
	SaleID      *uuid.UUID
	Note        string
}

// RestockInput describes an inbound movement request.
type RestockInput struct {
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Qty         int64
	UnitCost    decimal.Decimal
	SaleID      *uuid.UUID
	Note        string
}

// AdjustInput describes a signed stock correction.
type AdjustInput struct {
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Qty         int64
	UnitCost    decimal.Decimal
	Note        string
}

// InsufficientStockError is a business rejection carrying the shortfall.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Requested   int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: product %s warehouse %s short %d (requested %d, available %d)",
		e.ProductID, e.WarehouseID, e.Requested-e.Available, e.Requested, e.Available)
}

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrInvalidUnitCost indicates a negative cost value.
var ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")

// ErrReservationUnderflow indicates a release larger than the held reservation.
var ErrReservationUnderflow = errors.New("inventory: release exceeds reserved quantity")
