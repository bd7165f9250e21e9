// Package credit enforces customer credit-limit invariants. It is the single
// authority allowed to change credit_available.
package credit

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerCredit is the credit view of a customer row. Invariant:
// 0 <= Available <= Limit, preserved by every Guard operation.
type CustomerCredit struct {
	CustomerID uuid.UUID
	TenantID   uuid.UUID
	Limit      decimal.Decimal
	Available  decimal.Decimal
	UpdatedAt  time.Time
}

// InsufficientCreditError is a business rejection, not a fault: it aborts
// the enclosing unit of work with no partial effect.
type InsufficientCreditError struct {
	CustomerID uuid.UUID
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientCreditError) Error() string {
	shortfall := e.Requested.Sub(e.Available)
	return fmt.Sprintf("credit: customer %s short %s (requested %s, available %s)",
		e.CustomerID, shortfall, e.Requested, e.Available)
}

// ErrCustomerNotFound indicates a missing customer row.
var ErrCustomerNotFound = errors.New("credit: customer not found")

// ErrInvalidAmount indicates a non-positive reserve/release amount.
var ErrInvalidAmount = errors.New("credit: amount must be positive")
