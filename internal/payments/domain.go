package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is an append-only settlement record against a sale. Reversal sets
// ReversedAt instead of deleting the row.
type Payment struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	SaleID     uuid.UUID
	Number     string
	Amount     decimal.Decimal
	Method     string
	CreatedAt  time.Time
	ReversedAt *time.Time
}

// Reversed reports whether the payment has been voided.
func (p Payment) Reversed() bool { return p.ReversedAt != nil }

// SaleSummary carries the slice of the sale aggregate the ledger needs.
// The owning service passes it in so this package never reads sale rows.
type SaleSummary struct {
	SaleID      uuid.UUID
	TenantID    uuid.UUID
	CustomerID  uuid.UUID
	Total       decimal.Decimal
	Outstanding decimal.Decimal
	OnCredit    bool
}

var (
	ErrInvalidAmount   = errors.New("payments: amount must be positive")
	ErrPaymentNotFound = errors.New("payments: payment not found")
	ErrAlreadyReversed = errors.New("payments: payment already reversed")
	ErrSaleMismatch    = errors.New("payments: payment does not belong to sale")
)

// OverpaymentError is a business rejection: the amount would push the sale
// past fully paid.
type OverpaymentError struct {
	SaleID      uuid.UUID
	Requested   decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payments: amount %s exceeds outstanding %s on sale %s",
		e.Requested, e.Outstanding, e.SaleID)
}
