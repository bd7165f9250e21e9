// Package sales owns the sale aggregate and its lifecycle. State, totals
// and outstanding balance are mutated only through Service transitions.
package sales

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is the sale lifecycle state.
type State string

const (
	StateDraft     State = "draft"
	StateConfirmed State = "confirmed"
	StateInvoiced  State = "invoiced"
	StateVoided    State = "voided"
)

// PaymentType selects the settlement path for a sale.
type PaymentType string

const (
	PaymentCash   PaymentType = "cash"
	PaymentCredit PaymentType = "credit"
)

// Sale is the order aggregate. It is never hard-deleted; voiding is a
// terminal state.
type Sale struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Number        string
	CustomerID    uuid.UUID
	WarehouseID   uuid.UUID
	PaymentType   PaymentType
	State         State
	Lines         []SaleLine
	Subtotal      decimal.Decimal
	OrderDiscount decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	Outstanding   decimal.Decimal

	InvoiceNumber     *string
	InvoiceAuthorized bool
	VoidReason        *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	InvoicedAt  *time.Time
	VoidedAt    *time.Time
}

// OnCredit reports whether the sale settles against customer credit.
func (s *Sale) OnCredit() bool { return s.PaymentType == PaymentCredit }

// SaleLine is immutable once the parent sale leaves draft.
type SaleLine struct {
	ID           uuid.UUID
	SaleID       uuid.UUID
	ProductID    uuid.UUID
	Qty          int64
	UnitPrice    decimal.Decimal
	LineDiscount decimal.Decimal
	TaxRate      decimal.Decimal
	TaxAmount    decimal.Decimal
	LineTotal    decimal.Decimal
}

var (
	ErrNotFound = errors.New("sales: sale not found")
	// ErrVoidBlocked means the invoice was externally authorized and the
	// sale must be countered with a credit note instead of a void.
	ErrVoidBlocked = errors.New("sales: invoice authorized, void blocked")
)

// StateConflictError rejects a transition the current state does not allow.
type StateConflictError struct {
	SaleID uuid.UUID
	State  State
	Action string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("sales: cannot %s sale %s in state %s", e.Action, e.SaleID, e.State)
}

func stateConflict(saleID uuid.UUID, state State, action string) error {
	return &StateConflictError{SaleID: saleID, State: state, Action: action}
}
