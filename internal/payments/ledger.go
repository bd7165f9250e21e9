package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/klyraworks/fulfil/internal/platform/db"
)

// Store exposes the payment rows.
type Store interface {
	Insert(ctx context.Context, q db.Querier, p Payment) error
	// PaymentForUpdate loads a payment under an exclusive row lock.
	PaymentForUpdate(ctx context.Context, q db.Querier, tenantID, paymentID uuid.UUID) (Payment, error)
	// Payment loads a payment without locking.
	Payment(ctx context.Context, q db.Querier, tenantID, paymentID uuid.UUID) (Payment, error)
	MarkReversed(ctx context.Context, q db.Querier, tenantID, paymentID uuid.UUID, at time.Time) error
	// ActiveTotal sums non-reversed payment amounts for the sale.
	ActiveTotal(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) (decimal.Decimal, error)
	ListBySale(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) ([]Payment, error)
}

// CreditGuard is the slice of the credit guard the ledger drives. Paying
// down a credit sale frees credit; reversing a payment re-encumbers it.
type CreditGuard interface {
	Release(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID, amount decimal.Decimal) error
	Reserve(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID, amount decimal.Decimal) error
}

// Sequence issues payment numbers inside the caller's transaction.
type Sequence interface {
	Next(ctx context.Context, q db.Querier, tenantID uuid.UUID, scope string, date time.Time) (string, error)
}

// payment number scope
const scopePayment = "PAY"

// Ledger records and reverses payments. It runs entirely inside the
// caller's transaction and never touches sale rows; the caller persists
// the outstanding balance the ledger returns.
type Ledger struct {
	store Store
	guard CreditGuard
	seq   Sequence
	now   func() time.Time
}

// NewLedger builds a Ledger.
func NewLedger(store Store, guard CreditGuard, seq Sequence) *Ledger {
	return &Ledger{store: store, guard: guard, seq: seq, now: func() time.Time { return time.Now().UTC() }}
}

// Record inserts a numbered payment against the sale and returns it with
// the recomputed outstanding balance. For credit sales the paid amount is
// released back to the customer's credit in the same transaction.
func (l *Ledger) Record(ctx context.Context, q db.Querier, sale SaleSummary, amount decimal.Decimal, method string) (Payment, decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return Payment{}, decimal.Zero, ErrInvalidAmount
	}
	if amount.GreaterThan(sale.Outstanding) {
		return Payment{}, decimal.Zero, &OverpaymentError{SaleID: sale.SaleID, Requested: amount, Outstanding: sale.Outstanding}
	}

	now := l.now()
	number, err := l.seq.Next(ctx, q, sale.TenantID, scopePayment, now)
	if err != nil {
		return Payment{}, decimal.Zero, fmt.Errorf("payments: payment number: %w", err)
	}
	p := Payment{
		ID:        uuid.New(),
		TenantID:  sale.TenantID,
		SaleID:    sale.SaleID,
		Number:    number,
		Amount:    amount,
		Method:    method,
		CreatedAt: now,
	}
	if err := l.store.Insert(ctx, q, p); err != nil {
		return Payment{}, decimal.Zero, fmt.Errorf("payments: insert %s: %w", number, err)
	}

	outstanding, err := l.outstanding(ctx, q, sale)
	if err != nil {
		return Payment{}, decimal.Zero, err
	}
	if sale.OnCredit {
		if err := l.guard.Release(ctx, q, sale.TenantID, sale.CustomerID, amount); err != nil {
			return Payment{}, decimal.Zero, err
		}
	}
	return p, outstanding, nil
}

// Reverse marks the payment reversed and returns it with the recomputed
// outstanding balance. For credit sales the re-unpaid amount is reserved
// again; a shortfall fails the whole transaction rather than leave the
// customer over-extended.
func (l *Ledger) Reverse(ctx context.Context, q db.Querier, sale SaleSummary, paymentID uuid.UUID) (Payment, decimal.Decimal, error) {
	p, err := l.store.PaymentForUpdate(ctx, q, sale.TenantID, paymentID)
	if err != nil {
		return Payment{}, decimal.Zero, err
	}
	if p.SaleID != sale.SaleID {
		return Payment{}, decimal.Zero, ErrSaleMismatch
	}
	if p.Reversed() {
		return Payment{}, decimal.Zero, ErrAlreadyReversed
	}

	now := l.now()
	if err := l.store.MarkReversed(ctx, q, sale.TenantID, p.ID, now); err != nil {
		return Payment{}, decimal.Zero, fmt.Errorf("payments: reverse %s: %w", p.Number, err)
	}
	p.ReversedAt = &now

	outstanding, err := l.outstanding(ctx, q, sale)
	if err != nil {
		return Payment{}, decimal.Zero, err
	}
	if sale.OnCredit {
		if err := l.guard.Reserve(ctx, q, sale.TenantID, sale.CustomerID, p.Amount); err != nil {
			return Payment{}, decimal.Zero, err
		}
	}
	return p, outstanding, nil
}

// Get returns a payment without locking it.
func (l *Ledger) Get(ctx context.Context, q db.Querier, tenantID, paymentID uuid.UUID) (Payment, error) {
	return l.store.Payment(ctx, q, tenantID, paymentID)
}

// ListBySale returns the sale's payments, oldest first, reversed included.
func (l *Ledger) ListBySale(ctx context.Context, q db.Querier, tenantID, saleID uuid.UUID) ([]Payment, error) {
	return l.store.ListBySale(ctx, q, tenantID, saleID)
}

func (l *Ledger) outstanding(ctx context.Context, q db.Querier, sale SaleSummary) (decimal.Decimal, error) {
	paid, err := l.store.ActiveTotal(ctx, q, sale.TenantID, sale.SaleID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("payments: sum for sale %s: %w", sale.SaleID, err)
	}
	return sale.Total.Sub(paid), nil
}
