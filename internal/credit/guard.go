package credit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/klyraworks/fulfil/internal/platform/db"
)

// Store exposes the customer credit rows used by the guard.
type Store interface {
	// CreditForUpdate loads the credit columns under an exclusive row lock.
	CreditForUpdate(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID) (CustomerCredit, error)
	// Credit loads the credit columns without locking.
	Credit(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID) (CustomerCredit, error)
	// UpdateAvailable writes a new credit_available value.
	UpdateAvailable(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID, available decimal.Decimal) error
}

// Guard coordinates credit reservations. All mutating operations run under
// an exclusive lock on the customer row so concurrent reservations cannot
// both pass a stale read.
type Guard struct {
	store Store
}

// NewGuard builds a Guard.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// Lock takes the customer row lock without mutating credit. Operations that
// must hold the customer lock first in the ordering but only know the final
// amount later (void) use this before touching stock rows.
func (g *Guard) Lock(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID) error {
	_, err := g.store.CreditForUpdate(ctx, q, tenantID, customerID)
	return err
}

// Reserve decrements credit_available by amount, rejecting with
// InsufficientCreditError when the customer cannot cover it.
func (g *Guard) Reserve(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	cc, err := g.store.CreditForUpdate(ctx, q, tenantID, customerID)
	if err != nil {
		return err
	}
	if cc.Available.LessThan(amount) {
		return &InsufficientCreditError{CustomerID: customerID, Requested: amount, Available: cc.Available}
	}
	if err := g.store.UpdateAvailable(ctx, q, tenantID, customerID, cc.Available.Sub(amount)); err != nil {
		return fmt.Errorf("credit: reserve %s: %w", customerID, err)
	}
	return nil
}

// Release increments credit_available by amount, clamped at the credit
// limit. The clamp guards against a double release after partial payments
// followed by a void.
func (g *Guard) Release(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	cc, err := g.store.CreditForUpdate(ctx, q, tenantID, customerID)
	if err != nil {
		return err
	}
	next := cc.Available.Add(amount)
	if next.GreaterThan(cc.Limit) {
		next = cc.Limit
	}
	if err := g.store.UpdateAvailable(ctx, q, tenantID, customerID, next); err != nil {
		return fmt.Errorf("credit: release %s: %w", customerID, err)
	}
	return nil
}

// Check performs a provisional, lock-free credit check. Draft creation uses
// it so editing a draft never takes locks or has side effects; the binding
// reservation happens at confirm.
func (g *Guard) Check(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	cc, err := g.store.Credit(ctx, q, tenantID, customerID)
	if err != nil {
		return err
	}
	if cc.Available.LessThan(amount) {
		return &InsufficientCreditError{CustomerID: customerID, Requested: amount, Available: cc.Available}
	}
	return nil
}
