package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/klyraworks/fulfil/internal/credit"
	"github.com/klyraworks/fulfil/internal/platform/db"
)

type memoryStore struct {
	payments map[uuid.UUID]Payment
}

func newMemoryStore() *memoryStore {
	return &memoryStore{payments: make(map[uuid.UUID]Payment)}
}

func (s *memoryStore) Insert(_ context.Context, _ db.Querier, p Payment) error {
	s.payments[p.ID] = p
	return nil
}

func (s *memoryStore) PaymentForUpdate(_ context.Context, _ db.Querier, tenantID, paymentID uuid.UUID) (Payment, error) {
	p, ok := s.payments[paymentID]
	if !ok || p.TenantID != tenantID {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (s *memoryStore) Payment(ctx context.Context, q db.Querier, tenantID, paymentID uuid.UUID) (Payment, error) {
	return s.PaymentForUpdate(ctx, q, tenantID, paymentID)
}

func (s *memoryStore) MarkReversed(_ context.Context, _ db.Querier, tenantID, paymentID uuid.UUID, at time.Time) error {
	p, ok := s.payments[paymentID]
	if !ok || p.TenantID != tenantID {
		return ErrPaymentNotFound
	}
	if p.ReversedAt != nil {
		return ErrAlreadyReversed
	}
	p.ReversedAt = &at
	s.payments[paymentID] = p
	return nil
}

func (s *memoryStore) ActiveTotal(_ context.Context, _ db.Querier, tenantID, saleID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range s.payments {
		if p.TenantID == tenantID && p.SaleID == saleID && p.ReversedAt == nil {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (s *memoryStore) ListBySale(_ context.Context, _ db.Querier, tenantID, saleID uuid.UUID) ([]Payment, error) {
	var out []Payment
	for _, p := range s.payments {
		if p.TenantID == tenantID && p.SaleID == saleID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeGuard struct {
	available decimal.Decimal
	limit     decimal.Decimal
	released  []decimal.Decimal
	reserved  []decimal.Decimal
}

func (g *fakeGuard) Release(_ context.Context, _ db.Querier, _, _ uuid.UUID, amount decimal.Decimal) error {
	g.available = g.available.Add(amount)
	if g.available.GreaterThan(g.limit) {
		g.available = g.limit
	}
	g.released = append(g.released, amount)
	return nil
}

func (g *fakeGuard) Reserve(_ context.Context, _ db.Querier, _, customerID uuid.UUID, amount decimal.Decimal) error {
	if g.available.LessThan(amount) {
		return &credit.InsufficientCreditError{CustomerID: customerID, Requested: amount, Available: g.available}
	}
	g.available = g.available.Sub(amount)
	g.reserved = append(g.reserved, amount)
	return nil
}

type fakeSequence struct {
	n int64
}

func (f *fakeSequence) Next(_ context.Context, _ db.Querier, _ uuid.UUID, scope string, date time.Time) (string, error) {
	f.n++
	return fmt.Sprintf("%s-%s-%04d", scope, date.Format("20060102"), f.n), nil
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func creditSale(total, outstanding string) SaleSummary {
	return SaleSummary{
		SaleID:      uuid.New(),
		TenantID:    uuid.New(),
		CustomerID:  uuid.New(),
		Total:       dec(total),
		Outstanding: dec(outstanding),
		OnCredit:    true,
	}
}

func TestRecordCreditSaleReleasesCredit(t *testing.T) {
	store := newMemoryStore()
	guard := &fakeGuard{available: dec("0"), limit: dec("1000")}
	ledger := NewLedger(store, guard, &fakeSequence{})
	sale := creditSale("1000", "1000")

	p, outstanding, err := ledger.Record(context.Background(), nil, sale, dec("400"), "cash")
	require.NoError(t, err)
	require.True(t, outstanding.Equal(dec("600")), "outstanding %s", outstanding)
	require.Contains(t, p.Number, "PAY-")
	require.Len(t, guard.released, 1)
	require.True(t, guard.released[0].Equal(dec("400")))
	require.False(t, p.Reversed())
}

func TestRecordCashSaleSkipsGuard(t *testing.T) {
	store := newMemoryStore()
	guard := &fakeGuard{limit: dec("1000")}
	ledger := NewLedger(store, guard, &fakeSequence{})
	sale := creditSale("500", "500")
	sale.OnCredit = false

	_, outstanding, err := ledger.Record(context.Background(), nil, sale, dec("500"), "cash")
	require.NoError(t, err)
	require.True(t, outstanding.IsZero())
	require.Empty(t, guard.released)
}

func TestRecordRejectsOverpayment(t *testing.T) {
	store := newMemoryStore()
	ledger := NewLedger(store, &fakeGuard{}, &fakeSequence{})
	sale := creditSale("1000", "150")

	_, _, err := ledger.Record(context.Background(), nil, sale, dec("150.01"), "cash")
	var over *OverpaymentError
	require.ErrorAs(t, err, &over)
	require.True(t, over.Outstanding.Equal(dec("150")))
	require.Empty(t, store.payments)

	_, _, err = ledger.Record(context.Background(), nil, sale, dec("0"), "cash")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestReverseReclaimsCredit(t *testing.T) {
	store := newMemoryStore()
	guard := &fakeGuard{available: dec("0"), limit: dec("1000")}
	ledger := NewLedger(store, guard, &fakeSequence{})
	sale := creditSale("1000", "1000")
	ctx := context.Background()

	p, outstanding, err := ledger.Record(ctx, nil, sale, dec("400"), "transfer")
	require.NoError(t, err)
	sale.Outstanding = outstanding

	reversed, outstanding, err := ledger.Reverse(ctx, nil, sale, p.ID)
	require.NoError(t, err)
	require.True(t, reversed.Reversed())
	require.True(t, outstanding.Equal(dec("1000")))
	require.Len(t, guard.reserved, 1)
	require.True(t, guard.available.IsZero())

	// Second reversal of the same payment is a conflict, not a no-op.
	_, _, err = ledger.Reverse(ctx, nil, sale, p.ID)
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestReverseFailsClosedOnCreditShortfall(t *testing.T) {
	store := newMemoryStore()
	guard := &fakeGuard{available: dec("0"), limit: dec("1000")}
	ledger := NewLedger(store, guard, &fakeSequence{})
	sale := creditSale("1000", "1000")
	ctx := context.Background()

	p, outstanding, err := ledger.Record(ctx, nil, sale, dec("400"), "cash")
	require.NoError(t, err)
	sale.Outstanding = outstanding

	// The released credit is consumed elsewhere before the reversal.
	require.NoError(t, guard.Reserve(ctx, nil, sale.TenantID, sale.CustomerID, dec("400")))
	guard.reserved = nil

	_, _, err = ledger.Reverse(ctx, nil, sale, p.ID)
	var short *credit.InsufficientCreditError
	require.ErrorAs(t, err, &short)
}

func TestReverseRejectsForeignPayment(t *testing.T) {
	store := newMemoryStore()
	ledger := NewLedger(store, &fakeGuard{limit: dec("10")}, &fakeSequence{})
	saleA := creditSale("100", "100")
	saleA.OnCredit = false
	saleB := saleA
	saleB.SaleID = uuid.New()
	ctx := context.Background()

	p, _, err := ledger.Record(ctx, nil, saleA, dec("50"), "cash")
	require.NoError(t, err)

	_, _, err = ledger.Reverse(ctx, nil, saleB, p.ID)
	require.ErrorIs(t, err, ErrSaleMismatch)

	_, _, err = ledger.Reverse(ctx, nil, saleA, uuid.New())
	require.ErrorIs(t, err, ErrPaymentNotFound)
}
