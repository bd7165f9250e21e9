package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/klyraworks/fulfil/internal/platform/db"
)

type memoryStore struct {
	lines     map[string]StockLine
	movements []Movement
}

func newMemoryStore() *memoryStore {
	return &memoryStore{lines: make(map[string]StockLine)}
}

func lineKey(tenantID, productID, warehouseID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", tenantID, productID, warehouseID)
}

func (s *memoryStore) StockLineForUpdate(ctx context.Context, q db.Querier, tenantID, productID, warehouseID uuid.UUID) (StockLine, error) {
	return s.StockLine(ctx, q, tenantID, productID, warehouseID)
}

func (s *memoryStore) StockLine(_ context.Context, _ db.Querier, tenantID, productID, warehouseID uuid.UUID) (StockLine, error) {
	if line, ok := s.lines[lineKey(tenantID, productID, warehouseID)]; ok {
		return line, nil
	}
	return StockLine{TenantID: tenantID, ProductID: productID, WarehouseID: warehouseID}, nil
}

func (s *memoryStore) UpsertStockLine(_ context.Context, _ db.Querier, line StockLine) error {
	s.lines[lineKey(line.TenantID, line.ProductID, line.WarehouseID)] = line
	return nil
}

func (s *memoryStore) InsertMovement(_ context.Context, _ db.Querier, m Movement) error {
	s.movements = append(s.movements, m)
	return nil
}

func (s *memoryStore) UnreversedSaleMovements(_ context.Context, _ db.Querier, tenantID, saleID uuid.UUID) ([]Movement, error) {
	reversed := make(map[uuid.UUID]bool)
	for _, m := range s.movements {
		if m.ReversalOf != nil {
			reversed[*m.ReversalOf] = true
		}
	}
	var out []Movement
	for _, m := range s.movements {
		if m.TenantID == tenantID && m.SaleID != nil && *m.SaleID == saleID && m.ReversalOf == nil && !reversed[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memoryStore) Movements(_ context.Context, _ db.Querier, tenantID, productID, warehouseID uuid.UUID, _ int) ([]Movement, error) {
	var out []Movement
	for _, m := range s.movements {
		if m.TenantID == tenantID && m.ProductID == productID && m.WarehouseID == warehouseID {
			out = append(out, m)
		}
	}
	return out, nil
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

func newTestLedger() (*Ledger, *memoryStore) {
	store := newMemoryStore()
	return NewLedger(store, &fakeSequence{}), store
}

func TestRestockWeightedAverageCost(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	tenant, product, warehouse := uuid.New(), uuid.New(), uuid.New()

	m, err := ledger.Restock(ctx, nil, RestockInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 10, UnitCost: dec("100")})
	require.NoError(t, err)
	require.Equal(t, int64(0), m.OnHandBefore)
	require.Equal(t, int64(10), m.OnHandAfter)

	_, err = ledger.Restock(ctx, nil, RestockInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 5, UnitCost: dec("130")})
	require.NoError(t, err)

	line, err := ledger.StockLine(ctx, nil, tenant, product, warehouse)
	require.NoError(t, err)
	require.Equal(t, int64(15), line.OnHand)
	// (10*100 + 5*130) / 15 = 110
	require.True(t, line.AvgCost.Equal(dec("110")), "avg cost %s", line.AvgCost)
}

func TestConsumeUsesAverageCostAndSnapshot(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	tenant, product, warehouse := uuid.New(), uuid.New(), uuid.New()

	_, err := ledger.Restock(ctx, nil, RestockInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 10, UnitCost: dec("80")})
	require.NoError(t, err)

	saleID := uuid.New()
	m, err := ledger.Consume(ctx, nil, ConsumeInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 2, SaleID: &saleID})
	require.NoError(t, err)
	require.Equal(t, MovementOut, m.Type)
	require.Equal(t, int64(-2), m.Qty)
	require.Equal(t, int64(10), m.OnHandBefore)
	require.Equal(t, int64(8), m.OnHandAfter)
	require.True(t, m.UnitCost.Equal(dec("80")))
}

func TestConsumeInsufficientStock(t *testing.T) {
	ledger, store := newTestLedger()
	ctx := context.Background()
	tenant, product, warehouse := uuid.New(), uuid.New(), uuid.New()

	_, err := ledger.Restock(ctx, nil, RestockInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 3, UnitCost: dec("10")})
	require.NoError(t, err)

	_, err = ledger.Consume(ctx, nil, ConsumeInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 5})
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, int64(5), short.Requested)
	require.Equal(t, int64(3), short.Available)

	// Rejection appended no movement.
	require.Len(t, store.movements, 1)
}

func TestReservationGuardsConsume(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	tenant, product, warehouse := uuid.New(), uuid.New(), uuid.New()

	_, err := ledger.Restock(ctx, nil, RestockInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 10, UnitCost: dec("10")})
	require.NoError(t, err)

	require.NoError(t, ledger.Reserve(ctx, nil, tenant, product, warehouse, 6))

	// Only the unreserved remainder is consumable.
	_, err = ledger.Consume(ctx, nil, ConsumeInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 5})
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, int64(4), short.Available)

	require.NoError(t, ledger.ReleaseReservation(ctx, nil, tenant, product, warehouse, 6))
	_, err = ledger.Consume(ctx, nil, ConsumeInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 5})
	require.NoError(t, err)

	require.ErrorIs(t, ledger.ReleaseReservation(ctx, nil, tenant, product, warehouse, 1), ErrReservationUnderflow)
}

func TestReverseRestoresExactState(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	tenant, product, warehouse := uuid.New(), uuid.New(), uuid.New()

	_, err := ledger.Restock(ctx, nil, RestockInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 10, UnitCost: dec("50")})
	require.NoError(t, err)

	saleID := uuid.New()
	out, err := ledger.Consume(ctx, nil, ConsumeInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 4, SaleID: &saleID})
	require.NoError(t, err)

	inverse, err := ledger.Reverse(ctx, nil, out)
	require.NoError(t, err)
	require.Equal(t, MovementIn, inverse.Type)
	require.Equal(t, int64(4), inverse.Qty)
	require.True(t, inverse.UnitCost.Equal(out.UnitCost))
	require.NotNil(t, inverse.ReversalOf)
	require.Equal(t, out.ID, *inverse.ReversalOf)

	line, err := ledger.StockLine(ctx, nil, tenant, product, warehouse)
	require.NoError(t, err)
	require.Equal(t, int64(10), line.OnHand)
	require.True(t, line.AvgCost.Equal(dec("50")))

	// The reversed movement no longer shows up as pending for the sale.
	pending, err := ledger.UnreversedSaleMovements(ctx, nil, tenant, saleID)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestOnHandEqualsRunningMovementSum(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	tenant, product, warehouse := uuid.New(), uuid.New(), uuid.New()

	_, err := ledger.Restock(ctx, nil, RestockInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 12, UnitCost: dec("9")})
	require.NoError(t, err)
	_, err = ledger.Consume(ctx, nil, ConsumeInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 5})
	require.NoError(t, err)
	_, err = ledger.Adjust(ctx, nil, AdjustInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: -2, Note: "count"})
	require.NoError(t, err)
	_, err = ledger.Restock(ctx, nil, RestockInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 3, UnitCost: dec("11")})
	require.NoError(t, err)

	movements, err := ledger.Movements(ctx, nil, tenant, product, warehouse, 0)
	require.NoError(t, err)
	var sum int64
	for _, m := range movements {
		sum += m.Qty
		require.Equal(t, m.OnHandBefore+m.Qty, m.OnHandAfter)
	}
	line, err := ledger.StockLine(ctx, nil, tenant, product, warehouse)
	require.NoError(t, err)
	require.Equal(t, line.OnHand, sum)
}

func TestAdjustValidation(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	tenant, product, warehouse := uuid.New(), uuid.New(), uuid.New()

	_, err := ledger.Adjust(ctx, nil, AdjustInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = ledger.Adjust(ctx, nil, AdjustInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: 1, UnitCost: dec("-1")})
	require.ErrorIs(t, err, ErrInvalidUnitCost)

	_, err = ledger.Adjust(ctx, nil, AdjustInput{TenantID: tenant, ProductID: product, WarehouseID: warehouse, Qty: -1})
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
}
