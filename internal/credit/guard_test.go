package credit

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/klyraworks/fulfil/internal/platform/db"
)

type memoryStore struct {
	credits map[uuid.UUID]CustomerCredit
}

func newMemoryStore() *memoryStore {
	return &memoryStore{credits: make(map[uuid.UUID]CustomerCredit)}
}

func (s *memoryStore) CreditForUpdate(ctx context.Context, q db.Querier, tenantID, customerID uuid.UUID) (CustomerCredit, error) {
	return s.Credit(ctx, q, tenantID, customerID)
}

func (s *memoryStore) Credit(_ context.Context, _ db.Querier, _, customerID uuid.UUID) (CustomerCredit, error) {
	cc, ok := s.credits[customerID]
	if !ok {
		return CustomerCredit{}, ErrCustomerNotFound
	}
	return cc, nil
}

func (s *memoryStore) UpdateAvailable(_ context.Context, _ db.Querier, _, customerID uuid.UUID, available decimal.Decimal) error {
	cc, ok := s.credits[customerID]
	if !ok {
		return ErrCustomerNotFound
	}
	cc.Available = available
	s.credits[customerID] = cc
	return nil
}

// serialRunner emulates the database serialization provided by the
// customer-row lock: each unit of work runs alone.
type serialRunner struct {
	mu sync.Mutex
}

func (r *serialRunner) WithTx(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func seedCustomer(store *memoryStore, limit, available string) (uuid.UUID, uuid.UUID) {
	tenant := uuid.New()
	customer := uuid.New()
	store.credits[customer] = CustomerCredit{
		CustomerID: customer,
		TenantID:   tenant,
		Limit:      dec(limit),
		Available:  dec(available),
	}
	return tenant, customer
}

func TestReserveAndRelease(t *testing.T) {
	store := newMemoryStore()
	guard := NewGuard(store)
	ctx := context.Background()
	tenant, customer := seedCustomer(store, "1000", "1000")

	require.NoError(t, guard.Reserve(ctx, nil, tenant, customer, dec("400")))
	cc, err := store.Credit(ctx, nil, tenant, customer)
	require.NoError(t, err)
	require.True(t, cc.Available.Equal(dec("600")))

	require.NoError(t, guard.Release(ctx, nil, tenant, customer, dec("150")))
	cc, _ = store.Credit(ctx, nil, tenant, customer)
	require.True(t, cc.Available.Equal(dec("750")))
}

func TestReserveInsufficientCredit(t *testing.T) {
	store := newMemoryStore()
	guard := NewGuard(store)
	ctx := context.Background()
	tenant, customer := seedCustomer(store, "100", "100")

	err := guard.Reserve(ctx, nil, tenant, customer, dec("100.01"))
	var insufficient *InsufficientCreditError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.Equal(dec("100")))
	require.True(t, insufficient.Requested.Equal(dec("100.01")))

	// Rejection left the counter untouched.
	cc, _ := store.Credit(ctx, nil, tenant, customer)
	require.True(t, cc.Available.Equal(dec("100")))
}

func TestReleaseClampedAtLimit(t *testing.T) {
	store := newMemoryStore()
	guard := NewGuard(store)
	ctx := context.Background()
	tenant, customer := seedCustomer(store, "500", "400")

	require.NoError(t, guard.Release(ctx, nil, tenant, customer, dec("250")))
	cc, _ := store.Credit(ctx, nil, tenant, customer)
	require.True(t, cc.Available.Equal(dec("500")), "release must clamp at credit_limit")
}

func TestConcurrentReservesSerialized(t *testing.T) {
	store := newMemoryStore()
	guard := NewGuard(store)
	ctx := context.Background()
	tenant, customer := seedCustomer(store, "100", "100")

	runner := &serialRunner{}
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- runner.WithTx(func() error {
				return guard.Reserve(ctx, nil, tenant, customer, dec("80"))
			})
		}()
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		var insufficient *InsufficientCreditError
		require.ErrorAs(t, err, &insufficient)
		rejected++
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, rejected)

	cc, _ := store.Credit(ctx, nil, tenant, customer)
	require.True(t, cc.Available.Equal(dec("20")))
}

func TestInvalidAmounts(t *testing.T) {
	store := newMemoryStore()
	guard := NewGuard(store)
	ctx := context.Background()
	tenant, customer := seedCustomer(store, "100", "100")

	require.ErrorIs(t, guard.Reserve(ctx, nil, tenant, customer, dec("0")), ErrInvalidAmount)
	require.ErrorIs(t, guard.Release(ctx, nil, tenant, customer, dec("-5")), ErrInvalidAmount)
	require.ErrorIs(t, guard.Check(ctx, nil, tenant, customer, dec("0")), ErrInvalidAmount)
}
