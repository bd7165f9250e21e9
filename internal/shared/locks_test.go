package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestMutex(t *testing.T) *SaleMutex {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSaleMutex(client, 5*time.Second)
}

func TestSaleMutexExcludesSecondHolder(t *testing.T) {
	mutex := newTestMutex(t)
	ctx := context.Background()
	tenant := uuid.New()
	sale := uuid.New()

	release, err := mutex.Acquire(ctx, tenant, sale)
	require.NoError(t, err)

	_, err = mutex.Acquire(ctx, tenant, sale)
	require.ErrorIs(t, err, ErrLockNotAcquired)

	release()

	release2, err := mutex.Acquire(ctx, tenant, sale)
	require.NoError(t, err)
	release2()
}

func TestSaleMutexIndependentSales(t *testing.T) {
	mutex := newTestMutex(t)
	ctx := context.Background()
	tenant := uuid.New()

	release1, err := mutex.Acquire(ctx, tenant, uuid.New())
	require.NoError(t, err)
	defer release1()

	release2, err := mutex.Acquire(ctx, tenant, uuid.New())
	require.NoError(t, err)
	defer release2()
}
