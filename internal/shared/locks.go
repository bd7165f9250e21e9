package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/google/uuid"
)

// SaleMutex serializes confirm/void/payment entry points per sale on top of
// the database row locks. The row locks alone are sufficient for
// correctness; the mutex keeps concurrent workers from queueing on row
// locks and bounds the void-versus-payment-reversal interleaving.
type SaleMutex struct {
	locker *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewSaleMutex constructs a SaleMutex over a redis client.
func NewSaleMutex(client *redis.Client, ttl time.Duration) *SaleMutex {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SaleMutex{
		locker: redislock.New(client),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 10),
	}
}

// SaleLockKey builds the redis key for a sale critical section.
func SaleLockKey(tenantID, saleID uuid.UUID) string {
	return fmt.Sprintf("fulfil:%s:sale:%s:lock", tenantID, saleID)
}

// Acquire obtains the per-sale lock and returns its release function.
// Returns ErrLockNotAcquired when the retry budget is exhausted.
func (m *SaleMutex) Acquire(ctx context.Context, tenantID, saleID uuid.UUID) (func(), error) {
	if m == nil {
		return func() {}, nil
	}
	lock, err := m.locker.Obtain(ctx, SaleLockKey(tenantID, saleID), m.ttl, &redislock.Options{
		RetryStrategy: m.retry,
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: sale %s", ErrLockNotAcquired, saleID)
		}
		return nil, fmt.Errorf("acquire sale lock: %w", err)
	}
	release := func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}
	return release, nil
}
