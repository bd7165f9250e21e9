package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx. Component
// stores accept a Querier so a single transaction can span several of them.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrLockTimeout indicates a row lock could not be acquired within the
// configured bound, or the transaction lost a serialization race.
// Transient: callers may retry with backoff.
var ErrLockTimeout = errors.New("platform/db: lock wait timed out")

// pg SQLSTATEs treated as transient lock trouble.
const (
	lockNotAvailable     = "55P03"
	serializationFailure = "40001"
)

// Runner executes functions inside ReadCommitted transactions with a
// bounded lock wait. Row locks, taken in the mandatory order, provide the
// serialization between concurrent transitions; a higher isolation level
// would abort waiters on rows committed after their snapshot instead of
// letting them re-read the fresh value.
type Runner struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRunner constructs a Runner. A zero lockTimeout leaves the server
// default in place.
func NewRunner(pool *pgxpool.Pool, lockTimeout time.Duration) *Runner {
	return &Runner{pool: pool, lockTimeout: lockTimeout}
}

// WithTx executes fn within a ReadCommitted transaction. Lock waits beyond
// the configured bound and serialization races surface as ErrLockTimeout.
func (r *Runner) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if r.lockTimeout > 0 {
		timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, timeout); err != nil {
			return fmt.Errorf("platform/db: set lock timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return translateLockError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", translateLockError(err))
	}

	return nil
}

func translateLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case lockNotAvailable, serializationFailure:
			return fmt.Errorf("%w: %s", ErrLockTimeout, pgErr.Message)
		}
	}
	return err
}
