package sequence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// counterQuerier emulates the doc_counters upsert: one atomic increment per
// (tenant, scope, date) key, concurrency-safe like the database row.
type counterQuerier struct {
	mu      sync.Mutex
	values  map[string]int64
	lastSQL string
}

func newCounterQuerier() *counterQuerier {
	return &counterQuerier{values: make(map[string]int64)}
}

func (c *counterQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (c *counterQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, nil
}

func (c *counterQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSQL = sql
	key := fmt.Sprint(args...)
	c.values[key]++
	return scanRow{value: c.values[key]}
}

type scanRow struct {
	value int64
}

func (r scanRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.value
	return nil
}

func TestFormat(t *testing.T) {
	date := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	require.Equal(t, "SAL-20260314-0001", Format("SAL", date, 1))
	require.Equal(t, "MOV-20260314-0042", Format("MOV", date, 42))
	require.Equal(t, "PAY-20260314-12345", Format("PAY", date, 12345))
}

func TestNextCountsPerTenantScopeAndDate(t *testing.T) {
	gen := NewGenerator()
	q := newCounterQuerier()
	ctx := context.Background()
	tenant := uuid.New()
	other := uuid.New()
	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	first, err := gen.Next(ctx, q, tenant, "SAL", day)
	require.NoError(t, err)
	require.Equal(t, "SAL-20260314-0001", first)

	second, err := gen.Next(ctx, q, tenant, "SAL", day)
	require.NoError(t, err)
	require.Equal(t, "SAL-20260314-0002", second)

	// Scope, date and tenant each get their own counter.
	mov, err := gen.Next(ctx, q, tenant, "MOV", day)
	require.NoError(t, err)
	require.Equal(t, "MOV-20260314-0001", mov)

	nextDay, err := gen.Next(ctx, q, tenant, "SAL", day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, "SAL-20260315-0001", nextDay)

	elsewhere, err := gen.Next(ctx, q, other, "SAL", day)
	require.NoError(t, err)
	require.Equal(t, "SAL-20260314-0001", elsewhere)

	require.Contains(t, q.lastSQL, "ON CONFLICT (tenant_id, scope, seq_date) DO UPDATE")

	_, err = gen.Next(ctx, q, tenant, "", day)
	require.Error(t, err)
}

func TestNextConcurrentCallersNeverCollide(t *testing.T) {
	gen := NewGenerator()
	q := newCounterQuerier()
	tenant := uuid.New()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	const callers = 32
	numbers := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := gen.Next(context.Background(), q, tenant, "SAL", day)
			if err != nil {
				t.Error(err)
				return
			}
			numbers[i] = n
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, callers)
	for _, n := range numbers {
		require.True(t, strings.HasPrefix(n, "SAL-20260314-"), n)
		require.False(t, seen[n], "duplicate number %s", n)
		seen[n] = true
	}
	require.Len(t, seen, callers)
}
