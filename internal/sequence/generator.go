// Package sequence issues gapless per-scope document numbers.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/klyraworks/fulfil/internal/platform/db"
)

// Generator produces race-free document numbers per (tenant, scope, date).
// The counter row is incremented atomically inside the caller's transaction,
// so two concurrent callers can never observe the same value and an aborted
// unit of work returns its number to the pool.
type Generator struct{}

// NewGenerator constructs a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns the next number for the scope, formatted SCOPE-YYYYMMDD-####.
func (g *Generator) Next(ctx context.Context, q db.Querier, tenantID uuid.UUID, scope string, date time.Time) (string, error) {
	if scope == "" {
		return "", fmt.Errorf("sequence: scope required")
	}
	var value int64
	err := q.QueryRow(ctx, `INSERT INTO doc_counters (tenant_id, scope, seq_date, value)
VALUES ($1, $2, $3, 1)
ON CONFLICT (tenant_id, scope, seq_date) DO UPDATE SET value = doc_counters.value + 1
RETURNING value`, tenantID, scope, date.Format("2006-01-02")).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("sequence: next %s: %w", scope, err)
	}
	return Format(scope, date, value), nil
}

// Format renders a document number in the canonical layout.
func Format(scope string, date time.Time, value int64) string {
	return fmt.Sprintf("%s-%s-%04d", scope, date.Format("20060102"), value)
}
