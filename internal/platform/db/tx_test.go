package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestTranslateLockError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"lock timeout", &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}, true},
		{"wrapped lock timeout", fmt.Errorf("confirm: %w", &pgconn.PgError{Code: "55P03"}), true},
		{"constraint violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translateLockError(tc.err)
			if tc.retriable {
				require.ErrorIs(t, got, ErrLockTimeout)
			} else {
				require.NotErrorIs(t, got, ErrLockTimeout)
				require.Equal(t, tc.err, got)
			}
		})
	}
}
