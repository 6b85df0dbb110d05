package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestTranslateWriteError(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "nil",
			err:  nil,
			want: nil,
		},
		{
			name: "duplicate email",
			err:  fmt.Errorf("create user: %w", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintUsersEmail}),
			want: ErrDuplicateEmail,
		},
		{
			name: "duplicate ledger",
			err:  &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintIdempotencyRecord},
			want: ErrDuplicateSubmission,
		},
		{
			name: "duplicate order submission",
			err:  &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintOrdersSubmission},
			want: ErrDuplicateSubmission,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := translateWriteError(tc.err)
			if tc.want == nil {
				require.NoError(t, got)
				return
			}
			require.ErrorIs(t, got, tc.want)
		})
	}

	other := &pgconn.PgError{Code: "40P01"}
	require.Same(t, error(other), translateWriteError(other))
}

func TestOutOfStockErrorIs(t *testing.T) {
	err := fmt.Errorf("reserve: %w", &OutOfStockError{VariantID: 1, Requested: 3, Available: 2})
	require.ErrorIs(t, err, ErrOutOfStock)

	var oos *OutOfStockError
	require.True(t, errors.As(err, &oos))
	require.Equal(t, int64(1), oos.VariantID)
	require.Equal(t, 2, oos.Available)
}
