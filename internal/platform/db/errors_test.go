package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkite/ledgerkite/internal/shared"
)

func TestTranslateNoRows(t *testing.T) {
	require.ErrorIs(t, Translate(pgx.ErrNoRows), shared.ErrNotFound)
}

func TestTranslateUniqueViolation(t *testing.T) {
	err := Translate(&pgconn.PgError{Code: "23505", ConstraintName: "customers_tenant_email_key"})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Contains(t, err.Error(), "customers_tenant_email_key")
}

func TestTranslateForeignKeyViolation(t *testing.T) {
	err := Translate(&pgconn.PgError{Code: "23503", ConstraintName: "invoice_lines_invoice_id_fkey"})
	require.ErrorIs(t, err, shared.ErrDependencyExists)
}

func TestTranslateConnectionFailure(t *testing.T) {
	require.ErrorIs(t, Translate(&pgconn.PgError{Code: "08006"}), shared.ErrStorageUnavailable)
	require.ErrorIs(t, Translate(&pgconn.PgError{Code: "53300"}), shared.ErrStorageUnavailable)
}

func TestTranslatePassthrough(t *testing.T) {
	cause := errors.New("boom")
	require.Equal(t, cause, Translate(cause))
	require.NoError(t, Translate(nil))
}
