package identity

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func errNoRowsForTest() error {
	return pgx.ErrNoRows
}

func uniqueViolationForTest() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: "users_pkey"}
}
