package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// uniqueViolationCode is the Postgres SQLSTATE for a unique-constraint
// violation, shared by both drivers this package's tests and production
// runtime exercise: pgx (the registered "pgx" sql/driver) surfaces
// *pgconn.PgError, while go-sqlmock-backed tests mock *pq.Error.
const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique-constraint violation
// from either Postgres driver this codebase encounters.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	return false
}
