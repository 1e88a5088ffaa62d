package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if constraintName != "" {
		return strings.Contains(err.Error(), constraintName)
	}
	return hasSQLState(err, pgUniqueViolation) ||
		containsAny(err, "duplicate key value", "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether err was raised by a foreign key constraint.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return hasSQLState(err, pgForeignKeyViolation) ||
		containsAny(err, "violates foreign key constraint", "FOREIGN KEY constraint failed")
}

// IsCheckViolation reports whether err was raised by a CHECK constraint, e.g. a
// listing quantity dropping below zero.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	return hasSQLState(err, pgCheckViolation) ||
		containsAny(err, "violates check constraint", "CHECK constraint failed")
}

func hasSQLState(err error, code string) bool {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}

func containsAny(err error, needles ...string) bool {
	msg := err.Error()
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
