package stackshop

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// isMissingDBRelation returns true when a SQL query failed because a table/view
// does not exist (typically because migrations haven't been applied yet).
func isMissingDBRelation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// undefined_table
		return pgErr.Code == "42P01"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")
}

// isUniqueViolation returns true for a unique-constraint conflict, optionally
// narrowed to a specific constraint name.
func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != "23505" {
			return false
		}
		if strings.TrimSpace(constraint) == "" {
			return true
		}
		return strings.EqualFold(pgErr.ConstraintName, constraint)
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate key")
}
