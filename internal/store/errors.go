package store

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/radionest/clarinet/internal/clarineterr"
)

func errLevelInvariant(msg string) error {
	return clarineterr.Validationf("%s", msg)
}

// translate converts a raw pgx/driver error into a clarineterr typed
// error. Callers pass a NotFound message used only when err is
// pgx.ErrNoRows.
func translate(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return clarineterr.NotFoundf("%s", notFoundMsg)
	}
	if isUniqueViolation(err) {
		return clarineterr.Conflictf("unique constraint violated: %v", err)
	}
	return clarineterr.Internalf(err, "store error")
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), without importing pgconn directly in callers.
func isUniqueViolation(err error) bool {
	type sqlStater interface{ SQLState() string }
	var s sqlStater
	if errors.As(err, &s) {
		return s.SQLState() == "23505"
	}
	return false
}
