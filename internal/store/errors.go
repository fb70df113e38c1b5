package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"canopy/internal/domain"
)

// wrapErr maps driver errors onto the domain taxonomy. Missing rows and
// foreign-key violations are NotFound (for kind/ref); anything else is a
// PersistenceError carrying op.
func wrapErr(kind domain.Kind, ref, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Kind: kind, ID: ref}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return &domain.NotFoundError{Kind: kind, ID: ref}
	}
	return &domain.PersistenceError{Op: op, Err: err}
}

func expectOne(kind domain.Kind, id, op string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: op, Err: err}
	}
	if affected == 0 {
		return &domain.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}
