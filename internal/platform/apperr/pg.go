package apperr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes translated at the storage boundary.
const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
	pgForeignKey         = "23503"
	pgCheckViolation     = "23514"
	pgNotNullViolation   = "23502"
	pgInvalidDatetime    = "22007"
	pgDatetimeOverflow   = "22008"
)

// FromPG translates a storage error into an application error so raw driver
// errors never reach callers. op names the failed operation. A nil error
// stays nil.
func FromPG(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return Wrap(KindNotFound, op+": not found", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return Wrap(KindConflict, "time range conflicts with an existing appointment", err)
		case pgUniqueViolation:
			return Wrap(KindConflict, op+": duplicate record", err)
		case pgForeignKey:
			return Wrap(KindReference, op+": referenced record does not exist", err)
		case pgCheckViolation, pgNotNullViolation, pgInvalidDatetime, pgDatetimeOverflow:
			return Wrap(KindValidation, op+": invalid value", err)
		}
	}
	return Wrap(KindInternal, op, fmt.Errorf("storage: %w", err))
}
