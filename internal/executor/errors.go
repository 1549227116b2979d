package executor

import (
	"errors"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the executor translates.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgInvalidTextRepr      = "22P02"
)

// MapError translates driver errors into the domain taxonomy. Errors already carrying a
// domain kind pass through untouched.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return &domain.Error{Kind: domain.ErrKindConcurrentModification, Err: err}
		case pgUniqueViolation:
			return domain.Validationf("a record with the same unique key already exists")
		case pgForeignKeyViolation:
			return domain.Validationf("referenced entity does not exist")
		case pgCheckViolation:
			return domain.Validationf("value violates a data constraint")
		case pgInvalidTextRepr:
			return domain.Validationf("malformed identifier or value")
		}
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFoundf("entity not found")
	}
	return err
}

// IsConcurrentModification reports whether err is a retryable conflict.
func IsConcurrentModification(err error) bool {
	return domain.KindOf(MapError(err)) == domain.ErrKindConcurrentModification
}
