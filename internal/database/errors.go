package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"contactlink/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// MapError converts driver errors to model sentinel errors, wrapping them
// with the entity name. Context errors are not mapped.
func MapError(err error, entity string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", entity, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", entity, models.ErrNotFound)
	}

	if sentinel := sentinelFor(err); sentinel != nil {
		return fmt.Errorf("%s: %w: %v", entity, sentinel, err)
	}

	return fmt.Errorf("%s: %w", entity, err)
}

func sentinelFor(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgCodeSentinel(pgErr.Code)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgCodeSentinel(string(pqErr.Code))
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return models.ErrConflict
		case sqlite3.ErrConstraintForeignKey:
			return models.ErrNotFound
		}
	}

	return nil
}

func pgCodeSentinel(code string) error {
	switch code {
	case pgUniqueViolation:
		return models.ErrConflict
	case pgForeignKeyViolation:
		return models.ErrNotFound
	}
	return nil
}
