package pg

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"roster/internal/store"
)

// SQLSTATE codes the adapter understands.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeInvalidText         = "22P02"
	codeNumericOutOfRange   = "22003"
	codeDuplicateObject     = "42710"
	codeDuplicateTable      = "42P07"
)

// driverError is the part of *pgconn.PgError and *pq.Error we look at.
type driverError struct {
	code, constraint, column, detail, message string
}

func asDriverError(err error) (driverError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return driverError{
			code:       pgErr.Code,
			constraint: pgErr.ConstraintName,
			column:     pgErr.ColumnName,
			detail:     pgErr.Detail,
			message:    pgErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return driverError{
			code:       string(pqErr.Code),
			constraint: pqErr.Constraint,
			column:     pqErr.Column,
			detail:     pqErr.Detail,
			message:    pqErr.Message,
		}, true
	}
	return driverError{}, false
}

// translate maps driver errors onto the store contract: no rows becomes
// store.ErrNotFound and integrity violations become *store.ConstraintError.
func translate(entity string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	de, ok := asDriverError(err)
	if !ok {
		return fmt.Errorf("pg: %s: %w", entity, err)
	}

	var kind store.ConstraintKind
	switch de.code {
	case codeUniqueViolation:
		kind = store.ConstraintUnique
	case codeForeignKeyViolation:
		kind = store.ConstraintForeignKey
	case codeNotNullViolation:
		kind = store.ConstraintNotNull
	case codeInvalidText, codeNumericOutOfRange:
		kind = store.ConstraintInvalidValue
	default:
		return fmt.Errorf("pg: %s: %w", entity, err)
	}

	field := de.column
	if field == "" {
		field = de.constraint
	}
	detail := de.detail
	if detail == "" {
		detail = de.message
	}
	return &store.ConstraintError{Kind: kind, Entity: entity, Field: field, Detail: detail, Err: err}
}

func isDuplicateObject(err error) bool {
	de, ok := asDriverError(err)
	return ok && (de.code == codeDuplicateObject || de.code == codeDuplicateTable)
}
