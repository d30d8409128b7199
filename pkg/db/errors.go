package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// ConstraintKind classifies an integrity violation reported by the database.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintNotNull    ConstraintKind = "not_null"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
)

// ConstraintError is the structured form of a driver integrity error.
// Constraint and Table are empty when the driver does not report them.
type ConstraintError struct {
	Kind       ConstraintKind
	Constraint string
	Table      string
	cause      error
}

func (e *ConstraintError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s constraint %q violated", e.Kind, e.Constraint)
	}
	return fmt.Sprintf("%s constraint violated", e.Kind)
}

func (e *ConstraintError) Unwrap() error {
	return e.cause
}

// ClassifyConstraint inspects err for a Postgres or SQLite integrity violation.
// It returns nil when err is not a constraint violation.
func ClassifyConstraint(err error) *ConstraintError {
	if err == nil {
		return nil
	}

	var existing *ConstraintError
	if errors.As(err, &existing) {
		return existing
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		if kind, ok := pgKind(pgxErr.Code); ok {
			return &ConstraintError{Kind: kind, Constraint: pgxErr.ConstraintName, Table: pgxErr.TableName, cause: err}
		}
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if kind, ok := pgKind(string(pqErr.Code)); ok {
			return &ConstraintError{Kind: kind, Constraint: pqErr.Constraint, Table: pqErr.Table, cause: err}
		}
		return nil
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &ConstraintError{Kind: ConstraintUnique, cause: err}
		case sqlite3.ErrConstraintForeignKey:
			return &ConstraintError{Kind: ConstraintForeignKey, cause: err}
		case sqlite3.ErrConstraintNotNull:
			return &ConstraintError{Kind: ConstraintNotNull, cause: err}
		}
		return nil
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &ConstraintError{Kind: ConstraintUnique, cause: err}
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return &ConstraintError{Kind: ConstraintForeignKey, cause: err}
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique violation. When constraints are
// given, the reported constraint name must match one of them; drivers that do not
// report names (SQLite) match any unique violation.
func IsUniqueViolation(err error, constraints ...string) bool {
	ce := ClassifyConstraint(err)
	if ce == nil || ce.Kind != ConstraintUnique {
		return false
	}
	if len(constraints) == 0 || ce.Constraint == "" {
		return true
	}
	for _, name := range constraints {
		if ce.Constraint == name {
			return true
		}
	}
	return false
}

func pgKind(code string) (ConstraintKind, bool) {
	switch code {
	case pgUniqueViolation:
		return ConstraintUnique, true
	case pgForeignKeyViolation:
		return ConstraintForeignKey, true
	case pgNotNullViolation:
		return ConstraintNotNull, true
	}
	return "", false
}
