package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyConstraint_SQLiteUnique(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testModel{Name: "dup"}).Error)

	err := db.Create(&testModel{Name: "dup"}).Error
	require.Error(t, err)

	ce := ClassifyConstraint(err)
	require.NotNil(t, ce)
	assert.Equal(t, ConstraintUnique, ce.Kind)
	assert.True(t, IsUniqueViolation(err))
	assert.True(t, IsUniqueViolation(err, "uq_some_other_name"), "sqlite reports no names")
}

func TestClassifyConstraint_Postgres(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_conversion_records_path_hash", TableName: "conversion_records"}
	wrapped := fmt.Errorf("insert record: %w", pgErr)

	ce := ClassifyConstraint(wrapped)
	require.NotNil(t, ce)
	assert.Equal(t, ConstraintUnique, ce.Kind)
	assert.Equal(t, "conversion_records", ce.Table)
	assert.True(t, errors.Is(ce, pgErr))

	assert.True(t, IsUniqueViolation(wrapped, "uq_conversion_records_path_hash"))
	assert.False(t, IsUniqueViolation(wrapped, "uq_stored_files_path_hash"))

	fk := ClassifyConstraint(&pq.Error{Code: "23503", Constraint: "fk_presets_record"})
	require.NotNil(t, fk)
	assert.Equal(t, ConstraintForeignKey, fk.Kind)
	assert.False(t, IsUniqueViolation(fk))
}

func TestClassifyConstraint_IgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, ClassifyConstraint(nil))
	assert.Nil(t, ClassifyConstraint(errors.New("duplicate key value violates unique constraint")))
	assert.Nil(t, ClassifyConstraint(&pgconn.PgError{Code: "40001"}))
}
