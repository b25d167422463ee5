package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
)

func TestGormConfigTranslatesErrors(t *testing.T) {
	assert.True(t, gormConfig().TranslateError)
}

func TestDuplicateAdjudicationIsConflict(t *testing.T) {
	// What gorm hands back for a unique violation once translation is on.
	translated := postgres.Dialector{}.Translate(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	err := adjudicationErr("l1", translated)
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "l1")

	other := errors.New("connection reset")
	assert.Same(t, other, adjudicationErr("l1", other))
	assert.NoError(t, adjudicationErr("l1", nil))
}
