package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	t.Run("undefined table maps to ErrSchemaMissing", func(t *testing.T) {
		err := classify(&pgconn.PgError{Code: "42P01", Message: `relation "mqtt_data_log" does not exist`})
		assert.ErrorIs(t, err, ErrSchemaMissing)
	})

	t.Run("undefined column maps to ErrSchemaMissing", func(t *testing.T) {
		err := classify(&pgconn.PgError{Code: "42703", Message: `column "value_payload" does not exist`})
		assert.ErrorIs(t, err, ErrSchemaMissing)
	})

	t.Run("other pg errors stay generic", func(t *testing.T) {
		err := classify(&pgconn.PgError{Code: "23505", Message: "duplicate key"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSchemaMissing)

		var pgErr *pgconn.PgError
		assert.True(t, errors.As(err, &pgErr), "original error should stay unwrappable")
	})

	t.Run("non-pg errors stay generic", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := classify(cause)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSchemaMissing)
		assert.ErrorIs(t, err, cause)
	})
}

func TestNewPostgresRejectsBadConnString(t *testing.T) {
	_, err := NewPostgres(context.Background(), "not-a-conn-string", zap.NewNop())
	require.Error(t, err)
}
