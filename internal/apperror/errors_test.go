package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKindAndCode(t *testing.T) {
	errShareNotFound := NotFound("share_not_found", "share not found")
	wrapped := fmt.Errorf("refund: %w", errShareNotFound)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.True(t, errors.Is(wrapped, errShareNotFound))
	assert.False(t, errors.Is(wrapped, NotFound("franchise_not_found", "")))
	assert.False(t, errors.Is(wrapped, ErrInvalidState))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, "share_not_found", CodeOf(wrapped))
}

func TestKindOfUntypedError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ExternalServiceFailure("token_service_unavailable", "token service unavailable").Wrap(cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsExternalServiceFailure(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRetryOnConflictRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 3, func(context.Context) error {
		calls++
		if calls < 3 {
			return ConcurrencyConflict("investment_version_mismatch", "stale investment")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryOnConflictSurfacesConflictWhenExhausted(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 2, func(context.Context) error {
		calls++
		return ConcurrencyConflict("investment_version_mismatch", "stale investment")
	})

	require.Error(t, err)
	assert.True(t, IsConcurrencyConflict(err))
	assert.Equal(t, 2, calls)
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 5, func(context.Context) error {
		calls++
		return Validation("invalid_shares", "shares must be positive")
	})

	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 1, calls)
}

func TestRetryOnConflictRetriesDatabaseSerializationFailure(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 3, func(context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("record purchase: %w", &pgconn.PgError{Code: "40001", Message: "could not serialize access"})
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryOnConflictSurfacesDatabaseConflictWhenExhausted(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 2, func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, IsConcurrencyConflict(err))
	assert.Equal(t, "database_conflict", CodeOf(err))
	assert.Contains(t, err.Error(), "database is locked")
}
