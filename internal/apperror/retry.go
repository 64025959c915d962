package apperror

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/smallbiznis/franchisefund/pkg/db"
)

const (
	DefaultConflictAttempts = 3
	conflictBaseDelay       = 10 * time.Millisecond
)

var ErrDatabaseConflict = ConcurrencyConflict("database_conflict", "transaction conflicted with a concurrent writer")

// RetryOnConflict runs fn until it succeeds, fails with a non-conflict error
// or attempts are exhausted. The last conflict is returned when exhausted.
// Serialization failures, deadlocks and lock timeouts reported by the
// database count as conflicts and surface as ErrDatabaseConflict.
func RetryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultConflictAttempts
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn(ctx)
		if db.IsSerializationErr(err) && !IsConcurrencyConflict(err) {
			err = ErrDatabaseConflict.Wrap(err)
		}
		if err == nil || !IsConcurrencyConflict(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := conflictBaseDelay * time.Duration(1<<attempt)
		delay += time.Duration(rand.Int64N(int64(conflictBaseDelay)))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
