package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Soft per-row lock: a busy_at timestamp set by a single conditional update.
// A holder that dies keeps the row busy only until lockTimeout passes, after
// which the next TryLock force-takes it. Availability over strict exclusivity.

// TryLock attempts to mark the row busy. Returns false when another holder
// owns a non-expired lock.
func (s *PositionStore) TryLock(ctx context.Context, id int64, lockTimeout time.Duration) (bool, error) {
	tag, err := s.tm.Conn().Exec(ctx, `
		UPDATE positions
		SET busy_at = now()
		WHERE id = $1 AND (busy_at IS NULL OR busy_at < now() - $2::interval)`,
		id, lockTimeout)
	if err != nil {
		return false, errors.Wrap(err, "PositionStore.TryLock")
	}
	return tag.RowsAffected() == 1, nil
}

// Unlock clears the busy flag. Called from a deferred cleanup regardless of
// how the critical section ended; errors are the caller's to log, not act on.
func (s *PositionStore) Unlock(ctx context.Context, id int64) error {
	_, err := s.tm.Conn().Exec(ctx,
		`UPDATE positions SET busy_at = NULL WHERE id = $1`, id)
	return errors.Wrap(err, "PositionStore.Unlock")
}
