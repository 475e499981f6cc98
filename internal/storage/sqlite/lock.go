package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/modernalchemist/magic-sub000/internal/lock"
)

// TryLock acquires the lock for key if it's free or expired. Returns false when
// another owner holds it.
func (r *Repository) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := r.timeNowFn()
	query := `
		INSERT INTO locks (lock_key, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(lock_key) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE locks.expires_at <= ?
	`

	result, err := r.db.ExecContext(ctx, query, key, owner, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("could not acquire lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}

	return rows == 1, nil
}

// Release releases the lock for key only if it's held by owner.
func (r *Repository) Release(ctx context.Context, key, owner string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM locks WHERE lock_key = ? AND owner = ?`, key, owner)
	if err != nil {
		return false, fmt.Errorf("could not release lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}

	return rows == 1, nil
}

var _ lock.Locker = &Repository{}
