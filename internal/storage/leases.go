package storage

import (
	"context"
	"fmt"
	"time"
)

// TryAcquireLease takes the named lease for owner until now+ttl. It succeeds
// when the lease is free or expired; a live lease is never re-entered, even
// by the same owner.
func (s *Store) TryAcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := s.nowMillis()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tick_leases (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE tick_leases.expires_at <= ?
	`, name, owner, now+ttl.Milliseconds(), now)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseLease frees the named lease if owner still holds it.
func (s *Store) ReleaseLease(ctx context.Context, name, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tick_leases WHERE name = ? AND owner = ?`, name, owner)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", name, err)
	}
	return nil
}
