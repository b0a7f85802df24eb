package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const queueColumns = `id, tenant_id, content_type, platform, text, scheduled_for, status,
	generation_context, last_error, created_at, updated_at`

func scanQueueItem(row scanner) (QueueItem, error) {
	var it QueueItem
	var scheduled sql.NullInt64
	var status, genCtx string
	var lastErr sql.NullString
	var created, updated int64
	if err := row.Scan(&it.ID, &it.TenantID, &it.ContentType, &it.Platform, &it.Text, &scheduled,
		&status, &genCtx, &lastErr, &created, &updated); err != nil {
		return QueueItem{}, err
	}
	it.ScheduledFor = timePtr(scheduled)
	it.Status = QueueStatus(status)
	it.GenerationContext = decodeMap(genCtx)
	it.LastError = lastErr.String
	it.CreatedAt = fromMillis(created)
	it.UpdatedAt = fromMillis(updated)
	return it, nil
}

func collectQueueItems(rows *sql.Rows) ([]QueueItem, error) {
	defer rows.Close()
	var items []QueueItem
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// InsertQueueItem stores a new item in the pending state.
func (s *Store) InsertQueueItem(ctx context.Context, it QueueItem) (*QueueItem, error) {
	now := s.nowMillis()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO content_queue (tenant_id, content_type, platform, text, scheduled_for, status,
			generation_context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, it.TenantID, it.ContentType, it.Platform, it.Text, nullableMillis(it.ScheduledFor),
		string(StatusPending), encodeMap(it.GenerationContext), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert queue item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert queue item id: %w", err)
	}
	it.ID = id
	it.Status = StatusPending
	it.CreatedAt = fromMillis(now)
	it.UpdatedAt = it.CreatedAt
	if it.GenerationContext == nil {
		it.GenerationContext = map[string]string{}
	}
	return &it, nil
}

// GetQueueItem returns an item owned by the tenant.
func (s *Store) GetQueueItem(ctx context.Context, tenantID string, id int64) (*QueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM content_queue WHERE tenant_id = ? AND id = ?`, tenantID, id)
	it, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return &it, nil
}

// GetQueueItemByID returns an item regardless of tenant. Used by the
// dispatcher, which works across tenants.
func (s *Store) GetQueueItemByID(ctx context.Context, id int64) (*QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM content_queue WHERE id = ?`, id)
	it, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return &it, nil
}

// ListQueueItems returns a tenant's items, newest first. An empty status
// lists every state.
func (s *Store) ListQueueItems(ctx context.Context, tenantID string, status QueueStatus, limit, offset int) ([]QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM content_queue WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	return collectQueueItems(rows)
}

// ApproveQueueItem moves a pending item owned by the tenant to approved.
// Returns ErrNotFound when the item is missing, foreign, or not pending.
func (s *Store) ApproveQueueItem(ctx context.Context, tenantID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_queue SET status = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND status = ?
	`, string(StatusApproved), s.nowMillis(), id, tenantID, string(StatusPending))
	if err != nil {
		return fmt.Errorf("approve queue item: %w", err)
	}
	return requireOneRow(res)
}

// DeleteQueueItem removes an item owned by the tenant, whatever its state.
func (s *Store) DeleteQueueItem(ctx context.Context, tenantID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content_queue WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete queue item: %w", err)
	}
	return requireOneRow(res)
}

// ListDueQueueItems returns approved items across all tenants whose
// scheduled time is unset or not after now, oldest first.
func (s *Store) ListDueQueueItems(ctx context.Context, now time.Time, limit int) ([]QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM content_queue
		WHERE status = ? AND (scheduled_for IS NULL OR scheduled_for <= ?)
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, string(StatusApproved), toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list due queue items: %w", err)
	}
	return collectQueueItems(rows)
}

// ClaimQueueItem marks a non-terminal item as being published by the holder
// of token. A claim older than staleBefore is considered abandoned and may
// be taken over. Returns false when someone else holds a live claim or the
// item is already terminal.
func (s *Store) ClaimQueueItem(ctx context.Context, id int64, token string, staleBefore time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_queue SET claim_token = ?, claimed_at = ?
		WHERE id = ? AND status IN (?, ?)
		AND (claim_token IS NULL OR claimed_at < ?)
	`, token, s.nowMillis(), id, string(StatusPending), string(StatusApproved), toMillis(staleBefore))
	if err != nil {
		return false, fmt.Errorf("claim queue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseQueueClaim drops a claim without changing status.
func (s *Store) ReleaseQueueClaim(ctx context.Context, id int64, token string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE content_queue SET claim_token = NULL, claimed_at = NULL WHERE id = ? AND claim_token = ?`, id, token)
	if err != nil {
		return fmt.Errorf("release queue claim: %w", err)
	}
	return nil
}

// MarkQueueItemPosted transitions a pending or approved item to posted and
// records the PostedContent row in the same transaction. When the item is
// already terminal (or gone) nothing is written and ok is false.
func (s *Store) MarkQueueItemPosted(ctx context.Context, id int64, p PostedContent) (*PostedContent, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin mark posted: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE content_queue SET status = ?, claim_token = NULL, claimed_at = NULL, last_error = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, string(StatusPosted), s.nowMillis(), id, string(StatusPending), string(StatusApproved))
	if err != nil {
		return nil, false, fmt.Errorf("mark queue item posted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}

	p.QueueID = &id
	posted, err := insertPostedTx(ctx, tx, p)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit mark posted: %w", err)
	}
	return posted, true, nil
}

// MarkQueueItemFailed transitions an approved item to failed. Returns false
// without writing when the item is not approved anymore.
func (s *Store) MarkQueueItemFailed(ctx context.Context, id int64, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE content_queue SET status = ?, last_error = ?, claim_token = NULL, claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(StatusFailed), reason, s.nowMillis(), id, string(StatusApproved))
	if err != nil {
		return false, fmt.Errorf("mark queue item failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountQueueByStatus returns per-status item counts for a tenant.
func (s *Store) CountQueueByStatus(ctx context.Context, tenantID string) (map[QueueStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM content_queue WHERE tenant_id = ? GROUP BY status`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count queue: %w", err)
	}
	defer rows.Close()

	counts := map[QueueStatus]int{
		StatusPending:  0,
		StatusApproved: 0,
		StatusPosted:   0,
		StatusFailed:   0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan queue count: %w", err)
		}
		counts[QueueStatus(status)] = n
	}
	return counts, rows.Err()
}
