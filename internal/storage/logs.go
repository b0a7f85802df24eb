package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendLog writes one audit record. Log rows are never updated.
func (s *Store) AppendLog(ctx context.Context, e LogEntry) error {
	var errMsg sql.NullString
	if e.ErrorMessage != "" {
		errMsg = sql.NullString{String: e.ErrorMessage, Valid: true}
	}
	created := s.nowMillis()
	if !e.CreatedAt.IsZero() {
		created = toMillis(e.CreatedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO autonomy_logs (tenant_id, action_type, details, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.TenantID, e.ActionType, encodeMap(e.Details), e.Status, errMsg, created)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// ListLogs returns a tenant's audit records, newest first.
func (s *Store) ListLogs(ctx context.Context, tenantID string, limit, offset int) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, action_type, details, status, error_message, created_at
		FROM autonomy_logs WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var details string
		var errMsg sql.NullString
		var created int64
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActionType, &details, &e.Status, &errMsg, &created); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Details = decodeMap(details)
		e.ErrorMessage = errMsg.String
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountLogsSince counts a tenant's records of one action and status at or
// after since.
func (s *Store) CountLogsSince(ctx context.Context, tenantID, actionType, status string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM autonomy_logs
		WHERE tenant_id = ? AND action_type = ? AND status = ? AND created_at >= ?
	`, tenantID, actionType, status, toMillis(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}
	return n, nil
}
