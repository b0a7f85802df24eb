package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const knowledgeColumns = `id, tenant_id, category, key, value, priority, active, created_at, updated_at`

func scanKnowledge(row scanner) (KnowledgeEntry, error) {
	var e KnowledgeEntry
	var created, updated int64
	if err := row.Scan(&e.ID, &e.TenantID, &e.Category, &e.Key, &e.Value, &e.Priority, &e.Active, &created, &updated); err != nil {
		return KnowledgeEntry{}, err
	}
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return e, nil
}

// UpsertKnowledge inserts an entry or, when (tenant, category, key) already
// exists, replaces its value, priority and active flag. Returns the row ID.
func (s *Store) UpsertKnowledge(ctx context.Context, e KnowledgeEntry) (int64, error) {
	now := s.nowMillis()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO knowledge_entries (tenant_id, category, key, value, priority, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, category, key) DO UPDATE SET
			value = excluded.value,
			priority = excluded.priority,
			active = excluded.active,
			updated_at = excluded.updated_at
		RETURNING id
	`, e.TenantID, e.Category, e.Key, e.Value, e.Priority, e.Active, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert knowledge: %w", err)
	}
	return id, nil
}

// SeedKnowledge inserts entries that do not exist yet, leaving existing
// (tenant, category, key) rows untouched. Returns how many rows were added.
func (s *Store) SeedKnowledge(ctx context.Context, tenantID string, entries []KnowledgeEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	inserted, err := seedKnowledgeTx(ctx, tx, tenantID, entries, s.nowMillis())
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return inserted, nil
}

func seedKnowledgeTx(ctx context.Context, tx *sql.Tx, tenantID string, entries []KnowledgeEntry, now int64) (int, error) {
	inserted := 0
	for _, e := range entries {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO knowledge_entries (tenant_id, category, key, value, priority, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, category, key) DO NOTHING
		`, tenantID, e.Category, e.Key, e.Value, e.Priority, e.Active, now, now)
		if err != nil {
			return 0, fmt.Errorf("seed knowledge %s/%s: %w", e.Category, e.Key, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	return inserted, nil
}

// ResetKnowledge deletes every entry for the tenant and re-inserts the given
// defaults in one transaction.
func (s *Store) ResetKnowledge(ctx context.Context, tenantID string, defaults []KnowledgeEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_entries WHERE tenant_id = ?`, tenantID); err != nil {
		return 0, fmt.Errorf("purge knowledge: %w", err)
	}
	inserted, err := seedKnowledgeTx(ctx, tx, tenantID, defaults, s.nowMillis())
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reset: %w", err)
	}
	return inserted, nil
}

// ListKnowledge returns a tenant's entries ordered by descending priority,
// then category and key.
func (s *Store) ListKnowledge(ctx context.Context, tenantID string, activeOnly bool) ([]KnowledgeEntry, error) {
	query := `SELECT ` + knowledgeColumns + ` FROM knowledge_entries WHERE tenant_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY priority DESC, category ASC, key ASC`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()

	var entries []KnowledgeEntry
	for rows.Next() {
		e, err := scanKnowledge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetKnowledge returns one entry owned by the tenant.
func (s *Store) GetKnowledge(ctx context.Context, tenantID string, id int64) (*KnowledgeEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge_entries WHERE tenant_id = ? AND id = ?`, tenantID, id)
	e, err := scanKnowledge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge: %w", err)
	}
	return &e, nil
}

// UpdateKnowledge rewrites the mutable fields of an existing entry.
func (s *Store) UpdateKnowledge(ctx context.Context, e KnowledgeEntry) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_entries
		SET category = ?, key = ?, value = ?, priority = ?, active = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`, e.Category, e.Key, e.Value, e.Priority, e.Active, s.nowMillis(), e.TenantID, e.ID)
	if err != nil {
		return fmt.Errorf("update knowledge: %w", err)
	}
	return requireOneRow(res)
}

// DeleteKnowledge removes one entry.
func (s *Store) DeleteKnowledge(ctx context.Context, tenantID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_entries WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete knowledge: %w", err)
	}
	return requireOneRow(res)
}

// CountKnowledge returns the number of entries (active or not) for a tenant.
func (s *Store) CountKnowledge(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_entries WHERE tenant_id = ?`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count knowledge: %w", err)
	}
	return n, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
