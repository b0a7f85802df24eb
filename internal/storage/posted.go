package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const postedColumns = `id, tenant_id, queue_id, platform, content_type, platform_post_id, text, post_url, posted_at`

func scanPosted(row scanner) (PostedContent, error) {
	var p PostedContent
	var queueID sql.NullInt64
	var postedAt int64
	if err := row.Scan(&p.ID, &p.TenantID, &queueID, &p.Platform, &p.ContentType,
		&p.PlatformPostID, &p.Text, &p.PostURL, &postedAt); err != nil {
		return PostedContent{}, err
	}
	if queueID.Valid {
		id := queueID.Int64
		p.QueueID = &id
	}
	p.PostedAt = fromMillis(postedAt)
	return p, nil
}

func collectPosted(rows *sql.Rows) ([]PostedContent, error) {
	defer rows.Close()
	var out []PostedContent
	for rows.Next() {
		p, err := scanPosted(rows)
		if err != nil {
			return nil, fmt.Errorf("scan posted content: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertPostedTx(ctx context.Context, ex execer, p PostedContent) (*PostedContent, error) {
	if p.PostedAt.IsZero() {
		return nil, fmt.Errorf("insert posted content: posted_at is required")
	}
	var queueID sql.NullInt64
	if p.QueueID != nil {
		queueID = sql.NullInt64{Int64: *p.QueueID, Valid: true}
	}
	res, err := ex.ExecContext(ctx, `
		INSERT INTO posted_content (tenant_id, queue_id, platform, content_type, platform_post_id, text, post_url, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.TenantID, queueID, p.Platform, p.ContentType, p.PlatformPostID, p.Text, p.PostURL, toMillis(p.PostedAt))
	if err != nil {
		return nil, fmt.Errorf("insert posted content: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert posted content id: %w", err)
	}
	p.ID = id
	p.PostedAt = fromMillis(toMillis(p.PostedAt))
	return &p, nil
}

// InsertPostedContent records a post that did not come from the queue.
func (s *Store) InsertPostedContent(ctx context.Context, p PostedContent) (*PostedContent, error) {
	return insertPostedTx(ctx, s.db, p)
}

// CountPostedSince counts a tenant's posts at or after since.
func (s *Store) CountPostedSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posted_content WHERE tenant_id = ? AND posted_at >= ?`,
		tenantID, toMillis(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count posted: %w", err)
	}
	return n, nil
}

// LastPostedAt returns the time of the tenant's most recent post, or nil.
func (s *Store) LastPostedAt(ctx context.Context, tenantID string) (*time.Time, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(posted_at) FROM posted_content WHERE tenant_id = ?`, tenantID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last posted: %w", err)
	}
	return timePtr(last), nil
}

// ListPosted returns a tenant's posts, newest first.
func (s *Store) ListPosted(ctx context.Context, tenantID string, limit, offset int) ([]PostedContent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postedColumns+` FROM posted_content
		WHERE tenant_id = ?
		ORDER BY posted_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list posted: %w", err)
	}
	return collectPosted(rows)
}

// ListPostedSince returns posts across all tenants at or after since,
// oldest first. Feeds engagement collection.
func (s *Store) ListPostedSince(ctx context.Context, since time.Time) ([]PostedContent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postedColumns+` FROM posted_content
		WHERE posted_at >= ?
		ORDER BY posted_at ASC, id ASC
	`, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("list posted since: %w", err)
	}
	return collectPosted(rows)
}

// RecentPostedTexts returns the text of the tenant's latest posts.
func (s *Store) RecentPostedTexts(ctx context.Context, tenantID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT text FROM posted_content WHERE tenant_id = ?
		ORDER BY posted_at DESC, id DESC LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent posted texts: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}
