package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertEngagementMetric replaces the snapshot for a post. The posted_id
// primary key keeps one snapshot per post.
func (s *Store) UpsertEngagementMetric(ctx context.Context, m EngagementMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engagement_metrics (posted_id, likes, reposts, replies, impressions, engagement_rate, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(posted_id) DO UPDATE SET
			likes = excluded.likes,
			reposts = excluded.reposts,
			replies = excluded.replies,
			impressions = excluded.impressions,
			engagement_rate = excluded.engagement_rate,
			fetched_at = excluded.fetched_at
	`, m.PostedID, m.Likes, m.Reposts, m.Replies, m.Impressions, m.EngagementRate, toMillis(m.FetchedAt))
	if err != nil {
		return fmt.Errorf("upsert engagement metric: %w", err)
	}
	return nil
}

// GetEngagementMetric returns the snapshot for a post or ErrNotFound.
func (s *Store) GetEngagementMetric(ctx context.Context, postedID int64) (*EngagementMetric, error) {
	var m EngagementMetric
	var fetched int64
	err := s.db.QueryRowContext(ctx, `
		SELECT posted_id, likes, reposts, replies, impressions, engagement_rate, fetched_at
		FROM engagement_metrics WHERE posted_id = ?
	`, postedID).Scan(&m.PostedID, &m.Likes, &m.Reposts, &m.Replies, &m.Impressions, &m.EngagementRate, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get engagement metric: %w", err)
	}
	m.FetchedAt = fromMillis(fetched)
	return &m, nil
}

// TopPerformers returns the tenant's posts with the highest engagement rate.
func (s *Store) TopPerformers(ctx context.Context, tenantID string, limit int) ([]Performance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.tenant_id, p.queue_id, p.platform, p.content_type, p.platform_post_id, p.text, p.post_url, p.posted_at,
			m.posted_id, m.likes, m.reposts, m.replies, m.impressions, m.engagement_rate, m.fetched_at
		FROM posted_content p
		JOIN engagement_metrics m ON m.posted_id = p.id
		WHERE p.tenant_id = ?
		ORDER BY m.engagement_rate DESC, p.posted_at DESC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("top performers: %w", err)
	}
	defer rows.Close()

	var out []Performance
	for rows.Next() {
		var perf Performance
		var queueID sql.NullInt64
		var postedAt, fetched int64
		if err := rows.Scan(&perf.Posted.ID, &perf.Posted.TenantID, &queueID, &perf.Posted.Platform,
			&perf.Posted.ContentType, &perf.Posted.PlatformPostID, &perf.Posted.Text, &perf.Posted.PostURL, &postedAt,
			&perf.Metric.PostedID, &perf.Metric.Likes, &perf.Metric.Reposts, &perf.Metric.Replies,
			&perf.Metric.Impressions, &perf.Metric.EngagementRate, &fetched); err != nil {
			return nil, fmt.Errorf("scan top performer: %w", err)
		}
		if queueID.Valid {
			id := queueID.Int64
			perf.Posted.QueueID = &id
		}
		perf.Posted.PostedAt = fromMillis(postedAt)
		perf.Metric.FetchedAt = fromMillis(fetched)
		out = append(out, perf)
	}
	return out, rows.Err()
}

// EngagementByContentType averages engagement rate per content type over
// the tenant's measured posts.
func (s *Store) EngagementByContentType(ctx context.Context, tenantID string) ([]ContentTypePerformance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.content_type, COUNT(*), AVG(m.engagement_rate)
		FROM posted_content p
		JOIN engagement_metrics m ON m.posted_id = p.id
		WHERE p.tenant_id = ?
		GROUP BY p.content_type
		ORDER BY AVG(m.engagement_rate) DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("engagement by content type: %w", err)
	}
	defer rows.Close()

	var out []ContentTypePerformance
	for rows.Next() {
		var c ContentTypePerformance
		if err := rows.Scan(&c.ContentType, &c.Posts, &c.AvgRate); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AverageEngagementRate is the mean rate over the tenant's measured posts.
func (s *Store) AverageEngagementRate(ctx context.Context, tenantID string) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(m.engagement_rate) FROM engagement_metrics m
		JOIN posted_content p ON p.id = m.posted_id
		WHERE p.tenant_id = ?
	`, tenantID).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average engagement: %w", err)
	}
	return avg.Float64, nil
}
