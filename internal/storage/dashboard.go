package storage

import (
	"context"
	"fmt"
	"time"
)

// GetDashboard aggregates a tenant's queue, posting and engagement counts
// relative to now.
func (s *Store) GetDashboard(ctx context.Context, tenantID string, now time.Time) (*Dashboard, error) {
	d := &Dashboard{}
	var err error

	if d.Queue, err = s.CountQueueByStatus(ctx, tenantID); err != nil {
		return nil, err
	}
	if d.PostedToday, err = s.CountPostedSince(ctx, tenantID, now.Add(-24*time.Hour)); err != nil {
		return nil, err
	}
	if d.PostedWeek, err = s.CountPostedSince(ctx, tenantID, now.Add(-7*24*time.Hour)); err != nil {
		return nil, err
	}
	if err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM content_queue
		WHERE tenant_id = ? AND status = 'failed' AND updated_at >= ?
	`, tenantID, toMillis(now.Add(-24*time.Hour))).Scan(&d.FailuresToday); err != nil {
		return nil, fmt.Errorf("count failures: %w", err)
	}
	if d.EnabledPlatforms, err = s.EnabledPlatforms(ctx, tenantID); err != nil {
		return nil, err
	}
	if d.AvgEngagementRate, err = s.AverageEngagementRate(ctx, tenantID); err != nil {
		return nil, err
	}
	if d.KnowledgeEntries, err = s.CountKnowledge(ctx, tenantID); err != nil {
		return nil, err
	}
	return d, nil
}
