// Package engagement polls platforms for the performance of recent posts and
// keeps one engagement snapshot per post.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/metrics"
	"github.com/matthewjhunter/crier/internal/platform"
	"github.com/matthewjhunter/crier/internal/storage"
)

// DefaultWindow is how far back collection looks for posts.
const DefaultWindow = 7 * 24 * time.Hour

// Rate is (likes+reposts+replies)/impressions, or 0 without impressions.
func Rate(m platform.Metrics) float64 {
	if m.Impressions <= 0 {
		return 0
	}
	return float64(m.Likes+m.Reposts+m.Replies) / float64(m.Impressions)
}

// Result summarizes one collection pass.
type Result struct {
	Considered   int `json:"considered"`
	Updated      int `json:"updated"`
	Unavailable  int `json:"unavailable"`
	Unsupported  int `json:"unsupported"`
	Disconnected int `json:"disconnected"`
	Failed       int `json:"failed"`
}

// Collector refreshes engagement metrics for recently posted content.
type Collector struct {
	store    *storage.Store
	registry *platform.Registry
	metrics  *metrics.Metrics
	log      logging.Logger
	timeout  time.Duration
	window   time.Duration
	now      func() time.Time
}

func NewCollector(store *storage.Store, registry *platform.Registry, m *metrics.Metrics, timeout, window time.Duration, log logging.Logger) *Collector {
	if window <= 0 {
		window = DefaultWindow
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Collector{
		store:    store,
		registry: registry,
		metrics:  m,
		log:      log,
		timeout:  timeout,
		window:   window,
		now:      time.Now,
	}
}

// SetClock overrides the collector's time source.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Collect fetches metrics for every post inside the window on platforms that
// report them. A failing post is logged and skipped; only a failure to list
// posts is returned.
func (c *Collector) Collect(ctx context.Context) (Result, error) {
	var res Result
	posts, err := c.store.ListPostedSince(ctx, c.now().Add(-c.window))
	if err != nil {
		return res, fmt.Errorf("list recent posts: %w", err)
	}

	// Enabled platforms per tenant, loaded on first use.
	enabled := make(map[string]map[string]bool)

	for _, p := range posts {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Considered++
		adapter, err := c.registry.Get(p.Platform)
		if err != nil || !platform.SupportsMetrics(adapter) {
			res.Unsupported++
			continue
		}
		connected, err := c.connected(ctx, enabled, p)
		if err != nil {
			res.Failed++
			c.log.WithField("tenant_id", p.TenantID).WithError(err).Warn("failed to list tenant platforms")
			continue
		}
		if !connected {
			res.Disconnected++
			c.metrics.EngagementFetch(p.Platform, "disconnected")
			continue
		}
		updated, err := c.collectOne(ctx, adapter, p)
		switch {
		case err != nil:
			res.Failed++
			c.metrics.EngagementFetch(p.Platform, "error")
			c.log.WithFields(logging.Fields{
				"tenant_id": p.TenantID,
				"platform":  p.Platform,
				"posted_id": p.ID,
			}).WithError(err).Warn("engagement fetch failed")
			c.audit(ctx, p, storage.LogFailed, err.Error())
		case updated:
			res.Updated++
			c.metrics.EngagementFetch(p.Platform, "updated")
		default:
			res.Unavailable++
			c.metrics.EngagementFetch(p.Platform, "unavailable")
		}
	}

	c.log.WithFields(logging.Fields{
		"considered":  res.Considered,
		"updated":     res.Updated,
		"unavailable":  res.Unavailable,
		"disconnected": res.Disconnected,
		"failed":       res.Failed,
	}).Info("engagement collection complete")
	return res, nil
}

// connected reports whether p's tenant still has an enabled credential for
// p's platform.
func (c *Collector) connected(ctx context.Context, enabled map[string]map[string]bool, p storage.PostedContent) (bool, error) {
	set, ok := enabled[p.TenantID]
	if !ok {
		platforms, err := c.store.EnabledPlatforms(ctx, p.TenantID)
		if err != nil {
			return false, err
		}
		set = make(map[string]bool, len(platforms))
		for _, name := range platforms {
			set[name] = true
		}
		enabled[p.TenantID] = set
	}
	return set[p.Platform], nil
}

func (c *Collector) collectOne(ctx context.Context, adapter platform.Adapter, p storage.PostedContent) (updated bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic collecting post %d: %v", p.ID, r)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	m, err := adapter.FetchEngagement(callCtx, p.TenantID, p.PlatformPostID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &platform.Error{Platform: p.Platform, Kind: platform.KindTransient, Cause: err}
		}
		return false, err
	}
	if m == nil {
		return false, nil
	}

	err = c.store.UpsertEngagementMetric(ctx, storage.EngagementMetric{
		PostedID:       p.ID,
		Likes:          m.Likes,
		Reposts:        m.Reposts,
		Replies:        m.Replies,
		Impressions:    m.Impressions,
		EngagementRate: Rate(*m),
		FetchedAt:      c.now(),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Collector) audit(ctx context.Context, p storage.PostedContent, status, msg string) {
	err := c.store.AppendLog(ctx, storage.LogEntry{
		TenantID:   p.TenantID,
		ActionType: storage.ActionEngagementFetch,
		Details: map[string]string{
			"platform":         p.Platform,
			"posted_id":        fmt.Sprint(p.ID),
			"platform_post_id": p.PlatformPostID,
		},
		Status:       status,
		ErrorMessage: msg,
	})
	if err != nil {
		c.log.WithError(err).Warn("failed to append audit log")
	}
}

// Ledger reads what performed best. It never feeds generation directly.
type Ledger struct {
	store *storage.Store
}

func NewLedger(store *storage.Store) *Ledger {
	return &Ledger{store: store}
}

// Report is a tenant's feedback summary.
type Report struct {
	AverageRate   float64                          `json:"average_engagement_rate"`
	TopPerformers []storage.Performance            `json:"top_performers"`
	ByContentType []storage.ContentTypePerformance `json:"by_content_type"`
}

func (l *Ledger) TopPerformers(ctx context.Context, tenantID string, limit int) ([]storage.Performance, error) {
	if limit <= 0 {
		limit = 10
	}
	return l.store.TopPerformers(ctx, tenantID, limit)
}

func (l *Ledger) ByContentType(ctx context.Context, tenantID string) ([]storage.ContentTypePerformance, error) {
	return l.store.EngagementByContentType(ctx, tenantID)
}

// Report gathers the average rate, top posts and per-type averages.
func (l *Ledger) Report(ctx context.Context, tenantID string, limit int) (*Report, error) {
	avg, err := l.store.AverageEngagementRate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	top, err := l.TopPerformers(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}
	byType, err := l.ByContentType(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &Report{AverageRate: avg, TopPerformers: top, ByContentType: byType}, nil
}
