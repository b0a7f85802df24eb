// Package governor enforces per-tenant posting caps. Counts are read fresh
// on every call; nothing is cached.
package governor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matthewjhunter/crier/internal/storage"
)

// Posting frequencies accepted in AutonomyConfig.PostingFrequency.
const (
	FrequencyHourly      = "hourly"
	FrequencyEvery4Hours = "every_4_hours"
	FrequencyTwiceDaily  = "twice_daily"
	FrequencyDaily       = "daily"
)

var frequencyGaps = map[string]time.Duration{
	FrequencyHourly:      time.Hour,
	FrequencyEvery4Hours: 4 * time.Hour,
	FrequencyTwiceDaily:  12 * time.Hour,
	FrequencyDaily:       24 * time.Hour,
}

// ValidFrequency reports whether f is a known posting frequency.
func ValidFrequency(f string) bool {
	_, ok := frequencyGaps[f]
	return ok
}

// FrequencyGap returns the minimum spacing between automatic posts. Unknown
// values impose no gap.
func FrequencyGap(f string) time.Duration {
	return frequencyGaps[f]
}

// Reasons a tenant is held back.
const (
	ReasonDisabled  = "disabled"
	ReasonNoConfig  = "no_config"
	ReasonDailyCap  = "daily_cap"
	ReasonFrequency = "frequency"
)

// Decision is the outcome of Evaluate.
type Decision struct {
	Eligible    bool       `json:"eligible"`
	Reason      string     `json:"reason,omitempty"`
	PostsToday  int        `json:"posts_today"`
	Remaining   int        `json:"remaining"`
	NextAllowed *time.Time `json:"next_allowed,omitempty"`
}

type Governor struct {
	store *storage.Store
	now   func() time.Time
}

func New(store *storage.Store) *Governor {
	return &Governor{store: store, now: time.Now}
}

// SetClock replaces the time source.
func (g *Governor) SetClock(now func() time.Time) {
	g.now = now
}

// PostsToday counts the tenant's posts in the trailing 24 hours.
func (g *Governor) PostsToday(ctx context.Context, tenantID string) (int, error) {
	return g.store.CountPostedSince(ctx, tenantID, g.now().Add(-24*time.Hour))
}

// IsEligible is config.enabled && postsToday < config.maxPostsPerDay.
func (g *Governor) IsEligible(ctx context.Context, tenantID string) (bool, error) {
	cfg, err := g.store.GetAutonomyConfig(ctx, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !cfg.Enabled {
		return false, nil
	}
	n, err := g.PostsToday(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return n < cfg.MaxPostsPerDay, nil
}

// Remaining returns how many more posts the tenant may make today.
func (g *Governor) Remaining(ctx context.Context, cfg storage.AutonomyConfig) (int, error) {
	n, err := g.PostsToday(ctx, cfg.TenantID)
	if err != nil {
		return 0, err
	}
	if n >= cfg.MaxPostsPerDay {
		return 0, nil
	}
	return cfg.MaxPostsPerDay - n, nil
}

// Evaluate applies the daily cap and the posting-frequency spacing used by
// the auto-publish tick.
func (g *Governor) Evaluate(ctx context.Context, cfg storage.AutonomyConfig) (Decision, error) {
	if !cfg.Enabled {
		return Decision{Reason: ReasonDisabled}, nil
	}

	n, err := g.PostsToday(ctx, cfg.TenantID)
	if err != nil {
		return Decision{}, fmt.Errorf("count posts: %w", err)
	}
	d := Decision{PostsToday: n}
	if n >= cfg.MaxPostsPerDay {
		d.Reason = ReasonDailyCap
		return d, nil
	}
	d.Remaining = cfg.MaxPostsPerDay - n

	if gap := FrequencyGap(cfg.PostingFrequency); gap > 0 {
		last, err := g.store.LastPostedAt(ctx, cfg.TenantID)
		if err != nil {
			return Decision{}, fmt.Errorf("last post: %w", err)
		}
		if last != nil {
			next := last.Add(gap)
			if g.now().Before(next) {
				d.Reason = ReasonFrequency
				d.NextAllowed = &next
				return d, nil
			}
		}
	}

	d.Eligible = true
	return d, nil
}
