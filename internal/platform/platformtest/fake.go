// Package platformtest provides a scriptable in-memory Adapter.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matthewjhunter/crier/internal/platform"
)

// Fake records publishes and serves canned metrics.
type Fake struct {
	mu sync.Mutex

	PlatformName string
	// PublishErr, when set, is returned by every Publish call.
	PublishErr error
	// PublishDelay simulates a slow platform; the context still wins.
	PublishDelay time.Duration
	// Metrics by platform post id; a missing id yields nil, nil.
	Metrics    map[string]*platform.Metrics
	MetricsErr error
	NoMetrics  bool

	Published []string
	Fetched   []string
	seq       int
}

func New(name string) *Fake {
	return &Fake{PlatformName: name, Metrics: make(map[string]*platform.Metrics)}
}

func (f *Fake) Name() string { return f.PlatformName }

func (f *Fake) SupportsMetrics() bool { return !f.NoMetrics }

func (f *Fake) Publish(ctx context.Context, tenantID, text string) (*platform.Post, error) {
	if f.PublishDelay > 0 {
		select {
		case <-time.After(f.PublishDelay):
		case <-ctx.Done():
			return nil, &platform.Error{Platform: f.PlatformName, Kind: platform.KindTransient, Cause: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishErr != nil {
		return nil, f.PublishErr
	}
	f.seq++
	f.Published = append(f.Published, text)
	id := fmt.Sprintf("%s-%d", f.PlatformName, f.seq)
	return &platform.Post{PlatformPostID: id, PostURL: "https://example.com/" + id}, nil
}

func (f *Fake) FetchEngagement(_ context.Context, tenantID, platformPostID string) (*platform.Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetched = append(f.Fetched, platformPostID)
	if f.MetricsErr != nil {
		return nil, f.MetricsErr
	}
	return f.Metrics[platformPostID], nil
}

// PublishCount returns how many posts succeeded.
func (f *Fake) PublishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Published)
}

// SetMetrics stores metrics for a post id.
func (f *Fake) SetMetrics(id string, m *platform.Metrics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Metrics[id] = m
}

// Transient builds a transient platform error.
func Transient(name, msg string) error {
	return &platform.Error{Platform: name, Kind: platform.KindTransient, Cause: fmt.Errorf("%s", msg)}
}

// Rejected builds a rejected platform error.
func Rejected(name, msg string) error {
	return &platform.Error{Platform: name, Kind: platform.KindRejected, Cause: fmt.Errorf("%s", msg)}
}
