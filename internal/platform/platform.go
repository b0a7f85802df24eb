// Package platform publishes posts to external destinations and reads back
// their engagement. Each destination is an Adapter registered by name.
package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/matthewjhunter/crier/internal/storage"
)

// Post identifies a published post on its platform.
type Post struct {
	PlatformPostID string `json:"platform_post_id"`
	PostURL        string `json:"post_url"`
}

// Metrics is a platform's engagement snapshot for one post.
type Metrics struct {
	Likes       int64 `json:"likes"`
	Reposts     int64 `json:"reposts"`
	Replies     int64 `json:"replies"`
	Impressions int64 `json:"impressions"`
}

// Adapter is the per-destination publish and metrics contract.
// FetchEngagement returns nil, nil when metrics are not available yet.
type Adapter interface {
	Name() string
	Publish(ctx context.Context, tenantID, text string) (*Post, error)
	FetchEngagement(ctx context.Context, tenantID, platformPostID string) (*Metrics, error)
}

// MetricsReporter is implemented by adapters that can tell up front whether
// their platform exposes metrics at all.
type MetricsReporter interface {
	SupportsMetrics() bool
}

// SupportsMetrics reports whether collection should query a.
func SupportsMetrics(a Adapter) bool {
	if r, ok := a.(MetricsReporter); ok {
		return r.SupportsMetrics()
	}
	return true
}

// Credentials resolves a tenant's credential for a platform.
type Credentials interface {
	GetCredential(ctx context.Context, tenantID, platform string) (*storage.PlatformCredential, error)
}

// Registry maps platform identifiers to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Name().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a platform.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
	return a, nil
}

// Names lists registered platforms in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches a key that adapters forward to platforms
// supporting idempotent creates.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the key set by WithIdempotencyKey, if any.
func IdempotencyKey(ctx context.Context) string {
	s, _ := ctx.Value(idempotencyKey{}).(string)
	return s
}
