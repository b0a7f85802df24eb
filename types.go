package crier

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matthewjhunter/crier/internal/ai"
	"github.com/matthewjhunter/crier/internal/config"
	"github.com/matthewjhunter/crier/internal/engagement"
	"github.com/matthewjhunter/crier/internal/knowledge"
	"github.com/matthewjhunter/crier/internal/lease"
	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/notify"
	"github.com/matthewjhunter/crier/internal/platform"
	"github.com/matthewjhunter/crier/internal/scheduler"
	"github.com/matthewjhunter/crier/internal/storage"

	embedding "github.com/matthewjhunter/go-embedding"
)

// EngineConfig configures the crier engine. Only Config is required; the
// remaining fields replace collaborators, mostly for tests.
type EngineConfig struct {
	Config *config.Config
	Logger logging.Logger

	// LLM replaces the Ollama text generator.
	LLM ai.TextGenerator
	// Embedder replaces the Ollama embedder used by the near-duplicate guard.
	Embedder embedding.Embedder
	// Adapters replace the configured platform adapters.
	Adapters []platform.Adapter
	// Locker replaces the configured tick lease backend.
	Locker lease.Locker
	// Notifier replaces the log/webhook notifier.
	Notifier notify.Notifier
	// Registry receives the Prometheus collectors; nil creates one.
	Registry *prometheus.Registry
	// Now replaces the clock everywhere.
	Now func() time.Time
}

// Records shared with callers.
type (
	AutonomyConfig     = storage.AutonomyConfig
	KnowledgeEntry     = storage.KnowledgeEntry
	QueueItem          = storage.QueueItem
	QueueStatus        = storage.QueueStatus
	PostedContent      = storage.PostedContent
	PlatformCredential = storage.PlatformCredential
	LogEntry           = storage.LogEntry
	Dashboard          = storage.Dashboard
	PromptOverride     = storage.PromptOverride
	KnowledgeImport    = knowledge.Entry
	PerformanceReport  = engagement.Report
	DispatchResult     = scheduler.DispatchResult
	TickReport         = scheduler.Report
)

// Queue statuses.
const (
	StatusPending  = storage.StatusPending
	StatusApproved = storage.StatusApproved
	StatusPosted   = storage.StatusPosted
	StatusFailed   = storage.StatusFailed
)

var (
	// ErrNotFound covers missing records and records of other tenants.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks a malformed request, rejected before any pipeline
	// work happens.
	ErrInvalid = errors.New("invalid request")
	// ErrConflict marks a request against an item in the wrong state.
	ErrConflict = errors.New("conflict")

	ErrGenerationUnavailable = ai.ErrGenerationUnavailable
	ErrBlockedContent        = ai.ErrBlockedContent
	ErrNearDuplicate         = ai.ErrNearDuplicate
	ErrTickSkipped           = scheduler.ErrTickSkipped
)

// GenerateRequest asks for one generated post, queued as pending.
type GenerateRequest struct {
	Platform     string            `json:"platform"`
	ContentType  string            `json:"content_type"`
	Context      map[string]string `json:"context,omitempty"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
}

// EnqueueRequest queues tenant-authored text.
type EnqueueRequest struct {
	Platform     string     `json:"platform"`
	ContentType  string     `json:"content_type,omitempty"`
	Text         string     `json:"text"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// PostRequest publishes immediately, bypassing approval: either an existing
// queue item or raw text for a platform.
type PostRequest struct {
	QueueID  int64  `json:"queue_id,omitempty"`
	Platform string `json:"platform,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ConnectRequest stores a platform credential.
type ConnectRequest struct {
	Platform       string `json:"platform"`
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	ExternalUserID string `json:"external_user_id,omitempty"`
	Disabled       bool   `json:"disabled,omitempty"`
}

// Eligibility is the governor's view of a tenant right now.
type Eligibility struct {
	Eligible    bool       `json:"eligible"`
	Reason      string     `json:"reason,omitempty"`
	PostsToday  int        `json:"posts_today"`
	Remaining   int        `json:"remaining"`
	NextAllowed *time.Time `json:"next_allowed,omitempty"`
}
