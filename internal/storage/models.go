package storage

import "time"

// QueueStatus is the lifecycle state of a content queue item.
type QueueStatus string

const (
	StatusPending  QueueStatus = "pending"
	StatusApproved QueueStatus = "approved"
	StatusPosted   QueueStatus = "posted"
	StatusFailed   QueueStatus = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
// Deleted items are removed from the table, so they never show up here.
func (s QueueStatus) Terminal() bool {
	return s == StatusPosted || s == StatusFailed
}

// KnowledgeEntry is one tenant fact used to ground generation.
type KnowledgeEntry struct {
	ID        int64     `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Category  string    `json:"category"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Priority  int       `json:"priority"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AutonomyConfig is the per-tenant pipeline configuration.
type AutonomyConfig struct {
	TenantID            string    `json:"tenant_id"`
	Enabled             bool      `json:"enabled"`
	PostingFrequency    string    `json:"posting_frequency"`
	MaxPostsPerDay      int       `json:"max_posts_per_day"`
	AllowedContentTypes []string  `json:"allowed_content_types"`
	Tone                string    `json:"tone"`
	Topics              []string  `json:"topics"`
	BlacklistWords      []string  `json:"blacklist_words"`
	RequireApproval     bool      `json:"require_approval"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// QueueItem is a generated or manually authored post awaiting publication.
type QueueItem struct {
	ID                int64             `json:"id"`
	TenantID          string            `json:"tenant_id"`
	ContentType       string            `json:"content_type"`
	Platform          string            `json:"platform"`
	Text              string            `json:"text"`
	ScheduledFor      *time.Time        `json:"scheduled_for,omitempty"`
	Status            QueueStatus       `json:"status"`
	GenerationContext map[string]string `json:"generation_context"`
	LastError         string            `json:"last_error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// PostedContent is the immutable record of something that left the system.
type PostedContent struct {
	ID             int64     `json:"id"`
	TenantID       string    `json:"tenant_id"`
	QueueID        *int64    `json:"queue_id,omitempty"`
	Platform       string    `json:"platform"`
	ContentType    string    `json:"content_type,omitempty"`
	PlatformPostID string    `json:"platform_post_id"`
	Text           string    `json:"text"`
	PostURL        string    `json:"post_url"`
	PostedAt       time.Time `json:"posted_at"`
}

// EngagementMetric holds the latest performance snapshot of one post.
type EngagementMetric struct {
	PostedID       int64     `json:"posted_id"`
	Likes          int64     `json:"likes"`
	Reposts        int64     `json:"reposts"`
	Replies        int64     `json:"replies"`
	Impressions    int64     `json:"impressions"`
	EngagementRate float64   `json:"engagement_rate"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// PlatformCredential authorizes publish and metrics calls for one tenant
// on one platform.
type PlatformCredential struct {
	TenantID       string    `json:"tenant_id"`
	Platform       string    `json:"platform"`
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	ExternalUserID string    `json:"external_user_id"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LogEntry is one append-only audit record.
type LogEntry struct {
	ID           int64             `json:"id"`
	TenantID     string            `json:"tenant_id"`
	ActionType   string            `json:"action_type"`
	Details      map[string]string `json:"details"`
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// PromptOverride is a tenant's custom template for one content type.
type PromptOverride struct {
	TenantID    string    `json:"tenant_id"`
	ContentType string    `json:"content_type"`
	Template    string    `json:"template"`
	Temperature *float64  `json:"temperature,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Performance pairs a post with its engagement snapshot.
type Performance struct {
	Posted PostedContent    `json:"posted"`
	Metric EngagementMetric `json:"metric"`
}

// ContentTypePerformance aggregates engagement per content type.
type ContentTypePerformance struct {
	ContentType string  `json:"content_type"`
	Posts       int     `json:"posts"`
	AvgRate     float64 `json:"avg_engagement_rate"`
}

// Dashboard holds the aggregate counts shown to a tenant.
type Dashboard struct {
	Queue             map[QueueStatus]int `json:"queue"`
	PostedToday       int                 `json:"posted_today"`
	PostedWeek        int                 `json:"posted_week"`
	FailuresToday     int                 `json:"failures_today"`
	EnabledPlatforms  []string            `json:"enabled_platforms"`
	AvgEngagementRate float64             `json:"avg_engagement_rate"`
	KnowledgeEntries  int                 `json:"knowledge_entries"`
}

// Audit log action types.
const (
	ActionGenerate        = "generate"
	ActionAutoPublish     = "auto_publish"
	ActionQueuePublish    = "queue_publish"
	ActionManualPublish   = "manual_publish"
	ActionEngagementFetch = "engagement_fetch"
	ActionContentBlocked  = "content_blocked"
)

// Audit log statuses.
const (
	LogSuccess = "success"
	LogFailed  = "failed"
	LogSkipped = "skipped"
)
