package storage

// All timestamps are unix milliseconds (UTC). Window queries such as
// "posted in the last 24 hours" and "due now" compare integers, which keeps
// them independent of the driver's time formatting.
const Schema = `
CREATE TABLE IF NOT EXISTS knowledge_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    category TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE(tenant_id, category, key)
);

CREATE INDEX IF NOT EXISTS idx_knowledge_tenant ON knowledge_entries(tenant_id);

CREATE TABLE IF NOT EXISTS autonomy_configs (
    tenant_id TEXT PRIMARY KEY,
    enabled BOOLEAN NOT NULL DEFAULT 0,
    posting_frequency TEXT NOT NULL DEFAULT 'hourly',
    max_posts_per_day INTEGER NOT NULL DEFAULT 3,
    allowed_content_types TEXT NOT NULL DEFAULT '[]',
    tone TEXT NOT NULL DEFAULT '',
    topics TEXT NOT NULL DEFAULT '[]',
    blacklist_words TEXT NOT NULL DEFAULT '[]',
    require_approval BOOLEAN NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS content_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    content_type TEXT NOT NULL,
    platform TEXT NOT NULL,
    text TEXT NOT NULL,
    scheduled_for INTEGER,
    status TEXT NOT NULL DEFAULT 'pending',
    generation_context TEXT NOT NULL DEFAULT '{}',
    last_error TEXT,
    claim_token TEXT,
    claimed_at INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_tenant ON content_queue(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_queue_due ON content_queue(status, scheduled_for, created_at);

CREATE TABLE IF NOT EXISTS posted_content (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    queue_id INTEGER UNIQUE REFERENCES content_queue(id) ON DELETE SET NULL,
    platform TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    platform_post_id TEXT NOT NULL,
    text TEXT NOT NULL,
    post_url TEXT NOT NULL DEFAULT '',
    posted_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posted_tenant_time ON posted_content(tenant_id, posted_at);
CREATE INDEX IF NOT EXISTS idx_posted_time ON posted_content(posted_at);

CREATE TABLE IF NOT EXISTS engagement_metrics (
    posted_id INTEGER PRIMARY KEY REFERENCES posted_content(id) ON DELETE CASCADE,
    likes INTEGER NOT NULL DEFAULT 0,
    reposts INTEGER NOT NULL DEFAULT 0,
    replies INTEGER NOT NULL DEFAULT 0,
    impressions INTEGER NOT NULL DEFAULT 0,
    engagement_rate REAL NOT NULL DEFAULT 0,
    fetched_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS platform_credentials (
    tenant_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    access_token TEXT NOT NULL,
    refresh_token TEXT,
    external_user_id TEXT NOT NULL DEFAULT '',
    enabled BOOLEAN NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (tenant_id, platform)
);

CREATE TABLE IF NOT EXISTS autonomy_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    action_type TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL,
    error_message TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_logs_tenant_time ON autonomy_logs(tenant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS tick_leases (
    name TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS prompt_overrides (
    tenant_id TEXT NOT NULL,
    content_type TEXT NOT NULL,
    prompt_template TEXT NOT NULL,
    temperature REAL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (tenant_id, content_type)
);
`
