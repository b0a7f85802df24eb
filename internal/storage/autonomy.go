package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const autonomyColumns = `tenant_id, enabled, posting_frequency, max_posts_per_day, allowed_content_types,
	tone, topics, blacklist_words, require_approval, created_at, updated_at`

func scanAutonomyConfig(row scanner) (AutonomyConfig, error) {
	var c AutonomyConfig
	var allowed, topics, blacklist string
	var created, updated int64
	if err := row.Scan(&c.TenantID, &c.Enabled, &c.PostingFrequency, &c.MaxPostsPerDay, &allowed,
		&c.Tone, &topics, &blacklist, &c.RequireApproval, &created, &updated); err != nil {
		return AutonomyConfig{}, err
	}
	c.AllowedContentTypes = decodeStrings(allowed)
	c.Topics = decodeStrings(topics)
	c.BlacklistWords = decodeStrings(blacklist)
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

// GetAutonomyConfig returns the tenant's config, or ErrNotFound when the
// tenant never saved one.
func (s *Store) GetAutonomyConfig(ctx context.Context, tenantID string) (*AutonomyConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+autonomyColumns+` FROM autonomy_configs WHERE tenant_id = ?`, tenantID)
	c, err := scanAutonomyConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get autonomy config: %w", err)
	}
	return &c, nil
}

// UpsertAutonomyConfig stores the tenant's config. The tenant_id primary key
// guarantees at most one config per tenant.
func (s *Store) UpsertAutonomyConfig(ctx context.Context, c AutonomyConfig) error {
	now := s.nowMillis()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO autonomy_configs (`+autonomyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			enabled = excluded.enabled,
			posting_frequency = excluded.posting_frequency,
			max_posts_per_day = excluded.max_posts_per_day,
			allowed_content_types = excluded.allowed_content_types,
			tone = excluded.tone,
			topics = excluded.topics,
			blacklist_words = excluded.blacklist_words,
			require_approval = excluded.require_approval,
			updated_at = excluded.updated_at
	`, c.TenantID, c.Enabled, c.PostingFrequency, c.MaxPostsPerDay, encodeStrings(c.AllowedContentTypes),
		c.Tone, encodeStrings(c.Topics), encodeStrings(c.BlacklistWords), c.RequireApproval, now, now)
	if err != nil {
		return fmt.Errorf("upsert autonomy config: %w", err)
	}
	return nil
}

// ListAutoPublishConfigs returns every config with autonomy enabled and
// approval waived, ordered by tenant.
func (s *Store) ListAutoPublishConfigs(ctx context.Context) ([]AutonomyConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+autonomyColumns+` FROM autonomy_configs
		WHERE enabled = 1 AND require_approval = 0
		ORDER BY tenant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list auto-publish configs: %w", err)
	}
	defer rows.Close()

	var configs []AutonomyConfig
	for rows.Next() {
		c, err := scanAutonomyConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan autonomy config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}
