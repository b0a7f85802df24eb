package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetPromptOverride returns the tenant's template for a content type, or
// nil when none is stored.
func (s *Store) GetPromptOverride(ctx context.Context, tenantID, contentType string) (*PromptOverride, error) {
	var p PromptOverride
	var temp sql.NullFloat64
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, content_type, prompt_template, temperature, updated_at
		FROM prompt_overrides WHERE tenant_id = ? AND content_type = ?
	`, tenantID, contentType).Scan(&p.TenantID, &p.ContentType, &p.Template, &temp, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt override: %w", err)
	}
	if temp.Valid {
		v := temp.Float64
		p.Temperature = &v
	}
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

// SetPromptOverride stores a tenant's template for a content type.
func (s *Store) SetPromptOverride(ctx context.Context, p PromptOverride) error {
	var temp sql.NullFloat64
	if p.Temperature != nil {
		temp = sql.NullFloat64{Float64: *p.Temperature, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompt_overrides (tenant_id, content_type, prompt_template, temperature, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, content_type) DO UPDATE SET
			prompt_template = excluded.prompt_template,
			temperature = excluded.temperature,
			updated_at = excluded.updated_at
	`, p.TenantID, p.ContentType, p.Template, temp, s.nowMillis())
	if err != nil {
		return fmt.Errorf("set prompt override: %w", err)
	}
	return nil
}

// DeletePromptOverride reverts a content type to the default template.
func (s *Store) DeletePromptOverride(ctx context.Context, tenantID, contentType string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM prompt_overrides WHERE tenant_id = ? AND content_type = ?`,
		tenantID, contentType)
	if err != nil {
		return fmt.Errorf("delete prompt override: %w", err)
	}
	return nil
}
