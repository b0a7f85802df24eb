package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func scanCredential(row scanner) (PlatformCredential, error) {
	var c PlatformCredential
	var refresh sql.NullString
	var created, updated int64
	if err := row.Scan(&c.TenantID, &c.Platform, &c.AccessToken, &refresh, &c.ExternalUserID,
		&c.Enabled, &created, &updated); err != nil {
		return PlatformCredential{}, err
	}
	c.RefreshToken = refresh.String
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

const credentialColumns = `tenant_id, platform, access_token, refresh_token, external_user_id, enabled, created_at, updated_at`

// UpsertCredential stores or replaces a tenant's credential for a platform.
func (s *Store) UpsertCredential(ctx context.Context, c PlatformCredential) error {
	now := s.nowMillis()
	var refresh sql.NullString
	if c.RefreshToken != "" {
		refresh = sql.NullString{String: c.RefreshToken, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_credentials (`+credentialColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, platform) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			external_user_id = excluded.external_user_id,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, c.TenantID, c.Platform, c.AccessToken, refresh, c.ExternalUserID, c.Enabled, now, now)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// GetCredential returns the tenant's credential for a platform, enabled or
// not. Returns ErrNotFound when none is stored.
func (s *Store) GetCredential(ctx context.Context, tenantID, platform string) (*PlatformCredential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM platform_credentials
		WHERE tenant_id = ? AND platform = ?`, tenantID, platform)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

// ListCredentials returns every credential for a tenant ordered by platform.
func (s *Store) ListCredentials(ctx context.Context, tenantID string) ([]PlatformCredential, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM platform_credentials
		WHERE tenant_id = ? ORDER BY platform`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []PlatformCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EnabledPlatforms lists the platforms a tenant can currently publish to.
func (s *Store) EnabledPlatforms(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT platform FROM platform_credentials
		WHERE tenant_id = ? AND enabled = 1 ORDER BY platform`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("enabled platforms: %w", err)
	}
	defer rows.Close()

	platforms := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		platforms = append(platforms, p)
	}
	return platforms, rows.Err()
}

// SetCredentialEnabled toggles a stored credential.
func (s *Store) SetCredentialEnabled(ctx context.Context, tenantID, platform string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE platform_credentials SET enabled = ?, updated_at = ?
		WHERE tenant_id = ? AND platform = ?`, enabled, s.nowMillis(), tenantID, platform)
	if err != nil {
		return fmt.Errorf("set credential enabled: %w", err)
	}
	return requireOneRow(res)
}

// DeleteCredential removes a tenant's credential for a platform.
func (s *Store) DeleteCredential(ctx context.Context, tenantID, platform string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM platform_credentials WHERE tenant_id = ? AND platform = ?`,
		tenantID, platform)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return requireOneRow(res)
}
