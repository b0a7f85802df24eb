// Package knowledge grounds content generation in per-tenant facts.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/storage"
)

// Service wraps the knowledge table with seeding and formatting.
type Service struct {
	store *storage.Store
	log   logging.Logger
}

func NewService(store *storage.Store, log logging.Logger) *Service {
	return &Service{store: store, log: log}
}

// Defaults is the knowledge set given to a tenant with no entries.
func Defaults() []storage.KnowledgeEntry {
	return []storage.KnowledgeEntry{
		{Category: "brand", Key: "voice", Value: "Helpful, concise and confident. No hype, no jargon.", Priority: 100, Active: true},
		{Category: "brand", Key: "mission", Value: "Help customers get more done with less effort.", Priority: 90, Active: true},
		{Category: "audience", Key: "primary", Value: "Small business owners and independent professionals.", Priority: 80, Active: true},
		{Category: "product", Key: "summary", Value: "Describe the product here so generated posts can reference it.", Priority: 70, Active: true},
		{Category: "product", Key: "differentiator", Value: "Explain what makes the product different from alternatives.", Priority: 60, Active: true},
		{Category: "guidelines", Key: "hashtags", Value: "Use at most two relevant hashtags.", Priority: 50, Active: true},
		{Category: "guidelines", Key: "calls_to_action", Value: "End promotional posts with a single clear call to action.", Priority: 40, Active: true},
	}
}

// EnsureSeeded inserts the default set for a tenant with zero entries.
// Returns the number of rows added; repeated calls never duplicate rows.
func (s *Service) EnsureSeeded(ctx context.Context, tenantID string) (int, error) {
	n, err := s.store.CountKnowledge(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	added, err := s.store.SeedKnowledge(ctx, tenantID, Defaults())
	if err != nil {
		return 0, fmt.Errorf("seed knowledge: %w", err)
	}
	if added > 0 {
		s.log.WithFields(logging.Fields{"tenant_id": tenantID, "entries": added}).Info("Seeded default knowledge")
	}
	return added, nil
}

// Reset deletes every entry for the tenant and re-seeds the defaults.
func (s *Service) Reset(ctx context.Context, tenantID string) (int, error) {
	n, err := s.store.ResetKnowledge(ctx, tenantID, Defaults())
	if err != nil {
		return 0, fmt.Errorf("reset knowledge: %w", err)
	}
	s.log.WithFields(logging.Fields{"tenant_id": tenantID, "entries": n}).Warn("Knowledge reset to defaults")
	return n, nil
}

// GetContext returns the tenant's active entries as a text block grouped by
// category. Categories appear in the order of their highest-priority entry.
func (s *Service) GetContext(ctx context.Context, tenantID string) (string, error) {
	if _, err := s.EnsureSeeded(ctx, tenantID); err != nil {
		return "", err
	}
	entries, err := s.store.ListKnowledge(ctx, tenantID, true)
	if err != nil {
		return "", fmt.Errorf("load knowledge: %w", err)
	}
	return Format(entries), nil
}

// Format renders entries, already ordered by priority, into sections.
func Format(entries []storage.KnowledgeEntry) string {
	var order []string
	grouped := make(map[string][]storage.KnowledgeEntry)
	for _, e := range entries {
		if _, ok := grouped[e.Category]; !ok {
			order = append(order, e.Category)
		}
		grouped[e.Category] = append(grouped[e.Category], e)
	}

	var b strings.Builder
	for i, cat := range order {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n", title(cat))
		for _, e := range grouped[cat] {
			fmt.Fprintf(&b, "- %s: %s\n", e.Key, e.Value)
		}
	}
	return b.String()
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
