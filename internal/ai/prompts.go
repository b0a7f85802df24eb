package ai

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/matthewjhunter/crier/internal/config"
	"github.com/matthewjhunter/crier/internal/storage"
)

// Embedded default prompts
//
//go:embed prompts/promotional.txt
var defaultPromotionalPrompt string

//go:embed prompts/educational.txt
var defaultEducationalPrompt string

//go:embed prompts/engagement.txt
var defaultEngagementPrompt string

//go:embed prompts/announcement.txt
var defaultAnnouncementPrompt string

// ContentType is the intent of a generated post.
type ContentType string

const (
	ContentPromotional  ContentType = "promotional"
	ContentEducational  ContentType = "educational"
	ContentEngagement   ContentType = "engagement"
	ContentAnnouncement ContentType = "announcement"
)

// ContentTypes lists every supported type in a stable order.
var ContentTypes = []ContentType{ContentPromotional, ContentEducational, ContentEngagement, ContentAnnouncement}

// ParseContentType validates s.
func ParseContentType(s string) (ContentType, error) {
	for _, ct := range ContentTypes {
		if string(ct) == s {
			return ct, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContentType, s)
}

// OverrideStore is the per-tenant tier of the prompt loader.
type OverrideStore interface {
	GetPromptOverride(ctx context.Context, tenantID, contentType string) (*storage.PromptOverride, error)
}

// PromptLoader handles 3-tier prompt loading: embedded -> config -> database
type PromptLoader struct {
	store  OverrideStore
	config *config.Config
}

// NewPromptLoader creates a new prompt loader. Either argument may be nil.
func NewPromptLoader(store OverrideStore, cfg *config.Config) *PromptLoader {
	return &PromptLoader{store: store, config: cfg}
}

// GetPrompt loads a prompt with 3-tier fallback
// Priority: tenant override -> config file -> embedded default
func (pl *PromptLoader) GetPrompt(ctx context.Context, tenantID string, ct ContentType) (string, error) {
	override, err := pl.override(ctx, tenantID, ct)
	if err != nil {
		return "", err
	}
	if override != nil && override.Template != "" {
		return override.Template, nil
	}

	if pl.config != nil {
		var configPrompt string
		switch ct {
		case ContentPromotional:
			configPrompt = pl.config.Prompts.Promotional
		case ContentEducational:
			configPrompt = pl.config.Prompts.Educational
		case ContentEngagement:
			configPrompt = pl.config.Prompts.Engagement
		case ContentAnnouncement:
			configPrompt = pl.config.Prompts.Announce
		}
		if configPrompt != "" {
			return configPrompt, nil
		}
	}

	switch ct {
	case ContentPromotional:
		return defaultPromotionalPrompt, nil
	case ContentEducational:
		return defaultEducationalPrompt, nil
	case ContentEngagement:
		return defaultEngagementPrompt, nil
	case ContentAnnouncement:
		return defaultAnnouncementPrompt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownContentType, ct)
	}
}

// GetTemperature gets the temperature for a content type with fallback
// Priority: tenant override -> config file -> default
func (pl *PromptLoader) GetTemperature(ctx context.Context, tenantID string, ct ContentType) float64 {
	if override, err := pl.override(ctx, tenantID, ct); err == nil && override != nil &&
		override.Temperature != nil && *override.Temperature > 0 {
		return *override.Temperature
	}

	if pl.config != nil {
		var configTemp float64
		switch ct {
		case ContentPromotional:
			configTemp = pl.config.Temperatures.Promotional
		case ContentEducational:
			configTemp = pl.config.Temperatures.Educational
		case ContentEngagement:
			configTemp = pl.config.Temperatures.Engagement
		case ContentAnnouncement:
			configTemp = pl.config.Temperatures.Announce
		}
		if configTemp > 0 {
			return configTemp
		}
	}

	switch ct {
	case ContentPromotional:
		return 0.8
	case ContentEducational:
		return 0.6
	case ContentEngagement:
		return 0.9
	case ContentAnnouncement:
		return 0.5
	default:
		return 0.7
	}
}

func (pl *PromptLoader) override(ctx context.Context, tenantID string, ct ContentType) (*storage.PromptOverride, error) {
	if pl.store == nil || tenantID == "" {
		return nil, nil
	}
	o, err := pl.store.GetPromptOverride(ctx, tenantID, string(ct))
	if err != nil {
		return nil, fmt.Errorf("load prompt override: %w", err)
	}
	return o, nil
}

// PromptData is the value every prompt template is rendered with.
type PromptData struct {
	Platform    string
	ContentType string
	CharLimit   int
	Knowledge   string
	Tone        string
	Topics      string
	Hints       map[string]string
}

// ExecutePrompt renders a prompt template with the given data
func ExecutePrompt(promptTemplate string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(promptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return buf.String(), nil
}
