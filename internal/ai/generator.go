// Package ai builds prompts from tenant knowledge and turns model output
// into post text.
package ai

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/storage"
)

var (
	// ErrGenerationUnavailable means the model could not be reached or
	// produced nothing usable. The caller decides whether to retry.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrBlockedContent means the text contains a tenant blacklist word.
	ErrBlockedContent = errors.New("content contains blacklisted words")
	// ErrNearDuplicate means the text is too similar to a recent post.
	ErrNearDuplicate = errors.New("content too similar to a recent post")
	// ErrUnknownContentType is returned for content types without a template.
	ErrUnknownContentType = errors.New("unknown content type")
)

// TextGenerator is the opaque text-generation capability.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// KnowledgeSource supplies the grounding block for a tenant.
type KnowledgeSource interface {
	GetContext(ctx context.Context, tenantID string) (string, error)
}

var charBudgets = map[string]int{
	"x":        280,
	"mastodon": 500,
	"linkedin": 3000,
}

const defaultCharBudget = 500

// CharBudget returns the maximum post length for a platform.
func CharBudget(platform string) int {
	if n, ok := charBudgets[platform]; ok {
		return n
	}
	return defaultCharBudget
}

// Request describes one generation.
type Request struct {
	TenantID    string
	Platform    string
	ContentType ContentType
	Context     map[string]string
}

// Generator is the content generator. It calls the model exactly once per
// Generate call and never retries.
type Generator struct {
	llm       TextGenerator
	knowledge KnowledgeSource
	prompts   *PromptLoader
	guard     *DuplicateGuard
	timeout   time.Duration
	strip     *bluemonday.Policy
	log       logging.Logger
}

// NewGenerator wires a generator. guard may be nil.
func NewGenerator(llm TextGenerator, knowledge KnowledgeSource, prompts *PromptLoader, guard *DuplicateGuard, timeout time.Duration, log logging.Logger) *Generator {
	if prompts == nil {
		prompts = NewPromptLoader(nil, nil)
	}
	return &Generator{
		llm:       llm,
		knowledge: knowledge,
		prompts:   prompts,
		guard:     guard,
		timeout:   timeout,
		strip:     bluemonday.StrictPolicy(),
		log:       log,
	}
}

// Generate produces post text for req using the tenant's voice settings.
func (g *Generator) Generate(ctx context.Context, req Request, cfg storage.AutonomyConfig) (string, error) {
	if _, err := ParseContentType(string(req.ContentType)); err != nil {
		return "", err
	}

	knowledge, err := g.knowledge.GetContext(ctx, req.TenantID)
	if err != nil {
		return "", fmt.Errorf("knowledge context: %w", err)
	}

	tmpl, err := g.prompts.GetPrompt(ctx, req.TenantID, req.ContentType)
	if err != nil {
		return "", err
	}
	limit := CharBudget(req.Platform)
	tone := cfg.Tone
	if tone == "" {
		tone = "professional and friendly"
	}
	prompt, err := ExecutePrompt(tmpl, PromptData{
		Platform:    req.Platform,
		ContentType: string(req.ContentType),
		CharLimit:   limit,
		Knowledge:   knowledge,
		Tone:        tone,
		Topics:      strings.Join(cfg.Topics, ", "),
		Hints:       req.Context,
	})
	if err != nil {
		return "", err
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	raw, err := g.llm.Generate(callCtx, prompt, g.prompts.GetTemperature(ctx, req.TenantID, req.ContentType))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	text := g.Normalize(raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty output", ErrGenerationUnavailable)
	}
	text = TruncateAtWord(text, limit)

	if word, blocked := ContainsBlacklisted(text, cfg.BlacklistWords); blocked {
		return "", fmt.Errorf("%w: %q", ErrBlockedContent, word)
	}

	if g.guard != nil {
		if err := g.guard.Check(ctx, req.TenantID, text); err != nil {
			if errors.Is(err, ErrNearDuplicate) {
				return "", err
			}
			g.log.WithFields(logging.Fields{"tenant_id": req.TenantID, "error": err}).Warn("Duplicate check skipped")
		}
	}
	return text, nil
}

const quoteChars = "\"'`“”‘’"

// Normalize strips markup, surrounding whitespace and surrounding quote
// characters from model output.
func (g *Generator) Normalize(raw string) string {
	text := html.UnescapeString(g.strip.Sanitize(raw))
	for {
		trimmed := strings.TrimSpace(text)
		trimmed = strings.Trim(trimmed, quoteChars)
		if trimmed == text {
			return trimmed
		}
		text = trimmed
	}
}

// TruncateAtWord shortens text to at most limit characters, cutting at the
// last space and appending an ellipsis.
func TruncateAtWord(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	const ellipsis = "..."
	keep := limit - len(ellipsis)
	if keep <= 0 {
		return string([]rune(text)[:limit])
	}
	cut := string([]rune(text)[:keep])
	if i := strings.LastIndexAny(cut, " \n\t"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n\t.,;:") + ellipsis
}

// ContainsBlacklisted reports the first blacklist word or phrase found in
// text as a whole word, ignoring case.
func ContainsBlacklisted(text string, words []string) (string, bool) {
	sorted := append([]string(nil), words...)
	sort.Strings(sorted)
	for _, w := range sorted {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)(^|\W)` + regexp.QuoteMeta(w) + `(\W|$)`)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			return w, true
		}
	}
	return "", false
}
