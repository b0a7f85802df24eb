package ai

import (
	"context"
	"fmt"

	embedding "github.com/matthewjhunter/go-embedding"
)

// RecentTexts supplies a tenant's latest published texts.
type RecentTexts interface {
	RecentPostedTexts(ctx context.Context, tenantID string, limit int) ([]string, error)
}

// DuplicateGuard rejects candidates whose embedding is too close to one of
// the tenant's recent posts.
type DuplicateGuard struct {
	embedder  embedding.Embedder
	recent    RecentTexts
	threshold float64
	window    int
}

// NewDuplicateGuard compares candidates against the last window posts. The
// threshold (0-1) is the minimum cosine similarity treated as a duplicate.
func NewDuplicateGuard(embedder embedding.Embedder, recent RecentTexts, threshold float64, window int) *DuplicateGuard {
	if window <= 0 {
		window = 20
	}
	return &DuplicateGuard{
		embedder:  embedder,
		recent:    recent,
		threshold: threshold,
		window:    window,
	}
}

// Check returns ErrNearDuplicate when text matches a recent post. Other
// errors mean the check could not run.
func (d *DuplicateGuard) Check(ctx context.Context, tenantID, text string) error {
	recent, err := d.recent.RecentPostedTexts(ctx, tenantID, d.window)
	if err != nil {
		return fmt.Errorf("load recent posts: %w", err)
	}
	if len(recent) == 0 {
		return nil
	}

	vecs, err := d.embedder.Embed(ctx, append([]string{text}, recent...))
	if err != nil {
		return fmt.Errorf("embed candidate: %w", err)
	}
	if len(vecs) != len(recent)+1 {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(recent)+1)
	}

	candidate := vecs[0]
	var bestSim float64
	for _, v := range vecs[1:] {
		if sim := embedding.CosineSimilarity(candidate, v); sim > bestSim {
			bestSim = sim
		}
	}
	if bestSim >= d.threshold {
		return fmt.Errorf("%w (similarity %.2f)", ErrNearDuplicate, bestSim)
	}
	return nil
}

// Similarity embeds two texts and returns their cosine similarity.
func (d *DuplicateGuard) Similarity(ctx context.Context, a, b string) (float64, error) {
	va, err := embedding.Single(ctx, d.embedder, a)
	if err != nil {
		return 0, err
	}
	vb, err := embedding.Single(ctx, d.embedder, b)
	if err != nil {
		return 0, err
	}
	return embedding.CosineSimilarity(va, vb), nil
}
