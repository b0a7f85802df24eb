package governor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matthewjhunter/crier/internal/storage"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Governor, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	g := New(store)
	g.SetClock(func() time.Time { return now })
	return g, store
}

func post(t *testing.T, store *storage.Store, tenant string, at time.Time) {
	t.Helper()
	if _, err := store.InsertPostedContent(context.Background(), storage.PostedContent{
		TenantID: tenant, Platform: "x", PlatformPostID: at.String(), Text: "t", PostedAt: at,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestIsEligible(t *testing.T) {
	g, store := setup(t)
	ctx := context.Background()

	ok, err := g.IsEligible(ctx, "t1")
	if err != nil || ok {
		t.Fatalf("tenant without config eligible: %v %v", ok, err)
	}

	store.UpsertAutonomyConfig(ctx, storage.AutonomyConfig{TenantID: "t1", Enabled: true, MaxPostsPerDay: 1})
	if ok, _ := g.IsEligible(ctx, "t1"); !ok {
		t.Fatal("enabled tenant under cap not eligible")
	}

	// A post from 25 hours ago does not count.
	post(t, store, "t1", now.Add(-25*time.Hour))
	if ok, _ := g.IsEligible(ctx, "t1"); !ok {
		t.Fatal("old post counted against today's cap")
	}

	post(t, store, "t1", now.Add(-time.Hour))
	if ok, _ := g.IsEligible(ctx, "t1"); ok {
		t.Fatal("tenant at cap still eligible")
	}

	store.UpsertAutonomyConfig(ctx, storage.AutonomyConfig{TenantID: "t1", Enabled: false, MaxPostsPerDay: 10})
	if ok, _ := g.IsEligible(ctx, "t1"); ok {
		t.Fatal("disabled tenant eligible")
	}
}

func TestEvaluate(t *testing.T) {
	g, store := setup(t)
	ctx := context.Background()

	cfg := storage.AutonomyConfig{TenantID: "t1", Enabled: true, MaxPostsPerDay: 3, PostingFrequency: FrequencyEvery4Hours}
	d, err := g.Evaluate(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Eligible || d.Remaining != 3 {
		t.Errorf("unexpected decision: %+v", d)
	}

	post(t, store, "t1", now.Add(-time.Hour))
	d, _ = g.Evaluate(ctx, cfg)
	if d.Eligible || d.Reason != ReasonFrequency || d.NextAllowed == nil || !d.NextAllowed.Equal(now.Add(3*time.Hour)) {
		t.Errorf("expected frequency hold, got %+v", d)
	}

	cfg.PostingFrequency = FrequencyHourly
	d, _ = g.Evaluate(ctx, cfg)
	if !d.Eligible || d.Remaining != 2 || d.PostsToday != 1 {
		t.Errorf("expected eligible with 2 remaining, got %+v", d)
	}

	post(t, store, "t1", now.Add(-2*time.Hour))
	post(t, store, "t1", now.Add(-3*time.Hour))
	d, _ = g.Evaluate(ctx, cfg)
	if d.Eligible || d.Reason != ReasonDailyCap {
		t.Errorf("expected daily cap, got %+v", d)
	}
	if n, _ := g.Remaining(ctx, cfg); n != 0 {
		t.Errorf("Remaining = %d, want 0", n)
	}

	cfg.Enabled = false
	d, _ = g.Evaluate(ctx, cfg)
	if d.Reason != ReasonDisabled {
		t.Errorf("expected disabled, got %+v", d)
	}
}

func TestFrequency(t *testing.T) {
	if !ValidFrequency("daily") || ValidFrequency("weekly") {
		t.Error("unexpected ValidFrequency result")
	}
	if FrequencyGap(FrequencyTwiceDaily) != 12*time.Hour {
		t.Error("twice_daily gap should be 12h")
	}
}
