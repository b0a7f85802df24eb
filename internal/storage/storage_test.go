package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	store.SetClock(func() time.Time { return testNow })
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen(t *testing.T) {
	store := newTestStore(t)
	if store.DB() == nil {
		t.Fatal("Database connection is nil")
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestKnowledgeCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertKnowledge(ctx, KnowledgeEntry{
		TenantID: "t1", Category: "product", Key: "name", Value: "Crier", Priority: 5, Active: true,
	})
	if err != nil {
		t.Fatalf("UpsertKnowledge failed: %v", err)
	}

	// Same (tenant, category, key) replaces the value and keeps the ID.
	id2, err := store.UpsertKnowledge(ctx, KnowledgeEntry{
		TenantID: "t1", Category: "product", Key: "name", Value: "Crier 2", Priority: 7, Active: true,
	})
	if err != nil {
		t.Fatalf("UpsertKnowledge (replace) failed: %v", err)
	}
	if id2 != id {
		t.Errorf("upsert changed id: %d -> %d", id, id2)
	}

	got, err := store.GetKnowledge(ctx, "t1", id)
	if err != nil {
		t.Fatalf("GetKnowledge failed: %v", err)
	}
	if got.Value != "Crier 2" || got.Priority != 7 {
		t.Errorf("unexpected entry: %+v", got)
	}

	// Another tenant cannot see it.
	if _, err := store.GetKnowledge(ctx, "t2", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign tenant, got %v", err)
	}

	got.Active = false
	if err := store.UpdateKnowledge(ctx, *got); err != nil {
		t.Fatalf("UpdateKnowledge failed: %v", err)
	}
	active, err := store.ListKnowledge(ctx, "t1", true)
	if err != nil {
		t.Fatalf("ListKnowledge failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active entries, got %d", len(active))
	}

	if err := store.DeleteKnowledge(ctx, "t1", id); err != nil {
		t.Fatalf("DeleteKnowledge failed: %v", err)
	}
	if err := store.DeleteKnowledge(ctx, "t1", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestSeedAndResetKnowledge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	defaults := []KnowledgeEntry{
		{Category: "brand", Key: "voice", Value: "friendly", Priority: 10, Active: true},
		{Category: "product", Key: "pitch", Value: "fast", Priority: 5, Active: true},
	}
	n, err := store.SeedKnowledge(ctx, "t1", defaults)
	if err != nil {
		t.Fatalf("SeedKnowledge failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 seeded, got %d", n)
	}

	// Seeding again adds nothing and keeps user edits.
	if _, err := store.UpsertKnowledge(ctx, KnowledgeEntry{
		TenantID: "t1", Category: "brand", Key: "voice", Value: "formal", Priority: 10, Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	n, err = store.SeedKnowledge(ctx, "t1", defaults)
	if err != nil {
		t.Fatalf("SeedKnowledge (again) failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 seeded on second pass, got %d", n)
	}

	if _, err := store.UpsertKnowledge(ctx, KnowledgeEntry{
		TenantID: "t1", Category: "extra", Key: "k", Value: "v", Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	n, err = store.ResetKnowledge(ctx, "t1", defaults)
	if err != nil {
		t.Fatalf("ResetKnowledge failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 after reset, got %d", n)
	}
	entries, _ := store.ListKnowledge(ctx, "t1", false)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after reset, got %d", len(entries))
	}
	if entries[0].Key != "voice" || entries[0].Value != "friendly" {
		t.Errorf("expected defaults restored in priority order, got %+v", entries[0])
	}
}

func TestAutonomyConfig(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetAutonomyConfig(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	cfg := AutonomyConfig{
		TenantID:            "t1",
		Enabled:             true,
		PostingFrequency:    "daily",
		MaxPostsPerDay:      2,
		AllowedContentTypes: []string{"educational"},
		Tone:                "casual",
		Topics:              []string{"go", "sqlite"},
		BlacklistWords:      []string{"crypto"},
	}
	if err := store.UpsertAutonomyConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertAutonomyConfig failed: %v", err)
	}
	got, err := store.GetAutonomyConfig(ctx, "t1")
	if err != nil {
		t.Fatalf("GetAutonomyConfig failed: %v", err)
	}
	if got.MaxPostsPerDay != 2 || len(got.Topics) != 2 || got.BlacklistWords[0] != "crypto" {
		t.Errorf("unexpected config: %+v", got)
	}

	configs, err := store.ListAutoPublishConfigs(ctx)
	if err != nil {
		t.Fatalf("ListAutoPublishConfigs failed: %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("expected 1 auto-publish config, got %d", len(configs))
	}

	cfg.RequireApproval = true
	if err := store.UpsertAutonomyConfig(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	configs, _ = store.ListAutoPublishConfigs(ctx)
	if len(configs) != 0 {
		t.Errorf("approval-gated tenant listed for auto-publish")
	}
}

func TestQueueLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.InsertQueueItem(ctx, QueueItem{
		TenantID: "t1", ContentType: "educational", Platform: "x", Text: "hello",
		GenerationContext: map[string]string{"topic": "go"},
	})
	if err != nil {
		t.Fatalf("InsertQueueItem failed: %v", err)
	}
	if item.Status != StatusPending {
		t.Fatalf("expected pending, got %s", item.Status)
	}

	// Pending items are not due for the flusher.
	due, err := store.ListDueQueueItems(ctx, testNow, 10)
	if err != nil {
		t.Fatalf("ListDueQueueItems failed: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no due items, got %d", len(due))
	}

	if err := store.ApproveQueueItem(ctx, "t2", item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign approve: expected ErrNotFound, got %v", err)
	}
	if err := store.ApproveQueueItem(ctx, "t1", item.ID); err != nil {
		t.Fatalf("ApproveQueueItem failed: %v", err)
	}
	if err := store.ApproveQueueItem(ctx, "t1", item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("re-approve: expected ErrNotFound, got %v", err)
	}

	due, _ = store.ListDueQueueItems(ctx, testNow, 10)
	if len(due) != 1 || due[0].GenerationContext["topic"] != "go" {
		t.Fatalf("expected the approved item to be due, got %+v", due)
	}

	posted, ok, err := store.MarkQueueItemPosted(ctx, item.ID, PostedContent{
		TenantID: "t1", Platform: "x", ContentType: "educational",
		PlatformPostID: "p1", Text: "hello", PostedAt: testNow,
	})
	if err != nil || !ok {
		t.Fatalf("MarkQueueItemPosted failed: ok=%v err=%v", ok, err)
	}
	if posted.QueueID == nil || *posted.QueueID != item.ID {
		t.Errorf("posted row not linked to queue item: %+v", posted)
	}

	// A second transition out of a terminal state is a no-op.
	_, ok, err = store.MarkQueueItemPosted(ctx, item.ID, PostedContent{
		TenantID: "t1", Platform: "x", PlatformPostID: "p2", Text: "hello", PostedAt: testNow,
	})
	if err != nil || ok {
		t.Errorf("second MarkQueueItemPosted: ok=%v err=%v", ok, err)
	}
	failed, err := store.MarkQueueItemFailed(ctx, item.ID, "late failure")
	if err != nil || failed {
		t.Errorf("MarkQueueItemFailed on posted item: failed=%v err=%v", failed, err)
	}

	n, _ := store.CountPostedSince(ctx, "t1", testNow.Add(-time.Hour))
	if n != 1 {
		t.Errorf("expected exactly 1 posted row, got %d", n)
	}

	// Deleting the queue item keeps the posted record.
	if err := store.DeleteQueueItem(ctx, "t1", item.ID); err != nil {
		t.Fatalf("DeleteQueueItem failed: %v", err)
	}
	list, _ := store.ListPosted(ctx, "t1", 10, 0)
	if len(list) != 1 || list[0].QueueID != nil {
		t.Errorf("expected orphaned posted row, got %+v", list)
	}
}

func TestScheduledItemsNotDueEarly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	later := testNow.Add(2 * time.Hour)
	item, err := store.InsertQueueItem(ctx, QueueItem{
		TenantID: "t1", ContentType: "promotional", Platform: "x", Text: "soon", ScheduledFor: &later,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.ApproveQueueItem(ctx, "t1", item.ID); err != nil {
		t.Fatal(err)
	}

	due, _ := store.ListDueQueueItems(ctx, testNow, 10)
	if len(due) != 0 {
		t.Errorf("item scheduled in the future reported due")
	}
	due, _ = store.ListDueQueueItems(ctx, later, 10)
	if len(due) != 1 {
		t.Errorf("item not due at its scheduled time")
	}
}

func TestClaimQueueItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, _ := store.InsertQueueItem(ctx, QueueItem{TenantID: "t1", ContentType: "x", Platform: "x", Text: "a"})
	stale := testNow.Add(-10 * time.Minute)

	ok, err := store.ClaimQueueItem(ctx, item.ID, "a", stale)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, _ = store.ClaimQueueItem(ctx, item.ID, "b", stale)
	if ok {
		t.Fatal("second claim should fail while the first is live")
	}

	if err := store.ReleaseQueueClaim(ctx, item.ID, "a"); err != nil {
		t.Fatal(err)
	}
	ok, _ = store.ClaimQueueItem(ctx, item.ID, "b", stale)
	if !ok {
		t.Fatal("claim after release should succeed")
	}

	// An abandoned claim can be taken over once stale.
	ok, _ = store.ClaimQueueItem(ctx, item.ID, "c", testNow.Add(time.Minute))
	if !ok {
		t.Error("stale claim should be taken over")
	}
}

func TestMarkFailedOnlyFromApproved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, _ := store.InsertQueueItem(ctx, QueueItem{TenantID: "t1", ContentType: "x", Platform: "x", Text: "a"})
	failed, err := store.MarkQueueItemFailed(ctx, item.ID, "nope")
	if err != nil || failed {
		t.Fatalf("pending item should not fail: failed=%v err=%v", failed, err)
	}
	store.ApproveQueueItem(ctx, "t1", item.ID)
	failed, err = store.MarkQueueItemFailed(ctx, item.ID, "platform rejected")
	if err != nil || !failed {
		t.Fatalf("approved item should fail: failed=%v err=%v", failed, err)
	}
	got, _ := store.GetQueueItem(ctx, "t1", item.ID)
	if got.Status != StatusFailed || got.LastError != "platform rejected" {
		t.Errorf("unexpected item: %+v", got)
	}
	counts, _ := store.CountQueueByStatus(ctx, "t1")
	if counts[StatusFailed] != 1 || counts[StatusPending] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestEngagementMetrics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _ := store.InsertPostedContent(ctx, PostedContent{TenantID: "t1", Platform: "x", ContentType: "educational",
		PlatformPostID: "1", Text: "a", PostedAt: testNow.Add(-time.Hour)})
	b, _ := store.InsertPostedContent(ctx, PostedContent{TenantID: "t1", Platform: "x", ContentType: "promotional",
		PlatformPostID: "2", Text: "b", PostedAt: testNow})

	if err := store.UpsertEngagementMetric(ctx, EngagementMetric{PostedID: a.ID, Likes: 1, Impressions: 100,
		EngagementRate: 0.01, FetchedAt: testNow}); err != nil {
		t.Fatalf("UpsertEngagementMetric failed: %v", err)
	}
	// Re-collection replaces the snapshot.
	if err := store.UpsertEngagementMetric(ctx, EngagementMetric{PostedID: a.ID, Likes: 5, Reposts: 3, Replies: 2,
		Impressions: 100, EngagementRate: 0.1, FetchedAt: testNow}); err != nil {
		t.Fatal(err)
	}
	store.UpsertEngagementMetric(ctx, EngagementMetric{PostedID: b.ID, Likes: 1, Impressions: 100,
		EngagementRate: 0.01, FetchedAt: testNow})

	m, err := store.GetEngagementMetric(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetEngagementMetric failed: %v", err)
	}
	if m.Likes != 5 {
		t.Errorf("expected replaced snapshot, got %+v", m)
	}

	top, err := store.TopPerformers(ctx, "t1", 1)
	if err != nil {
		t.Fatalf("TopPerformers failed: %v", err)
	}
	if len(top) != 1 || top[0].Posted.ID != a.ID {
		t.Errorf("unexpected top performer: %+v", top)
	}

	byType, err := store.EngagementByContentType(ctx, "t1")
	if err != nil {
		t.Fatalf("EngagementByContentType failed: %v", err)
	}
	if len(byType) != 2 || byType[0].ContentType != "educational" {
		t.Errorf("unexpected per-type stats: %+v", byType)
	}

	since, _ := store.ListPostedSince(ctx, testNow.Add(-30*time.Minute))
	if len(since) != 1 || since[0].ID != b.ID {
		t.Errorf("ListPostedSince returned %+v", since)
	}
}

func TestCredentials(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetCredential(ctx, "t1", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	store.UpsertCredential(ctx, PlatformCredential{TenantID: "t1", Platform: "x", AccessToken: "tok", Enabled: true})
	store.UpsertCredential(ctx, PlatformCredential{TenantID: "t1", Platform: "linkedin", AccessToken: "li", Enabled: false})

	platforms, err := store.EnabledPlatforms(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(platforms) != 1 || platforms[0] != "x" {
		t.Errorf("unexpected enabled platforms: %v", platforms)
	}

	if err := store.SetCredentialEnabled(ctx, "t1", "linkedin", true); err != nil {
		t.Fatal(err)
	}
	platforms, _ = store.EnabledPlatforms(ctx, "t1")
	if len(platforms) != 2 {
		t.Errorf("expected 2 enabled platforms, got %v", platforms)
	}

	if err := store.DeleteCredential(ctx, "t1", "x"); err != nil {
		t.Fatal(err)
	}
	creds, _ := store.ListCredentials(ctx, "t1")
	if len(creds) != 1 {
		t.Errorf("expected 1 credential left, got %d", len(creds))
	}
}

func TestLeases(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.TryAcquireLease(ctx, "flush", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := store.TryAcquireLease(ctx, "flush", "a", time.Minute); ok {
		t.Error("lease must not be re-entered by its holder")
	}
	if ok, _ := store.TryAcquireLease(ctx, "flush", "b", time.Minute); ok {
		t.Error("live lease taken by another owner")
	}

	// Expiry frees the lease.
	store.SetClock(func() time.Time { return testNow.Add(2 * time.Minute) })
	if ok, _ := store.TryAcquireLease(ctx, "flush", "b", time.Minute); !ok {
		t.Error("expired lease could not be taken")
	}

	// Releasing someone else's lease does nothing.
	store.ReleaseLease(ctx, "flush", "a")
	if ok, _ := store.TryAcquireLease(ctx, "flush", "c", time.Minute); ok {
		t.Error("lease released by non-owner")
	}
	store.ReleaseLease(ctx, "flush", "b")
	if ok, _ := store.TryAcquireLease(ctx, "flush", "c", time.Minute); !ok {
		t.Error("lease not freed by owner release")
	}
}

func TestLogsAndPrompts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AppendLog(ctx, LogEntry{TenantID: "t1", ActionType: "generate", Status: "success",
		Details: map[string]string{"queue_id": "1"}})
	store.AppendLog(ctx, LogEntry{TenantID: "t1", ActionType: "post", Status: "failure", ErrorMessage: "boom",
		CreatedAt: testNow.Add(time.Second)})

	logs, err := store.ListLogs(ctx, "t1", 10, 0)
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	if len(logs) != 2 || logs[0].ActionType != "post" || logs[0].ErrorMessage != "boom" {
		t.Errorf("unexpected logs: %+v", logs)
	}
	n, _ := store.CountLogsSince(ctx, "t1", "post", "failure", testNow)
	if n != 1 {
		t.Errorf("expected 1 failure log, got %d", n)
	}

	p, err := store.GetPromptOverride(ctx, "t1", "educational")
	if err != nil || p != nil {
		t.Fatalf("expected no override, got %+v (%v)", p, err)
	}
	temp := 0.2
	store.SetPromptOverride(ctx, PromptOverride{TenantID: "t1", ContentType: "educational", Template: "custom", Temperature: &temp})
	p, _ = store.GetPromptOverride(ctx, "t1", "educational")
	if p == nil || p.Template != "custom" || *p.Temperature != 0.2 {
		t.Errorf("unexpected override: %+v", p)
	}
	store.DeletePromptOverride(ctx, "t1", "educational")
	p, _ = store.GetPromptOverride(ctx, "t1", "educational")
	if p != nil {
		t.Error("override not deleted")
	}
}

func TestDashboard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.UpsertKnowledge(ctx, KnowledgeEntry{TenantID: "t1", Category: "c", Key: "k", Value: "v", Active: true})
	store.InsertQueueItem(ctx, QueueItem{TenantID: "t1", ContentType: "x", Platform: "x", Text: "a"})
	store.InsertPostedContent(ctx, PostedContent{TenantID: "t1", Platform: "x", PlatformPostID: "1", Text: "a",
		PostedAt: testNow.Add(-2 * time.Hour)})
	store.InsertPostedContent(ctx, PostedContent{TenantID: "t1", Platform: "x", PlatformPostID: "2", Text: "b",
		PostedAt: testNow.Add(-3 * 24 * time.Hour)})

	d, err := store.GetDashboard(ctx, "t1", testNow)
	if err != nil {
		t.Fatalf("GetDashboard failed: %v", err)
	}
	if d.Queue[StatusPending] != 1 || d.PostedToday != 1 || d.PostedWeek != 2 || d.KnowledgeEntries != 1 {
		t.Errorf("unexpected dashboard: %+v", d)
	}
}
