package engagement

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/platform"
	"github.com/matthewjhunter/crier/internal/platform/platformtest"
	"github.com/matthewjhunter/crier/internal/storage"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, adapters ...platform.Adapter) (*storage.Store, *Collector) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	store.SetClock(func() time.Time { return testNow })

	c := NewCollector(store, platform.NewRegistry(adapters...), nil, time.Second, 0, logging.Discard())
	c.SetClock(func() time.Time { return testNow })
	return store, c
}

// post records a post and makes sure the tenant has an enabled credential
// for its platform.
func post(t *testing.T, store *storage.Store, tenant, plat, postID string, at time.Time) *storage.PostedContent {
	t.Helper()
	p := postDisconnected(t, store, tenant, plat, postID, at)
	err := store.UpsertCredential(context.Background(), storage.PlatformCredential{
		TenantID: tenant, Platform: plat, AccessToken: "tok", Enabled: true,
	})
	if err != nil {
		t.Fatalf("UpsertCredential failed: %v", err)
	}
	return p
}

func postDisconnected(t *testing.T, store *storage.Store, tenant, plat, postID string, at time.Time) *storage.PostedContent {
	t.Helper()
	p, err := store.InsertPostedContent(context.Background(), storage.PostedContent{
		TenantID: tenant, Platform: plat, ContentType: "educational",
		PlatformPostID: postID, Text: "hello", PostedAt: at,
	})
	if err != nil {
		t.Fatalf("InsertPostedContent failed: %v", err)
	}
	return p
}

func countMetrics(t *testing.T, store *storage.Store, postedID int64) int {
	t.Helper()
	var n int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM engagement_metrics WHERE posted_id = ?`, postedID).Scan(&n); err != nil {
		t.Fatalf("count metrics: %v", err)
	}
	return n
}

func TestRate(t *testing.T) {
	tests := []struct {
		name string
		m    platform.Metrics
		want float64
	}{
		{"zero impressions", platform.Metrics{Likes: 5, Reposts: 2, Replies: 1}, 0},
		{"normal", platform.Metrics{Likes: 5, Reposts: 3, Replies: 2, Impressions: 100}, 0.1},
		{"nothing", platform.Metrics{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Rate(tt.m); got != tt.want {
				t.Errorf("Rate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollectUpsertsOnce(t *testing.T) {
	x := platformtest.New("x")
	store, c := setup(t, x)
	ctx := context.Background()

	p := post(t, store, "t1", "x", "x-1", testNow.Add(-time.Hour))
	x.SetMetrics("x-1", &platform.Metrics{Likes: 4, Reposts: 1, Replies: 0, Impressions: 50})

	for i := 0; i < 3; i++ {
		res, err := c.Collect(ctx)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if res.Updated != 1 {
			t.Fatalf("cycle %d: expected 1 update, got %+v", i, res)
		}
	}
	if n := countMetrics(t, store, p.ID); n != 1 {
		t.Errorf("expected exactly one metric row, got %d", n)
	}

	m, err := store.GetEngagementMetric(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetEngagementMetric failed: %v", err)
	}
	if m.EngagementRate != 0.1 || m.Likes != 4 {
		t.Errorf("unexpected metric: %+v", m)
	}
}

func TestCollectZeroImpressions(t *testing.T) {
	x := platformtest.New("x")
	store, c := setup(t, x)
	ctx := context.Background()

	p := post(t, store, "t1", "x", "x-1", testNow.Add(-time.Hour))
	x.SetMetrics("x-1", &platform.Metrics{Likes: 3, Replies: 1})

	if _, err := c.Collect(ctx); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	m, err := store.GetEngagementMetric(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetEngagementMetric failed: %v", err)
	}
	if m.EngagementRate != 0 {
		t.Errorf("expected rate 0, got %v", m.EngagementRate)
	}
}

func TestCollectSkipsUnavailableAndUnsupported(t *testing.T) {
	x := platformtest.New("x")
	li := platformtest.New("linkedin")
	li.NoMetrics = true
	store, c := setup(t, x, li)
	ctx := context.Background()

	// No metrics yet for this one.
	p1 := post(t, store, "t1", "x", "x-1", testNow.Add(-time.Hour))
	post(t, store, "t1", "linkedin", "li-1", testNow.Add(-time.Hour))
	// Outside the window.
	post(t, store, "t1", "x", "x-old", testNow.Add(-8*24*time.Hour))
	// No adapter registered.
	post(t, store, "t1", "youtube", "yt-1", testNow.Add(-time.Hour))

	res, err := c.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if res.Considered != 3 || res.Unavailable != 1 || res.Unsupported != 2 || res.Updated != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(li.Fetched) != 0 {
		t.Errorf("platform without metrics was queried: %v", li.Fetched)
	}
	for _, id := range x.Fetched {
		if id == "x-old" {
			t.Error("post outside the window was queried")
		}
	}
	if n := countMetrics(t, store, p1.ID); n != 0 {
		t.Errorf("unavailable metrics stored a row")
	}
}

func TestCollectSkipsDisconnectedPlatforms(t *testing.T) {
	x := platformtest.New("x")
	m := platformtest.New("mastodon")
	store, c := setup(t, x, m)
	ctx := context.Background()

	// t1 never connected x; t2 connected mastodon and then disabled it.
	postDisconnected(t, store, "t1", "x", "x-1", testNow.Add(-time.Hour))
	post(t, store, "t2", "mastodon", "m-1", testNow.Add(-time.Hour))
	err := store.UpsertCredential(ctx, storage.PlatformCredential{
		TenantID: "t2", Platform: "mastodon", AccessToken: "tok", Enabled: false,
	})
	if err != nil {
		t.Fatalf("UpsertCredential failed: %v", err)
	}
	// t2 still has x connected.
	live := post(t, store, "t2", "x", "x-2", testNow.Add(-time.Hour))
	x.SetMetrics("x-2", &platform.Metrics{Likes: 2, Impressions: 20})

	res, err := c.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if res.Disconnected != 2 || res.Updated != 1 || res.Failed != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(m.Fetched) != 0 || len(x.Fetched) != 1 {
		t.Errorf("disconnected platforms were queried: x=%v mastodon=%v", x.Fetched, m.Fetched)
	}
	if n := countMetrics(t, store, live.ID); n != 1 {
		t.Error("connected post not collected")
	}
	for _, tenant := range []string{"t1", "t2"} {
		logs, err := store.ListLogs(ctx, tenant, 10, 0)
		if err != nil {
			t.Fatalf("ListLogs failed: %v", err)
		}
		if len(logs) != 0 {
			t.Errorf("%s: disconnected posts wrote failure logs: %+v", tenant, logs)
		}
	}
}

type panicky struct{ platform.Adapter }

func (panicky) FetchEngagement(context.Context, string, string) (*platform.Metrics, error) {
	panic("boom")
}

func TestCollectIsolatesFailures(t *testing.T) {
	x := platformtest.New("x")
	x.MetricsErr = errors.New("rate limited")
	m := platformtest.New("mastodon")
	bad := panicky{platformtest.New("bad")}
	store, c := setup(t, x, m, bad)
	ctx := context.Background()

	post(t, store, "t1", "x", "x-1", testNow.Add(-2*time.Hour))
	post(t, store, "t1", "bad", "bad-1", testNow.Add(-90*time.Minute))
	ok := post(t, store, "t2", "mastodon", "m-1", testNow.Add(-time.Hour))
	m.SetMetrics("m-1", &platform.Metrics{Likes: 1, Impressions: 0})

	res, err := c.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if res.Failed != 2 || res.Updated != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if n := countMetrics(t, store, ok.ID); n != 1 {
		t.Error("healthy post not collected after earlier failures")
	}
	logs, err := store.ListLogs(ctx, "t1", 10, 0)
	if err != nil {
		t.Fatalf("ListLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 failure logs, got %d", len(logs))
	}
	for _, l := range logs {
		if l.ActionType != storage.ActionEngagementFetch || l.Status != storage.LogFailed {
			t.Errorf("unexpected log: %+v", l)
		}
	}
}

func TestLedgerReport(t *testing.T) {
	x := platformtest.New("x")
	store, c := setup(t, x)
	ctx := context.Background()

	post(t, store, "t1", "x", "x-1", testNow.Add(-3*time.Hour))
	best := post(t, store, "t1", "x", "x-2", testNow.Add(-2*time.Hour))
	x.SetMetrics("x-1", &platform.Metrics{Likes: 1, Impressions: 100})
	x.SetMetrics("x-2", &platform.Metrics{Likes: 10, Impressions: 100})
	if _, err := c.Collect(ctx); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	report, err := NewLedger(store).Report(ctx, "t1", 5)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if len(report.TopPerformers) != 2 || report.TopPerformers[0].Posted.ID != best.ID {
		t.Errorf("unexpected top performers: %+v", report.TopPerformers)
	}
	if len(report.ByContentType) != 1 || report.ByContentType[0].Posts != 2 {
		t.Errorf("unexpected by-type: %+v", report.ByContentType)
	}
	if report.AverageRate < 0.054 || report.AverageRate > 0.056 {
		t.Errorf("unexpected average: %v", report.AverageRate)
	}
}
