package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, logging.Discard()), store
}

func TestGetContextSeedsEmptyTenant(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	text, err := svc.GetContext(ctx, "t1")
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if !strings.Contains(text, "## Brand") || !strings.Contains(text, "- voice:") {
		t.Errorf("context missing default brand section:\n%s", text)
	}

	n, _ := store.CountKnowledge(ctx, "t1")
	if n != len(Defaults()) {
		t.Errorf("expected %d seeded entries, got %d", len(Defaults()), n)
	}

	// Seeding twice never duplicates.
	if _, err := svc.GetContext(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	if added, _ := store.SeedKnowledge(ctx, "t1", Defaults()); added != 0 {
		t.Errorf("re-seed added %d rows", added)
	}
	n, _ = store.CountKnowledge(ctx, "t1")
	if n != len(Defaults()) {
		t.Errorf("expected %d entries after re-seed, got %d", len(Defaults()), n)
	}
}

func TestGetContextOrdering(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	for _, e := range []storage.KnowledgeEntry{
		{TenantID: "t1", Category: "product", Key: "b", Value: "second", Priority: 5, Active: true},
		{TenantID: "t1", Category: "product", Key: "a", Value: "first", Priority: 5, Active: true},
		{TenantID: "t1", Category: "team", Key: "lead", Value: "top", Priority: 9, Active: true},
		{TenantID: "t1", Category: "team", Key: "hidden", Value: "off", Priority: 9, Active: false},
	} {
		if _, err := store.UpsertKnowledge(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	text, err := svc.GetContext(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	want := "## Team\n- lead: top\n\n## Product\n- a: first\n- b: second\n"
	if text != want {
		t.Errorf("unexpected context:\n%q\nwant:\n%q", text, want)
	}
}

func TestReset(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	store.UpsertKnowledge(ctx, storage.KnowledgeEntry{TenantID: "t1", Category: "x", Key: "y", Value: "z", Active: true})
	n, err := svc.Reset(ctx, "t1")
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if n != len(Defaults()) {
		t.Errorf("expected %d entries after reset, got %d", len(Defaults()), n)
	}
	entries, _ := store.ListKnowledge(ctx, "t1", false)
	for _, e := range entries {
		if e.Category == "x" {
			t.Error("custom entry survived reset")
		}
	}
}

func TestParseFormats(t *testing.T) {
	cases := map[string]string{
		"json":        `[{"category":"product","key":"name","value":"Crier","priority":3}]`,
		"json-object": `{"entries":[{"category":"product","key":"name","value":"Crier","priority":3}]}`,
		"yaml":        "entries:\n  - category: product\n    key: name\n    value: Crier\n    priority: 3\n",
		"toml":        "[[entries]]\ncategory = \"product\"\nkey = \"name\"\nvalue = \"Crier\"\npriority = 3\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			format := strings.TrimSuffix(name, "-object")
			entries, err := Parse([]byte(data), format)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if len(entries) != 1 || entries[0].Value != "Crier" || entries[0].Priority != 3 {
				t.Errorf("unexpected entries: %+v", entries)
			}
		})
	}

	if _, err := Parse([]byte("x"), "ini"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestImport(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "facts.yaml")
	data := "entries:\n  - category: product\n    key: name\n    value: Crier\n  - category: product\n    key: legacy\n    value: old\n    active: false\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	entries, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	n, err := svc.Import(ctx, "t1", entries)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 imported, got %d", n)
	}
	active, _ := store.ListKnowledge(ctx, "t1", true)
	if len(active) != 1 {
		t.Errorf("expected 1 active entry, got %d", len(active))
	}

	_, err = svc.Import(ctx, "t1", []Entry{{Category: "product", Key: ""}})
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
}
