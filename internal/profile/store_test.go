package profile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/patrickjm/staffcount/internal/browser"
)

func TestStoreUpsertLoad(t *testing.T) {
	dir := t.TempDir()
	store := Store{Root: dir, DefaultTTL: time.Hour}
	p, created, err := store.Upsert("Night Shift", Overrides{StartURL: "https://rota.example/schedule"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !created {
		t.Fatalf("expected created")
	}
	if p.Name != "night-shift" {
		t.Fatalf("expected sanitized name, got %s", p.Name)
	}
	if p.Engine != browser.EnginePlaywright || p.Headless {
		t.Fatalf("unexpected defaults: %s", p)
	}
	loaded, err := store.Load("night-shift")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.StartURL != "https://rota.example/schedule" {
		t.Fatalf("start url not persisted: %q", loaded.StartURL)
	}
	if _, err := store.Load("missing"); err == nil {
		t.Fatalf("expected error for missing profile")
	}
	if path := store.ProfilePath("night-shift"); filepath.Base(path) != "profile.json" {
		t.Fatalf("unexpected profile path: %s", path)
	}
}

func TestStoreUpsertOverrides(t *testing.T) {
	store := Store{Root: t.TempDir(), DefaultTTL: time.Hour}
	if _, _, err := store.Upsert("ward", Overrides{}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	headless := true
	p, created, err := store.Upsert("ward", Overrides{Engine: browser.EngineRod, Headless: &headless})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created {
		t.Fatalf("expected existing profile")
	}
	if p.Engine != browser.EngineRod || !p.Headless {
		t.Fatalf("overrides not applied: %s", p)
	}
	if _, _, err := store.Upsert("ward", Overrides{Engine: "selenium"}); err == nil {
		t.Fatalf("expected unknown engine error")
	}
}

func TestStoreExpiry(t *testing.T) {
	dir := t.TempDir()
	store := Store{Root: dir, DefaultTTL: time.Second}
	p, _, err := store.Upsert("expiring", Overrides{})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p.LastUsed = time.Now().Add(-2 * time.Second)
	if err := store.Save(p); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.Load("expiring")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !store.IsExpired(loaded) {
		t.Fatalf("expected expired")
	}
	removed, err := store.Prune()
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected 1 removed, got %d", len(removed))
	}
}
