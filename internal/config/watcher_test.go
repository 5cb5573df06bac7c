package config

import (
	"os"
	"testing"
	"time"
)

func TestWatcher_Poll(t *testing.T) {
	path := writeConfigFile(t, testConfigJSON)
	loader := &Loader{Path: path}
	snap, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	store := NewStore(snap)

	w := &Watcher{loader: loader, store: store, interval: time.Second}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}

	t.Run("unchanged mtime keeps the snapshot", func(t *testing.T) {
		w.poll()
		if store.Snapshot() != snap {
			t.Error("poll without a change should not swap")
		}
	})

	t.Run("changed file swaps the snapshot", func(t *testing.T) {
		changed := `{"version": 2, "providers": [
		  {"id": "other", "baseUrl": "https://other.test", "models": [{"id": "m"}]}
		]}`
		if err := os.WriteFile(path, []byte(changed), 0600); err != nil {
			t.Fatalf("rewrite: %v", err)
		}
		later := w.lastMod.Add(2 * time.Second)
		if err := os.Chtimes(path, later, later); err != nil {
			t.Fatalf("chtimes: %v", err)
		}

		w.poll()
		got := store.Snapshot()
		if got == snap {
			t.Fatal("poll should swap in the new snapshot")
		}
		if got.Config.ProviderByID("other") == nil {
			t.Error("new snapshot should carry the rewritten config")
		}
	})

	t.Run("broken config keeps the previous snapshot", func(t *testing.T) {
		current := store.Snapshot()
		if err := os.WriteFile(path, []byte(`{"version": 2, "providers": [{"id": "BAD ID"}]}`), 0600); err != nil {
			t.Fatalf("rewrite: %v", err)
		}
		later := w.lastMod.Add(2 * time.Second)
		if err := os.Chtimes(path, later, later); err != nil {
			t.Fatalf("chtimes: %v", err)
		}

		w.poll()
		if store.Snapshot() != current {
			t.Error("a failing reload should keep the old snapshot serving")
		}
	})
}
