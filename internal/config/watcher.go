package config

import (
	"context"
	"log"
	"os"
	"time"
)

// Watcher polls the config file's modification time and swaps a freshly
// loaded snapshot into the store when it moves. Poll-based rather than
// inotify: the config may live on filesystems where watch events are
// unreliable, and the file changes rarely.
type Watcher struct {
	loader   *Loader
	store    *Store
	interval time.Duration
	lastMod  time.Time
}

// StartWatcher begins polling in the background and returns immediately.
// Polling stops when ctx is done. A zero interval or a non-file source
// disables the watcher.
func StartWatcher(ctx context.Context, loader *Loader, store *Store, interval time.Duration) {
	if interval <= 0 || loader.Path == "" || loader.InlineJSON != "" {
		return
	}
	w := &Watcher{loader: loader, store: store, interval: interval}
	if info, err := os.Stat(loader.Path); err == nil {
		w.lastMod = info.ModTime()
	}
	go w.watch(ctx)
}

func (w *Watcher) watch(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll reloads when the file's mtime moved. A load failure keeps the
// previous snapshot serving.
func (w *Watcher) poll() {
	info, err := os.Stat(w.loader.Path)
	if err != nil {
		log.Printf("[llm-router] config watcher: stat %s: %v", w.loader.Path, err)
		return
	}
	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	snap, err := w.loader.Load()
	if err != nil {
		log.Printf("[llm-router] config reload failed, keeping previous config: %v", err)
		return
	}
	if snap == w.store.Snapshot() {
		return
	}
	w.store.Swap(snap)
	log.Printf("[llm-router] config reloaded: %d providers, %d aliases",
		len(snap.Config.Providers), len(snap.Config.ModelAliases))
}
