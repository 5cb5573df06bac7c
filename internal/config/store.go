package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jedarden/llm-router/pkg/models"
)

// Snapshot is one immutable parsed config plus artifacts derived from it.
// Requests hold a snapshot for their whole lifetime; reloads never mutate
// one in place.
type Snapshot struct {
	Config   *Config
	Raw      []byte
	LoadedAt time.Time

	modelsOnce sync.Once
	modelList  []ModelEntry
}

// ModelEntry is one row of the model listing derived from a snapshot.
type ModelEntry struct {
	ID          string
	DisplayName string
	OwnedBy     string
	Formats     []models.Dialect
}

// SupportsFormat reports whether the entry serves the given dialect.
func (e ModelEntry) SupportsFormat(d models.Dialect) bool {
	for _, f := range e.Formats {
		if f == d {
			return true
		}
	}
	return false
}

// ModelEntries returns the models and aliases this snapshot exposes,
// built once per snapshot. Provider models come first in config order;
// aliases follow sorted by name.
func (s *Snapshot) ModelEntries() []ModelEntry {
	s.modelsOnce.Do(func() {
		cfg := s.Config
		for i := range cfg.Providers {
			p := &cfg.Providers[i]
			if !p.IsEnabled() {
				continue
			}
			for j := range p.Models {
				m := &p.Models[j]
				if !m.IsEnabled() {
					continue
				}
				name := m.Name
				if name == "" {
					name = m.ID
				}
				s.modelList = append(s.modelList, ModelEntry{
					ID:          p.ID + "/" + m.ID,
					DisplayName: name,
					OwnedBy:     p.ID,
					Formats:     m.SupportedFormats(p),
				})
			}
		}
		aliasIDs := make([]string, 0, len(cfg.ModelAliases))
		for id := range cfg.ModelAliases {
			aliasIDs = append(aliasIDs, id)
		}
		sort.Strings(aliasIDs)
		for _, id := range aliasIDs {
			s.modelList = append(s.modelList, ModelEntry{
				ID:          id,
				DisplayName: id,
				OwnedBy:     "router",
				Formats:     aliasFormats(cfg, cfg.ModelAliases[id]),
			})
		}
	})
	return s.modelList
}

// aliasFormats unions the dialects served by an alias's resolvable targets.
func aliasFormats(cfg *Config, alias ModelAlias) []models.Dialect {
	seen := make(map[models.Dialect]bool)
	var out []models.Dialect
	collect := func(targets []AliasTarget) {
		for _, t := range targets {
			providerID, modelID, ok := strings.Cut(t.Model, "/")
			if !ok {
				continue
			}
			p := cfg.ProviderByID(providerID)
			if p == nil || !p.IsEnabled() {
				continue
			}
			m := p.FindModel(modelID)
			if m == nil || !m.IsEnabled() {
				continue
			}
			for _, f := range m.SupportedFormats(p) {
				if !seen[f] {
					seen[f] = true
					out = append(out, f)
				}
			}
		}
	}
	collect(alias.Targets)
	collect(alias.FallbackTargets)
	return out
}

// Store holds the active snapshot. Readers get a consistent snapshot;
// the watcher swaps in a replacement atomically.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns a store seeded with the given snapshot.
func NewStore(snap *Snapshot) *Store {
	s := &Store{}
	s.current.Store(snap)
	return s
}

// Snapshot returns the active snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Swap installs a new snapshot.
func (s *Store) Swap(snap *Snapshot) {
	s.current.Store(snap)
}

// Loader produces snapshots from a file path or an inline JSON document.
// The previous snapshot is reused when the raw bytes are unchanged, so
// derived artifacts (parsed config, model list) are built once per edit.
type Loader struct {
	Path       string
	InlineJSON string

	mu   sync.Mutex
	raw  []byte
	snap *Snapshot
}

// Load reads, parses, and caches the config source. When parsing upgraded
// the document version, the migrated JSON is written back to the file
// best-effort (never for YAML sources, which would change representation).
func (l *Loader) Load() (*Snapshot, error) {
	var raw []byte
	switch {
	case l.InlineJSON != "":
		raw = []byte(l.InlineJSON)
	case l.Path != "":
		b, err := os.ReadFile(l.Path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("no config source: set LLM_ROUTER_CONFIG or LLM_ROUTER_CONFIG_JSON")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snap != nil && bytes.Equal(l.raw, raw) {
		return l.snap, nil
	}

	cfg, migrated, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Config: cfg, Raw: migrated, LoadedAt: time.Now()}

	if l.Path != "" && l.InlineJSON == "" && isJSONDoc(raw) && !bytes.Equal(raw, migrated) {
		_ = os.WriteFile(l.Path, migrated, 0600)
	}

	l.raw = raw
	l.snap = snap
	return snap, nil
}
