package config

import (
	"errors"
	"strings"
	"sync"

	"github.com/jedarden/llm-router/pkg/models"
)

// ErrBadModelRef is returned when the requested model is not in the
// provider/model form. The text is surfaced verbatim to clients.
var ErrBadModelRef = errors.New("Model must use the 'provider/model' convention.")

// NotFoundError reports a model reference that did not resolve.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string { return e.Ref + " not found" }

// Candidate is one (provider, model, dialect) tuple the dispatcher may call
// for a request.
type Candidate struct {
	ProviderID     string
	ModelID        string
	Backend        string
	TargetFormat   models.Dialect
	RequestModelID string
	Provider       *Provider
}

// Key identifies the candidate in circuit-breaker state.
func (c Candidate) Key() string {
	return c.RequestModelID + "@" + string(c.TargetFormat)
}

// Resolution is the outcome of resolving a requested model string.
type Resolution struct {
	Primary       Candidate
	Fallbacks     []Candidate
	ResolvedModel string
}

// Candidates returns the primary followed by the fallbacks.
func (r *Resolution) Candidates() []Candidate {
	out := make([]Candidate, 0, 1+len(r.Fallbacks))
	out = append(out, r.Primary)
	return append(out, r.Fallbacks...)
}

// Resolver resolves requested model strings against a config snapshot. Its
// per-alias rotation counters are process-scoped and survive config reloads.
type Resolver struct {
	mu sync.Mutex
	rr map[string]uint64
}

// NewResolver returns a resolver with fresh rotation state.
func NewResolver() *Resolver {
	return &Resolver{rr: make(map[string]uint64)}
}

// Resolve maps a requested model to a primary candidate plus ordered
// fallbacks. Empty and "smart" requests use the configured default model.
// Alias names resolve through the alias's strategy; anything else must be a
// "provider/model" reference.
func (r *Resolver) Resolve(cfg *Config, requestedModel string, source models.Dialect) (*Resolution, error) {
	requested := strings.TrimSpace(requestedModel)
	if requested == "" || requested == "smart" {
		if cfg.DefaultModel != "" {
			requested = cfg.DefaultModel
		} else {
			requested = "smart"
		}
	}

	if alias, ok := cfg.ModelAliases[requested]; ok {
		return r.resolveAlias(cfg, requested, alias, source)
	}

	providerID, modelID, ok := strings.Cut(requested, "/")
	if !ok || providerID == "" || modelID == "" {
		return nil, ErrBadModelRef
	}
	primary, model, err := buildCandidate(cfg, providerID, modelID, source)
	if err != nil {
		return nil, err
	}

	res := &Resolution{Primary: *primary, ResolvedModel: primary.RequestModelID}
	seen := map[string]bool{primary.ProviderID + "/" + primary.ModelID: true}
	for _, ref := range model.FallbackModels {
		fbProvider, fbModel, ok := strings.Cut(ref, "/")
		if !ok || fbProvider == "" || fbModel == "" {
			continue
		}
		cand, _, err := buildCandidate(cfg, fbProvider, fbModel, source)
		if err != nil {
			continue
		}
		pair := cand.ProviderID + "/" + cand.ModelID
		if seen[pair] {
			continue
		}
		seen[pair] = true
		res.Fallbacks = append(res.Fallbacks, *cand)
	}
	return res, nil
}

// resolveAlias builds the chain for a virtual model: the strategy's pick
// first, the remaining targets in declared order, then the fallback targets.
// Targets that do not resolve are skipped; duplicates collapse.
func (r *Resolver) resolveAlias(cfg *Config, id string, alias ModelAlias, source models.Dialect) (*Resolution, error) {
	res := &Resolution{}
	seen := make(map[string]bool)
	for _, t := range orderedTargets(alias, r.next(id)) {
		providerID, modelID, ok := strings.Cut(t.Model, "/")
		if !ok || providerID == "" || modelID == "" {
			continue
		}
		cand, _, err := buildCandidate(cfg, providerID, modelID, source)
		if err != nil {
			continue
		}
		pair := cand.ProviderID + "/" + cand.ModelID
		if seen[pair] {
			continue
		}
		seen[pair] = true
		if res.ResolvedModel == "" {
			res.Primary = *cand
			res.ResolvedModel = cand.RequestModelID
		} else {
			res.Fallbacks = append(res.Fallbacks, *cand)
		}
	}
	if res.ResolvedModel == "" {
		return nil, &NotFoundError{Ref: id}
	}
	return res, nil
}

// next advances the rotation counter for an alias.
func (r *Resolver) next(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.rr[id]
	r.rr[id] = n + 1
	return n
}

// orderedTargets rotates the target list per the alias strategy. The ordered
// and auto strategies keep the declared order; round-robin rotates the first
// pick; the weighted strategies walk cumulative weights with the counter so
// picks land proportionally without randomness.
func orderedTargets(alias ModelAlias, tick uint64) []AliasTarget {
	targets := alias.Targets
	if len(targets) == 0 {
		return alias.FallbackTargets
	}
	first := 0
	switch alias.Strategy {
	case StrategyRoundRobin:
		first = int(tick % uint64(len(targets)))
	case StrategyWeightedRR, StrategyQuotaAwareWeightedRR:
		first = weightedIndex(targets, tick)
	}
	out := make([]AliasTarget, 0, len(targets)+len(alias.FallbackTargets))
	out = append(out, targets[first])
	for i, t := range targets {
		if i != first {
			out = append(out, t)
		}
	}
	return append(out, alias.FallbackTargets...)
}

// weightedIndex maps the rotation counter onto the cumulative weight line.
func weightedIndex(targets []AliasTarget, tick uint64) int {
	total := 0
	for _, t := range targets {
		total += weightOf(t)
	}
	if total <= 0 {
		return 0
	}
	slot := int(tick % uint64(total))
	for i, t := range targets {
		slot -= weightOf(t)
		if slot < 0 {
			return i
		}
	}
	return 0
}

// weightOf treats missing or non-positive weights as 1.
func weightOf(t AliasTarget) int {
	if t.Weight < 1 {
		return 1
	}
	return t.Weight
}

// buildCandidate resolves one provider/model pair, returning the candidate
// and the underlying model entry for fallback expansion.
func buildCandidate(cfg *Config, providerID, modelID string, source models.Dialect) (*Candidate, *Model, error) {
	p := cfg.ProviderByID(providerID)
	if p == nil || !p.IsEnabled() {
		return nil, nil, &NotFoundError{Ref: providerID + "/" + modelID}
	}
	m := p.FindModel(modelID)
	if m == nil || !m.IsEnabled() {
		return nil, nil, &NotFoundError{Ref: providerID + "/" + modelID}
	}
	formats := m.SupportedFormats(p)
	if len(formats) == 0 {
		return nil, nil, &NotFoundError{Ref: providerID + "/" + modelID}
	}
	cand := &Candidate{
		ProviderID:     p.ID,
		ModelID:        m.ID,
		Backend:        m.ID,
		TargetFormat:   pickTargetFormat(p, formats, source),
		RequestModelID: p.ID + "/" + m.ID,
		Provider:       p,
	}
	return cand, m, nil
}

// pickTargetFormat prefers the source dialect, then the sole supported
// dialect, then the provider's preference, then openai.
func pickTargetFormat(p *Provider, formats []models.Dialect, source models.Dialect) models.Dialect {
	for _, f := range formats {
		if f == source {
			return source
		}
	}
	if len(formats) == 1 {
		return formats[0]
	}
	if preferred := p.PreferredFormat(); preferred != "" {
		for _, f := range formats {
			if f == preferred {
				return preferred
			}
		}
	}
	return models.DialectOpenAI
}
