package proxy

import (
	"sort"
	"sync"
	"time"

	"github.com/jedarden/llm-router/internal/config"
)

// circuitState tracks one candidate's recent failures.
type circuitState struct {
	consecutiveRetryableFailures int
	openUntil                    time.Time
}

// CircuitBreaker holds per-candidate soft state. Keys are candidate keys
// ("providerId/modelId@format"); the state lives for the process lifetime
// and is never persisted.
type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*circuitState
	threshold int
	cooldown  time.Duration

	now func() time.Time
}

// NewCircuitBreaker returns a breaker that opens a candidate after
// threshold consecutive retryable failures, for cooldownMs.
func NewCircuitBreaker(threshold, cooldownMs int) *CircuitBreaker {
	return &CircuitBreaker{
		states:    make(map[string]*circuitState),
		threshold: threshold,
		cooldown:  time.Duration(cooldownMs) * time.Millisecond,
		now:       time.Now,
	}
}

// MarkSuccess clears the candidate's state.
func (cb *CircuitBreaker) MarkSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.states, key)
}

// MarkFailure records a failure. Only retryable categories count toward
// opening the circuit; a failure after the open window expired restarts the
// count at one.
func (cb *CircuitBreaker) MarkFailure(key string, retryable bool) {
	if !retryable {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	st := cb.states[key]
	if st == nil {
		st = &circuitState{}
		cb.states[key] = st
	}
	if !st.openUntil.IsZero() && !st.openUntil.After(now) {
		st.consecutiveRetryableFailures = 0
		st.openUntil = time.Time{}
	}
	st.consecutiveRetryableFailures++
	if st.consecutiveRetryableFailures >= cb.threshold {
		st.openUntil = now.Add(cb.cooldown)
	}
}

// SetCooldown opens the candidate's circuit for at least cooldownMs from
// now. An already-later openUntil is kept.
func (cb *CircuitBreaker) SetCooldown(key string, cooldownMs int) {
	if cooldownMs <= 0 {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := cb.states[key]
	if st == nil {
		st = &circuitState{}
		cb.states[key] = st
	}
	until := cb.now().Add(time.Duration(cooldownMs) * time.Millisecond)
	if until.After(st.openUntil) {
		st.openUntil = until
	}
}

// OpenUntil returns the candidate's open window end, or zero when closed.
func (cb *CircuitBreaker) OpenUntil(key string) time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := cb.states[key]
	if st == nil || !st.openUntil.After(cb.now()) {
		return time.Time{}
	}
	return st.openUntil
}

// OpenCount returns how many candidates are currently open.
func (cb *CircuitBreaker) OpenCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := cb.now()
	n := 0
	for _, st := range cb.states {
		if st.openUntil.After(now) {
			n++
		}
	}
	return n
}

// Reorder defers open candidates: closed ones keep their order up front,
// open ones follow sorted by soonest expiry. Candidates are never removed;
// when everything is open, the earliest-expiring one is tried immediately.
func (cb *CircuitBreaker) Reorder(candidates []config.Candidate) []config.Candidate {
	type entry struct {
		cand      config.Candidate
		openUntil time.Time
		pos       int
	}
	entries := make([]entry, len(candidates))
	for i, c := range candidates {
		entries[i] = entry{cand: c, openUntil: cb.OpenUntil(c.Key()), pos: i}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		oi, oj := entries[i].openUntil, entries[j].openUntil
		if oi.IsZero() != oj.IsZero() {
			return oi.IsZero()
		}
		if !oi.IsZero() && !oi.Equal(oj) {
			return oi.Before(oj)
		}
		return entries[i].pos < entries[j].pos
	})
	out := make([]config.Candidate, len(entries))
	for i, e := range entries {
		out[i] = e.cand
	}
	return out
}
