package proxy

import (
	"testing"
	"time"

	"github.com/jedarden/llm-router/internal/config"
	"github.com/jedarden/llm-router/pkg/models"
)

func newTestBreaker(threshold, cooldownMs int) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(threshold, cooldownMs)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(2, 30000)
	key := "p/m@openai"

	cb.MarkFailure(key, true)
	if !cb.OpenUntil(key).IsZero() {
		t.Fatal("circuit must stay closed below the threshold")
	}
	cb.MarkFailure(key, true)
	if cb.OpenUntil(key).IsZero() {
		t.Fatal("circuit must open at the threshold")
	}
}

func TestCircuitIgnoresNonRetryable(t *testing.T) {
	cb, _ := newTestBreaker(2, 30000)
	key := "p/m@openai"
	cb.MarkFailure(key, false)
	cb.MarkFailure(key, false)
	cb.MarkFailure(key, false)
	if !cb.OpenUntil(key).IsZero() {
		t.Error("non-retryable failures must not open the circuit")
	}
}

func TestCircuitSuccessClears(t *testing.T) {
	cb, _ := newTestBreaker(2, 30000)
	key := "p/m@openai"
	cb.MarkFailure(key, true)
	cb.MarkFailure(key, true)
	cb.MarkSuccess(key)
	if !cb.OpenUntil(key).IsZero() {
		t.Error("success must clear the circuit")
	}
	if cb.OpenCount() != 0 {
		t.Errorf("Expected 0 open circuits, got %d", cb.OpenCount())
	}
}

func TestCircuitCounterResetsAfterCooldown(t *testing.T) {
	cb, now := newTestBreaker(2, 30000)
	key := "p/m@openai"
	cb.MarkFailure(key, true)
	cb.MarkFailure(key, true)

	// Past the open window, the next failure starts a fresh count.
	*now = now.Add(31 * time.Second)
	cb.MarkFailure(key, true)
	if !cb.OpenUntil(key).IsZero() {
		t.Fatal("one failure after expiry must not reopen the circuit")
	}
	cb.MarkFailure(key, true)
	if cb.OpenUntil(key).IsZero() {
		t.Fatal("second failure after expiry must reopen the circuit")
	}
}

func TestSetCooldownExtendsNotShrinks(t *testing.T) {
	cb, now := newTestBreaker(2, 30000)
	key := "p/m@openai"

	cb.SetCooldown(key, 600000)
	long := cb.OpenUntil(key)
	cb.SetCooldown(key, 1000)
	if got := cb.OpenUntil(key); !got.Equal(long) {
		t.Errorf("shorter cooldown must not shrink the window: %v -> %v", long, got)
	}
	cb.SetCooldown(key, 900000)
	if got := cb.OpenUntil(key); !got.After(long) {
		t.Error("longer cooldown must extend the window")
	}
	_ = now
}

func TestReorderDefersOpenCandidates(t *testing.T) {
	cb, now := newTestBreaker(2, 30000)
	mk := func(provider string) config.Candidate {
		return config.Candidate{
			ProviderID:     provider,
			ModelID:        "m",
			RequestModelID: provider + "/m",
			TargetFormat:   models.DialectOpenAI,
		}
	}
	a, b, c := mk("a"), mk("b"), mk("c")

	cb.SetCooldown(a.Key(), 60000)
	cb.SetCooldown(c.Key(), 10000)

	got := cb.Reorder([]config.Candidate{a, b, c})
	want := []string{"b/m", "c/m", "a/m"}
	for i, cand := range got {
		if cand.RequestModelID != want[i] {
			t.Fatalf("Expected order %v, got position %d = %s", want, i, cand.RequestModelID)
		}
	}
	if len(got) != 3 {
		t.Fatalf("reorder must never drop candidates, got %d", len(got))
	}

	// All open: earliest-expiring first, still nothing dropped.
	cb.SetCooldown(b.Key(), 5000)
	got = cb.Reorder([]config.Candidate{a, b, c})
	if got[0].RequestModelID != "b/m" || len(got) != 3 {
		t.Errorf("Expected earliest-expiring first with all open, got %v", got)
	}
	_ = now
}
