package proxy

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/jedarden/llm-router/internal/config"
	"github.com/jedarden/llm-router/internal/logging"
	"github.com/jedarden/llm-router/pkg/models"
)

// Dispatcher walks a candidate chain: per-candidate retries, failover
// between candidates, and circuit bookkeeping.
type Dispatcher struct {
	Adapter *Adapter
	Breaker *CircuitBreaker
	Env     *config.Env
	Metrics *Metrics

	// sleep is swapped out by tests. Returns false when the context died.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewDispatcher wires a dispatcher from its parts.
func NewDispatcher(adapter *Adapter, breaker *CircuitBreaker, env *config.Env, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		Adapter: adapter,
		Breaker: breaker,
		Env:     env,
		Metrics: metrics,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Dispatch tries each candidate in circuit-aware order until one succeeds.
// The returned result is the success, the last upstream failure, or a
// synthesized failure when no upstream ever answered.
func (d *Dispatcher) Dispatch(ctx context.Context, source models.Dialect, body []byte, stream bool, candidates []config.Candidate, inHeader http.Header, requestID string) *CallResult {
	ordered := d.Breaker.Reorder(candidates)

	var last *CallResult
	var lastCand config.Candidate
	for _, cand := range ordered {
		if ctx.Err() != nil {
			break
		}
		result := d.tryCandidate(ctx, cand, source, body, stream, inHeader, requestID)
		if result.OK {
			return result
		}
		last = result
		lastCand = cand

		policy := Classify(result.Kind, result.Status, result.Header, result.Body, d.Env)
		if !policy.AllowFallback {
			return result
		}
	}

	if last == nil {
		return &CallResult{
			Status:  http.StatusServiceUnavailable,
			Message: "All providers failed.",
		}
	}
	if last.Body == nil {
		detail := last.Message
		if detail == "" {
			detail = fmt.Sprintf("status=%d", last.Status)
		}
		last.Message = fmt.Sprintf("All providers failed. [%s] %s", lastCand.RequestModelID, detail)
	}
	return last
}

// tryCandidate runs up to the configured attempts against one candidate,
// retrying only when the classification says the origin is worth retrying.
func (d *Dispatcher) tryCandidate(ctx context.Context, cand config.Candidate, source models.Dialect, body []byte, stream bool, inHeader http.Header, requestID string) *CallResult {
	key := cand.Key()
	var result *CallResult
	for attempt := 1; attempt <= d.Env.OriginRetryAttempts; attempt++ {
		result = d.Adapter.Call(ctx, cand, source, body, stream, inHeader, requestID)
		if result.OK {
			d.Breaker.MarkSuccess(key)
			d.Metrics.ObserveUpstream(cand.ProviderID, "success")
			return result
		}

		policy := Classify(result.Kind, result.Status, result.Header, result.Body, d.Env)
		d.Metrics.ObserveUpstream(cand.ProviderID, policy.Category)
		log.Printf("[llm-router] %s %s attempt %d/%d failed: %s (status=%d)",
			requestID, cand.RequestModelID, attempt, d.Env.OriginRetryAttempts, policy.Category, result.Status)
		logging.LogDebugMessage("%s %s classified %s (retryOrigin=%t fallback=%t)",
			requestID, cand.RequestModelID, policy.Category, policy.RetryOrigin, policy.AllowFallback)

		if policy.RetryOrigin && attempt < d.Env.OriginRetryAttempts {
			if !d.sleep(ctx, d.retryDelay(attempt)) {
				return result
			}
			continue
		}

		d.Breaker.MarkFailure(key, policy.Retryable)
		if policy.OriginCooldownMs > 0 {
			d.Breaker.SetCooldown(key, policy.OriginCooldownMs)
		}
		return result
	}
	return result
}

// retryDelay is capped exponential backoff with uniform jitter in
// [0.5, 1.0] of the computed delay.
func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	delay := d.Env.OriginRetryBaseDelayMs
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.Env.OriginRetryMaxDelayMs {
			delay = d.Env.OriginRetryMaxDelayMs
			break
		}
	}
	jittered := float64(delay) * (0.5 + rand.Float64()*0.5)
	return time.Duration(jittered) * time.Millisecond
}
