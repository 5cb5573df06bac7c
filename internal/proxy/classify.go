package proxy

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jedarden/llm-router/internal/config"
)

// Internal failure categories. These drive retry, failover, and cooldown
// decisions; they never appear in client responses.
const (
	CategoryConfiguration  = "configuration_error"
	CategoryNotSupported   = "not_supported_error"
	CategoryNetwork        = "network_error"
	CategoryRateLimited    = "rate_limited"
	CategoryBilling        = "billing_exhausted"
	CategoryAuthFailed     = "auth_failed"
	CategoryPolicyBlocked  = "policy_blocked"
	CategoryForbidden      = "forbidden"
	CategoryNotFound       = "not_found"
	CategoryTemporary      = "temporary_error"
	CategoryInvalidRequest = "invalid_request"
	CategoryClientError    = "client_error"
	CategoryUnknown        = "unknown_error"
)

// FailurePolicy is the classification of one failed attempt.
type FailurePolicy struct {
	Category         string
	Retryable        bool
	RetryOrigin      bool
	AllowFallback    bool
	OriginCooldownMs int
}

// hintScanLimit bounds how much of an upstream error body is inspected.
const hintScanLimit = 4 << 10

var billingHints = []string{
	"insufficient_quota", "insufficient quota", "insufficient balance",
	"insufficient credits", "not enough credits", "out of credits",
	"payment required", "billing hard limit", "quota exceeded",
}

var authHints = []string{
	"invalid api key", "incorrect api key", "api key not valid",
	"authentication", "unauthorized", "permission denied", "forbidden",
}

var policyHints = []string{
	"moderation", "policy_violation", "content policy", "safety",
	"unsafe", "flagged",
}

// Classify derives the failure policy for one attempt from its typed kind,
// HTTP status, headers, and error body.
func Classify(kind string, status int, header http.Header, body []byte, env *config.Env) FailurePolicy {
	switch kind {
	case CategoryConfiguration:
		return FailurePolicy{Category: CategoryConfiguration, AllowFallback: true, OriginCooldownMs: env.OriginFallbackCooldownMs}
	case CategoryNotSupported:
		return FailurePolicy{Category: CategoryNotSupported, AllowFallback: true}
	case CategoryNetwork:
		return FailurePolicy{Category: CategoryNetwork, Retryable: true, RetryOrigin: true, AllowFallback: true}
	}

	switch {
	case status == http.StatusTooManyRequests:
		cooldown := retryAfterMs(header)
		if cooldown == 0 {
			cooldown = env.OriginRateLimitCooldownMs
		}
		return FailurePolicy{Category: CategoryRateLimited, Retryable: true, AllowFallback: true, OriginCooldownMs: cooldown}

	case status == http.StatusPaymentRequired:
		return FailurePolicy{Category: CategoryBilling, AllowFallback: true, OriginCooldownMs: env.OriginBillingCooldownMs}

	case status == http.StatusUnauthorized:
		return FailurePolicy{Category: CategoryAuthFailed, AllowFallback: true, OriginCooldownMs: env.OriginAuthCooldownMs}

	case status == http.StatusForbidden:
		text := hintText(body)
		switch {
		case containsAny(text, billingHints):
			return FailurePolicy{Category: CategoryBilling, AllowFallback: true, OriginCooldownMs: env.OriginBillingCooldownMs}
		case containsAny(text, policyHints):
			return FailurePolicy{Category: CategoryPolicyBlocked, AllowFallback: env.AllowPolicyFallback, OriginCooldownMs: env.OriginPolicyCooldownMs}
		case containsAny(text, authHints):
			return FailurePolicy{Category: CategoryAuthFailed, AllowFallback: true, OriginCooldownMs: env.OriginAuthCooldownMs}
		default:
			return FailurePolicy{Category: CategoryForbidden, AllowFallback: true, OriginCooldownMs: env.OriginAuthCooldownMs}
		}

	case status == http.StatusNotFound || status == http.StatusGone:
		return FailurePolicy{Category: CategoryNotFound, AllowFallback: true, OriginCooldownMs: env.OriginFallbackCooldownMs}

	case status == http.StatusRequestTimeout || status == http.StatusConflict || status >= 500:
		return FailurePolicy{Category: CategoryTemporary, Retryable: true, RetryOrigin: true, AllowFallback: true, OriginCooldownMs: retryAfterMs(header)}

	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge || status == http.StatusUnprocessableEntity:
		return FailurePolicy{Category: CategoryInvalidRequest}

	case status >= 400 && status < 500:
		return FailurePolicy{Category: CategoryClientError}

	default:
		return FailurePolicy{Category: CategoryUnknown, AllowFallback: true}
	}
}

// hintText lowers the concatenation of the error body's common fields plus
// the raw text, capped at the scan limit.
func hintText(body []byte) string {
	if len(body) > hintScanLimit {
		body = body[:hintScanLimit]
	}
	var parts []string
	for _, path := range []string{"error.code", "error.type", "error.message", "error", "code", "type", "message"} {
		if v := gjson.GetBytes(body, path); v.Exists() {
			parts = append(parts, v.String())
		}
	}
	parts = append(parts, string(body))
	return strings.ToLower(strings.Join(parts, " "))
}

func containsAny(text string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

// retryAfterMs parses the Retry-After header as delay seconds or an HTTP
// date. Returns 0 when absent or unparsable.
func retryAfterMs(header http.Header) int {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && secs > 0 {
		return secs * 1000
	}
	if t, err := http.ParseTime(raw); err == nil {
		if d := time.Until(t); d > 0 {
			return int(d / time.Millisecond)
		}
	}
	return 0
}
