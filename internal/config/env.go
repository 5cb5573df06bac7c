package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultListen is the address the gateway binds when LLM_ROUTER_LISTEN is
// unset. Loopback: exposing the gateway is an explicit decision.
const DefaultListen = "127.0.0.1:8787"

const (
	defaultBodyBytes = 1 << 20
	minBodyBytes     = 4 << 10
	maxBodyBytes     = 20 << 20
)

// Env holds process-level tunables read from LLM_ROUTER_* variables.
// Ranged values are clamped, not rejected.
type Env struct {
	Listen         string
	ConfigPath     string
	ConfigJSON     string
	ConfigPollMs   int
	MasterKey      string
	Debug          bool
	AllowedOrigins []string
	AllowedIPs     []string

	MaxRequestBodyBytes int64
	UpstreamTimeoutMs   int

	OriginRetryAttempts    int
	OriginRetryBaseDelayMs int
	OriginRetryMaxDelayMs  int

	OriginFallbackCooldownMs  int
	OriginRateLimitCooldownMs int
	OriginBillingCooldownMs   int
	OriginAuthCooldownMs      int
	OriginPolicyCooldownMs    int
	AllowPolicyFallback       bool

	FallbackCircuitFailures   int
	FallbackCircuitCooldownMs int
}

// DefaultEnv returns the tunable defaults.
func DefaultEnv() *Env {
	return &Env{
		Listen:                    DefaultListen,
		ConfigPollMs:              3000,
		MaxRequestBodyBytes:       defaultBodyBytes,
		UpstreamTimeoutMs:         60000,
		OriginRetryAttempts:       3,
		OriginRetryBaseDelayMs:    250,
		OriginRetryMaxDelayMs:     3000,
		OriginFallbackCooldownMs:  45000,
		OriginRateLimitCooldownMs: 30000,
		OriginBillingCooldownMs:   900000,
		OriginAuthCooldownMs:      600000,
		OriginPolicyCooldownMs:    120000,
		AllowPolicyFallback:       false,
		FallbackCircuitFailures:   2,
		FallbackCircuitCooldownMs: 30000,
	}
}

// LoadEnv reads tunables from the environment.
func LoadEnv() (*Env, error) {
	e := DefaultEnv()

	if listen := os.Getenv("LLM_ROUTER_LISTEN"); listen != "" {
		e.Listen = listen
	}
	e.ConfigPath = os.Getenv("LLM_ROUTER_CONFIG")
	e.ConfigJSON = os.Getenv("LLM_ROUTER_CONFIG_JSON")
	e.MasterKey = os.Getenv("LLM_ROUTER_MASTER_KEY")
	e.Debug = boolEnv("LLM_ROUTER_DEBUG")
	e.AllowPolicyFallback = boolEnv("LLM_ROUTER_ALLOW_POLICY_FALLBACK")
	e.AllowedOrigins = csvEnv("LLM_ROUTER_ALLOWED_ORIGINS")
	e.AllowedIPs = csvEnv("LLM_ROUTER_ALLOWED_IPS")

	var err error
	if e.ConfigPollMs, err = intEnv("LLM_ROUTER_CONFIG_POLL_MS", e.ConfigPollMs, 0, 3600000); err != nil {
		return nil, err
	}
	if e.MaxRequestBodyBytes, err = int64Env("LLM_ROUTER_MAX_REQUEST_BODY_BYTES", e.MaxRequestBodyBytes, minBodyBytes, maxBodyBytes); err != nil {
		return nil, err
	}
	if e.UpstreamTimeoutMs, err = intEnv("LLM_ROUTER_UPSTREAM_TIMEOUT_MS", e.UpstreamTimeoutMs, 1000, 300000); err != nil {
		return nil, err
	}
	if e.OriginRetryAttempts, err = intEnv("LLM_ROUTER_ORIGIN_RETRY_ATTEMPTS", e.OriginRetryAttempts, 1, 10); err != nil {
		return nil, err
	}
	if e.OriginRetryBaseDelayMs, err = intEnv("LLM_ROUTER_ORIGIN_RETRY_BASE_DELAY_MS", e.OriginRetryBaseDelayMs, 1, 60000); err != nil {
		return nil, err
	}
	if e.OriginRetryMaxDelayMs, err = intEnv("LLM_ROUTER_ORIGIN_RETRY_MAX_DELAY_MS", e.OriginRetryMaxDelayMs, 1, 300000); err != nil {
		return nil, err
	}
	if e.OriginFallbackCooldownMs, err = intEnv("LLM_ROUTER_ORIGIN_FALLBACK_COOLDOWN_MS", e.OriginFallbackCooldownMs, 0, 86400000); err != nil {
		return nil, err
	}
	if e.OriginRateLimitCooldownMs, err = intEnv("LLM_ROUTER_ORIGIN_RATE_LIMIT_COOLDOWN_MS", e.OriginRateLimitCooldownMs, 0, 86400000); err != nil {
		return nil, err
	}
	if e.OriginBillingCooldownMs, err = intEnv("LLM_ROUTER_ORIGIN_BILLING_COOLDOWN_MS", e.OriginBillingCooldownMs, 0, 86400000); err != nil {
		return nil, err
	}
	if e.OriginAuthCooldownMs, err = intEnv("LLM_ROUTER_ORIGIN_AUTH_COOLDOWN_MS", e.OriginAuthCooldownMs, 0, 86400000); err != nil {
		return nil, err
	}
	if e.OriginPolicyCooldownMs, err = intEnv("LLM_ROUTER_ORIGIN_POLICY_COOLDOWN_MS", e.OriginPolicyCooldownMs, 0, 86400000); err != nil {
		return nil, err
	}
	if e.FallbackCircuitFailures, err = intEnv("LLM_ROUTER_FALLBACK_CIRCUIT_FAILURES", e.FallbackCircuitFailures, 1, 100); err != nil {
		return nil, err
	}
	if e.FallbackCircuitCooldownMs, err = intEnv("LLM_ROUTER_FALLBACK_CIRCUIT_COOLDOWN_MS", e.FallbackCircuitCooldownMs, 0, 86400000); err != nil {
		return nil, err
	}

	if e.OriginRetryMaxDelayMs < e.OriginRetryBaseDelayMs {
		e.OriginRetryMaxDelayMs = e.OriginRetryBaseDelayMs
	}

	return e, nil
}

// boolEnv treats "true" and "1" as set.
func boolEnv(name string) bool {
	v := os.Getenv(name)
	return v == "true" || v == "1"
}

// csvEnv splits a comma-separated variable, trimming whitespace and
// dropping empty entries.
func csvEnv(name string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// intEnv parses an integer variable, clamping it into [lo, hi].
func intEnv(name string, def, lo, hi int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v, nil
}

// int64Env parses a 64-bit integer variable, clamping it into [lo, hi].
func int64Env(name string, def, lo, hi int64) (int64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v, nil
}
