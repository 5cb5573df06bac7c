package config

import (
	"strings"
	"testing"
)

func clearRouterEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"LLM_ROUTER_LISTEN", "LLM_ROUTER_CONFIG", "LLM_ROUTER_CONFIG_JSON",
		"LLM_ROUTER_CONFIG_POLL_MS", "LLM_ROUTER_MASTER_KEY", "LLM_ROUTER_DEBUG",
		"LLM_ROUTER_ALLOWED_ORIGINS", "LLM_ROUTER_ALLOWED_IPS",
		"LLM_ROUTER_MAX_REQUEST_BODY_BYTES", "LLM_ROUTER_UPSTREAM_TIMEOUT_MS",
		"LLM_ROUTER_ORIGIN_RETRY_ATTEMPTS", "LLM_ROUTER_ORIGIN_RETRY_BASE_DELAY_MS",
		"LLM_ROUTER_ORIGIN_RETRY_MAX_DELAY_MS", "LLM_ROUTER_ORIGIN_FALLBACK_COOLDOWN_MS",
		"LLM_ROUTER_ORIGIN_RATE_LIMIT_COOLDOWN_MS", "LLM_ROUTER_ORIGIN_BILLING_COOLDOWN_MS",
		"LLM_ROUTER_ORIGIN_AUTH_COOLDOWN_MS", "LLM_ROUTER_ORIGIN_POLICY_COOLDOWN_MS",
		"LLM_ROUTER_ALLOW_POLICY_FALLBACK", "LLM_ROUTER_FALLBACK_CIRCUIT_FAILURES",
		"LLM_ROUTER_FALLBACK_CIRCUIT_COOLDOWN_MS",
	}
	for _, v := range vars {
		t.Setenv(v, "")
	}
}

func TestLoadEnv_Defaults(t *testing.T) {
	clearRouterEnv(t)

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if e.Listen != DefaultListen {
		t.Errorf("Listen = %q, want %q", e.Listen, DefaultListen)
	}
	if e.MaxRequestBodyBytes != 1<<20 {
		t.Errorf("MaxRequestBodyBytes = %d, want %d", e.MaxRequestBodyBytes, 1<<20)
	}
	if e.UpstreamTimeoutMs != 60000 {
		t.Errorf("UpstreamTimeoutMs = %d, want 60000", e.UpstreamTimeoutMs)
	}
	if e.OriginRetryAttempts != 3 {
		t.Errorf("OriginRetryAttempts = %d, want 3", e.OriginRetryAttempts)
	}
	if e.OriginRetryBaseDelayMs != 250 || e.OriginRetryMaxDelayMs != 3000 {
		t.Errorf("retry delays = %d/%d, want 250/3000", e.OriginRetryBaseDelayMs, e.OriginRetryMaxDelayMs)
	}
	if e.OriginBillingCooldownMs != 900000 {
		t.Errorf("OriginBillingCooldownMs = %d, want 900000", e.OriginBillingCooldownMs)
	}
	if e.AllowPolicyFallback {
		t.Error("AllowPolicyFallback should default to false")
	}
	if e.FallbackCircuitFailures != 2 || e.FallbackCircuitCooldownMs != 30000 {
		t.Errorf("circuit = %d/%d, want 2/30000", e.FallbackCircuitFailures, e.FallbackCircuitCooldownMs)
	}
}

func TestLoadEnv_Clamping(t *testing.T) {
	clearRouterEnv(t)
	t.Setenv("LLM_ROUTER_MAX_REQUEST_BODY_BYTES", "1")
	t.Setenv("LLM_ROUTER_UPSTREAM_TIMEOUT_MS", "99999999")
	t.Setenv("LLM_ROUTER_ORIGIN_RETRY_ATTEMPTS", "50")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if e.MaxRequestBodyBytes != 4<<10 {
		t.Errorf("MaxRequestBodyBytes = %d, want clamped to %d", e.MaxRequestBodyBytes, 4<<10)
	}
	if e.UpstreamTimeoutMs != 300000 {
		t.Errorf("UpstreamTimeoutMs = %d, want clamped to 300000", e.UpstreamTimeoutMs)
	}
	if e.OriginRetryAttempts != 10 {
		t.Errorf("OriginRetryAttempts = %d, want clamped to 10", e.OriginRetryAttempts)
	}
}

func TestLoadEnv_InvalidInteger(t *testing.T) {
	clearRouterEnv(t)
	t.Setenv("LLM_ROUTER_ORIGIN_RETRY_ATTEMPTS", "many")

	_, err := LoadEnv()
	if err == nil || !strings.Contains(err.Error(), "LLM_ROUTER_ORIGIN_RETRY_ATTEMPTS") {
		t.Errorf("error = %v, want invalid LLM_ROUTER_ORIGIN_RETRY_ATTEMPTS", err)
	}
}

func TestLoadEnv_Lists(t *testing.T) {
	clearRouterEnv(t)
	t.Setenv("LLM_ROUTER_ALLOWED_ORIGINS", "https://a.test, https://b.test,,")
	t.Setenv("LLM_ROUTER_ALLOWED_IPS", "10.0.0.1")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if len(e.AllowedOrigins) != 2 || e.AllowedOrigins[0] != "https://a.test" || e.AllowedOrigins[1] != "https://b.test" {
		t.Errorf("AllowedOrigins = %v", e.AllowedOrigins)
	}
	if len(e.AllowedIPs) != 1 || e.AllowedIPs[0] != "10.0.0.1" {
		t.Errorf("AllowedIPs = %v", e.AllowedIPs)
	}
}

func TestLoadEnv_MaxDelayAtLeastBase(t *testing.T) {
	clearRouterEnv(t)
	t.Setenv("LLM_ROUTER_ORIGIN_RETRY_BASE_DELAY_MS", "5000")
	t.Setenv("LLM_ROUTER_ORIGIN_RETRY_MAX_DELAY_MS", "100")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if e.OriginRetryMaxDelayMs < e.OriginRetryBaseDelayMs {
		t.Errorf("max delay %d below base %d", e.OriginRetryMaxDelayMs, e.OriginRetryBaseDelayMs)
	}
}
