package translator

import (
	"net/http"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/jedarden/llm-router/pkg/models"
)

func TestClaudeHintsToOpenAI(t *testing.T) {
	src := []byte(`{
		"model": "claude-sonnet",
		"system": [{"type":"text","text":"long prompt","cache_control":{"type":"ephemeral"}}],
		"messages": [{"role":"user","content":"hi"}]
	}`)
	translated := []byte(`{"model":"gpt-4o","messages":[]}`)

	out := ApplyCacheHints(models.DialectClaude, models.DialectOpenAI, src, translated, http.Header{})
	key := gjson.GetBytes(out, "prompt_cache_key").String()
	if !strings.HasPrefix(key, "llm-router:") {
		t.Errorf("prompt_cache_key = %q, want llm-router: prefix", key)
	}
	if got := gjson.GetBytes(out, "prompt_cache_retention").String(); got != "in_memory" {
		t.Errorf("retention = %q, want in_memory", got)
	}

	// The derived key is deterministic for an identical request.
	again := ApplyCacheHints(models.DialectClaude, models.DialectOpenAI, src, translated, http.Header{})
	if gjson.GetBytes(again, "prompt_cache_key").String() != key {
		t.Error("derived key must be stable across calls")
	}
}

func TestClaudeHintsOneHourTTL(t *testing.T) {
	src := []byte(`{
		"model": "m",
		"messages": [{"role":"user","content":[
			{"type":"text","text":"ctx","cache_control":{"type":"ephemeral","ttl":"1h"}}
		]}]
	}`)
	out := ApplyCacheHints(models.DialectClaude, models.DialectOpenAI, src, []byte(`{}`), http.Header{})
	if got := gjson.GetBytes(out, "prompt_cache_retention").String(); got != "24h" {
		t.Errorf("retention = %q, want 24h", got)
	}
}

func TestClaudeHintsClientKeyWins(t *testing.T) {
	src := []byte(`{"model":"m","cache_control":{"type":"ephemeral"},"messages":[]}`)
	header := http.Header{}
	header.Set("x-prompt-cache-key", "client-key-1")
	out := ApplyCacheHints(models.DialectClaude, models.DialectOpenAI, src, []byte(`{}`), header)
	if got := gjson.GetBytes(out, "prompt_cache_key").String(); got != "client-key-1" {
		t.Errorf("prompt_cache_key = %q, want client-key-1", got)
	}
}

func TestClaudeHintsNoMarkersNoEdit(t *testing.T) {
	src := []byte(`{"model":"m","messages":[{"role":"user","content":"hi"}]}`)
	translated := []byte(`{"model":"b"}`)
	out := ApplyCacheHints(models.DialectClaude, models.DialectOpenAI, src, translated, http.Header{})
	if gjson.GetBytes(out, "prompt_cache_key").Exists() {
		t.Error("no marker must mean no cache key")
	}
}

func TestOpenAIHintsToClaudeRetention(t *testing.T) {
	cases := []struct {
		retention string
		wantTTL   string
	}{
		{"24h", "1h"},
		{"in_memory", ""},
	}
	for _, tc := range cases {
		src := []byte(`{"model":"m","prompt_cache_retention":"` + tc.retention + `","messages":[]}`)
		out := ApplyCacheHints(models.DialectOpenAI, models.DialectClaude, src, []byte(`{}`), http.Header{})
		cc := gjson.GetBytes(out, "cache_control")
		if got := cc.Get("type").String(); got != "ephemeral" {
			t.Errorf("retention %s: cache_control type = %q", tc.retention, got)
		}
		if got := cc.Get("ttl").String(); got != tc.wantTTL {
			t.Errorf("retention %s: ttl = %q, want %q", tc.retention, got, tc.wantTTL)
		}
	}
}

func TestOpenAIHintsKeyOnly(t *testing.T) {
	src := []byte(`{"model":"m","prompt_cache_key":"k1","messages":[]}`)
	out := ApplyCacheHints(models.DialectOpenAI, models.DialectClaude, src, []byte(`{}`), http.Header{})
	if got := gjson.GetBytes(out, "cache_control.type").String(); got != "ephemeral" {
		t.Errorf("key-only request must still mark ephemeral, got %q", got)
	}
}

func TestOpenAIHintsNoHintNoEdit(t *testing.T) {
	src := []byte(`{"model":"m","messages":[]}`)
	out := ApplyCacheHints(models.DialectOpenAI, models.DialectClaude, src, []byte(`{}`), http.Header{})
	if gjson.GetBytes(out, "cache_control").Exists() {
		t.Error("no hint must mean no cache_control")
	}
}
