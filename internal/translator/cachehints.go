package translator

import (
	"fmt"
	"hash/fnv"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/jedarden/llm-router/pkg/models"
)

// cacheKeySerializeLimit caps how much of the request feeds the derived
// cache key. Requests diverging only past this point share a key, which is
// acceptable for a cache hint.
const cacheKeySerializeLimit = 20 << 10

// cacheKeyHeaders are the request headers recognized as carrying a client
// prompt-cache key, in precedence order.
var cacheKeyHeaders = []string{
	"x-prompt-cache-key",
	"prompt-cache-key",
	"x-openai-prompt-cache-key",
	"openai-prompt-cache-key",
}

// ApplyCacheHints carries prompt-cache markers across the dialect boundary:
// claude cache_control markers become an openai prompt_cache_key/retention
// pair, and openai retention/keys become a claude cache_control marker.
// srcBody is the request as the client sent it; translated is the request in
// the target dialect. Returns the (possibly edited) translated body.
func ApplyCacheHints(source, target models.Dialect, srcBody, translated []byte, header http.Header) []byte {
	if source == target {
		return translated
	}
	switch {
	case source == models.DialectClaude && target == models.DialectOpenAI:
		return claudeHintsToOpenAI(srcBody, translated, header)
	case source == models.DialectOpenAI && target == models.DialectClaude:
		return openAIHintsToClaude(srcBody, translated, header)
	}
	return translated
}

// claudeHintsToOpenAI sets prompt_cache_key and prompt_cache_retention on
// the translated body when the claude source carries ephemeral markers.
func claudeHintsToOpenAI(srcBody, translated []byte, header http.Header) []byte {
	markers := collectCacheMarkers(srcBody)
	if len(markers) == 0 {
		return translated
	}

	if !gjson.GetBytes(translated, "prompt_cache_key").Exists() {
		key := clientCacheKey(srcBody, header)
		if key == "" {
			key = derivedCacheKey(srcBody)
		}
		translated, _ = sjson.SetBytes(translated, "prompt_cache_key", key)
	}

	if !gjson.GetBytes(translated, "prompt_cache_retention").Exists() {
		retention := "in_memory"
		for _, m := range markers {
			if m.Get("ttl").String() == "1h" {
				retention = "24h"
				break
			}
		}
		translated, _ = sjson.SetBytes(translated, "prompt_cache_retention", retention)
	}

	return translated
}

// collectCacheMarkers gathers every ephemeral cache_control marker from the
// places the claude dialect allows them.
func collectCacheMarkers(body []byte) []gjson.Result {
	var markers []gjson.Result
	add := func(r gjson.Result) {
		if r.Exists() && r.Get("type").String() == "ephemeral" {
			markers = append(markers, r)
		}
	}

	add(gjson.GetBytes(body, "cache_control"))
	for _, section := range []string{"system", "tools"} {
		for _, item := range gjson.GetBytes(body, section).Array() {
			add(item.Get("cache_control"))
		}
	}
	for _, msg := range gjson.GetBytes(body, "messages").Array() {
		for _, block := range msg.Get("content").Array() {
			add(block.Get("cache_control"))
		}
	}
	return markers
}

// clientCacheKey returns the client's own cache key from the recognized
// headers or the source body, or empty.
func clientCacheKey(srcBody []byte, header http.Header) string {
	for _, name := range cacheKeyHeaders {
		if v := header.Get(name); v != "" {
			return v
		}
	}
	return gjson.GetBytes(srcBody, "prompt_cache_key").String()
}

// derivedCacheKey builds a deterministic key from the parts of the request
// that affect what a provider would cache.
func derivedCacheKey(srcBody []byte) string {
	serialized := []byte("{\"model\":" + rawOrNull(srcBody, "model") +
		",\"cache_control\":" + rawOrNull(srcBody, "cache_control") +
		",\"system\":" + rawOrNull(srcBody, "system") +
		",\"tools\":" + rawOrNull(srcBody, "tools") +
		",\"messages\":" + rawOrNull(srcBody, "messages") + "}")
	if len(serialized) > cacheKeySerializeLimit {
		serialized = serialized[:cacheKeySerializeLimit]
	}
	h := fnv.New32a()
	h.Write(serialized)
	return fmt.Sprintf("llm-router:%08x", h.Sum32())
}

func rawOrNull(body []byte, path string) string {
	if r := gjson.GetBytes(body, path); r.Exists() {
		return r.Raw
	}
	return "null"
}

// openAIHintsToClaude sets a top-level cache_control marker on the
// translated body from the openai source's cache fields. Retention 5m has
// no openai counterpart and never appears here; 24h maps back to a 1h ttl.
func openAIHintsToClaude(srcBody, translated []byte, header http.Header) []byte {
	if gjson.GetBytes(translated, "cache_control").Exists() {
		return translated
	}

	if cc := gjson.GetBytes(srcBody, "cache_control"); cc.Exists() {
		if marker := normalizeCacheControl(cc); marker != nil {
			translated, _ = sjson.SetBytes(translated, "cache_control", marker)
		}
		return translated
	}

	switch gjson.GetBytes(srcBody, "prompt_cache_retention").String() {
	case "24h":
		translated, _ = sjson.SetBytes(translated, "cache_control",
			map[string]string{"type": "ephemeral", "ttl": "1h"})
		return translated
	case "in_memory":
		translated, _ = sjson.SetBytes(translated, "cache_control",
			map[string]string{"type": "ephemeral"})
		return translated
	}

	if clientCacheKey(srcBody, header) != "" {
		translated, _ = sjson.SetBytes(translated, "cache_control",
			map[string]string{"type": "ephemeral"})
	}
	return translated
}

// normalizeCacheControl validates a marker: type must be ephemeral and ttl,
// when present, one of 5m or 1h.
func normalizeCacheControl(cc gjson.Result) map[string]string {
	if cc.Get("type").String() != "ephemeral" {
		return nil
	}
	marker := map[string]string{"type": "ephemeral"}
	switch ttl := cc.Get("ttl").String(); ttl {
	case "5m", "1h":
		marker["ttl"] = ttl
	}
	return marker
}
