package proxy

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/jedarden/llm-router/internal/config"
	"github.com/jedarden/llm-router/internal/logging"
	"github.com/jedarden/llm-router/internal/secrets"
	"github.com/jedarden/llm-router/internal/translator"
	"github.com/jedarden/llm-router/pkg/models"
)

const (
	defaultUserAgent        = "llm-router"
	defaultAnthropicVersion = "2023-06-01"

	// errorBodyLimit bounds how much of an upstream error body is retained.
	errorBodyLimit = 1 << 20
)

// CallResult is the outcome of one attempt against one candidate.
type CallResult struct {
	OK     bool
	Status int

	// Kind marks failures that never reached a usable HTTP response
	// (network_error, configuration_error). Empty for HTTP failures.
	Kind    string
	Message string

	Header http.Header

	// Body carries a non-streaming success body (already translated when
	// needed) or an upstream error body.
	Body []byte

	// Stream and Transform are set on streaming successes. A nil Transform
	// means the upstream bytes pass through untouched.
	Stream    io.ReadCloser
	Transform translator.StreamTransform

	// NeedsTranslate marks an error Body still in the target dialect.
	NeedsTranslate bool
}

// Adapter performs single upstream attempts. The shared client carries no
// timeout of its own; non-streaming calls get a context deadline and the
// transport bounds the wait for response headers.
type Adapter struct {
	Client *http.Client
	Env    *config.Env
}

// NewAdapter returns an adapter whose transport applies the env's upstream
// timeout to the response-header wait, so a stalled upstream fails fast
// without capping how long an accepted stream may flow.
func NewAdapter(env *config.Env) *Adapter {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = time.Duration(env.UpstreamTimeoutMs) * time.Millisecond
	return &Adapter{Client: &http.Client{Transport: transport}, Env: env}
}

// callContext bounds a non-streaming call end to end. Streaming calls get a
// plain cancel: the body may legitimately flow for minutes, so only the
// transport's header timeout applies. The caller owns the cancel func; on a
// streaming success it transfers to the returned Stream's Close.
func (a *Adapter) callContext(ctx context.Context, stream bool) (context.Context, context.CancelFunc) {
	if stream {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(a.Env.UpstreamTimeoutMs)*time.Millisecond)
}

// cancelOnClose ties the request's cancel func to the response body so the
// connection stays alive until the caller finishes reading the stream.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Call sends one attempt to one candidate: translate, rewrite the model,
// map cache hints, build headers, and dispatch. requestID tags log lines.
func (a *Adapter) Call(ctx context.Context, cand config.Candidate, source models.Dialect, body []byte, stream bool, inHeader http.Header, requestID string) *CallResult {
	target := cand.TargetFormat
	auth := cand.Provider.AuthFor(target)
	apiKey := cand.Provider.ResolveAPIKey()
	if apiKey == "" && auth.Type != config.AuthNone {
		return &CallResult{
			Status:  http.StatusServiceUnavailable,
			Kind:    CategoryConfiguration,
			Message: "No API key configured for provider " + cand.ProviderID + ".",
		}
	}

	upstreamBody, err := translator.TranslateRequest(source, target, cand.Backend, body, stream)
	if err != nil {
		return &CallResult{
			Status:  http.StatusBadRequest,
			Message: "Request could not be translated: " + err.Error(),
		}
	}
	upstreamBody, _ = sjson.SetBytes(upstreamBody, "model", cand.Backend)
	upstreamBody = translator.ApplyCacheHints(source, target, body, upstreamBody, inHeader)
	upstreamBody = applyReasoningPolicy(upstreamBody, cand.Backend, target)

	url := endpointURL(cand.Provider.BaseURLFor(target), target)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(upstreamBody))
	if err != nil {
		return &CallResult{
			Status:  http.StatusServiceUnavailable,
			Kind:    CategoryConfiguration,
			Message: "Bad upstream URL for provider " + cand.ProviderID + ": " + err.Error(),
		}
	}
	a.buildHeaders(req, cand, auth, apiKey, target, inHeader)

	if logging.IsDebugEnabled() {
		logging.LogDebugMessage("outbound headers %s: %v", url, secrets.SanitizeHeaders(req.Header))
		logging.LogDebugRequestRaw("outbound", url, secrets.MaskJSONSecrets(upstreamBody))
	}

	callCtx, cancel := a.callContext(ctx, stream)
	resp, err := a.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return &CallResult{
			Status:  http.StatusServiceUnavailable,
			Kind:    CategoryNetwork,
			Message: "Upstream call failed: " + secrets.RedactForLog(err.Error()),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		resp.Body.Close()
		cancel()
		log.Printf("[llm-router] %s upstream %s status=%d", requestID, cand.RequestModelID, resp.StatusCode)
		if logging.IsDebugEnabled() {
			logging.LogDebugRequestRaw("upstream-error", url, secrets.MaskJSONSecrets(errBody))
		}
		return &CallResult{
			Status:         resp.StatusCode,
			Header:         resp.Header,
			Body:           errBody,
			NeedsTranslate: source != target,
		}
	}

	if stream {
		result := &CallResult{
			OK:     true,
			Status: resp.StatusCode,
			Header: resp.Header,
			Stream: &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
		}
		if source != target {
			result.Transform = streamTransform(source, requestID, cand.Backend)
		}
		return result
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	cancel()
	if err != nil {
		return &CallResult{
			Status:  http.StatusServiceUnavailable,
			Kind:    CategoryNetwork,
			Message: "Reading upstream response failed: " + err.Error(),
		}
	}
	if logging.IsDebugEnabled() {
		logging.LogDebugRequestRaw("upstream-response", url, secrets.MaskJSONSecrets(respBody))
	}
	if source != target {
		translated, err := translator.TranslateResponse(target, source, respBody)
		if err != nil {
			return &CallResult{
				Status:  http.StatusBadGateway,
				Message: "Provider returned invalid JSON.",
			}
		}
		respBody = translated
	}
	header := passthroughHeaders(resp.Header)
	return &CallResult{OK: true, Status: resp.StatusCode, Header: header, Body: respBody}
}

// streamTransform picks the transform that rewrites the upstream dialect's
// SSE into the client's.
func streamTransform(source models.Dialect, requestID, backendModel string) translator.StreamTransform {
	if source == models.DialectClaude {
		return translator.NewOpenAIToAnthropicStream("msg_"+strings.TrimPrefix(requestID, "req_"), backendModel)
	}
	return translator.NewAnthropicToOpenAIStream("chatcmpl-"+strings.TrimPrefix(requestID, "req_"), backendModel, time.Now().Unix())
}

// buildHeaders assembles the upstream request headers: provider customs
// (CR/LF rejected, hop-by-hop dropped), auth injection, dialect headers,
// and cache-hint passthrough.
func (a *Adapter) buildHeaders(req *http.Request, cand config.Candidate, auth config.AuthSpec, apiKey string, target models.Dialect, inHeader http.Header) {
	req.Header.Set("Content-Type", "application/json")

	for name, value := range cand.Provider.Headers {
		if strings.ContainsAny(name, "\r\n") || strings.ContainsAny(value, "\r\n") {
			continue
		}
		if isHopByHop(name) {
			continue
		}
		req.Header.Set(name, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	switch auth.Type {
	case config.AuthBearer:
		prefix := auth.Prefix
		if prefix == "" {
			prefix = "Bearer "
		}
		req.Header.Set("Authorization", prefix+apiKey)
	case config.AuthXAPIKey:
		req.Header.Set("x-api-key", apiKey)
	case config.AuthHeader:
		if auth.Name != "" {
			req.Header.Set(auth.Name, auth.Prefix+apiKey)
		}
	case config.AuthNone:
	}

	if target == models.DialectClaude {
		version := cand.Provider.AnthropicVersion
		if version == "" {
			version = inHeader.Get("anthropic-version")
		}
		if version == "" {
			version = defaultAnthropicVersion
		}
		req.Header.Set("anthropic-version", version)
		if beta := mergeBetaTokens(cand.Provider.AnthropicBeta, inHeader.Get("anthropic-beta")); beta != "" {
			req.Header.Set("anthropic-beta", beta)
		}
	}

	for _, name := range []string{"x-prompt-cache-key", "x-prompt-cache-retention"} {
		if v := inHeader.Get(name); v != "" && req.Header.Get(name) == "" {
			req.Header.Set(name, v)
		}
	}
}

// mergeBetaTokens CSV-merges anthropic-beta values, dropping duplicates and
// preserving first-seen order.
func mergeBetaTokens(values ...string) string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		for _, token := range strings.Split(v, ",") {
			token = strings.TrimSpace(token)
			if token == "" || seen[token] {
				continue
			}
			seen[token] = true
			out = append(out, token)
		}
	}
	return strings.Join(out, ",")
}

var versionedSuffix = regexp.MustCompile(`/v\d+$`)

// endpointURL appends the dialect's chat path to the provider base URL. A
// base that already names the endpoint is kept; a base ending in a version
// segment gets the unversioned path; anything else gets /v1 plus the path.
func endpointURL(base string, target models.Dialect) string {
	base = strings.TrimRight(base, "/")
	suffix := "/chat/completions"
	if target == models.DialectClaude {
		suffix = "/messages"
	}
	if strings.HasSuffix(base, suffix) {
		return base
	}
	if versionedSuffix.MatchString(base) {
		return base + suffix
	}
	return base + "/v1" + suffix
}

var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

func isHopByHop(name string) bool {
	return hopByHopHeaders[strings.ToLower(name)]
}

// passthroughHeaders copies upstream headers for a passthrough response,
// dropping hop-by-hop entries and the encoding/length pair (the client
// already transparently decoded; forwarding them would double-decode).
func passthroughHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		lower := strings.ToLower(name)
		if hopByHopHeaders[lower] || lower == "content-encoding" || lower == "content-length" {
			continue
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}
	return out
}

// reasoningModelPrefixes name backend model families known to honor the
// openai reasoning_effort field.
var reasoningModelPrefixes = []string{"o1", "o3", "o4", "gpt-5", "deepseek-reasoner"}

// applyReasoningPolicy strips reasoning_effort for upstreams that reject
// it; claude targets never take the field.
func applyReasoningPolicy(body []byte, backendModel string, target models.Dialect) []byte {
	if target == models.DialectClaude {
		body, _ = sjson.DeleteBytes(body, "reasoning_effort")
		return body
	}
	lower := strings.ToLower(backendModel)
	for _, prefix := range reasoningModelPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return body
		}
	}
	body, _ = sjson.DeleteBytes(body, "reasoning_effort")
	return body
}
