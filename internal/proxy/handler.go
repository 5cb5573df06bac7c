package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/jedarden/llm-router/internal/config"
	"github.com/jedarden/llm-router/internal/logging"
	"github.com/jedarden/llm-router/internal/secrets"
	"github.com/jedarden/llm-router/pkg/models"
)

// Handler routes gateway endpoints to the dispatcher.
type Handler struct {
	Store      *config.Store
	Resolver   *config.Resolver
	Dispatcher *Dispatcher
	Metrics    *Metrics
	Env        *config.Env
	Version    string
}

// normalizePath strips a single trailing slash, except at the root.
func normalizePath(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

var claudeRoutePaths = map[string]bool{
	"/anthropic/v1/messages": true,
	"/anthropic/messages":    true,
	"/anthropic":             true,
	"/messages":              true,
	"/v1/messages":           true,
}

var openaiRoutePaths = map[string]bool{
	"/openai/v1/chat/completions": true,
	"/openai/chat/completions":    true,
	"/openai":                     true,
	"/chat/completions":           true,
	"/v1/chat/completions":        true,
}

var autoRoutePaths = map[string]bool{
	"/":       true,
	"/v1":     true,
	"/route":  true,
	"/router": true,
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && path == "/health":
		h.handleHealth(w)
	case r.Method == http.MethodGet && path == "/":
		h.handleRoot(w)
	case r.Method == http.MethodGet && (path == "/v1/models" || path == "/models"):
		h.handleModels(w, "", models.DialectOpenAI)
	case r.Method == http.MethodGet && (path == "/openai/v1/models" || path == "/openai/models"):
		h.handleModels(w, models.DialectOpenAI, models.DialectOpenAI)
	case r.Method == http.MethodGet && (path == "/anthropic/v1/models" || path == "/anthropic/models"):
		h.handleModels(w, models.DialectClaude, models.DialectClaude)
	case r.Method == http.MethodPost && claudeRoutePaths[path]:
		h.handleRoute(w, r, models.DialectClaude)
	case r.Method == http.MethodPost && openaiRoutePaths[path]:
		h.handleRoute(w, r, models.DialectOpenAI)
	case r.Method == http.MethodPost && autoRoutePaths[path]:
		h.handleRoute(w, r, "")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not found"}` + "\n"))
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter) {
	snap := h.Store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"providers": snap.Config.EnabledProviders(),
	})
}

func (h *Handler) handleRoot(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "llm-router",
		"version": h.Version,
		"endpoints": []string{
			"GET /health",
			"GET /metrics",
			"GET /v1/models",
			"GET /openai/v1/models",
			"GET /anthropic/v1/models",
			"POST /v1/chat/completions",
			"POST /v1/messages",
			"POST /route",
		},
	})
}

// handleModels lists the models a snapshot exposes. filter narrows to
// entries serving one dialect; shape picks the wire format.
func (h *Handler) handleModels(w http.ResponseWriter, filter, shape models.Dialect) {
	snap := h.Store.Snapshot()
	entries := snap.ModelEntries()
	created := snap.LoadedAt.Unix()

	if shape == models.DialectClaude {
		list := models.AnthropicModelList{Data: []models.AnthropicModelInfo{}}
		for _, e := range entries {
			if filter != "" && !e.SupportsFormat(filter) {
				continue
			}
			list.Data = append(list.Data, models.AnthropicModelInfo{
				Type:        "model",
				ID:          e.ID,
				DisplayName: e.DisplayName,
				CreatedAt:   snap.LoadedAt.UTC().Format(time.RFC3339),
			})
		}
		if n := len(list.Data); n > 0 {
			list.FirstID = list.Data[0].ID
			list.LastID = list.Data[n-1].ID
		}
		writeJSON(w, http.StatusOK, list)
		return
	}

	list := models.OpenAIModelList{Object: "list", Data: []models.OpenAIModelInfo{}}
	for _, e := range entries {
		if filter != "" && !e.SupportsFormat(filter) {
			continue
		}
		list.Data = append(list.Data, models.OpenAIModelInfo{
			ID:      e.ID,
			Object:  "model",
			Created: created,
			OwnedBy: e.OwnedBy,
		})
	}
	writeJSON(w, http.StatusOK, list)
}

// handleRoute is the main chat path: read, infer dialect if needed,
// resolve, dispatch, write.
func (h *Handler) handleRoute(w http.ResponseWriter, r *http.Request, source models.Dialect) {
	start := time.Now()
	route := normalizePath(r.URL.Path)
	requestID := "req_" + uuid.NewString()
	w.Header().Set("x-request-id", requestID)

	body, err := readBody(r, h.Env.MaxRequestBodyBytes)
	if err != nil {
		dialect := source
		if dialect == "" {
			dialect = models.DialectClaude
		}
		status := http.StatusBadRequest
		message := "Reading request body failed."
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
			message = "Request body exceeds the configured limit."
		}
		writeError(w, dialect, status, models.ErrTypeInvalidRequest, message)
		h.observe(route, dialect, status, start)
		return
	}

	if source == "" {
		source = InferDialect(body, r.Header)
	}
	if logging.IsDebugEnabled() {
		logging.LogDebugRequestRaw("inbound", route, secrets.MaskJSONSecrets(body))
	}

	stream := gjson.GetBytes(body, "stream").Type == gjson.True
	requestedModel := gjson.GetBytes(body, "model").String()

	snap := h.Store.Snapshot()
	resolution, err := h.Resolver.Resolve(snap.Config, requestedModel, source)
	if err != nil {
		status := http.StatusBadRequest
		var notFound *config.NotFoundError
		if errors.As(err, &notFound) {
			status = http.StatusNotFound
		}
		writeError(w, source, status, models.ErrTypeInvalidRequest, err.Error())
		h.observe(route, source, status, start)
		return
	}

	log.Printf("[llm-router] %s %s -> %s (%d candidates, stream=%t)",
		requestID, route, resolution.ResolvedModel, len(resolution.Fallbacks)+1, stream)

	result := h.Dispatcher.Dispatch(r.Context(), source, body, stream, resolution.Candidates(), r.Header, requestID)
	status := h.writeResult(w, source, result, requestID)
	h.observe(route, source, status, start)
}

// writeResult sends a dispatch outcome to the client and returns the status
// written.
func (h *Handler) writeResult(w http.ResponseWriter, source models.Dialect, result *CallResult, requestID string) int {
	switch {
	case result.OK && result.Stream != nil:
		h.pumpStream(w, result, requestID)
		return http.StatusOK

	case result.OK:
		for name, values := range result.Header {
			for _, v := range values {
				w.Header().Add(name, v)
			}
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(result.Status)
		w.Write(result.Body)
		return result.Status

	case result.Body != nil:
		body := result.Body
		if result.NeedsTranslate {
			from := models.DialectOpenAI
			if source == models.DialectOpenAI {
				from = models.DialectClaude
			}
			body = reshapeErrorBody(body, from, source)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(result.Status)
		w.Write(body)
		return result.Status

	default:
		writeError(w, source, result.Status, wireErrorType(result), result.Message)
		return result.Status
	}
}

// wireErrorType maps a synthesized failure onto the client-visible taxonomy.
func wireErrorType(result *CallResult) string {
	switch result.Kind {
	case CategoryConfiguration:
		return models.ErrTypeConfiguration
	case CategoryNotSupported:
		return models.ErrTypeNotSupported
	case "":
		if result.Status == http.StatusBadRequest {
			return models.ErrTypeInvalidRequest
		}
	}
	return models.ErrTypeAPI
}

// pumpStream copies the upstream SSE body to the client chunk by chunk,
// through the transform when the dialects differ.
func (h *Handler) pumpStream(w http.ResponseWriter, result *CallResult, requestID string) {
	defer result.Stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var out io.Writer = &flushWriter{w: w}
	if logging.IsDebugEnabled() {
		out = io.MultiWriter(out, sseDebugWriter{})
	}
	buf := make([]byte, 32<<10)
	for {
		n, err := result.Stream.Read(buf)
		if n > 0 {
			if result.Transform != nil {
				if terr := result.Transform.Feed(buf[:n], out); terr != nil {
					log.Printf("[llm-router] %s stream transform error: %v", requestID, terr)
					return
				}
			} else if _, werr := out.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			break
		}
	}
	if result.Transform != nil {
		if err := result.Transform.Flush(out); err != nil {
			log.Printf("[llm-router] %s stream flush error: %v", requestID, err)
		}
	}
}

// sseDebugWriter copies client-bound SSE bytes into the debug capture.
type sseDebugWriter struct{}

func (sseDebugWriter) Write(p []byte) (int, error) {
	logging.LogDebugSSE("outbound", "frame", secrets.MaskAllSecrets(string(p)))
	return len(p), nil
}

// flushWriter flushes after every write so SSE frames leave immediately.
type flushWriter struct {
	w http.ResponseWriter
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if f, ok := fw.w.(http.Flusher); ok {
		f.Flush()
	}
	return n, err
}

func (h *Handler) observe(route string, dialect models.Dialect, status int, start time.Time) {
	h.Metrics.ObserveRequest(route, string(dialect), strconv.Itoa(status))
	h.Metrics.ObserveDuration(route, time.Since(start).Seconds())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[llm-router] Error writing response: %v", err)
	}
}

// InferDialect picks the source dialect of a request on the
// dialect-agnostic routes. Rules run in order; the first match wins.
func InferDialect(body []byte, header http.Header) models.Dialect {
	if header.Get("anthropic-version") != "" {
		return models.DialectClaude
	}
	if gjson.GetBytes(body, "anthropic_version").Exists() || gjson.GetBytes(body, "anthropicVersion").Exists() {
		return models.DialectClaude
	}
	if gjson.GetBytes(body, "max_completion_tokens").Exists() ||
		gjson.GetBytes(body, "response_format").Exists() ||
		gjson.GetBytes(body, "n").Exists() {
		return models.DialectOpenAI
	}

	for _, tool := range gjson.GetBytes(body, "tools").Array() {
		if tool.Get("input_schema").Exists() {
			return models.DialectClaude
		}
		if tool.Get("type").String() == "function" || tool.Get("function").Exists() {
			return models.DialectOpenAI
		}
	}

	tc := gjson.GetBytes(body, "tool_choice")
	if tc.Type == gjson.String {
		switch tc.String() {
		case "required", "none":
			return models.DialectOpenAI
		}
	}
	switch tc.Get("type").String() {
	case "function":
		return models.DialectOpenAI
	case "any", "tool":
		return models.DialectClaude
	}

	for _, msg := range gjson.GetBytes(body, "messages").Array() {
		if msg.Get("role").String() == "tool" || msg.Get("tool_call_id").Exists() || msg.Get("tool_calls").Exists() {
			return models.DialectOpenAI
		}
		for _, block := range msg.Get("content").Array() {
			switch block.Get("type").String() {
			case "tool_use", "tool_result", "thinking", "redacted_thinking":
				return models.DialectClaude
			case "image_url", "input_text", "input_image":
				return models.DialectOpenAI
			}
		}
	}

	if gjson.GetBytes(body, "system").Exists() {
		return models.DialectClaude
	}
	return models.DialectClaude
}
