// Package proxy implements the gateway's HTTP server: request gating,
// dialect routing, upstream dispatch with retry and failover, and the
// streaming pump.
package proxy

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/jedarden/llm-router/pkg/models"
)

// writeError writes an error envelope in the client's dialect.
func writeError(w http.ResponseWriter, dialect models.Dialect, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	var envelope interface{}
	if dialect == models.DialectOpenAI {
		envelope = models.NewOpenAIError(errType, message)
	} else {
		envelope = models.NewAnthropicError(errType, message)
	}
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		log.Printf("[llm-router] Error writing error response: %v", err)
	}
}

// reshapeErrorBody converts an upstream error body into the client dialect's
// envelope. Bodies already shaped for the client pass through; unrecognized
// bodies are wrapped as api_error with the raw text as the message.
func reshapeErrorBody(body []byte, from, to models.Dialect) []byte {
	if from == to {
		return body
	}

	// Both dialects nest type and message under "error".
	errType := "api_error"
	message := ""
	if e := gjson.GetBytes(body, "error"); e.Exists() {
		if t := e.Get("type").String(); t != "" {
			errType = t
		}
		message = e.Get("message").String()
	}
	if message == "" {
		message = string(body)
	}

	var envelope interface{}
	if to == models.DialectOpenAI {
		envelope = models.NewOpenAIError(errType, message)
	} else {
		envelope = models.NewAnthropicError(errType, message)
	}
	out, err := json.Marshal(envelope)
	if err != nil {
		return body
	}
	return out
}
