// Package secrets provides utilities for secure handling of sensitive data.
// Provider API keys and the gateway master key must never reach logs, error
// messages, or config summaries unmasked; everything printable routes
// through this package first.
package secrets

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// keyPatterns matches common API key formats in free-form text.
	keyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{10,}`), // Anthropic style
		regexp.MustCompile(`sk-or-[a-zA-Z0-9_-]{10,}`),  // OpenRouter style
		regexp.MustCompile(`sk-[a-zA-Z0-9_-]{10,}`),     // OpenAI style
	}

	bearerPattern = regexp.MustCompile(`Bearer\s+([a-zA-Z0-9._-]+)`)

	// Field names that are masked wholesale in JSON payloads.
	sensitiveFields = []string{
		"api_key",
		"apiKey",
		"api-key",
		"authorization",
		"Authorization",
		"x-api-key",
		"X-Api-Key",
		"masterKey",
		"secret",
		"password",
		"token",
		"bearer",
	}
)

// MaskAPIKey masks an API key for safe display.
// Shows only the first 4 and last 4 characters.
// For very short keys, returns "***".
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// MaskBearer masks a Bearer token in a string.
func MaskBearer(s string) string {
	return bearerPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := strings.SplitN(match, " ", 2)
		if len(parts) == 2 {
			return "Bearer " + MaskAPIKey(parts[1])
		}
		return match
	})
}

// MaskAllSecrets masks all known secret patterns in a string.
// Useful for sanitizing log output or error messages.
func MaskAllSecrets(s string) string {
	result := s
	for _, p := range keyPatterns {
		result = p.ReplaceAllStringFunc(result, MaskAPIKey)
	}
	return MaskBearer(result)
}

// MaskJSONSecrets masks sensitive fields in JSON data.
// Used when debug capture writes request/response payloads.
func MaskJSONSecrets(jsonData []byte) []byte {
	var data map[string]interface{}
	if err := json.Unmarshal(jsonData, &data); err != nil {
		// Not valid JSON, fall back to string masking
		return []byte(MaskAllSecrets(string(jsonData)))
	}

	maskMapSecrets(data)

	result, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return []byte(MaskAllSecrets(string(jsonData)))
	}
	return result
}

// maskMapSecrets recursively masks sensitive fields in a map.
func maskMapSecrets(data map[string]interface{}) {
	for key, value := range data {
		if isSensitiveField(key) {
			if strVal, ok := value.(string); ok {
				data[key] = MaskAPIKey(strVal)
			}
			continue
		}

		switch v := value.(type) {
		case map[string]interface{}:
			maskMapSecrets(v)
		case []interface{}:
			data[key] = maskSliceSecrets(v)
		case string:
			data[key] = MaskAllSecrets(v)
		}
	}
}

// maskSliceSecrets recursively masks sensitive fields in a slice.
func maskSliceSecrets(data []interface{}) []interface{} {
	result := make([]interface{}, len(data))
	for i, value := range data {
		switch v := value.(type) {
		case map[string]interface{}:
			maskMapSecrets(v)
			result[i] = v
		case []interface{}:
			result[i] = maskSliceSecrets(v)
		case string:
			result[i] = MaskAllSecrets(v)
		default:
			result[i] = v
		}
	}
	return result
}

// isSensitiveField checks if a field name indicates sensitive data.
func isSensitiveField(name string) bool {
	nameLower := strings.ToLower(name)

	for _, sensitive := range sensitiveFields {
		if strings.EqualFold(sensitive, nameLower) {
			return true
		}
	}

	// Token-count fields share the "token" substring but are not secrets.
	nonSensitive := []string{
		"max_tokens", "maxTokens", "total_tokens", "input_tokens", "output_tokens",
		"completion_tokens", "prompt_tokens", "budget_tokens",
	}
	for _, ns := range nonSensitive {
		if strings.EqualFold(ns, nameLower) {
			return false
		}
	}

	if strings.Contains(nameLower, "api_key") ||
		strings.Contains(nameLower, "apikey") ||
		strings.Contains(nameLower, "api-key") ||
		strings.Contains(nameLower, "secret_key") ||
		strings.Contains(nameLower, "secretkey") ||
		strings.Contains(nameLower, "private_key") ||
		nameLower == "secret" ||
		nameLower == "password" ||
		strings.Contains(nameLower, "credential") {
		return true
	}

	return false
}

// SanitizeHeaders masks sensitive headers for logging.
// Returns a new map with sensitive values masked.
func SanitizeHeaders(headers map[string][]string) map[string][]string {
	result := make(map[string][]string)
	for key, values := range headers {
		keyLower := strings.ToLower(key)
		if keyLower == "authorization" ||
			keyLower == "x-api-key" ||
			keyLower == "api-key" ||
			strings.Contains(keyLower, "key") ||
			strings.Contains(keyLower, "token") ||
			strings.Contains(keyLower, "secret") {
			maskedValues := make([]string, len(values))
			for i, v := range values {
				maskedValues[i] = MaskAPIKey(v)
			}
			result[key] = maskedValues
		} else {
			result[key] = values
		}
	}
	return result
}

// RedactForLog returns a string safe for logging.
// The primary function to use when logging any user-provided or
// configuration-derived data that might contain secrets.
func RedactForLog(s string) string {
	return MaskAllSecrets(s)
}

// IsPotentialSecret checks if a string looks like a real secret.
// Used as an advisory check on configured master keys: a key that fails
// this check is probably guessable and gets a startup warning.
func IsPotentialSecret(s string) bool {
	if len(s) < 16 {
		return false
	}
	if strings.HasPrefix(s, "sk-") {
		return true
	}
	return hasHighEntropy(s)
}

// hasHighEntropy is a simple heuristic: secrets typically have high
// character diversity.
func hasHighEntropy(s string) bool {
	if len(s) < 16 {
		return false
	}
	charSet := make(map[rune]bool)
	for _, c := range s {
		charSet[c] = true
	}
	return float64(len(charSet))/float64(len(s)) > 0.6
}

// FormatKeySource returns a display string for where a provider's API key
// comes from.
func FormatKeySource(envVarName string, hasDirectKey bool) string {
	if envVarName != "" {
		return "${" + envVarName + "}"
	}
	if hasDirectKey {
		return "(stored in config)"
	}
	return "(not configured)"
}
