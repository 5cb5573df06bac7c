package models

// Error types emitted to clients. Internal failure categories never appear
// on the wire; they are mapped to one of these before writing a response.
const (
	ErrTypeConfiguration  = "configuration_error"
	ErrTypeInvalidRequest = "invalid_request_error"
	ErrTypeAPI            = "api_error"
	ErrTypeNotSupported   = "not_supported_error"
)

// AnthropicErrorResponse is the claude-dialect error envelope.
type AnthropicErrorResponse struct {
	Type  string         `json:"type"`
	Error AnthropicError `json:"error"`
}

// AnthropicError is the inner error of the claude envelope.
type AnthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicError builds a claude-dialect error envelope.
func NewAnthropicError(errType, message string) AnthropicErrorResponse {
	return AnthropicErrorResponse{
		Type:  "error",
		Error: AnthropicError{Type: errType, Message: message},
	}
}

// OpenAIErrorResponse is the openai-dialect error envelope.
type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

// OpenAIError is the inner error of the openai envelope.
type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewOpenAIError builds an openai-dialect error envelope.
func NewOpenAIError(errType, message string) OpenAIErrorResponse {
	return OpenAIErrorResponse{
		Error: OpenAIError{Message: message, Type: errType},
	}
}
