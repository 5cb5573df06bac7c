package translator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedarden/llm-router/pkg/models"
)

// TranslateResponse converts a non-streaming response body from the upstream
// dialect to the client dialect.
func TranslateResponse(from, to models.Dialect, body []byte) ([]byte, error) {
	if from == to {
		return body, nil
	}
	switch {
	case from == models.DialectOpenAI && to == models.DialectClaude:
		return openAIResponseToAnthropic(body)
	case from == models.DialectClaude && to == models.DialectOpenAI:
		return anthropicResponseToOpenAI(body)
	default:
		return nil, fmt.Errorf("unsupported translation %s -> %s", from, to)
	}
}

// openAIResponseToAnthropic builds a claude message from an openai
// chat-completion response.
func openAIResponseToAnthropic(body []byte) ([]byte, error) {
	var resp models.OpenAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing openai response: %w", err)
	}

	out := models.AnthropicResponse{
		ID:    resp.ID,
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
		Usage: &models.AnthropicUsage{},
	}
	if resp.Usage != nil {
		out.Usage.InputTokens = resp.Usage.PromptTokens
		out.Usage.OutputTokens = resp.Usage.CompletionTokens
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.StopReason = finishReasonToStopReason(choice.FinishReason)

		for _, text := range normalizedTextParts(choice.Message.Content) {
			out.Content = append(out.Content, models.AnthropicContentBlock{Type: "text", Text: text})
		}
		for _, tc := range choice.Message.ToolCalls {
			var input interface{}
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil || input == nil {
				input = map[string]interface{}{}
			}
			out.Content = append(out.Content, models.AnthropicContentBlock{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: input,
			})
		}
	}
	if len(out.Content) == 0 {
		out.Content = []models.AnthropicContentBlock{{Type: "text", Text: ""}}
	}

	return json.Marshal(out)
}

// normalizedTextParts flattens openai message content into text pieces:
// a plain string yields one piece, a part list yields its text|input_text
// entries.
func normalizedTextParts(content interface{}) []string {
	switch c := content.(type) {
	case string:
		if c == "" {
			return nil
		}
		return []string{c}
	case []interface{}:
		var parts []string
		for _, item := range c {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			switch m["type"] {
			case "text", "input_text":
				if text, ok := m["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return parts
	default:
		return nil
	}
}

// finishReasonToStopReason maps openai finish_reason values to claude
// stop_reason values.
func finishReasonToStopReason(reason string) string {
	switch reason {
	case "tool_calls":
		return "tool_use"
	case "length":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

// stopReasonToFinishReason is the inverse mapping.
func stopReasonToFinishReason(reason string) string {
	switch reason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

// anthropicResponseToOpenAI builds an openai chat-completion response from a
// claude message.
func anthropicResponseToOpenAI(body []byte) ([]byte, error) {
	var resp models.AnthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing claude response: %w", err)
	}

	msg := models.OpenAIResponseMessage{Role: "assistant"}
	var text string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			msg.ToolCalls = append(msg.ToolCalls, models.OpenAIToolCall{
				ID:   block.ID,
				Type: "function",
				Function: models.OpenAIFunctionCall{
					Name:      block.Name,
					Arguments: string(args),
				},
			})
		case "thinking":
			msg.ReasoningContent += block.Thinking
		}
	}
	msg.Content = text

	out := models.OpenAIResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []models.OpenAIChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: stopReasonToFinishReason(resp.StopReason),
		}},
	}
	if resp.Usage != nil {
		out.Usage = &models.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}

	return json.Marshal(&out)
}
