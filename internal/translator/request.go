// Package translator converts chat requests, responses, and SSE streams
// between the openai and claude wire dialects.
package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedarden/llm-router/pkg/models"
)

// defaultMaxTokens is used when an openai request carries no token limit;
// the claude dialect requires max_tokens on every request.
const defaultMaxTokens = 4096

// TranslateRequest converts a request body from the source dialect to the
// target dialect, setting the backend model id and the stream flag on the
// result. Identical dialects pass the body through unchanged.
func TranslateRequest(source, target models.Dialect, backendModel string, body []byte, stream bool) ([]byte, error) {
	if source == target {
		return body, nil
	}
	switch {
	case source == models.DialectClaude && target == models.DialectOpenAI:
		return anthropicRequestToOpenAI(body, backendModel, stream)
	case source == models.DialectOpenAI && target == models.DialectClaude:
		return openAIRequestToAnthropic(body, backendModel, stream)
	default:
		return nil, fmt.Errorf("unsupported translation %s -> %s", source, target)
	}
}

// anthropicRequestToOpenAI converts a claude messages request into an openai
// chat-completions request.
func anthropicRequestToOpenAI(body []byte, backendModel string, stream bool) ([]byte, error) {
	var req models.AnthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("parsing claude request: %w", err)
	}

	out := &models.OpenAIRequest{
		Model:       backendModel,
		Stream:      stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if len(req.StopSequences) > 0 {
		out.Stop = req.StopSequences
	}
	if req.Metadata != nil && req.Metadata.UserID != "" {
		out.User = req.Metadata.UserID
	}

	messages, err := anthropicMessagesToOpenAI(&req)
	if err != nil {
		return nil, fmt.Errorf("transforming messages: %w", err)
	}
	out.Messages = messages

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, models.OpenAITool{
			Type: "function",
			Function: models.OpenAIFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	if req.ToolChoice != nil {
		out.ToolChoice = anthropicToolChoiceToOpenAI(req.ToolChoice)
	}

	// Usage arrives on the final chunk only when asked for.
	if stream {
		out.StreamOptions = &models.StreamOptions{IncludeUsage: true}
	}

	return json.Marshal(out)
}

// anthropicMessagesToOpenAI flattens the system prompt and each claude
// message into the openai message list. Tool results become "tool" role
// messages; a user turn may therefore expand into several entries.
func anthropicMessagesToOpenAI(req *models.AnthropicRequest) ([]models.OpenAIMessage, error) {
	var messages []models.OpenAIMessage

	if req.System != nil {
		if system := systemPromptText(req.System); system != "" {
			messages = append(messages, models.OpenAIMessage{Role: "system", Content: system})
		}
	}

	for _, msg := range req.Messages {
		expanded, err := anthropicMessageToOpenAI(msg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, expanded...)
	}

	return messages, nil
}

// systemPromptText extracts the system prompt, which arrives as a string or
// as a list of text blocks.
func systemPromptText(system interface{}) string {
	switch s := system.(type) {
	case string:
		return s
	case []interface{}:
		var parts []string
		for _, item := range s {
			if block, ok := item.(map[string]interface{}); ok {
				if text, ok := block["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n\n")
	default:
		return ""
	}
}

// anthropicMessageToOpenAI converts one claude message, expanding tool
// results into separate tool-role messages.
func anthropicMessageToOpenAI(msg models.AnthropicMessage) ([]models.OpenAIMessage, error) {
	blocks, err := parseContentBlocks(msg.Content)
	if err != nil {
		return nil, err
	}

	switch msg.Role {
	case "user":
		var out []models.OpenAIMessage
		hasUserContent := false
		for _, b := range blocks {
			if b.Type != "tool_result" {
				hasUserContent = true
				break
			}
		}
		if hasUserContent {
			out = append(out, userBlocksToOpenAI(blocks))
		}
		for _, b := range blocks {
			if b.Type != "tool_result" {
				continue
			}
			content := toolResultText(b)
			if b.IsError {
				content = "[Error] " + content
			}
			out = append(out, models.OpenAIMessage{
				Role:       "tool",
				Content:    content,
				ToolCallID: b.ToolUseID,
			})
		}
		return out, nil

	case "assistant":
		return []models.OpenAIMessage{assistantBlocksToOpenAI(blocks)}, nil

	default:
		return []models.OpenAIMessage{{Role: msg.Role, Content: textOfBlocks(blocks)}}, nil
	}
}

// parseContentBlocks normalizes message content, which can be a bare string
// or a block list.
func parseContentBlocks(content interface{}) ([]models.ContentBlock, error) {
	switch c := content.(type) {
	case string:
		return []models.ContentBlock{{Type: "text", Text: c}}, nil
	case []interface{}:
		blocks := make([]models.ContentBlock, 0, len(c))
		for _, item := range c {
			data, err := json.Marshal(item)
			if err != nil {
				return nil, err
			}
			var block models.ContentBlock
			if err := json.Unmarshal(data, &block); err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		}
		return blocks, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported content type: %T", content)
	}
}

// userBlocksToOpenAI converts user blocks into an openai user message. A
// single text block stays a plain string so round-trips are lossless.
func userBlocksToOpenAI(blocks []models.ContentBlock) models.OpenAIMessage {
	var parts []models.OpenAIContentPart
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, models.OpenAIContentPart{Type: "text", Text: b.Text})
		case "image":
			if b.Source == nil {
				continue
			}
			url := b.Source.URL
			if url == "" {
				url = fmt.Sprintf("data:%s;base64,%s", b.Source.MediaType, b.Source.Data)
			}
			parts = append(parts, models.OpenAIContentPart{
				Type:     "image_url",
				ImageURL: &models.ImageURL{URL: url},
			})
		}
	}

	if len(parts) == 1 && parts[0].Type == "text" {
		return models.OpenAIMessage{Role: "user", Content: parts[0].Text}
	}
	if len(parts) == 0 {
		return models.OpenAIMessage{Role: "user", Content: ""}
	}
	asAny := make([]interface{}, len(parts))
	for i, p := range parts {
		asAny[i] = p
	}
	return models.OpenAIMessage{Role: "user", Content: asAny}
}

// assistantBlocksToOpenAI converts assistant blocks: text concatenates,
// tool_use blocks become tool_calls.
func assistantBlocksToOpenAI(blocks []models.ContentBlock) models.OpenAIMessage {
	msg := models.OpenAIMessage{Role: "assistant"}
	var text []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			text = append(text, b.Text)
		case "tool_use":
			args, _ := json.Marshal(b.Input)
			msg.ToolCalls = append(msg.ToolCalls, models.OpenAIToolCall{
				ID:   b.ID,
				Type: "function",
				Function: models.OpenAIFunctionCall{
					Name:      b.Name,
					Arguments: string(args),
				},
			})
		}
	}
	if len(text) > 0 {
		msg.Content = strings.Join(text, "")
	}
	return msg
}

// toolResultText extracts the result content of a tool_result block, which
// can be a string or nested text blocks.
func toolResultText(block models.ContentBlock) string {
	switch c := block.Content.(type) {
	case string:
		return c
	case []interface{}:
		var parts []string
		for _, item := range c {
			if m, ok := item.(map[string]interface{}); ok {
				if m["type"] == "text" {
					if text, ok := m["text"].(string); ok {
						parts = append(parts, text)
					}
				}
			}
		}
		return strings.Join(parts, "\n")
	case nil:
		return ""
	default:
		data, err := json.Marshal(block.Content)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// textOfBlocks concatenates the text blocks of a message.
func textOfBlocks(blocks []models.ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "")
}

// anthropicToolChoiceToOpenAI maps the claude tool_choice field onto the
// openai one: auto -> auto, any -> required, none -> none, tool -> function.
func anthropicToolChoiceToOpenAI(choice interface{}) interface{} {
	m, ok := choice.(map[string]interface{})
	if !ok {
		return choice
	}
	switch m["type"] {
	case "auto":
		return "auto"
	case "any":
		return "required"
	case "none":
		return "none"
	case "tool":
		if name, ok := m["name"].(string); ok {
			return map[string]interface{}{
				"type":     "function",
				"function": map[string]interface{}{"name": name},
			}
		}
	}
	return choice
}

// openAIRequestToAnthropic converts an openai chat-completions request into
// a claude messages request.
func openAIRequestToAnthropic(body []byte, backendModel string, stream bool) ([]byte, error) {
	var req models.OpenAIRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("parsing openai request: %w", err)
	}

	out := &models.AnthropicRequest{
		Model:       backendModel,
		Stream:      stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}

	out.MaxTokens = req.MaxTokens
	if out.MaxTokens == 0 {
		out.MaxTokens = req.MaxCompletionTokens
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}

	switch stop := req.Stop.(type) {
	case string:
		out.StopSequences = []string{stop}
	case []interface{}:
		for _, s := range stop {
			if str, ok := s.(string); ok {
				out.StopSequences = append(out.StopSequences, str)
			}
		}
	}
	if req.User != "" {
		out.Metadata = &models.Metadata{UserID: req.User}
	}

	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system", "developer":
			system = append(system, openAIContentText(msg.Content))
		case "user":
			out.Messages = append(out.Messages, models.AnthropicMessage{
				Role:    "user",
				Content: openAIUserContentToBlocks(msg.Content),
			})
		case "assistant":
			out.Messages = append(out.Messages, openAIAssistantToAnthropic(msg))
		case "tool":
			out.Messages = append(out.Messages, models.AnthropicMessage{
				Role: "user",
				Content: []interface{}{map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": msg.ToolCallID,
					"content":     openAIContentText(msg.Content),
				}},
			})
		}
	}
	if len(system) > 0 {
		out.System = strings.Join(system, "\n\n")
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, models.AnthropicTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}
	if req.ToolChoice != nil {
		if tc := openAIToolChoiceToAnthropic(req.ToolChoice); tc != nil {
			out.ToolChoice = tc
		}
	}

	return json.Marshal(out)
}

// openAIContentText flattens openai message content (string or part list)
// into plain text.
func openAIContentText(content interface{}) string {
	switch c := content.(type) {
	case string:
		return c
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
		return strings.Join(parts, "")
	default:
		return ""
	}
}

// openAIUserContentToBlocks converts user content into claude blocks. Plain
// strings stay strings.
func openAIUserContentToBlocks(content interface{}) interface{} {
	parts, ok := content.([]interface{})
	if !ok {
		if s, ok := content.(string); ok {
			return s
		}
		return ""
	}

	var blocks []interface{}
	for _, item := range parts {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		switch m["type"] {
		case "text", "input_text":
			if text, ok := m["text"].(string); ok {
				blocks = append(blocks, map[string]interface{}{"type": "text", "text": text})
			}
		case "image_url", "input_image":
			blocks = append(blocks, imagePartToBlock(m))
		}
	}
	if len(blocks) == 0 {
		return ""
	}
	return blocks
}

// imagePartToBlock maps an openai image part onto a claude image block,
// decoding data: URLs back into base64 sources.
func imagePartToBlock(part map[string]interface{}) map[string]interface{} {
	url := ""
	if img, ok := part["image_url"].(map[string]interface{}); ok {
		url, _ = img["url"].(string)
	}
	if url == "" {
		url, _ = part["image_url"].(string)
	}

	if strings.HasPrefix(url, "data:") {
		meta, data, found := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
		if found {
			mediaType := strings.TrimSuffix(meta, ";base64")
			return map[string]interface{}{
				"type": "image",
				"source": map[string]interface{}{
					"type":       "base64",
					"media_type": mediaType,
					"data":       data,
				},
			}
		}
	}
	return map[string]interface{}{
		"type": "image",
		"source": map[string]interface{}{
			"type": "url",
			"url":  url,
		},
	}
}

// openAIAssistantToAnthropic converts an assistant message, expanding
// tool_calls into tool_use blocks. Malformed argument JSON becomes an empty
// object rather than failing the request.
func openAIAssistantToAnthropic(msg models.OpenAIMessage) models.AnthropicMessage {
	var blocks []interface{}
	if text := openAIContentText(msg.Content); text != "" {
		blocks = append(blocks, map[string]interface{}{"type": "text", "text": text})
	}
	for _, tc := range msg.ToolCalls {
		var input interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil || input == nil {
			input = map[string]interface{}{}
		}
		blocks = append(blocks, map[string]interface{}{
			"type":  "tool_use",
			"id":    tc.ID,
			"name":  tc.Function.Name,
			"input": input,
		})
	}
	if len(blocks) == 0 {
		return models.AnthropicMessage{Role: "assistant", Content: ""}
	}
	return models.AnthropicMessage{Role: "assistant", Content: blocks}
}

// openAIToolChoiceToAnthropic maps the openai tool_choice field onto the
// claude one.
func openAIToolChoiceToAnthropic(choice interface{}) interface{} {
	switch c := choice.(type) {
	case string:
		switch c {
		case "auto":
			return map[string]interface{}{"type": "auto"}
		case "required":
			return map[string]interface{}{"type": "any"}
		case "none":
			return map[string]interface{}{"type": "none"}
		}
	case map[string]interface{}:
		if c["type"] == "function" {
			if fn, ok := c["function"].(map[string]interface{}); ok {
				if name, ok := fn["name"].(string); ok {
					return map[string]interface{}{"type": "tool", "name": name}
				}
			}
		}
	}
	return nil
}
