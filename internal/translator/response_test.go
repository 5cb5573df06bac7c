package translator

import (
	"testing"

	"github.com/tidwall/gjson"

	"github.com/jedarden/llm-router/pkg/models"
)

func TestOpenAIResponseToAnthropic(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "Hi there."},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12}
	}`)
	out, err := TranslateResponse(models.DialectOpenAI, models.DialectClaude, body)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if got := gjson.GetBytes(out, "type").String(); got != "message" {
		t.Errorf("type = %q", got)
	}
	if got := gjson.GetBytes(out, "role").String(); got != "assistant" {
		t.Errorf("role = %q", got)
	}
	if got := gjson.GetBytes(out, "content.0.text").String(); got != "Hi there." {
		t.Errorf("text = %q", got)
	}
	if got := gjson.GetBytes(out, "stop_reason").String(); got != "end_turn" {
		t.Errorf("stop_reason = %q", got)
	}
	if got := gjson.GetBytes(out, "usage.input_tokens").Int(); got != 9 {
		t.Errorf("input_tokens = %d", got)
	}
	if got := gjson.GetBytes(out, "usage.output_tokens").Int(); got != 3 {
		t.Errorf("output_tokens = %d", got)
	}
}

func TestOpenAIResponseToolCallsToToolUse(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-2",
		"model": "gpt-4o",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_9", "type": "function", "function": {"name": "get_time", "arguments": "{\"tz\":\"UTC\"}"}}
			]},
			"finish_reason": "tool_calls"
		}]
	}`)
	out, err := TranslateResponse(models.DialectOpenAI, models.DialectClaude, body)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if got := gjson.GetBytes(out, "stop_reason").String(); got != "tool_use" {
		t.Errorf("stop_reason = %q", got)
	}
	block := gjson.GetBytes(out, "content.0")
	if got := block.Get("type").String(); got != "tool_use" {
		t.Errorf("block type = %q", got)
	}
	if got := block.Get("id").String(); got != "call_9" {
		t.Errorf("block id = %q", got)
	}
	if got := block.Get("input.tz").String(); got != "UTC" {
		t.Errorf("input = %q", got)
	}
}

func TestOpenAIResponseEmptyContentNormalized(t *testing.T) {
	body := []byte(`{"id":"c","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":""},"finish_reason":"stop"}]}`)
	out, err := TranslateResponse(models.DialectOpenAI, models.DialectClaude, body)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	content := gjson.GetBytes(out, "content")
	if got := content.Get("#").Int(); got != 1 {
		t.Fatalf("content blocks = %d, want 1", got)
	}
	if got := content.Get("0.type").String(); got != "text" {
		t.Errorf("block type = %q", got)
	}
	if got := content.Get("0.text").String(); got != "" {
		t.Errorf("text = %q, want empty", got)
	}
}

func TestAnthropicResponseToOpenAI(t *testing.T) {
	body := []byte(`{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet",
		"content": [
			{"type": "thinking", "thinking": "consider the question"},
			{"type": "text", "text": "Four."},
			{"type": "tool_use", "id": "toolu_2", "name": "calc", "input": {"expr": "2+2"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 20, "output_tokens": 5}
	}`)
	out, err := TranslateResponse(models.DialectClaude, models.DialectOpenAI, body)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if got := gjson.GetBytes(out, "object").String(); got != "chat.completion" {
		t.Errorf("object = %q", got)
	}
	choice := gjson.GetBytes(out, "choices.0")
	if got := choice.Get("finish_reason").String(); got != "tool_calls" {
		t.Errorf("finish_reason = %q", got)
	}
	if got := choice.Get("message.content").String(); got != "Four." {
		t.Errorf("content = %q", got)
	}
	if got := choice.Get("message.reasoning_content").String(); got != "consider the question" {
		t.Errorf("reasoning_content = %q", got)
	}
	tc := choice.Get("message.tool_calls.0")
	if got := tc.Get("id").String(); got != "toolu_2" {
		t.Errorf("tool_call id = %q", got)
	}
	if got := gjson.Get(tc.Get("function.arguments").String(), "expr").String(); got != "2+2" {
		t.Errorf("arguments = %q", got)
	}
	if got := gjson.GetBytes(out, "usage.total_tokens").Int(); got != 25 {
		t.Errorf("total_tokens = %d", got)
	}
}

func TestStopReasonMappings(t *testing.T) {
	if got := finishReasonToStopReason("length"); got != "max_tokens" {
		t.Errorf("length -> %q", got)
	}
	if got := finishReasonToStopReason("weird"); got != "end_turn" {
		t.Errorf("weird -> %q", got)
	}
	if got := stopReasonToFinishReason("max_tokens"); got != "length" {
		t.Errorf("max_tokens -> %q", got)
	}
	if got := stopReasonToFinishReason("end_turn"); got != "stop" {
		t.Errorf("end_turn -> %q", got)
	}
}
