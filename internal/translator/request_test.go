package translator

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/jedarden/llm-router/pkg/models"
)

func TestTranslateRequestSameDialectPassthrough(t *testing.T) {
	body := []byte(`{"model":"x","messages":[]}`)
	out, err := TranslateRequest(models.DialectOpenAI, models.DialectOpenAI, "backend", body, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != string(body) {
		t.Errorf("expected passthrough, got %s", out)
	}
}

func TestAnthropicToOpenAIBasic(t *testing.T) {
	body := []byte(`{
		"model": "claude-sonnet",
		"max_tokens": 1024,
		"system": "You are helpful.",
		"messages": [{"role": "user", "content": "Hello"}],
		"temperature": 0.5,
		"stop_sequences": ["END"],
		"metadata": {"user_id": "u-42"}
	}`)
	out, err := TranslateRequest(models.DialectClaude, models.DialectOpenAI, "gpt-4o", body, false)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if got := gjson.GetBytes(out, "model").String(); got != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", got)
	}
	if got := gjson.GetBytes(out, "messages.0.role").String(); got != "system" {
		t.Errorf("first message role = %q, want system", got)
	}
	if got := gjson.GetBytes(out, "messages.0.content").String(); got != "You are helpful." {
		t.Errorf("system content = %q", got)
	}
	if got := gjson.GetBytes(out, "messages.1.content").String(); got != "Hello" {
		t.Errorf("user content = %q", got)
	}
	if got := gjson.GetBytes(out, "max_tokens").Int(); got != 1024 {
		t.Errorf("max_tokens = %d", got)
	}
	if got := gjson.GetBytes(out, "stop.0").String(); got != "END" {
		t.Errorf("stop = %q", got)
	}
	if got := gjson.GetBytes(out, "user").String(); got != "u-42" {
		t.Errorf("user = %q", got)
	}
	if gjson.GetBytes(out, "stream").Bool() {
		t.Error("stream should be false")
	}
	if gjson.GetBytes(out, "stream_options").Exists() {
		t.Error("stream_options should be absent on non-streaming requests")
	}
}

func TestAnthropicToOpenAIStreamOptions(t *testing.T) {
	body := []byte(`{"model":"m","max_tokens":10,"messages":[{"role":"user","content":"hi"}]}`)
	out, err := TranslateRequest(models.DialectClaude, models.DialectOpenAI, "gpt-4o", body, true)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if !gjson.GetBytes(out, "stream").Bool() {
		t.Error("stream should be true")
	}
	if !gjson.GetBytes(out, "stream_options.include_usage").Bool() {
		t.Error("stream_options.include_usage should be set for streaming requests")
	}
}

func TestAnthropicToOpenAISystemBlockList(t *testing.T) {
	body := []byte(`{
		"model": "m", "max_tokens": 10,
		"system": [{"type":"text","text":"Part one."},{"type":"text","text":"Part two."}],
		"messages": [{"role":"user","content":"hi"}]
	}`)
	out, err := TranslateRequest(models.DialectClaude, models.DialectOpenAI, "b", body, false)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	want := "Part one.\n\nPart two."
	if got := gjson.GetBytes(out, "messages.0.content").String(); got != want {
		t.Errorf("system = %q, want %q", got, want)
	}
}

func TestAnthropicToolResultBecomesToolMessage(t *testing.T) {
	body := []byte(`{
		"model": "m", "max_tokens": 10,
		"messages": [
			{"role": "assistant", "content": [
				{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Oslo"}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "toolu_1", "content": "12C", "is_error": true}
			]}
		]
	}`)
	out, err := TranslateRequest(models.DialectClaude, models.DialectOpenAI, "b", body, false)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if got := gjson.GetBytes(out, "messages.0.tool_calls.0.id").String(); got != "toolu_1" {
		t.Errorf("tool_call id = %q", got)
	}
	if got := gjson.GetBytes(out, "messages.0.tool_calls.0.function.name").String(); got != "get_weather" {
		t.Errorf("tool_call name = %q", got)
	}
	args := gjson.GetBytes(out, "messages.0.tool_calls.0.function.arguments").String()
	if gjson.Get(args, "city").String() != "Oslo" {
		t.Errorf("tool_call arguments = %q", args)
	}

	if got := gjson.GetBytes(out, "messages.1.role").String(); got != "tool" {
		t.Errorf("tool result role = %q, want tool", got)
	}
	if got := gjson.GetBytes(out, "messages.1.tool_call_id").String(); got != "toolu_1" {
		t.Errorf("tool_call_id = %q", got)
	}
	if got := gjson.GetBytes(out, "messages.1.content").String(); got != "[Error] 12C" {
		t.Errorf("tool result content = %q, want error prefix", got)
	}
}

func TestAnthropicToolChoiceMapping(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"type":"auto"}`, `"auto"`},
		{`{"type":"any"}`, `"required"`},
		{`{"type":"none"}`, `"none"`},
		{`{"type":"tool","name":"lookup"}`, `{"function":{"name":"lookup"},"type":"function"}`},
	}
	for _, tc := range cases {
		body := []byte(`{"model":"m","max_tokens":10,"messages":[{"role":"user","content":"hi"}],
			"tools":[{"name":"lookup","input_schema":{"type":"object"}}],
			"tool_choice":` + tc.in + `}`)
		out, err := TranslateRequest(models.DialectClaude, models.DialectOpenAI, "b", body, false)
		if err != nil {
			t.Fatalf("translate failed for %s: %v", tc.in, err)
		}
		if got := gjson.GetBytes(out, "tool_choice").Raw; got != tc.want {
			t.Errorf("tool_choice for %s = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestOpenAIToAnthropicBasic(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"messages": [
			{"role": "system", "content": "Be brief."},
			{"role": "developer", "content": "Answer in French."},
			{"role": "user", "content": "Hello"}
		],
		"stop": "END",
		"user": "u-7"
	}`)
	out, err := TranslateRequest(models.DialectOpenAI, models.DialectClaude, "claude-sonnet", body, false)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if got := gjson.GetBytes(out, "model").String(); got != "claude-sonnet" {
		t.Errorf("model = %q", got)
	}
	if got := gjson.GetBytes(out, "system").String(); got != "Be brief.\n\nAnswer in French." {
		t.Errorf("system = %q", got)
	}
	if got := gjson.GetBytes(out, "max_tokens").Int(); got != defaultMaxTokens {
		t.Errorf("max_tokens = %d, want default %d", got, defaultMaxTokens)
	}
	if got := gjson.GetBytes(out, "stop_sequences.0").String(); got != "END" {
		t.Errorf("stop_sequences = %q", got)
	}
	if got := gjson.GetBytes(out, "metadata.user_id").String(); got != "u-7" {
		t.Errorf("metadata.user_id = %q", got)
	}
	if got := gjson.GetBytes(out, "messages.#").Int(); got != 1 {
		t.Errorf("message count = %d, want 1", got)
	}
}

func TestOpenAIMaxCompletionTokensPreferred(t *testing.T) {
	body := []byte(`{"model":"m","max_completion_tokens":777,"messages":[{"role":"user","content":"hi"}]}`)
	out, err := TranslateRequest(models.DialectOpenAI, models.DialectClaude, "b", body, false)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if got := gjson.GetBytes(out, "max_tokens").Int(); got != 777 {
		t.Errorf("max_tokens = %d, want 777", got)
	}
}

func TestOpenAIToolMessageBecomesToolResult(t *testing.T) {
	body := []byte(`{
		"model": "m",
		"messages": [
			{"role": "assistant", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"go\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_1", "content": "found it"}
		]
	}`)
	out, err := TranslateRequest(models.DialectOpenAI, models.DialectClaude, "b", body, false)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}

	if got := gjson.GetBytes(out, "messages.0.content.0.type").String(); got != "tool_use" {
		t.Errorf("assistant block type = %q", got)
	}
	if got := gjson.GetBytes(out, "messages.0.content.0.input.q").String(); got != "go" {
		t.Errorf("tool_use input = %q", got)
	}
	if got := gjson.GetBytes(out, "messages.1.role").String(); got != "user" {
		t.Errorf("tool result role = %q, want user", got)
	}
	if got := gjson.GetBytes(out, "messages.1.content.0.type").String(); got != "tool_result" {
		t.Errorf("tool result type = %q", got)
	}
	if got := gjson.GetBytes(out, "messages.1.content.0.tool_use_id").String(); got != "call_1" {
		t.Errorf("tool_use_id = %q", got)
	}
}

func TestOpenAIMalformedToolArgumentsBecomeEmptyObject(t *testing.T) {
	body := []byte(`{
		"model": "m",
		"messages": [
			{"role": "assistant", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{not json"}}
			]}
		]
	}`)
	out, err := TranslateRequest(models.DialectOpenAI, models.DialectClaude, "b", body, false)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if got := gjson.GetBytes(out, "messages.0.content.0.input").Raw; got != "{}" {
		t.Errorf("input = %s, want {}", got)
	}
}

func TestOpenAIImageDataURLToBase64Source(t *testing.T) {
	body := []byte(`{
		"model": "m",
		"messages": [{"role": "user", "content": [
			{"type": "text", "text": "what is this"},
			{"type": "image_url", "image_url": {"url": "data:image/png;base64,AAAA"}}
		]}]
	}`)
	out, err := TranslateRequest(models.DialectOpenAI, models.DialectClaude, "b", body, false)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	src := gjson.GetBytes(out, "messages.0.content.1.source")
	if got := src.Get("type").String(); got != "base64" {
		t.Errorf("source type = %q", got)
	}
	if got := src.Get("media_type").String(); got != "image/png" {
		t.Errorf("media_type = %q", got)
	}
	if got := src.Get("data").String(); got != "AAAA" {
		t.Errorf("data = %q", got)
	}
}

func TestOpenAIToolChoiceStrings(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`"auto"`, "auto"},
		{`"required"`, "any"},
		{`"none"`, "none"},
		{`{"type":"function","function":{"name":"f"}}`, "tool"},
	}
	for _, tc := range cases {
		body := []byte(`{"model":"m","messages":[{"role":"user","content":"hi"}],
			"tools":[{"type":"function","function":{"name":"f","parameters":{"type":"object"}}}],
			"tool_choice":` + tc.in + `}`)
		out, err := TranslateRequest(models.DialectOpenAI, models.DialectClaude, "b", body, false)
		if err != nil {
			t.Fatalf("translate failed for %s: %v", tc.in, err)
		}
		if got := gjson.GetBytes(out, "tool_choice.type").String(); got != tc.want {
			t.Errorf("tool_choice for %s = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestToolsCarryAcrossDialects(t *testing.T) {
	body := []byte(`{
		"model": "m", "max_tokens": 10,
		"messages": [{"role":"user","content":"hi"}],
		"tools": [{"name": "search", "description": "Search the web", "input_schema": {"type":"object","properties":{"q":{"type":"string"}}}}]
	}`)
	out, err := TranslateRequest(models.DialectClaude, models.DialectOpenAI, "b", body, false)
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if got := gjson.GetBytes(out, "tools.0.type").String(); got != "function" {
		t.Errorf("tool type = %q", got)
	}
	if got := gjson.GetBytes(out, "tools.0.function.name").String(); got != "search" {
		t.Errorf("tool name = %q", got)
	}
	if !strings.Contains(gjson.GetBytes(out, "tools.0.function.parameters").Raw, `"q"`) {
		t.Error("input_schema not carried into function.parameters")
	}
}
