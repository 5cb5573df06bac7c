package translator

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jedarden/llm-router/pkg/models"
)

// OpenAIToAnthropicStream rewrites an openai chat-completion SSE stream into
// claude message events. Blocks open in arrival order: an optional thinking
// block, the text block, then one tool_use block per tool call, each opened
// and closed explicitly.
type OpenAIToAnthropicStream struct {
	frames frameBuffer

	messageID string
	model     string

	started   bool
	nextIndex int

	thinkingStarted bool
	thinkingClosed  bool
	thinkingIndex   int

	textStarted bool
	textClosed  bool
	textIndex   int

	toolCalls map[int]*streamToolCall

	usage       *models.Usage
	deltaSent   bool
	stopEmitted bool
}

type streamToolCall struct {
	id         string
	name       string
	blockIndex int
	started    bool
	closed     bool
}

// NewOpenAIToAnthropicStream returns a transform for one request. messageID
// seeds the message_start event; model is echoed in it.
func NewOpenAIToAnthropicStream(messageID, model string) *OpenAIToAnthropicStream {
	return &OpenAIToAnthropicStream{
		messageID: messageID,
		model:     model,
		toolCalls: make(map[int]*streamToolCall),
	}
}

// Feed consumes raw upstream bytes and writes completed claude events to w.
func (s *OpenAIToAnthropicStream) Feed(p []byte, w io.Writer) error {
	s.frames.add(p)
	for {
		frame, ok := s.frames.next()
		if !ok {
			return nil
		}
		if frame.data == "" {
			continue
		}
		if frame.data == "[DONE]" {
			if err := s.emitClosing(w); err != nil {
				return err
			}
			continue
		}
		var chunk models.OpenAIStreamChunk
		if err := json.Unmarshal([]byte(frame.data), &chunk); err != nil {
			// A malformed chunk is dropped; the stream carries on.
			continue
		}
		if err := s.handleChunk(&chunk, w); err != nil {
			return err
		}
	}
}

// Flush terminates the stream if the upstream ended without [DONE].
func (s *OpenAIToAnthropicStream) Flush(w io.Writer) error {
	return s.emitClosing(w)
}

func (s *OpenAIToAnthropicStream) handleChunk(chunk *models.OpenAIStreamChunk, w io.Writer) error {
	if chunk.Usage != nil {
		s.usage = chunk.Usage
	}
	if !s.started {
		if err := s.emitMessageStart(w); err != nil {
			return err
		}
		s.started = true
	}

	for i := range chunk.Choices {
		choice := &chunk.Choices[i]
		if choice.Delta.ReasoningContent != "" {
			if err := s.emitThinkingDelta(choice.Delta.ReasoningContent, w); err != nil {
				return err
			}
		}
		if choice.Delta.Content != "" {
			if err := s.emitTextDelta(choice.Delta.Content, w); err != nil {
				return err
			}
		}
		for j := range choice.Delta.ToolCalls {
			if err := s.handleToolCall(&choice.Delta.ToolCalls[j], w); err != nil {
				return err
			}
		}
		if choice.FinishReason != "" {
			if err := s.emitFinish(choice.FinishReason, w); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *OpenAIToAnthropicStream) emitMessageStart(w io.Writer) error {
	event := models.MessageStartEvent{
		Type: models.EventMessageStart,
		Message: models.AnthropicResponse{
			ID:      s.messageID,
			Type:    "message",
			Role:    "assistant",
			Content: []models.AnthropicContentBlock{},
			Model:   s.model,
			Usage:   &models.AnthropicUsage{},
		},
	}
	return s.writeEvent(w, models.EventMessageStart, event)
}

func (s *OpenAIToAnthropicStream) emitThinkingDelta(thinking string, w io.Writer) error {
	if !s.thinkingStarted {
		s.thinkingIndex = s.nextIndex
		s.nextIndex++
		start := models.ContentBlockStartEvent{
			Type:         models.EventContentBlockStart,
			Index:        s.thinkingIndex,
			ContentBlock: models.ContentBlockStartData{Type: "thinking", Thinking: ""},
		}
		if err := s.writeEvent(w, models.EventContentBlockStart, start); err != nil {
			return err
		}
		s.thinkingStarted = true
	}
	delta := models.ContentBlockDeltaEvent{
		Type:  models.EventContentBlockDelta,
		Index: s.thinkingIndex,
		Delta: models.DeltaData{Type: "thinking_delta", Thinking: thinking},
	}
	return s.writeEvent(w, models.EventContentBlockDelta, delta)
}

func (s *OpenAIToAnthropicStream) emitTextDelta(text string, w io.Writer) error {
	if err := s.closeThinkingBlock(w); err != nil {
		return err
	}
	if !s.textStarted {
		s.textIndex = s.nextIndex
		s.nextIndex++
		start := models.ContentBlockStartEvent{
			Type:         models.EventContentBlockStart,
			Index:        s.textIndex,
			ContentBlock: models.ContentBlockStartData{Type: "text", Text: ""},
		}
		if err := s.writeEvent(w, models.EventContentBlockStart, start); err != nil {
			return err
		}
		s.textStarted = true
	}
	delta := models.ContentBlockDeltaEvent{
		Type:  models.EventContentBlockDelta,
		Index: s.textIndex,
		Delta: models.DeltaData{Type: "text_delta", Text: text},
	}
	return s.writeEvent(w, models.EventContentBlockDelta, delta)
}

// handleToolCall accumulates a tool call by its openai index. Arguments may
// arrive before the id/name pair; the block opens once both are known.
func (s *OpenAIToAnthropicStream) handleToolCall(tc *models.OpenAIToolCall, w io.Writer) error {
	idx := 0
	if tc.Index != nil {
		idx = *tc.Index
	}
	state, ok := s.toolCalls[idx]
	if !ok {
		state = &streamToolCall{blockIndex: -1}
		s.toolCalls[idx] = state
	}
	if tc.ID != "" {
		state.id = tc.ID
	}
	if tc.Function.Name != "" {
		state.name = tc.Function.Name
	}

	if !state.started && state.id != "" && state.name != "" {
		if err := s.closeThinkingBlock(w); err != nil {
			return err
		}
		if err := s.closeTextBlock(w); err != nil {
			return err
		}
		state.blockIndex = s.nextIndex
		s.nextIndex++
		start := models.ContentBlockStartEvent{
			Type:  models.EventContentBlockStart,
			Index: state.blockIndex,
			ContentBlock: models.ContentBlockStartData{
				Type:  "tool_use",
				ID:    state.id,
				Name:  state.name,
				Input: map[string]interface{}{},
			},
		}
		if err := s.writeEvent(w, models.EventContentBlockStart, start); err != nil {
			return err
		}
		state.started = true
	}

	if state.started && tc.Function.Arguments != "" {
		delta := models.ContentBlockDeltaEvent{
			Type:  models.EventContentBlockDelta,
			Index: state.blockIndex,
			Delta: models.DeltaData{Type: "input_json_delta", PartialJSON: tc.Function.Arguments},
		}
		return s.writeEvent(w, models.EventContentBlockDelta, delta)
	}
	return nil
}

func (s *OpenAIToAnthropicStream) closeThinkingBlock(w io.Writer) error {
	if !s.thinkingStarted || s.thinkingClosed {
		return nil
	}
	s.thinkingClosed = true
	stop := models.ContentBlockStopEvent{Type: models.EventContentBlockStop, Index: s.thinkingIndex}
	return s.writeEvent(w, models.EventContentBlockStop, stop)
}

func (s *OpenAIToAnthropicStream) closeTextBlock(w io.Writer) error {
	if !s.textStarted || s.textClosed {
		return nil
	}
	s.textClosed = true
	stop := models.ContentBlockStopEvent{Type: models.EventContentBlockStop, Index: s.textIndex}
	return s.writeEvent(w, models.EventContentBlockStop, stop)
}

// emitFinish closes every open block and emits message_delta with the mapped
// stop reason and the output token count seen so far.
func (s *OpenAIToAnthropicStream) emitFinish(finishReason string, w io.Writer) error {
	if s.deltaSent {
		return nil
	}
	if err := s.closeThinkingBlock(w); err != nil {
		return err
	}
	if err := s.closeTextBlock(w); err != nil {
		return err
	}
	indices := make([]int, 0, len(s.toolCalls))
	for idx := range s.toolCalls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		state := s.toolCalls[idx]
		if state.started && !state.closed {
			stop := models.ContentBlockStopEvent{Type: models.EventContentBlockStop, Index: state.blockIndex}
			if err := s.writeEvent(w, models.EventContentBlockStop, stop); err != nil {
				return err
			}
			state.closed = true
		}
	}

	delta := models.MessageDeltaEvent{
		Type:  models.EventMessageDelta,
		Delta: models.MessageDeltaData{StopReason: finishReasonToStopReason(finishReason)},
		Usage: &models.MessageDeltaUsage{},
	}
	if s.usage != nil {
		delta.Usage.OutputTokens = s.usage.CompletionTokens
	}
	s.deltaSent = true
	return s.writeEvent(w, models.EventMessageDelta, delta)
}

// emitClosing terminates the claude stream exactly once.
func (s *OpenAIToAnthropicStream) emitClosing(w io.Writer) error {
	if s.stopEmitted {
		return nil
	}
	if s.started && !s.deltaSent {
		if err := s.emitFinish("stop", w); err != nil {
			return err
		}
	}
	s.stopEmitted = true
	return writeSSEEvent(w, models.EventMessageStop, []byte("{}"))
}

func (s *OpenAIToAnthropicStream) writeEvent(w io.Writer, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", event, err)
	}
	return writeSSEEvent(w, event, payload)
}
