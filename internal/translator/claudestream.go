package translator

import (
	"encoding/json"
	"io"

	"github.com/jedarden/llm-router/pkg/models"
)

// AnthropicToOpenAIStream rewrites a claude message-event SSE stream into
// openai chat-completion chunks terminated by data: [DONE].
type AnthropicToOpenAIStream struct {
	frames frameBuffer

	chunkID string
	model   string
	created int64

	roleSent     bool
	inputTokens  int
	outputTokens int

	// Open tool_use blocks by claude block index -> openai tool call index.
	toolIndex map[int]int
	nextTool  int

	doneEmitted bool
}

// NewAnthropicToOpenAIStream returns a transform for one request. chunkID
// and created stamp every emitted chunk; the upstream message_start id and
// model override them when present.
func NewAnthropicToOpenAIStream(chunkID, model string, created int64) *AnthropicToOpenAIStream {
	return &AnthropicToOpenAIStream{
		chunkID:   chunkID,
		model:     model,
		created:   created,
		toolIndex: make(map[int]int),
	}
}

// Feed consumes raw upstream bytes and writes completed openai chunks to w.
func (s *AnthropicToOpenAIStream) Feed(p []byte, w io.Writer) error {
	s.frames.add(p)
	for {
		frame, ok := s.frames.next()
		if !ok {
			return nil
		}
		if frame.data == "" && frame.event == "" {
			continue
		}
		if err := s.handleEvent(frame.event, []byte(frame.data), w); err != nil {
			return err
		}
	}
}

// Flush terminates the stream if the upstream ended without message_stop.
func (s *AnthropicToOpenAIStream) Flush(w io.Writer) error {
	return s.emitDone(w)
}

// handleEvent translates one claude event into zero or more openai chunks.
// The event name may come from the event: line or from the payload's type
// field; payloads win when both exist and disagree.
func (s *AnthropicToOpenAIStream) handleEvent(event string, data []byte, w io.Writer) error {
	var payload struct {
		Type         string `json:"type"`
		Index        int    `json:"index"`
		Message      *models.AnthropicResponse     `json:"message"`
		ContentBlock *models.ContentBlockStartData `json:"content_block"`
		Delta        json.RawMessage               `json:"delta"`
		Usage        *models.MessageDeltaUsage     `json:"usage"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil
		}
	}
	if payload.Type != "" {
		event = payload.Type
	}

	switch event {
	case models.EventMessageStart:
		if payload.Message != nil {
			if payload.Message.ID != "" {
				s.chunkID = payload.Message.ID
			}
			if payload.Message.Model != "" {
				s.model = payload.Message.Model
			}
			if payload.Message.Usage != nil {
				s.inputTokens = payload.Message.Usage.InputTokens
			}
		}
		s.roleSent = true
		return s.writeChunk(w, models.StreamChoice{Delta: models.StreamDelta{Role: "assistant"}}, nil)

	case models.EventContentBlockStart:
		if payload.ContentBlock == nil || payload.ContentBlock.Type != "tool_use" {
			return nil
		}
		callIndex := s.nextTool
		s.nextTool++
		s.toolIndex[payload.Index] = callIndex
		idx := callIndex
		return s.writeChunk(w, models.StreamChoice{Delta: models.StreamDelta{
			ToolCalls: []models.OpenAIToolCall{{
				ID:       payload.ContentBlock.ID,
				Type:     "function",
				Index:    &idx,
				Function: models.OpenAIFunctionCall{Name: payload.ContentBlock.Name, Arguments: ""},
			}},
		}}, nil)

	case models.EventContentBlockDelta:
		var delta models.DeltaData
		if err := json.Unmarshal(payload.Delta, &delta); err != nil {
			return nil
		}
		switch delta.Type {
		case "text_delta":
			return s.writeChunk(w, models.StreamChoice{Delta: models.StreamDelta{Content: delta.Text}}, nil)
		case "thinking_delta":
			return s.writeChunk(w, models.StreamChoice{Delta: models.StreamDelta{ReasoningContent: delta.Thinking}}, nil)
		case "input_json_delta":
			callIndex, ok := s.toolIndex[payload.Index]
			if !ok {
				return nil
			}
			idx := callIndex
			return s.writeChunk(w, models.StreamChoice{Delta: models.StreamDelta{
				ToolCalls: []models.OpenAIToolCall{{
					Index:    &idx,
					Function: models.OpenAIFunctionCall{Arguments: delta.PartialJSON},
				}},
			}}, nil)
		}
		return nil

	case models.EventMessageDelta:
		var delta models.MessageDeltaData
		if err := json.Unmarshal(payload.Delta, &delta); err != nil {
			return nil
		}
		if payload.Usage != nil {
			s.outputTokens = payload.Usage.OutputTokens
		}
		usage := &models.Usage{
			PromptTokens:     s.inputTokens,
			CompletionTokens: s.outputTokens,
			TotalTokens:      s.inputTokens + s.outputTokens,
		}
		return s.writeChunk(w, models.StreamChoice{
			Delta:        models.StreamDelta{},
			FinishReason: stopReasonToFinishReason(delta.StopReason),
		}, usage)

	case models.EventMessageStop:
		return s.emitDone(w)

	default:
		// ping and unrecognized events are dropped.
		return nil
	}
}

func (s *AnthropicToOpenAIStream) writeChunk(w io.Writer, choice models.StreamChoice, usage *models.Usage) error {
	chunk := models.OpenAIStreamChunk{
		ID:      s.chunkID,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []models.StreamChoice{choice},
		Usage:   usage,
	}
	payload, err := json.Marshal(&chunk)
	if err != nil {
		return err
	}
	return writeSSEData(w, payload)
}

// emitDone writes the openai terminator exactly once.
func (s *AnthropicToOpenAIStream) emitDone(w io.Writer) error {
	if s.doneEmitted {
		return nil
	}
	s.doneEmitted = true
	return writeSSEData(w, []byte("[DONE]"))
}
