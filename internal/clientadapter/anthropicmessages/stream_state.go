package anthropicmessages

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

// toolBlock tracks one streamed tool call. The backend's tool call index
// points at the latest call that used it.
type toolBlock struct {
	id         string
	name       string
	blockIndex int
	open       bool
	arguments  strings.Builder
}

// streamState turns backend deltas into well-formed Messages events.
//
// Tool blocks stay open until the turn ends so that interleaved argument
// fragments of parallel calls reach their own block. A text block is closed
// before any tool block opens. Every opened block is closed exactly once,
// tool blocks in opening order, before message_delta or error.
type streamState struct {
	model     string
	messageID string
	started   bool

	nextIndex int
	textIndex int
	textOpen  bool

	tools     map[int]*toolBlock
	openTools []*toolBlock

	finishReason *chatcompletions.FinishReason
	usage        Usage
}

func newStreamState(model string) *streamState {
	return &streamState{
		model:     model,
		messageID: newMessageID(),
		tools:     make(map[int]*toolBlock),
	}
}

// start emits message_start once, carrying whatever prompt token count is known.
func (s *streamState) start() []clientadapter.Event {
	if s.started {
		return nil
	}
	s.started = true
	return []clientadapter.Event{event(messageStartEvent{
		Type: eventMessageStart,
		Message: MessagesResponse{
			ID:      s.messageID,
			Type:    "message",
			Role:    "assistant",
			Model:   s.model,
			Content: []any{},
			Usage:   Usage{InputTokens: s.usage.InputTokens},
		},
	})}
}

// chunk consumes one backend delta.
func (s *streamState) chunk(c *chatcompletions.Chunk) []clientadapter.Event {
	if c == nil {
		return nil
	}
	if c.Usage != nil {
		s.usage = toUsage(c.Usage)
	}

	events := s.start()
	for _, choice := range c.Choices {
		// Only the first choice is translated.
		if choice.Index != 0 {
			continue
		}
		delta := choice.Delta

		if delta.Content != nil && *delta.Content != "" {
			events = append(events, s.text(*delta.Content)...)
		} else if delta.Refusal != nil && *delta.Refusal != "" {
			events = append(events, s.text(*delta.Refusal)...)
		}

		for _, call := range delta.ToolCalls {
			events = append(events, s.toolCall(call)...)
		}

		if choice.FinishReason != nil {
			reason := *choice.FinishReason
			s.finishReason = &reason
			events = append(events, s.closeAll()...)
		}
	}
	return events
}

// text appends a text fragment, opening a text block when none is open.
func (s *streamState) text(fragment string) []clientadapter.Event {
	var events []clientadapter.Event
	if !s.textOpen {
		s.textIndex = s.allocIndex()
		s.textOpen = true
		events = append(events, event(contentBlockStartEvent{
			Type:         eventContentBlockStart,
			Index:        s.textIndex,
			ContentBlock: TextBlock{Type: blockTypeText, Text: ""},
		}))
	}
	return append(events, event(contentBlockDeltaEvent{
		Type:  eventContentBlockDelta,
		Index: s.textIndex,
		Delta: textDelta{Type: "text_delta", Text: fragment},
	}))
}

// toolCall handles one tool call fragment. A fragment carrying an id that is
// new for its index opens a new block, even when the backend reuses the index.
// Fragments without an id continue the call at their index; fragments for an
// index never opened cannot be attributed and are dropped.
func (s *streamState) toolCall(call chatcompletions.ToolCallDelta) []clientadapter.Event {
	var events []clientadapter.Event

	block, known := s.tools[call.Index]
	if call.ID != "" && (!known || block.id != call.ID) {
		events = append(events, s.closeText()...)

		block = &toolBlock{
			id:         call.ID,
			name:       call.Function.Name,
			blockIndex: s.allocIndex(),
			open:       true,
		}
		s.tools[call.Index] = block
		s.openTools = append(s.openTools, block)
		events = append(events, event(contentBlockStartEvent{
			Type:  eventContentBlockStart,
			Index: block.blockIndex,
			ContentBlock: ToolUseBlock{
				Type:  blockTypeToolUse,
				ID:    block.id,
				Name:  block.name,
				Input: map[string]any{},
			},
		}))
	} else if !known {
		return nil
	}

	if call.Function.Arguments == "" {
		return events
	}
	block.arguments.WriteString(call.Function.Arguments)
	// Blocks only close when the turn ends.
	if !block.open {
		return events
	}
	return append(events, event(contentBlockDeltaEvent{
		Type:  eventContentBlockDelta,
		Index: block.blockIndex,
		Delta: inputJSONDelta{Type: "input_json_delta", PartialJSON: call.Function.Arguments},
	}))
}

// finalize closes open blocks and ends the message. Without a finish
// signal from the backend the turn is reported as end_turn.
func (s *streamState) finalize() []clientadapter.Event {
	events := append(s.start(), s.closeAll()...)

	stopReason := anthropic.StopReasonEndTurn
	if s.finishReason != nil {
		stopReason = toStopReason(*s.finishReason)
	}

	return append(events,
		event(messageDeltaEvent{
			Type:  eventMessageDelta,
			Delta: messageDelta{StopReason: stopReason},
			Usage: s.usage,
		}),
		event(messageStopEvent{Type: eventMessageStop}),
	)
}

// fail closes open blocks and emits a single error event. A failure before
// the first delta emits the error event alone.
func (s *streamState) fail(envelope clientadapter.ErrorEnvelope) []clientadapter.Event {
	events := s.closeAll()
	return append(events, clientadapter.Event{Name: eventError, Data: envelope})
}

func (s *streamState) closeAll() []clientadapter.Event {
	return append(s.closeText(), s.closeTools()...)
}

func (s *streamState) closeText() []clientadapter.Event {
	if !s.textOpen {
		return nil
	}
	s.textOpen = false
	return []clientadapter.Event{blockStop(s.textIndex)}
}

func (s *streamState) closeTools() []clientadapter.Event {
	if len(s.openTools) == 0 {
		return nil
	}
	events := make([]clientadapter.Event, 0, len(s.openTools))
	for _, block := range s.openTools {
		block.open = false
		events = append(events, blockStop(block.blockIndex))
	}
	s.openTools = s.openTools[:0]
	return events
}

func (s *streamState) allocIndex() int {
	i := s.nextIndex
	s.nextIndex++
	return i
}

func blockStop(index int) clientadapter.Event {
	return event(contentBlockStopEvent{Type: eventContentBlockStop, Index: index})
}
