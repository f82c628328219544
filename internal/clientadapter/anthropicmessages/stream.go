package anthropicmessages

import (
	"iter"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

// SSE event names.
const (
	eventMessageStart      = "message_start"
	eventContentBlockStart = "content_block_start"
	eventContentBlockDelta = "content_block_delta"
	eventContentBlockStop  = "content_block_stop"
	eventMessageDelta      = "message_delta"
	eventMessageStop       = "message_stop"
	eventError             = "error"
)

type messageStartEvent struct {
	Type    string           `json:"type"`
	Message MessagesResponse `json:"message"`
}

type contentBlockStartEvent struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock any    `json:"content_block"`
}

type contentBlockDeltaEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta any    `json:"delta"`
}

type textDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type inputJSONDelta struct {
	Type        string `json:"type"`
	PartialJSON string `json:"partial_json"`
}

type contentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type messageDeltaEvent struct {
	Type  string       `json:"type"`
	Delta messageDelta `json:"delta"`
	Usage Usage        `json:"usage"`
}

type messageDelta struct {
	StopReason   anthropic.StopReason `json:"stop_reason"`
	StopSequence *string              `json:"stop_sequence"`
}

type messageStopEvent struct {
	Type string `json:"type"`
}

// event names an SSE event after its payload's type.
func event(data any) clientadapter.Event {
	var name string
	switch d := data.(type) {
	case messageStartEvent:
		name = d.Type
	case contentBlockStartEvent:
		name = d.Type
	case contentBlockDeltaEvent:
		name = d.Type
	case contentBlockStopEvent:
		name = d.Type
	case messageDeltaEvent:
		name = d.Type
	case messageStopEvent:
		name = d.Type
	}
	return clientadapter.Event{Name: name, Data: data}
}

// TranslateStream yields message_start with the first delta, content block events as they arrive,
// and message_delta plus message_stop once the backend stream is exhausted so the
// trailing usage chunk is reflected. A backend failure ends the sequence with
// a single error event after all open blocks are closed.
func (a *Adapter) TranslateStream(chunks iter.Seq2[*chatcompletions.Chunk, error], clientModel string) iter.Seq[clientadapter.Event] {
	return func(yield func(clientadapter.Event) bool) {
		state := newStreamState(clientModel)

		emit := func(events []clientadapter.Event) bool {
			for _, e := range events {
				if !yield(e) {
					return false
				}
			}
			return true
		}

		for chunk, err := range chunks {
			if err != nil {
				a.logger.Debug("backend stream failed", "error", err)
				emit(state.fail(a.TranslateError(err)))
				return
			}
			if !emit(state.chunk(chunk)) {
				return
			}
		}

		emit(state.finalize())
	}
}
