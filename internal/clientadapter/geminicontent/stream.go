package geminicontent

import (
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

type pendingCall struct {
	id        string
	name      string
	arguments strings.Builder
}

// streamState accumulates what the final chunk reports: tool calls, the
// finish reason and usage. Text is forwarded as it arrives.
type streamState struct {
	model string
	// calls maps a backend tool call index to the latest call using it.
	calls        map[int]*pendingCall
	order        []*pendingCall
	finishReason chatcompletions.FinishReason
	usage        *chatcompletions.Usage
}

func (s *streamState) chunk(c *chatcompletions.Chunk) *genai.GenerateContentResponse {
	if c.Usage != nil {
		s.usage = c.Usage
	}

	var text strings.Builder
	for _, choice := range c.Choices {
		if choice.Index != 0 {
			continue
		}
		if choice.Delta.Content != nil {
			text.WriteString(*choice.Delta.Content)
		} else if choice.Delta.Refusal != nil {
			text.WriteString(*choice.Delta.Refusal)
		}
		for _, fragment := range choice.Delta.ToolCalls {
			s.toolCall(fragment)
		}
		if choice.FinishReason != nil {
			s.finishReason = *choice.FinishReason
		}
	}

	if text.Len() == 0 {
		return nil
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text.String()}}},
		}},
	}
}

// toolCall accumulates one fragment. An id that is new for its index starts
// a new call, even when the backend reuses the index.
func (s *streamState) toolCall(fragment chatcompletions.ToolCallDelta) {
	call, ok := s.calls[fragment.Index]
	if !ok || (fragment.ID != "" && call.id != "" && call.id != fragment.ID) {
		call = &pendingCall{}
		s.calls[fragment.Index] = call
		s.order = append(s.order, call)
	}
	if fragment.ID != "" {
		call.id = fragment.ID
	}
	if fragment.Function.Name != "" {
		call.name = fragment.Function.Name
	}
	call.arguments.WriteString(fragment.Function.Arguments)
}

// final builds the closing chunk with function calls, finish reason and usage.
func (s *streamState) final() *genai.GenerateContentResponse {
	var calls []chatcompletions.ToolCall
	for _, call := range s.order {
		// Fragments that never carried a name cannot be called.
		if call.name == "" {
			continue
		}
		calls = append(calls, chatcompletions.NewToolCall(call.id, call.name, call.arguments.String()))
	}

	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      modelContent(toFunctionCallParts(calls)),
			FinishReason: toFinishReason(s.finishReason),
		}},
		UsageMetadata: toUsageMetadata(s.usage),
		ModelVersion:  s.model,
	}
}

// TranslateStream forwards each text delta as its own chunk. Function calls
// are only complete once their arguments stop streaming, so they are sent in
// one final chunk together with finishReason and usage after the backend
// stream is exhausted. A backend failure ends the sequence with an error chunk.
func (a *Adapter) TranslateStream(chunks iter.Seq2[*chatcompletions.Chunk, error], clientModel string) iter.Seq[clientadapter.Event] {
	return func(yield func(clientadapter.Event) bool) {
		state := &streamState{model: clientModel, calls: make(map[int]*pendingCall)}

		for chunk, err := range chunks {
			if err != nil {
				a.logger.Debug("backend stream failed", "error", err)
				yield(clientadapter.Event{Data: a.TranslateError(err)})
				return
			}
			if chunk == nil {
				continue
			}
			if out := state.chunk(chunk); out != nil {
				if !yield(clientadapter.Event{Data: out}) {
					return
				}
			}
		}

		yield(clientadapter.Event{Data: state.final()})
	}
}
