package anthropicmessages

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

// TranslateResponse maps the backend's first choice to a message: a leading
// text block if present, then one tool_use block per tool call in backend order.
func (a *Adapter) TranslateResponse(resp *chatcompletions.Response, clientModel string) (*MessagesResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &clientadapter.TranslationError{Kind: clientadapter.KindEmptyUpstreamResponse}
	}
	choice := resp.Choices[0]

	content := make([]any, 0, 1+len(choice.Message.ToolCalls))
	if text := choice.Message.Content; text != nil && *text != "" {
		content = append(content, TextBlock{Type: blockTypeText, Text: *text})
	} else if refusal := choice.Message.Refusal; refusal != nil && *refusal != "" {
		content = append(content, TextBlock{Type: blockTypeText, Text: *refusal})
	}
	content = append(content, toToolUseBlocks(choice.Message.ToolCalls)...)

	return &MessagesResponse{
		ID:         newMessageID(),
		Type:       "message",
		Role:       "assistant",
		Model:      clientModel,
		Content:    content,
		StopReason: toStopReason(choice.FinishReason),
		Usage:      toUsage(resp.Usage),
	}, nil
}

// toStopReason maps backend finish reasons. Content filtering has no Anthropic
// counterpart that clients handle, so it degrades to end_turn.
func toStopReason(reason chatcompletions.FinishReason) anthropic.StopReason {
	switch reason {
	case chatcompletions.FinishReasonToolCalls, chatcompletions.FinishReasonFunctionCall:
		return anthropic.StopReasonToolUse
	case chatcompletions.FinishReasonLength:
		return anthropic.StopReasonMaxTokens
	default:
		return anthropic.StopReasonEndTurn
	}
}

// toUsage copies token counts, defaulting to zero.
func toUsage(usage *chatcompletions.Usage) Usage {
	if usage == nil {
		return Usage{}
	}
	return Usage{InputTokens: usage.PromptTokens, OutputTokens: usage.CompletionTokens}
}
