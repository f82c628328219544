package geminicontent

import (
	"google.golang.org/genai"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

// TranslateResponse maps the backend's first choice to a single candidate:
// a text part if present, then one functionCall part per tool call.
func (a *Adapter) TranslateResponse(resp *chatcompletions.Response, clientModel string) (*genai.GenerateContentResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &clientadapter.TranslationError{Kind: clientadapter.KindEmptyUpstreamResponse}
	}
	choice := resp.Choices[0]

	var parts []*genai.Part
	if text := choice.Message.Content; text != nil && *text != "" {
		parts = append(parts, &genai.Part{Text: *text})
	} else if refusal := choice.Message.Refusal; refusal != nil && *refusal != "" {
		parts = append(parts, &genai.Part{Text: *refusal})
	}
	parts = append(parts, toFunctionCallParts(choice.Message.ToolCalls)...)

	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      modelContent(parts),
			FinishReason: toFinishReason(choice.FinishReason),
		}},
		UsageMetadata: toUsageMetadata(resp.Usage),
		ModelVersion:  clientModel,
	}, nil
}

// modelContent wraps parts in a model turn. Clients expect at least one part.
func modelContent(parts []*genai.Part) *genai.Content {
	if len(parts) == 0 {
		parts = []*genai.Part{{Text: ""}}
	}
	return &genai.Content{Role: genai.RoleModel, Parts: parts}
}

// toFinishReason maps backend finish reasons. Tool calls finish with STOP.
func toFinishReason(reason chatcompletions.FinishReason) genai.FinishReason {
	switch reason {
	case chatcompletions.FinishReasonLength:
		return genai.FinishReasonMaxTokens
	case chatcompletions.FinishReasonContentFilter:
		return genai.FinishReasonSafety
	default:
		return genai.FinishReasonStop
	}
}

func toUsageMetadata(usage *chatcompletions.Usage) *genai.GenerateContentResponseUsageMetadata {
	if usage == nil {
		return &genai.GenerateContentResponseUsageMetadata{}
	}
	return &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:     int32(usage.PromptTokens),
		CandidatesTokenCount: int32(usage.CompletionTokens),
		TotalTokenCount:      int32(usage.PromptTokens + usage.CompletionTokens),
	}
}
