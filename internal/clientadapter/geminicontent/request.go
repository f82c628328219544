package geminicontent

import (
	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

// TranslateRequest builds the backend request from a generateContent request.
func (a *Adapter) TranslateRequest(clientReq *GenerateContentRequest) (*chatcompletions.Request, error) {
	if clientReq == nil {
		return nil, clientadapter.InvalidRequest("empty request")
	}
	if clientReq.Model == "" {
		return nil, clientadapter.InvalidRequest("model: missing from path")
	}
	if len(clientReq.Contents) == 0 {
		return nil, clientadapter.InvalidRequest("contents: at least one content is required")
	}

	toolChoice, err := fromToolConfig(clientReq.ToolConfig)
	if err != nil {
		return nil, err
	}

	req := &chatcompletions.Request{
		Model:      clientReq.Model,
		Messages:   toMessages(clientReq.SystemInstruction, clientReq.Contents),
		Tools:      fromTools(clientReq.Tools),
		ToolChoice: toolChoice,
	}

	if len(req.Tools) == 0 {
		req.ToolChoice = nil
	}

	if config := clientReq.GenerationConfig; config != nil {
		if config.MaxOutputTokens > 0 {
			maxTokens := config.MaxOutputTokens
			req.MaxCompletionTokens = &maxTokens
		}
		req.Temperature = config.Temperature
		req.TopP = config.TopP
		req.Stop = config.StopSequences

		// A zero budget disables thinking; -1 asks for a dynamic budget.
		if thinking := config.ThinkingConfig; thinking != nil {
			budget := int64(0)
			if thinking.ThinkingBudget != nil {
				budget = int64(*thinking.ThinkingBudget)
			}
			if budget != 0 || thinking.IncludeThoughts {
				req.Thinking = &chatcompletions.Thinking{Enabled: true, BudgetTokens: max(budget, 0)}
			}
		}
	}

	if clientReq.Stream {
		req.Stream = true
		req.StreamOptions = &chatcompletions.StreamOptions{IncludeUsage: true}
	}

	return req, nil
}
