package anthropicmessages

import (
	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

// TranslateRequest builds the backend request from a Messages request.
func (a *Adapter) TranslateRequest(clientReq *MessagesRequest) (*chatcompletions.Request, error) {
	if clientReq == nil {
		return nil, clientadapter.InvalidRequest("empty request")
	}
	if clientReq.Model == "" {
		return nil, clientadapter.InvalidRequest("model: field required")
	}
	if len(clientReq.Messages) == 0 {
		return nil, clientadapter.InvalidRequest("messages: at least one message is required")
	}

	messages, err := toMessages(clientReq.System, clientReq.Messages)
	if err != nil {
		return nil, err
	}

	toolChoice, err := fromToolChoice(clientReq.ToolChoice)
	if err != nil {
		return nil, err
	}

	req := &chatcompletions.Request{
		Model:       clientReq.Model,
		Messages:    messages,
		Temperature: clientReq.Temperature,
		TopP:        clientReq.TopP,
		Stop:        clientReq.StopSequences,
		Tools:       fromTools(clientReq.Tools),
		ToolChoice:  toolChoice,
	}

	// Tool choice without tools is rejected by the backend.
	if len(req.Tools) == 0 {
		req.ToolChoice = nil
	}

	if clientReq.MaxTokens > 0 {
		maxTokens := clientReq.MaxTokens
		req.MaxCompletionTokens = &maxTokens
	}

	if clientReq.Stream {
		req.Stream = true
		// Usage is otherwise only reported for non-streamed completions.
		req.StreamOptions = &chatcompletions.StreamOptions{IncludeUsage: true}
	}

	if clientReq.Thinking != nil && clientReq.Thinking.Type == "enabled" {
		req.Thinking = &chatcompletions.Thinking{Enabled: true, BudgetTokens: clientReq.Thinking.BudgetTokens}
	}

	return req, nil
}
