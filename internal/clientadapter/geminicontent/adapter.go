package geminicontent

import (
	"log/slog"

	"google.golang.org/genai"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

// Adapter translates the Gemini generateContent protocol to and from Chat Completions.
type Adapter struct {
	logger *slog.Logger
}

// Compile-time check that Adapter implements the client adapter contract
var _ clientadapter.Adapter[GenerateContentRequest, genai.GenerateContentResponse] = (*Adapter)(nil)

func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{logger: logger}
}

// CountTokens estimates prompt tokens for :countTokens.
func (a *Adapter) CountTokens(clientReq *GenerateContentRequest) (*genai.CountTokensResponse, error) {
	req, err := a.TranslateRequest(clientReq)
	if err != nil {
		return nil, err
	}
	n, err := chatcompletions.CountTokens(req)
	if err != nil {
		return nil, err
	}
	return &genai.CountTokensResponse{TotalTokens: int32(n)}, nil
}
