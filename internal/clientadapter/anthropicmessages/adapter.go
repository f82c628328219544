package anthropicmessages

import (
	"crypto/rand"
	"log/slog"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

// Adapter translates the Anthropic Messages protocol to and from Chat Completions.
type Adapter struct {
	logger *slog.Logger
}

// Compile-time check that Adapter implements the client adapter contract
var _ clientadapter.Adapter[MessagesRequest, MessagesResponse] = (*Adapter)(nil)

// New creates an Adapter. A nil logger discards logs.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{logger: logger}
}

// CountTokens estimates input tokens for POST /v1/messages/count_tokens.
func (a *Adapter) CountTokens(clientReq *MessagesRequest) (*CountTokensResponse, error) {
	req, err := a.TranslateRequest(clientReq)
	if err != nil {
		return nil, err
	}
	n, err := chatcompletions.CountTokens(req)
	if err != nil {
		return nil, err
	}
	return &CountTokensResponse{InputTokens: n}, nil
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newMessageID generates a message ID (msg_<24 alphanumerics>).
func newMessageID() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	for i := range b {
		// 256 % 62 bias is irrelevant for identifiers
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return "msg_" + string(b)
}
