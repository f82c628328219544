package proxy

import (
	"log/slog"
	"net/http"

	"github.com/florianilch/clawd/internal/clientadapter/anthropicmessages"
)

// MessagesHandler serves the Anthropic Messages API.
type MessagesHandler struct {
	translation[anthropicmessages.MessagesRequest, anthropicmessages.MessagesResponse]
	adapter *anthropicmessages.Adapter
}

// Compile-time check that MessagesHandler implements http.Handler
var _ http.Handler = (*MessagesHandler)(nil)

// ServeHTTP handles POST /v1/messages, streaming when the body asks for it.
func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req anthropicmessages.MessagesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rejectDecode(r.Context(), w, err)
		return
	}

	h.serve(w, r, &req, req.Model, req.Stream)
}

// countTokens handles POST /v1/messages/count_tokens with a local estimate.
func (h *MessagesHandler) countTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req anthropicmessages.MessagesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rejectDecode(ctx, w, err)
		return
	}

	resp, err := h.adapter.CountTokens(&req)
	if err != nil {
		slog.WarnContext(ctx, "token counting failed", "error", err)
		writeJSONError(ctx, w, h.adapter.TranslateError(err))
		return
	}
	writeJSON(ctx, w, resp, http.StatusOK)
}
