package proxy

import (
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/florianilch/clawd/internal/clientadapter"
	"github.com/florianilch/clawd/internal/clientadapter/geminicontent"
)

// Gemini model actions, appended to the model path segment after a colon.
const (
	actionGenerateContent       = "generateContent"
	actionStreamGenerateContent = "streamGenerateContent"
	actionCountTokens           = "countTokens"
)

// GeminiHandler serves the Gemini generateContent API.
type GeminiHandler struct {
	translation[geminicontent.GenerateContentRequest, genai.GenerateContentResponse]
	adapter *geminicontent.Adapter
}

// Compile-time check that GeminiHandler implements http.Handler
var _ http.Handler = (*GeminiHandler)(nil)

// ServeHTTP handles POST /v1beta/models/{model}:{action}.
func (h *GeminiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	model, action, ok := strings.Cut(r.PathValue("modelAction"), ":")
	if !ok || model == "" {
		writeJSONError(ctx, w, h.adapter.TranslateError(clientadapter.InvalidRequest("expected models/{model}:{action}")))
		return
	}

	switch action {
	case actionGenerateContent, actionStreamGenerateContent, actionCountTokens:
	default:
		slog.WarnContext(ctx, "unknown model action", "action", action)
		writeJSONError(ctx, w, &geminicontent.ErrorResponse{Err: geminicontent.ErrorDetail{
			Code:    http.StatusNotFound,
			Message: "unknown action " + action,
			Status:  "NOT_FOUND",
		}})
		return
	}

	var req geminicontent.GenerateContentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rejectDecode(ctx, w, err)
		return
	}
	req.Model = model
	req.Stream = action == actionStreamGenerateContent

	if action == actionCountTokens {
		h.countTokens(w, r, &req)
		return
	}

	h.serve(w, r, &req, model, req.Stream)
}

func (h *GeminiHandler) countTokens(w http.ResponseWriter, r *http.Request, req *geminicontent.GenerateContentRequest) {
	ctx := r.Context()

	resp, err := h.adapter.CountTokens(req)
	if err != nil {
		slog.WarnContext(ctx, "token counting failed", "error", err)
		writeJSONError(ctx, w, h.adapter.TranslateError(err))
		return
	}
	writeJSON(ctx, w, resp, http.StatusOK)
}
