package proxy

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
	"github.com/florianilch/clawd/internal/hooks"
	"github.com/florianilch/clawd/internal/observability/middleware"
)

// translation runs one client request through an adapter, the hook pipeline
// and the dispatcher, then writes the client-protocol reply.
type translation[TReq, TResp any] struct {
	adapter    clientadapter.Adapter[TReq, TResp]
	hooks      *hooks.Pipeline
	dispatcher *chatcompletions.Dispatcher
	// onFatal is called for every backend failure that must end the agent session.
	onFatal func(error)
}

// rejectDecode answers a body that could not be decoded without contacting the backend.
func (t *translation[TReq, TResp]) rejectDecode(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errRequestTooLarge) {
		slog.WarnContext(ctx, "request exceeds size limit", "error", err)
		writeJSONError(ctx, w, t.adapter.TranslateError(&chatcompletions.StatusError{
			StatusCode: http.StatusRequestEntityTooLarge,
			Message:    err.Error(),
			Err:        err,
		}))
		return
	}
	slog.WarnContext(ctx, "failed to decode request", "error", err)
	writeJSONError(ctx, w, t.adapter.TranslateError(clientadapter.InvalidRequest("%s", err)))
}

// serve translates and dispatches clientReq. clientModel is echoed back in responses.
func (t *translation[TReq, TResp]) serve(w http.ResponseWriter, r *http.Request, clientReq *TReq, clientModel string, stream bool) {
	ctx := r.Context()

	backendReq, err := t.adapter.TranslateRequest(clientReq)
	if err != nil {
		slog.WarnContext(ctx, "request translation failed", "error", err)
		writeJSONError(ctx, w, t.adapter.TranslateError(err))
		return
	}

	backendReq, err = t.hooks.Apply(ctx, backendReq, r.Header)
	if err != nil {
		slog.ErrorContext(ctx, "pre-request hooks failed", "error", err)
		writeJSONError(ctx, w, t.adapter.TranslateError(err))
		return
	}

	middleware.SetLogAttrs(ctx,
		slog.String("client_model", clientModel),
		slog.String("backend_model", backendReq.Model),
		slog.Bool("stream", stream),
	)

	if stream {
		t.streamResponse(ctx, w, backendReq, clientModel)
	} else {
		t.writeResponse(ctx, w, backendReq, clientModel)
	}
}

// writeResponse handles non-streaming requests.
func (t *translation[TReq, TResp]) writeResponse(ctx context.Context, w http.ResponseWriter, req *chatcompletions.Request, clientModel string) {
	outcome := t.dispatcher.Complete(ctx, req)
	if outcome.Kind != chatcompletions.OutcomeOK {
		t.fail(ctx, w, outcome.Kind, outcome.Err)
		return
	}

	resp, err := t.adapter.TranslateResponse(outcome.Value, clientModel)
	if err != nil {
		slog.ErrorContext(ctx, "response translation failed", "error", err)
		writeJSONError(ctx, w, t.adapter.TranslateError(err))
		return
	}

	writeJSON(ctx, w, resp, http.StatusOK)
}

// streamResponse relays translated events as SSE. Failures before the stream
// opens are answered as plain JSON errors; later failures arrive as the
// adapter's terminal error event.
func (t *translation[TReq, TResp]) streamResponse(ctx context.Context, w http.ResponseWriter, req *chatcompletions.Request, clientModel string) {
	outcome := t.dispatcher.Stream(ctx, req)
	if outcome.Kind != chatcompletions.OutcomeOK {
		t.fail(ctx, w, outcome.Kind, outcome.Err)
		return
	}
	stream := outcome.Value
	defer func() {
		if err := stream.Close(); err != nil {
			slog.DebugContext(ctx, "failed to close backend stream", "error", err)
		}
	}()

	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		writeJSONError(ctx, w, t.adapter.TranslateError(err))
		return
	}

	for ev := range t.adapter.TranslateStream(t.watchFatal(ctx, stream.Chunks()), clientModel) {
		// Check for client disconnect before writing
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream")
			return
		}
		if err := sse.WriteEvent(ev); err != nil {
			slog.ErrorContext(ctx, "failed to write event", "error", err)
			return
		}
	}
}

// watchFatal forwards chunks unchanged and reports a fatal mid-stream failure.
func (t *translation[TReq, TResp]) watchFatal(ctx context.Context, chunks iter.Seq2[*chatcompletions.Chunk, error]) iter.Seq2[*chatcompletions.Chunk, error] {
	return func(yield func(*chatcompletions.Chunk, error) bool) {
		for chunk, err := range chunks {
			if err != nil {
				statusErr := chatcompletions.Classify(err)
				slog.ErrorContext(ctx, "backend stream failed", "status", statusErr.StatusCode, "error", err)
				if statusErr.Fatal() {
					t.onFatal(statusErr)
				}
				yield(nil, statusErr)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (t *translation[TReq, TResp]) fail(ctx context.Context, w http.ResponseWriter, kind chatcompletions.OutcomeKind, err *chatcompletions.StatusError) {
	slog.ErrorContext(ctx, "backend request failed",
		"outcome", kind,
		"status", err.StatusCode,
		"error", err,
	)
	if kind == chatcompletions.OutcomeFatal {
		t.onFatal(err)
	}
	writeJSONError(ctx, w, t.adapter.TranslateError(err))
}
