package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/florianilch/clawd/internal/clientadapter"
)

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	body, err := sonic.Marshal(data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.ErrorContext(ctx, "failed to write JSON response", "error", err)
	}
}

// writeJSONError writes a client-protocol error envelope with its own status code.
func writeJSONError(ctx context.Context, w http.ResponseWriter, envelope clientadapter.ErrorEnvelope) {
	writeJSON(ctx, w, envelope, envelope.StatusCode())
}

// errRequestTooLarge marks bodies rejected by RequestSizeLimit.
var errRequestTooLarge = errors.New("request body too large")

// decodeJSON reads the whole body and decodes it into dst.
// Bodies over the size limit yield an error wrapping errRequestTooLarge.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("%w: limit is %d bytes", errRequestTooLarge, maxBytesErr.Limit)
		}
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return errors.New("empty request body")
	}
	if err := sonic.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	return nil
}
