package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/httplog/v3"
)

// Logging logs one line per proxied request with method, path, status and
// duration. Health endpoints are skipped unless they fail.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS.Concise(true),

		Skip: func(req *http.Request, respStatus int) bool {
			return isHealthCheck(req.URL.Path) && respStatus < http.StatusBadRequest
		},

		// Client identification only. Authorization and x-api-key never reach the log.
		LogRequestHeaders:  []string{"Content-Type", "User-Agent", "Anthropic-Version", "X-Goog-Api-Client"},
		LogResponseHeaders: []string{},
		// Bodies carry whole conversations.
		LogRequestBody:  nil,
		LogResponseBody: nil,

		RecoverPanics: false, // use dedicated middleware, panics are logged regardless
	})
}

func isHealthCheck(path string) bool {
	switch strings.TrimSuffix(path, "/") {
	case "/livez", "/readyz", "/health":
		return true
	default:
		return false
	}
}

// SetLogAttrs sets attributes on the request log.
func SetLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}
