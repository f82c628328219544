package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter/anthropicmessages"
	"github.com/florianilch/clawd/internal/clientadapter/geminicontent"
	"github.com/florianilch/clawd/internal/hooks"
	"github.com/florianilch/clawd/internal/observability/middleware"
)

// DefaultMaxRequestBytes bounds request bodies. Agent histories with inline
// images get large.
const DefaultMaxRequestBytes = 50 << 20

// ReadinessChecker reports whether the application can serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// Config wires the proxy to its collaborators.
type Config struct {
	Dispatcher *chatcompletions.Dispatcher
	// ClaudeHooks and GeminiHooks run on every translated request of their protocol.
	ClaudeHooks *hooks.Pipeline
	GeminiHooks *hooks.Pipeline

	Readiness       ReadinessChecker
	MaxRequestBytes int64
	Logger          *slog.Logger
}

// Proxy is the HTTP server that translates client protocols to the backend.
type Proxy struct {
	server  *http.Server
	handler http.Handler
	logger  *slog.Logger

	fatal     chan error
	fatalOnce sync.Once
}

// New creates a proxy. Call Start to begin serving.
func New(cfg Config) (*Proxy, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Readiness == nil {
		return nil, errors.New("readiness checker is required")
	}
	if cfg.ClaudeHooks == nil {
		cfg.ClaudeHooks = hooks.NewPipeline()
	}
	if cfg.GeminiHooks == nil {
		cfg.GeminiHooks = hooks.NewPipeline()
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	p := &Proxy{
		logger: cfg.Logger,
		fatal:  make(chan error, 1),
	}

	claude := anthropicmessages.New(cfg.Logger)
	messages := &MessagesHandler{
		translation: translation[anthropicmessages.MessagesRequest, anthropicmessages.MessagesResponse]{
			adapter:    claude,
			hooks:      cfg.ClaudeHooks,
			dispatcher: cfg.Dispatcher,
			onFatal:    p.reportFatal,
		},
		adapter: claude,
	}

	gemini := geminicontent.New(cfg.Logger)
	generate := &GeminiHandler{
		translation: translation[geminicontent.GenerateContentRequest, genai.GenerateContentResponse]{
			adapter:    gemini,
			hooks:      cfg.GeminiHooks,
			dispatcher: cfg.Dispatcher,
			onFatal:    p.reportFatal,
		},
		adapter: gemini,
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/messages", messages)
	mux.HandleFunc("POST /v1/messages/count_tokens", messages.countTokens)
	mux.Handle("POST /v1beta/models/{modelAction}", generate)
	mux.Handle("POST /v1/models/{modelAction}", generate)

	mux.HandleFunc("GET /health", statusHandler())
	mux.HandleFunc("GET /livez", livenessHandler())
	mux.HandleFunc("GET /readyz", readinessHandler(cfg.Readiness))
	mux.HandleFunc("GET /{$}", infoHandler())

	p.handler = applyMiddlewares(mux,
		middleware.RequestIDGeneration,
		middleware.Logging(cfg.Logger),
		middleware.RequestIDPropagation,
		middleware.TraceContextExtraction,
		Recovery,
		RequestSizeLimit(cfg.MaxRequestBytes),
	)

	p.server = &http.Server{
		Handler:           p.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: streams last as long as the backend generates.
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelError),
	}

	return p, nil
}

// Handler returns the fully wrapped HTTP handler.
func (p *Proxy) Handler() http.Handler {
	return p.handler
}

// Start binds addr and serves in the background. Bind errors are returned
// synchronously; later server errors arrive on the returned channel.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	p.server.BaseContext = func(net.Listener) context.Context {
		return context.WithoutCancel(ctx)
	}

	p.logger.InfoContext(ctx, "proxy listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh, nil
}

// Shutdown gracefully stops the server.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("proxy shutdown: %w", err)
	}
	return nil
}

// Fatal delivers the first backend failure that denied access. At most one
// value is ever sent.
func (p *Proxy) Fatal() <-chan error {
	return p.fatal
}

func (p *Proxy) reportFatal(err error) {
	p.fatalOnce.Do(func() {
		p.fatal <- err
	})
}
