package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// instrumentationName identifies log records exported over OTLP.
const instrumentationName = "github.com/florianilch/clawd"

// Options configures logging.
type Options struct {
	Level  slog.Level
	Format string // text or json
	// File redirects logs to a size-rotated file. Used while a launched CLI owns the terminal.
	File string
	// OTLP exports logs in addition to the local handler.
	OTLP OTLPOptions
}

// OTLPOptions configures log export.
type OTLPOptions struct {
	// Protocol is http, grpc or stdout. Empty disables export.
	Protocol string
	// Endpoint is the collector URL. Empty uses the OTEL_EXPORTER_OTLP_* environment.
	Endpoint string
}

// Instrument installs the default logger and the W3C trace-context propagator.
// The returned function flushes exporters and closes the log file.
func Instrument(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			errs = append(errs, shutdownFuncs[i](ctx))
		}
		shutdownFuncs = nil
		return errors.Join(errs...)
	}

	var out io.Writer = os.Stdout
	if opts.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		shutdownFuncs = append(shutdownFuncs, func(context.Context) error { return rotated.Close() })
		out = rotated
	}

	local, err := newLocalHandler(out, opts.Level, opts.Format)
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}
	handlers := []slog.Handler{newTraceContextHandler(local)}

	if opts.OTLP.Protocol != "" {
		provider, err := newLoggerProvider(ctx, opts.OTLP, opts.Level)
		if err != nil {
			return nil, errors.Join(err, shutdown(ctx))
		}
		shutdownFuncs = append(shutdownFuncs, provider.Shutdown)
		handlers = append(handlers, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	slog.SetDefault(slog.New(newFanoutHandler(handlers...)))

	return shutdown, nil
}

// newLocalHandler creates a handler for human-readable logs.
func newLocalHandler(w io.Writer, level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}

	return handler, nil
}

// newLoggerProvider builds an OTLP log pipeline filtered at the local level.
func newLoggerProvider(ctx context.Context, opts OTLPOptions, level slog.Level) (*sdklog.LoggerProvider, error) {
	var processor sdklog.Processor
	switch strings.ToLower(opts.Protocol) {
	case "http":
		var exporterOpts []otlploghttp.Option
		if opts.Endpoint != "" {
			exporterOpts = append(exporterOpts, otlploghttp.WithEndpointURL(opts.Endpoint))
		}
		exporter, err := otlploghttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP HTTP log exporter: %w", err)
		}
		processor = sdklog.NewBatchProcessor(exporter)
	case "grpc":
		var exporterOpts []otlploggrpc.Option
		if opts.Endpoint != "" {
			exporterOpts = append(exporterOpts, otlploggrpc.WithEndpointURL(opts.Endpoint))
		}
		exporter, err := otlploggrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP gRPC log exporter: %w", err)
		}
		processor = sdklog.NewBatchProcessor(exporter)
	case "stdout":
		exporter, err := stdoutlog.New()
		if err != nil {
			return nil, fmt.Errorf("create stdout log exporter: %w", err)
		}
		processor = sdklog.NewSimpleProcessor(exporter)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q (expected: http, grpc, stdout)", opts.Protocol)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(processor, severity(level))),
	), nil
}

// severity maps a slog level onto the OpenTelemetry severity scale.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
