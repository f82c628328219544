package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/credentials"
	"github.com/florianilch/clawd/internal/hooks"
	"github.com/florianilch/clawd/internal/launcher"
	"github.com/florianilch/clawd/internal/proxy"
)

// ErrAccessDenied is returned when the backend rejected the credential and
// the session was stopped.
var ErrAccessDenied = errors.New("backend denied access")

// errAgentExited stops the errgroup once the launched agent is gone.
var errAgentExited = errors.New("agent exited")

// shutdownTimeout bounds graceful shutdown of all services.
const shutdownTimeout = 5 * time.Second

// App orchestrates the lifecycle of the proxy server and, optionally, a launched agent CLI.
type App struct {
	cfg    *Config
	proxy  *proxy.Proxy
	health *Health
	logger *slog.Logger
}

// New wires the backend client, the hook pipelines and the proxy from cfg.
// A nil logger uses slog.Default.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	models, err := cfg.ModelSet()
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}
	claudeTiers, err := hooks.NewTierMapping(hooks.ClaudeTierRules, models, chatcompletions.TierUnknown, logger)
	if err != nil {
		return nil, fmt.Errorf("claude tier rules: %w", err)
	}
	geminiTiers, err := hooks.NewTierMapping(hooks.GeminiTierRules, models, chatcompletions.TierMid, logger)
	if err != nil {
		return nil, fmt.Errorf("gemini tier rules: %w", err)
	}
	capability := hooks.NewCapabilityAdaptation(models, logger)

	health := NewHealth()
	proxyServer, err := proxy.New(proxy.Config{
		Dispatcher:      chatcompletions.NewDispatcher(backend, cfg.BackoffPolicy(), logger),
		ClaudeHooks:     hooks.NewPipeline(claudeTiers, capability),
		GeminiHooks:     hooks.NewPipeline(geminiTiers, capability),
		Readiness:       health,
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	logger.InfoContext(ctx, "configured backend",
		"provider", cfg.Backend.Provider,
		"family", cfg.Models.Family,
		"top", models.Top,
		"mid", models.Mid,
		"small", models.Small,
	)

	return &App{
		cfg:    cfg,
		proxy:  proxyServer,
		health: health,
		logger: logger,
	}, nil
}

// newBackend creates the Chat Completions client for the configured provider.
// Stored keys are checked up front so that a missing key fails at startup.
func newBackend(ctx context.Context, cfg *Config) (*chatcompletions.Client, error) {
	clientCfg := chatcompletions.ClientConfig{RequestTimeout: cfg.Backend.RequestTimeout}

	switch {
	case cfg.Backend.Provider == ProviderAzure && cfg.Backend.AzureUseEntraID:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure credential: %w", err)
		}
		clientCfg.Azure = &chatcompletions.AzureConfig{
			Endpoint:   cfg.Backend.AzureEndpoint,
			APIVersion: cfg.Backend.AzureAPIVersion,
			Credential: cred,
		}

	case cfg.Backend.Provider == ProviderAzure:
		store, err := cfg.NewStore()
		if err != nil {
			return nil, err
		}
		key, err := store.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w (run `clawd setup` or set %s)", err, cfg.Auth.KeyEnvVar(cfg.Backend.Provider))
		}
		clientCfg.Azure = &chatcompletions.AzureConfig{
			Endpoint:   cfg.Backend.AzureEndpoint,
			APIVersion: cfg.Backend.AzureAPIVersion,
			APIKey:     key,
		}

	default:
		store, err := cfg.NewStore()
		if err != nil {
			return nil, err
		}
		if _, err := store.Read(ctx); err != nil {
			return nil, fmt.Errorf("%w (run `clawd setup` or set %s)", err, cfg.Auth.KeyEnvVar(cfg.Backend.Provider))
		}
		clientCfg.BaseURL = cfg.Backend.BaseURL
		clientCfg.Transport = credentials.NewTransport(context.WithoutCancel(ctx), store, nil)
	}

	client, err := chatcompletions.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	return client, nil
}

// Start serves until ctx is cancelled or the backend denies access.
func (a *App) Start(ctx context.Context) error {
	_, err := a.run(ctx, nil)
	return err
}

// Launch serves while the agent runs and returns the agent's exit code.
// A backend access denial stops the agent.
func (a *App) Launch(ctx context.Context, l *launcher.Launcher) (int, error) {
	return a.run(ctx, l)
}

// run uses errgroup for runtime error monitoring and shutdown function
// collection for coordinated cleanup.
func (a *App) run(ctx context.Context, agent *launcher.Launcher) (int, error) {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	a.logger.InfoContext(gCtx, "starting proxy server")
	proxyErrCh, err := a.proxy.Start(gCtx, a.cfg.Server.Addr())
	if err != nil {
		return 1, fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)
	a.health.SetReady(true)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err, ok := <-proxyErrCh:
			if ok && err != nil {
				a.logger.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		select {
		case err := <-a.proxy.Fatal():
			a.logger.ErrorContext(gCtx, "stopping: backend denied access", "error", err)
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case <-gCtx.Done():
			return nil
		}
	})

	exitCode := 0
	if agent != nil {
		g.Go(func() error {
			code, err := agent.Run(gCtx)
			exitCode = code
			if err != nil && gCtx.Err() == nil {
				return fmt.Errorf("agent: %w", err)
			}
			return errAgentExited
		})
	}

	runtimeErr := g.Wait()
	if errors.Is(runtimeErr, errAgentExited) {
		runtimeErr = nil
	}

	a.health.SetReady(false)
	a.logger.InfoContext(ctx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, runtimeErr)
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			a.logger.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		if exitCode == 0 {
			exitCode = 1
		}
		return exitCode, errors.Join(errs...)
	}

	a.logger.InfoContext(ctx, "application stopped")
	return exitCode, nil
}
