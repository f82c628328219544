package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/clawd/internal/app"
	"github.com/florianilch/clawd/internal/observability"
	"github.com/florianilch/clawd/internal/proxy"
)

// flagKeys maps flags that override configuration onto config keys.
var flagKeys = map[string]string{
	"host":       "server.host",
	"port":       "server.port",
	"provider":   "backend.provider",
	"family":     "models.family",
	"log-level":  "log.level",
	"log-format": "log.format",
	"log-file":   "log.file",
}

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	proxy.Version = version
	return newRootCommand(version, commit).Run(ctx, args)
}

func newRootCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:    "clawd",
		Usage:   "Run Claude Code and Gemini CLI against OpenAI-compatible models",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "config file (default: <user config dir>/clawd/config.toml)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: ".env file merged below the process environment",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "listen host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "listen port",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "backend provider (openai|azure)",
			},
			&cli.StringFlag{
				Name:  "family",
				Usage: "model family (gpt-5|gpt-4o)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "write logs to a rotated file instead of stdout",
			},
		},
		Commands: []*cli.Command{
			proxyStartCommand(),
			launchCommand(agentClaude),
			launchCommand(agentGemini),
			setupCommand(),
			logoutCommand(),
		},
	}
}

func proxyStartCommand() *cli.Command {
	return &cli.Command{
		Name:   "start",
		Usage:  "Starts the proxy",
		Action: proxyStartAction,
	}
}

func proxyStartAction(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	shutdown, err := setupObservability(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	application, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting", "addr", cfg.Server.Addr(), "version", proxy.Version)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app stopped: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

// configPath resolves --config, falling back to the per-user default.
func configPath(cmd *cli.Command) (string, error) {
	if path := cmd.String("config"); path != "" {
		return path, nil
	}
	dir, err := app.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig layers explicitly set flags over file and environment configuration.
func loadConfig(cmd *cli.Command) (*app.Config, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}

	flags := make(map[string]any)
	for name, key := range flagKeys {
		if cmd.IsSet(name) {
			flags[key] = cmd.Value(name)
		}
	}

	cfg, err := app.LoadConfig(app.LoadOptions{
		File:   path,
		DotEnv: cmd.String("env-file"),
		Flags:  flags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// setupObservability installs the global logger. The returned func flushes
// exporters and must run before exit.
func setupObservability(ctx context.Context, cfg *app.Config) (func(), error) {
	opts, err := cfg.LogOptions()
	if err != nil {
		return nil, err
	}
	shutdown, err := observability.Instrument(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	return func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(os.Stderr, "clawd: flushing logs: %v\n", err)
		}
	}, nil
}
