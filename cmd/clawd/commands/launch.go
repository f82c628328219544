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
	"github.com/florianilch/clawd/internal/launcher"
)

const (
	agentClaude = launcher.AgentClaude
	agentGemini = launcher.AgentGemini
)

// ExitCodeError carries the exit code of a launched agent. Err is set when
// clawd itself failed.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

// launchCommand returns the subcommand that runs the agent CLI behind the proxy.
// All arguments after the command name are passed to the agent unchanged.
func launchCommand(agent launcher.Agent) *cli.Command {
	return &cli.Command{
		Name:            string(agent),
		Usage:           fmt.Sprintf("Run %s against the configured backend", agent),
		ArgsUsage:       "[agent arguments...]",
		SkipFlagParsing: true,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return launchAction(ctx, cmd, agent)
		},
	}
}

func launchAction(ctx context.Context, cmd *cli.Command, agent launcher.Agent) error {
	// The agent shares the terminal and handles Ctrl+C itself.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Log.File == "" {
		dir, err := app.DefaultDir()
		if err != nil {
			return err
		}
		cfg.Log.File = filepath.Join(dir, "clawd.log")
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

	code, err := application.Launch(ctx, &launcher.Launcher{
		Agent:    agent,
		Args:     cmd.Args().Slice(),
		ProxyURL: cfg.Server.URL(),
		Logger:   slog.Default(),
	})
	if err != nil {
		// Logs go to the file while the agent runs; tell the user on the terminal too.
		fmt.Fprintf(os.Stderr, "clawd: %v\n", err)
		return &ExitCodeError{Code: code, Err: fmt.Errorf("%s session: %w", agent, err)}
	}
	if code != 0 {
		return &ExitCodeError{Code: code}
	}
	return nil
}
