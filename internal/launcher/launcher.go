package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Agent is a supported agent CLI.
type Agent string

const (
	AgentClaude Agent = "claude"
	AgentGemini Agent = "gemini"
)

// placeholderKey satisfies the CLIs' credential checks. The proxy holds the real key.
const placeholderKey = "sk-clawd"

// DefaultWaitDelay is how long the agent gets to exit after SIGTERM before it is killed.
const DefaultWaitDelay = 5 * time.Second

// Launcher runs an agent CLI pointed at the proxy.
type Launcher struct {
	Agent Agent
	// Command overrides the executable. Defaults to the agent name looked up in PATH.
	Command string
	Args    []string
	// ProxyURL is the base URL the agent talks to, e.g. http://127.0.0.1:2001.
	ProxyURL string

	// Environ defaults to os.Environ.
	Environ func() []string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer

	WaitDelay time.Duration
	Logger    *slog.Logger
}

// Env returns the variables that point the agent at the proxy. Claude Code
// gets tier keywords as model names so that the proxy's tier rules map them.
func (l *Launcher) Env() ([]string, error) {
	switch l.Agent {
	case AgentClaude:
		return []string{
			"ANTHROPIC_BASE_URL=" + l.ProxyURL,
			"ANTHROPIC_AUTH_TOKEN=" + placeholderKey,
			"ANTHROPIC_DEFAULT_OPUS_MODEL=opus",
			"ANTHROPIC_DEFAULT_SONNET_MODEL=sonnet",
			"ANTHROPIC_DEFAULT_HAIKU_MODEL=haiku",
		}, nil
	case AgentGemini:
		return []string{
			"GOOGLE_GEMINI_BASE_URL=" + l.ProxyURL,
			"GEMINI_API_KEY=" + placeholderKey,
		}, nil
	default:
		return nil, fmt.Errorf("unknown agent %q (expected: claude, gemini)", l.Agent)
	}
}

// Run starts the agent attached to the terminal and waits for it to exit.
// Cancelling ctx sends SIGTERM, then SIGKILL after WaitDelay.
// The returned code is the agent's exit code, or 128+signal when it was
// killed by a signal.
func (l *Launcher) Run(ctx context.Context) (int, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	env, err := l.Env()
	if err != nil {
		return 1, err
	}
	environ := l.Environ
	if environ == nil {
		environ = os.Environ
	}

	name := l.Command
	if name == "" {
		name = string(l.Agent)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return 127, fmt.Errorf("%s not found in PATH: %w", name, err)
	}

	cmd := exec.CommandContext(ctx, path, l.Args...)
	// Later entries win, so proxy settings override the user's environment.
	cmd.Env = append(environ(), env...)
	cmd.Stdin = orDefault(l.Stdin, io.Reader(os.Stdin))
	cmd.Stdout = orDefault(l.Stdout, io.Writer(os.Stdout))
	cmd.Stderr = orDefault(l.Stderr, io.Writer(os.Stderr))
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	logger.InfoContext(ctx, "launching agent", "agent", l.Agent, "path", path, "args", l.Args, "proxy_url", l.ProxyURL)

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("start %s: %w", name, err)
	}

	err = cmd.Wait()
	code := exitCode(cmd.ProcessState)
	logger.InfoContext(ctx, "agent exited", "agent", l.Agent, "exit_code", code)

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// Cancellation and WaitDelay expiry surface here; the exit code still applies.
		return code, fmt.Errorf("wait for %s: %w", name, err)
	}
	return code, nil
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return 1
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return state.ExitCode()
}

func orDefault[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
