//go:build unix

package commands

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/clawd/internal/app"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func baseArgs(t *testing.T) []string {
	dir := t.TempDir()
	return []string{
		"clawd",
		"--config", filepath.Join(dir, "config.toml"),
		"--env-file", filepath.Join(dir, ".env"),
		"--log-file", filepath.Join(dir, "clawd.log"),
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	var got *app.Config
	root := newRootCommand("test", "none")
	root.Commands = append(root.Commands, &cli.Command{
		Name: "show-config",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var err error
			got, err = loadConfig(cmd)
			return err
		},
	})

	t.Setenv("CLAWD_SERVER_PORT", "4000")
	args := append(baseArgs(t), "--port", "4100", "--family", "gpt-4o", "show-config")
	require.NoError(t, root.Run(context.Background(), args))

	require.NotNil(t, got)
	assert.Equal(t, 4100, got.Server.Port)
	assert.Equal(t, "gpt-4o", got.Models.Family)
	assert.Equal(t, "127.0.0.1", got.Server.Host, "unset flags leave lower layers alone")
}

func writeAgent(t *testing.T, name, body string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestLaunch_PropagatesExitCode(t *testing.T) {
	out := filepath.Join(t.TempDir(), "agent.out")
	writeAgent(t, "claude", `echo "$ANTHROPIC_BASE_URL $*" > `+out+"\nexit 5")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	port := strconv.Itoa(freePort(t))
	args := append(baseArgs(t), "--port", port, "claude", "--resume", "-p", "hi")
	err := Execute(context.Background(), args, "test", "none")

	var exitErr *ExitCodeError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 5, exitErr.Code)
	assert.NoError(t, exitErr.Err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:"+port+" --resume -p hi", strings.TrimSpace(string(data)))
}

func TestLaunch_SuccessfulAgent(t *testing.T) {
	writeAgent(t, "gemini", `test "$GEMINI_API_KEY" = sk-clawd`)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	args := append(baseArgs(t), "--port", strconv.Itoa(freePort(t)), "gemini")
	assert.NoError(t, Execute(context.Background(), args, "test", "none"))
}

func TestLaunch_MissingKey(t *testing.T) {
	writeAgent(t, "claude", "exit 0")
	t.Setenv("OPENAI_API_KEY", "")

	args := append(baseArgs(t), "--port", strconv.Itoa(freePort(t)), "claude")
	err := Execute(context.Background(), args, "test", "none")
	assert.ErrorContains(t, err, "clawd setup")
}

func TestSetup_FileStorage(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString("sk-from-setup\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	stdin := os.Stdin
	os.Stdin = r
	t.Cleanup(func() {
		os.Stdin = stdin
		_ = r.Close()
	})

	args := baseArgs(t)
	configFile := args[2]
	keyFile := filepath.Join(t.TempDir(), "key")
	args = append(args, "--family", "gpt-4o", "setup", "--storage", "file", "--key-file", keyFile)
	require.NoError(t, Execute(context.Background(), args, "test", "none"))

	key, err := os.ReadFile(keyFile)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-setup", strings.TrimSpace(string(key)))

	cfg, err := app.LoadConfig(app.LoadOptions{File: configFile, Environ: func() []string { return nil }})
	require.NoError(t, err)
	assert.Equal(t, app.StorageFile, cfg.Auth.Storage)
	assert.Equal(t, keyFile, cfg.Auth.File)
	assert.Equal(t, "gpt-4o", cfg.Models.Family)

	args = append(baseArgs(t)[:1], "--config", configFile, "logout")
	require.NoError(t, Execute(context.Background(), args, "test", "none"))
	_, err = os.Stat(keyFile)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLogout_EnvStorage(t *testing.T) {
	args := append(baseArgs(t), "logout")
	assert.ErrorContains(t, Execute(context.Background(), args, "test", "none"), "OPENAI_API_KEY")
}
