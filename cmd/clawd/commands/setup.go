package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/clawd/internal/app"
)

// setupCommand returns the 'setup' subcommand that stores the API key and
// writes the config file.
func setupCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Save the backend API key and settings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "storage",
				Usage: "where to keep the API key (keyring|file)",
				Value: app.StorageKeyring,
			},
			&cli.StringFlag{
				Name:  "key-file",
				Usage: "key file for file storage (default: <user config dir>/clawd/api_key)",
			},
			&cli.StringFlag{
				Name:  "azure-endpoint",
				Usage: "Azure OpenAI endpoint, implies --provider azure",
			},
		},
		Action: setupAction,
	}
}

// logoutCommand returns the 'logout' subcommand.
func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Remove the stored API key",
		Action: logoutAction,
	}
}

func setupAction(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, err := configPath(cmd)
	if err != nil {
		return err
	}

	if endpoint := cmd.String("azure-endpoint"); endpoint != "" {
		cfg.Backend.Provider = app.ProviderAzure
		cfg.Backend.AzureEndpoint = endpoint
	}

	switch storage := cmd.String("storage"); storage {
	case app.StorageKeyring:
		cfg.Auth.Storage = storage
	case app.StorageFile:
		cfg.Auth.Storage = storage
		cfg.Auth.File = cmd.String("key-file")
		if cfg.Auth.File == "" {
			cfg.Auth.File = filepath.Join(filepath.Dir(path), "api_key")
		}
	default:
		return fmt.Errorf("unsupported storage %q (expected: keyring, file)", storage)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Println("=== clawd setup ===")
	fmt.Printf("Provider: %s\n", cfg.Backend.Provider)
	fmt.Printf("Models:   %s family\n", cfg.Models.Family)
	fmt.Println()

	if cfg.Backend.AzureUseEntraID {
		fmt.Println("Microsoft Entra ID is enabled; no API key is stored.")
	} else {
		key, err := readAPIKey(ctx, fmt.Sprintf("Enter %s API key: ", cfg.Backend.Provider))
		if err != nil {
			return err
		}
		if key == "" {
			return errors.New("API key cannot be empty")
		}

		store, err := cfg.NewStore()
		if err != nil {
			return fmt.Errorf("failed to create key store: %w", err)
		}
		if err := store.Write(ctx, key); err != nil {
			return fmt.Errorf("failed to save API key: %w", err)
		}
		fmt.Printf("API key saved to %s storage\n", cfg.Auth.Storage)
	}

	if err := app.SaveConfig(path, cfg); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("=== Setup Complete ===")
	fmt.Printf("Config written to %s\n", path)
	fmt.Println("Run `clawd claude` or `clawd gemini` to start a session")

	return nil
}

func logoutAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Auth.Storage == app.StorageEnv {
		return fmt.Errorf("cannot remove a key from env storage (read-only); unset %s instead",
			cfg.Auth.KeyEnvVar(cfg.Backend.Provider))
	}

	store, err := cfg.NewStore()
	if err != nil {
		return fmt.Errorf("failed to create key store: %w", err)
	}

	// Clear via empty write to keep the storage abstraction
	if err := store.Write(ctx, ""); err != nil {
		return fmt.Errorf("failed to clear API key: %w", err)
	}

	fmt.Println("API key removed from configured storage")
	return nil
}

// readAPIKey prompts with hidden input on a terminal and reads a single line
// otherwise, so that keys can be piped in.
func readAPIKey(ctx context.Context, prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read API key from stdin: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
	key, err := readSecureInput(ctx, prompt)
	return strings.TrimSpace(key), err
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
