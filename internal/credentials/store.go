package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when a store holds no API key.
var ErrNotFound = errors.New("api key not found")

// ErrReadOnly is returned when writing to a store that cannot be written.
var ErrReadOnly = errors.New("store is read-only")

// Store persists the backend API key.
type Store interface {
	Read(ctx context.Context) (string, error)
	// Write replaces the stored key. An empty key clears it.
	Write(ctx context.Context, key string) error
}

// EnvStore reads the key from an environment variable.
type EnvStore struct {
	Name string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Compile-time check that EnvStore implements Store
var _ Store = (*EnvStore)(nil)

func (s *EnvStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lookup := s.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(s.Name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, s.Name)
	}
	return strings.TrimSpace(v), nil
}

func (s *EnvStore) Write(context.Context, string) error {
	return fmt.Errorf("%w: set %s in your environment instead", ErrReadOnly, s.Name)
}

// FileStore keeps the key in a file readable only by the current user.
type FileStore struct {
	Path string
}

// Compile-time check that FileStore implements Store
var _ Store = (*FileStore)(nil)

func (s *FileStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s does not exist", ErrNotFound, s.Path)
	}
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotFound, s.Path)
	}
	return key, nil
}

func (s *FileStore) Write(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove key file: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	// Write to a temp file and rename so that readers never see a partial key.
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".key-*")
	if err != nil {
		return fmt.Errorf("create temp key file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod key file: %w", err)
	}
	if _, err := tmp.WriteString(key + "\n"); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close key file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace key file: %w", err)
	}
	return nil
}

// KeyringStore keeps the key in the operating system keychain.
type KeyringStore struct {
	Service string
	User    string
}

// Compile-time check that KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

func (s *KeyringStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := keyring.Get(s.Service, s.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: no keyring entry for %s/%s", ErrNotFound, s.Service, s.User)
	}
	if err != nil {
		return "", fmt.Errorf("read keyring: %w", err)
	}
	return key, nil
}

func (s *KeyringStore) Write(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		if err := keyring.Delete(s.Service, s.User); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("delete keyring entry: %w", err)
		}
		return nil
	}
	if err := keyring.Set(s.Service, s.User, key); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}
