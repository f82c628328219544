package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/credentials"
)

func environ(kv ...string) func() []string {
	return func() []string { return kv }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(LoadOptions{Environ: environ()})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:2001", cfg.Server.Addr())
	assert.Equal(t, "http://127.0.0.1:2001", cfg.Server.URL())
	assert.Equal(t, int64(50<<20), cfg.Server.MaxRequestBytes)
	assert.Equal(t, ProviderOpenAI, cfg.Backend.Provider)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Backend.BaseURL)
	assert.Equal(t, 10*time.Minute, cfg.Backend.RequestTimeout)
	assert.Equal(t, StorageEnv, cfg.Auth.Storage)
	assert.Equal(t, "gpt-5", cfg.Models.Family)
	assert.Equal(t, chatcompletions.BackoffPolicy{MaxAttempts: 3, InitialDelay: time.Second}, cfg.BackoffPolicy())
}

func TestLoadConfig_Precedence(t *testing.T) {
	file := writeFile(t, "config.toml", `
[server]
port = 3000
host = "0.0.0.0"

[models]
family = "gpt-4o"
small = "file-small"

[retry]
initial_delay = "250ms"
`)
	dotenv := writeFile(t, ".env", "CLAWD_MODELS_SMALL=dotenv-small\nCLAWD_MODELS_MID=dotenv-mid\n")

	cfg, err := LoadConfig(LoadOptions{
		File:   file,
		DotEnv: dotenv,
		Environ: environ(
			"OPENAI_BASE_URL=https://vendor.example/v1",
			"CLAWD_SERVER_PORT=4000",
			"CLAWD_MODELS_SMALL=env-small",
			"CLAWD_MODELS_REASONING_EFFORT=high",
		),
		Flags: map[string]any{"server.port": 5000},
	})
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port, "flags win")
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "file beats defaults")
	assert.Equal(t, "env-small", cfg.Models.Small, "process env beats .env")
	assert.Equal(t, "dotenv-mid", cfg.Models.Mid, ".env fills gaps")
	assert.Equal(t, "https://vendor.example/v1", cfg.Backend.BaseURL)
	assert.Equal(t, "high", cfg.Models.ReasoningEffort)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
}

func TestLoadConfig_Aliases(t *testing.T) {
	cfg, err := LoadConfig(LoadOptions{Environ: environ("CLAWD_PORT=2222", "CLAWD_LOG=/tmp/clawd.log")})
	require.NoError(t, err)

	assert.Equal(t, 2222, cfg.Server.Port)
	assert.Equal(t, "/tmp/clawd.log", cfg.Log.File)
}

func TestLoadConfig_MissingFilesAreFine(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadConfig(LoadOptions{
		File:    filepath.Join(dir, "missing.toml"),
		DotEnv:  filepath.Join(dir, ".env"),
		Environ: environ(),
	})
	assert.NoError(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     []string
		wantErr string
	}{
		{"port out of range", []string{"CLAWD_SERVER_PORT=70000"}, "Port"},
		{"unknown family", []string{"CLAWD_MODELS_FAMILY=llama"}, "Family"},
		{"unknown effort", []string{"CLAWD_MODELS_REASONING_EFFORT=extreme"}, "ReasoningEffort"},
		{"azure without endpoint", []string{"CLAWD_BACKEND_PROVIDER=azure"}, "AzureEndpoint"},
		{"file storage without path", []string{"CLAWD_AUTH_STORAGE=file"}, "File"},
		{"entra id without azure", []string{"CLAWD_BACKEND_AZURE_USE_ENTRA_ID=true"}, "azure_use_entra_id"},
		{"bad base url", []string{"OPENAI_BASE_URL=not a url"}, "BaseURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(LoadOptions{Environ: environ(tt.env...)})
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfig_Azure(t *testing.T) {
	cfg, err := LoadConfig(LoadOptions{Environ: environ(
		"AZURE_OPENAI_ENDPOINT=https://example.openai.azure.com",
		"CLAWD_BACKEND_PROVIDER=azure",
	)})
	require.NoError(t, err)

	assert.Equal(t, "https://example.openai.azure.com", cfg.Backend.AzureEndpoint)
	assert.Equal(t, "2024-02-15-preview", cfg.Backend.AzureAPIVersion)
	assert.Equal(t, "AZURE_OPENAI_API_KEY", cfg.Auth.KeyEnvVar(cfg.Backend.Provider))

	store, err := cfg.NewStore()
	require.NoError(t, err)
	envStore, ok := store.(*credentials.EnvStore)
	require.True(t, ok)
	assert.Equal(t, "AZURE_OPENAI_API_KEY", envStore.Name)
}

func TestNewStore_EnvFromDotEnv(t *testing.T) {
	dotenv := writeFile(t, ".env", "OPENAI_API_KEY=sk-from-dotenv\n")
	cfg, err := LoadConfig(LoadOptions{DotEnv: dotenv, Environ: environ()})
	require.NoError(t, err)

	store, err := cfg.NewStore()
	require.NoError(t, err)
	key, err := store.Read(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "sk-from-dotenv", key)
}

func TestModelSet(t *testing.T) {
	cfg, err := LoadConfig(LoadOptions{Environ: environ(
		"CLAWD_MODELS_FAMILY=gpt-4o",
		"CLAWD_MODELS_TOP=my-deployment",
		"CLAWD_MODELS_MAX_OUTPUT_TOKENS=4096",
		"CLAWD_MODELS_SUPPORTS_REASONING=true",
		"CLAWD_MODELS_REASONING_EFFORT=medium",
	)})
	require.NoError(t, err)

	models, err := cfg.ModelSet()
	require.NoError(t, err)
	assert.Equal(t, "my-deployment", models.Top)
	assert.Equal(t, "gpt-4o", models.Mid)
	assert.Equal(t, "gpt-4o-mini", models.Small)
	assert.Equal(t, int64(4096), models.MaxOutputTokens)
	assert.True(t, models.SupportsReasoning)
	assert.Equal(t, chatcompletions.ReasoningEffortMedium, models.ReasoningEffort)
}

func TestNewStore(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "key")
	cfg, err := LoadConfig(LoadOptions{Environ: environ("CLAWD_AUTH_STORAGE=file", "CLAWD_AUTH_FILE="+keyFile)})
	require.NoError(t, err)
	store, err := cfg.NewStore()
	require.NoError(t, err)
	assert.Equal(t, &credentials.FileStore{Path: keyFile}, store)

	cfg, err = LoadConfig(LoadOptions{Environ: environ("CLAWD_AUTH_STORAGE=keyring")})
	require.NoError(t, err)
	store, err = cfg.NewStore()
	require.NoError(t, err)
	assert.Equal(t, &credentials.KeyringStore{Service: "clawd", User: "openai"}, store)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	original, err := LoadConfig(LoadOptions{Environ: environ(
		"CLAWD_SERVER_PORT=2100",
		"CLAWD_MODELS_FAMILY=gpt-4o",
		"CLAWD_AUTH_STORAGE=keyring",
	)})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, SaveConfig(path, original))

	loaded, err := LoadConfig(LoadOptions{File: path, Environ: environ()})
	require.NoError(t, err)
	assert.Equal(t, 2100, loaded.Server.Port)
	assert.Equal(t, "gpt-4o", loaded.Models.Family)
	assert.Equal(t, StorageKeyring, loaded.Auth.Storage)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "api_key")
}

func TestLogOptions(t *testing.T) {
	cfg, err := LoadConfig(LoadOptions{Environ: environ(
		"CLAWD_LOG_LEVEL=debug",
		"CLAWD_LOG_OTLP_PROTOCOL=grpc",
		"CLAWD_LOG_OTLP_ENDPOINT=http://localhost:4317",
	)})
	require.NoError(t, err)

	opts, err := cfg.LogOptions()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", opts.Level.String())
	assert.Equal(t, "grpc", opts.OTLP.Protocol)
	assert.Equal(t, "http://localhost:4317", opts.OTLP.Endpoint)
}
