package app

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/credentials"
	"github.com/florianilch/clawd/internal/hooks"
	"github.com/florianilch/clawd/internal/observability"
)

// envPrefix namespaces clawd's own environment variables:
// CLAWD_<SECTION>_<KEY>, e.g. CLAWD_SERVER_PORT or CLAWD_MODELS_REASONING_EFFORT.
const envPrefix = "CLAWD_"

// vendorEnv maps the backend vendors' conventional variables onto config keys.
// They rank below CLAWD_ variables. Azure is only used when selected as the
// provider; AZURE_OPENAI_ENDPOINT alone does not switch backends.
var vendorEnv = map[string]string{
	"OPENAI_BASE_URL":          "backend.base_url",
	"AZURE_OPENAI_ENDPOINT":    "backend.azure_endpoint",
	"AZURE_OPENAI_API_VERSION": "backend.azure_api_version",
	"OPENAI_API_VERSION":       "backend.azure_api_version",
}

// Backend providers.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// Credential storage types.
const (
	StorageEnv     = "env"
	StorageFile    = "file"
	StorageKeyring = "keyring"
)

// keyringService names the keychain entry.
const keyringService = "clawd"

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Backend BackendConfig `koanf:"backend"`
	Auth    AuthConfig    `koanf:"auth"`
	Models  ModelsConfig  `koanf:"models"`
	Retry   RetryConfig   `koanf:"retry"`
	Log     LogConfig     `koanf:"log"`

	// environ is the merged process and .env environment the config was loaded from.
	environ func() []string
}

type ServerConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"min=1,max=65535"`
	MaxRequestBytes int64  `koanf:"max_request_bytes" validate:"min=1"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the base URL agents use to reach the proxy.
func (s ServerConfig) URL() string {
	return "http://" + s.Addr()
}

type BackendConfig struct {
	Provider string `koanf:"provider" validate:"oneof=openai azure"`
	BaseURL  string `koanf:"base_url" validate:"required_if=Provider openai,omitempty,url"`

	AzureEndpoint   string `koanf:"azure_endpoint" validate:"required_if=Provider azure,omitempty,url"`
	AzureAPIVersion string `koanf:"azure_api_version"`
	// AzureUseEntraID authenticates with Microsoft Entra ID instead of an API key.
	AzureUseEntraID bool `koanf:"azure_use_entra_id"`

	RequestTimeout time.Duration `koanf:"request_timeout" validate:"min=0"`
}

type AuthConfig struct {
	Storage string `koanf:"storage" validate:"oneof=env file keyring"`
	// EnvVar names the variable read by env storage. Defaults per provider.
	EnvVar string `koanf:"env_var"`
	File   string `koanf:"file" validate:"required_if=Storage file"`
}

type ModelsConfig struct {
	Family string `koanf:"family" validate:"oneof=gpt-5 gpt-4o"`
	// Top, Mid and Small override the family's model per tier.
	Top   string `koanf:"top"`
	Mid   string `koanf:"mid"`
	Small string `koanf:"small"`
	// SupportsReasoning and MaxOutputTokens override the family's capabilities when set.
	SupportsReasoning *bool  `koanf:"supports_reasoning"`
	MaxOutputTokens   *int64 `koanf:"max_output_tokens" validate:"omitempty,min=0"`
	ReasoningEffort   string `koanf:"reasoning_effort" validate:"oneof=none minimal low medium high"`
}

type RetryConfig struct {
	MaxAttempts  int           `koanf:"max_attempts" validate:"min=1,max=10"`
	InitialDelay time.Duration `koanf:"initial_delay" validate:"min=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
	// File receives logs instead of stdout. Launch commands default it so that
	// the agent CLI keeps the terminal.
	File         string `koanf:"file"`
	OTLPProtocol string `koanf:"otlp_protocol" validate:"omitempty,oneof=http grpc stdout"`
	OTLPEndpoint string `koanf:"otlp_endpoint" validate:"omitempty,url"`
}

// defaults returns the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"server.host":               "127.0.0.1",
		"server.port":               2001,
		"server.max_request_bytes":  int64(50 << 20),
		"backend.provider":          ProviderOpenAI,
		"backend.base_url":          "https://api.openai.com/v1",
		"backend.azure_api_version": "2024-02-15-preview",
		"backend.request_timeout":   "10m",
		"auth.storage":              StorageEnv,
		"models.family":             hooks.FamilyGPT5,
		"models.reasoning_effort":   string(chatcompletions.ReasoningEffortLow),
		"retry.max_attempts":        3,
		"retry.initial_delay":       "1s",
		"log.level":                 "info",
		"log.format":                "text",
	}
}

// LoadOptions selects the configuration sources.
type LoadOptions struct {
	// File is a TOML config file. A missing file is not an error.
	File string
	// DotEnv is a .env file merged below the process environment. A missing file is not an error.
	DotEnv string
	// Environ defaults to os.Environ.
	Environ func() []string
	// Flags are explicitly set command line values keyed like the config ("server.port").
	Flags map[string]any
}

// LoadConfig merges defaults, the config file, the environment and flags,
// later sources winning, and validates the result.
func LoadConfig(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if opts.File != "" {
		if _, err := os.Stat(opts.File); err == nil {
			if err := k.Load(file.Provider(opts.File), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", opts.File, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	environ, err := environWithDotEnv(opts.DotEnv, opts.Environ)
	if err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(".", env.Opt{
		EnvironFunc: environ,
		TransformFunc: func(key, value string) (string, any) {
			return vendorEnv[key], value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load vendor environment: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		EnvironFunc:   environ,
		TransformFunc: transformEnvKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if len(opts.Flags) > 0 {
		if err := k.Load(confmap.Provider(opts.Flags, "."), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.environ = environ
	return &cfg, nil
}

// envAliases are short forms kept for existing setups.
var envAliases = map[string]string{
	"CLAWD_PORT": "server.port",
	"CLAWD_LOG":  "log.file",
}

// transformEnvKey maps CLAWD_SECTION_SOME_KEY to section.some_key.
func transformEnvKey(key, value string) (string, any) {
	if alias, ok := envAliases[key]; ok {
		return alias, value
	}
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return "", nil
	}
	return section + "." + rest, value
}

// environWithDotEnv appends .env entries that the process environment does not define.
func environWithDotEnv(path string, environ func() []string) (func() []string, error) {
	if environ == nil {
		environ = os.Environ
	}
	if path == "" {
		return environ, nil
	}

	dotenv, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return environ, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return func() []string {
		base := environ()
		defined := make(map[string]bool, len(base))
		for _, kv := range base {
			name, _, _ := strings.Cut(kv, "=")
			defined[name] = true
		}
		merged := base
		for _, name := range slices.Sorted(maps.Keys(dotenv)) {
			if !defined[name] {
				merged = append(merged, name+"="+dotenv[name])
			}
		}
		return merged
	}, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			msgs := make([]string, 0, len(validationErrs))
			for _, fe := range validationErrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config:\n  %s", strings.Join(msgs, "\n  "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Backend.AzureUseEntraID && c.Backend.Provider != ProviderAzure {
		return errors.New("invalid config: backend.azure_use_entra_id requires backend.provider = azure")
	}
	return nil
}

// ModelSet resolves the family preset with per-field overrides.
func (c *Config) ModelSet() (hooks.Models, error) {
	m, err := hooks.Family(c.Models.Family)
	if err != nil {
		return hooks.Models{}, err
	}
	if c.Models.Top != "" {
		m.Top = c.Models.Top
	}
	if c.Models.Mid != "" {
		m.Mid = c.Models.Mid
	}
	if c.Models.Small != "" {
		m.Small = c.Models.Small
	}
	if c.Models.SupportsReasoning != nil {
		m.SupportsReasoning = *c.Models.SupportsReasoning
	}
	if c.Models.MaxOutputTokens != nil {
		m.MaxOutputTokens = *c.Models.MaxOutputTokens
	}
	effort, err := chatcompletions.ParseReasoningEffort(c.Models.ReasoningEffort)
	if err != nil {
		return hooks.Models{}, err
	}
	m.ReasoningEffort = effort
	return m, nil
}

// BackoffPolicy returns the dispatcher retry policy.
func (c *Config) BackoffPolicy() chatcompletions.BackoffPolicy {
	return chatcompletions.BackoffPolicy{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: c.Retry.InitialDelay,
	}
}

// LogOptions returns the observability settings.
func (c *Config) LogOptions() (observability.Options, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return observability.Options{}, fmt.Errorf("log level: %w", err)
	}
	return observability.Options{
		Level:  level,
		Format: c.Log.Format,
		File:   c.Log.File,
		OTLP: observability.OTLPOptions{
			Protocol: c.Log.OTLPProtocol,
			Endpoint: c.Log.OTLPEndpoint,
		},
	}, nil
}

// KeyEnvVar returns the variable env storage reads.
func (a AuthConfig) KeyEnvVar(provider string) string {
	if a.EnvVar != "" {
		return a.EnvVar
	}
	if provider == ProviderAzure {
		return "AZURE_OPENAI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// NewStore creates the configured credential store.
func (c *Config) NewStore() (credentials.Store, error) {
	switch c.Auth.Storage {
	case StorageEnv:
		return &credentials.EnvStore{Name: c.Auth.KeyEnvVar(c.Backend.Provider), LookupEnv: c.lookupEnv}, nil
	case StorageFile:
		return &credentials.FileStore{Path: c.Auth.File}, nil
	case StorageKeyring:
		return &credentials.KeyringStore{Service: keyringService, User: c.Backend.Provider}, nil
	default:
		return nil, fmt.Errorf("unsupported auth storage %q", c.Auth.Storage)
	}
}

// lookupEnv resolves name in the environment the config was loaded from, so
// that a key defined in .env is found too.
func (c *Config) lookupEnv(name string) (string, bool) {
	if c.environ == nil {
		return os.LookupEnv(name)
	}
	prefix := name + "="
	for _, kv := range c.environ() {
		if v, ok := strings.CutPrefix(kv, prefix); ok {
			return v, true
		}
	}
	return "", false
}

// DefaultDir is the per-user directory holding config.toml, the key file and logs.
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, "clawd"), nil
}

// SaveConfig writes the persistent settings as TOML. Secrets are never
// written; the key lives in the credential store.
func SaveConfig(path string, c *Config) error {
	values := map[string]any{
		"server.host":                c.Server.Host,
		"server.port":                c.Server.Port,
		"backend.provider":           c.Backend.Provider,
		"backend.base_url":           c.Backend.BaseURL,
		"backend.azure_endpoint":     c.Backend.AzureEndpoint,
		"backend.azure_api_version":  c.Backend.AzureAPIVersion,
		"backend.azure_use_entra_id": c.Backend.AzureUseEntraID,
		"auth.storage":               c.Auth.Storage,
		"auth.env_var":               c.Auth.EnvVar,
		"auth.file":                  c.Auth.File,
		"models.family":              c.Models.Family,
		"models.top":                 c.Models.Top,
		"models.mid":                 c.Models.Mid,
		"models.small":               c.Models.Small,
		"models.reasoning_effort":    c.Models.ReasoningEffort,
	}
	for key, v := range values {
		if s, ok := v.(string); ok && s == "" {
			delete(values, key)
		}
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
		return fmt.Errorf("build config: %w", err)
	}
	data, err := k.Marshal(toml.Parser())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
