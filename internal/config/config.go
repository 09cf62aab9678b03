// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (EXOCORTEX_ prefix, runtime override)
//  2. Config file (~/.exocortex/config.yaml or ./config.yaml)
//  3. Default values
//
// Error handling uses sentinel errors for errors.Is checks, wrapped with
// fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidBackend indicates the storage backend is not supported.
	ErrInvalidBackend = errors.New("invalid storage backend")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid embedding provider")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidDimensions indicates the embedding dimension is out of range.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrInvalidChunking indicates the chunk size/overlap pair is invalid.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidBudget indicates the context token budget is not positive.
	ErrInvalidBudget = errors.New("invalid context budget")

	// ErrMissingDatabaseURL indicates the postgres backend has no DSN.
	ErrMissingDatabaseURL = errors.New("missing database URL")
)

// Embedding provider identifiers used in Config.Provider.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Storage backend identifiers used in Config.Backend.
const (
	BackendChromem  = "chromem"
	BackendPostgres = "postgres"
)

// Config stores application configuration.
type Config struct {
	// Storage
	Backend     string `mapstructure:"backend" json:"backend"`           // "chromem" (default) or "postgres"
	DataDir     string `mapstructure:"data_dir" json:"data_dir"`         // chromem persistence root
	Compress    bool   `mapstructure:"compress" json:"compress"`         // gzip persisted records
	DatabaseURL string `mapstructure:"database_url" json:"database_url"` // postgres DSN, SENSITIVE

	// Embedding provider
	Provider        string  `mapstructure:"provider" json:"provider"` // "ollama" (default), "openai", "gemini", "mock"
	EmbedderModel   string  `mapstructure:"embedder_model" json:"embedder_model"`
	Dimensions      int     `mapstructure:"dimensions" json:"dimensions"`
	OllamaHost      string  `mapstructure:"ollama_host" json:"ollama_host"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE
	GeminiAPIKey    string  `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE
	EmbedTimeoutSec int     `mapstructure:"embed_timeout_sec" json:"embed_timeout_sec"`
	EmbedRPS        float64 `mapstructure:"embed_rps" json:"embed_rps"` // 0 disables rate limiting
	CacheBytes      int64   `mapstructure:"cache_bytes" json:"cache_bytes"`

	// Chunking
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval
	TopK          int `mapstructure:"top_k" json:"top_k"`
	ContextBudget int `mapstructure:"context_budget" json:"context_budget"`

	// Bootstrap inputs
	IdentityFactsFile string   `mapstructure:"identity_facts_file" json:"identity_facts_file"`
	ProjectSources    []string `mapstructure:"project_sources" json:"project_sources"`
	ProjectExtensions []string `mapstructure:"project_extensions" json:"project_extensions"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".exocortex")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)

	v.SetEnvPrefix("EXOCORTEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("backend", BackendChromem)
	v.SetDefault("data_dir", filepath.Join(configDir, "memory"))
	v.SetDefault("compress", true)

	v.SetDefault("provider", ProviderOllama)
	v.SetDefault("embedder_model", "nomic-embed-text")
	v.SetDefault("dimensions", 768)
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("embed_timeout_sec", 30)
	v.SetDefault("embed_rps", 0)
	v.SetDefault("cache_bytes", 64<<20)

	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)

	v.SetDefault("top_k", 5)
	v.SetDefault("context_budget", 2000)

	v.SetDefault("identity_facts_file", filepath.Join(configDir, "identity_facts.json"))
	v.SetDefault("project_extensions", []string{".md", ".txt"})

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Validate fails fast on an unusable configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendChromem, BackendPostgres:
	default:
		return fmt.Errorf("%w: %q (want %q or %q)",
			ErrInvalidBackend, c.Backend, BackendChromem, BackendPostgres)
	}
	if c.Backend == BackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("%w: postgres backend requires database_url or EXOCORTEX_DATABASE_URL",
			ErrMissingDatabaseURL)
	}

	switch c.Provider {
	case ProviderOllama, ProviderMock:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: set openai_api_key or EXOCORTEX_OPENAI_API_KEY", ErrMissingAPIKey)
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: set gemini_api_key or EXOCORTEX_GEMINI_API_KEY", ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}

	if c.Dimensions <= 0 || c.Dimensions > 8192 {
		return fmt.Errorf("%w: %d (want 1..8192)", ErrInvalidDimensions, c.Dimensions)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: size %d overlap %d", ErrInvalidChunking, c.ChunkSize, c.ChunkOverlap)
	}
	if c.ContextBudget <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBudget, c.ContextBudget)
	}
	return nil
}
