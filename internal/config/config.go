// Package config provides configuration loading and structs for the companion service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Memory     MemoryConfig     `yaml:"memory"`
	Generation GenerationConfig `yaml:"generation"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Watch      WatchConfig      `yaml:"watch"`

	// Secrets are read from the environment (and an optional .env file), never from YAML.
	Secrets Secrets `yaml:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the history database and the knowledge index.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	KnowledgePath    string `yaml:"knowledge_path"`
	KnowledgeBackend string `yaml:"knowledge_backend"` // chromem or memory
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // mock, onnx, openai, gemini
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
}

// IngestionConfig holds chunking and source fetch settings.
type IngestionConfig struct {
	ChunkSize     int           `yaml:"chunk_size"`
	ChunkOverlap  int           `yaml:"chunk_overlap"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	MaxFetchBytes int64         `yaml:"max_fetch_bytes"`
}

// MemoryConfig holds per-turn retrieval settings.
type MemoryConfig struct {
	ModelName     string `yaml:"model_name"`
	RecentLimit   int    `yaml:"recent_limit"`
	RetrievalTopK int    `yaml:"retrieval_top_k"`
	SeedDelimiter string `yaml:"seed_delimiter"`
}

// GenerationConfig selects the completion generator.
type GenerationConfig struct {
	Provider  string `yaml:"provider"` // anthropic, gemini, echo
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// RateLimitConfig bounds how often one user may chat on one route.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// WatchConfig holds the knowledge drop directory settings.
type WatchConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
}

// Secrets holds provider API keys.
type Secrets struct {
	OpenAIAPIKey    string
	GeminiAPIKey    string
	AnthropicAPIKey string
}

// Load reads and parses the config file at path, loads secrets, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	if err := LoadEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	cfg.Secrets = SecretsFromEnv()

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.KnowledgePath = expandPath(cfg.Storage.KnowledgePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Secrets are not written.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadEnv loads variables from the .env file at path without overriding ones already set.
// A missing file is not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// SecretsFromEnv reads provider keys from the process environment.
func SecretsFromEnv() Secrets {
	return Secrets{
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
