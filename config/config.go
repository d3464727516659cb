// Package config loads application configuration from a YAML file with a
// .env overlay for secrets.
package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	Mode string `yaml:"mode"` // gin mode: "debug" or "release"
}

// StorageConfig configures where durable state lives.
type StorageConfig struct {
	// DataDir holds the SQLite database, the retrieval partitions and
	// uploaded files.
	DataDir string `yaml:"data_dir"`
}

// LLMConfig configures the Claude client.
type LLMConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// APIKey resolves the API key from the configured environment variable.
func (c LLMConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// EmbedderConfig selects and configures the embedder implementation.
type EmbedderConfig struct {
	// Type is "onnx" or "mock".
	Type string `yaml:"type"`

	ModelPath         string `yaml:"model_path"`
	TokenizerPath     string `yaml:"tokenizer_path"`
	SharedLibraryPath string `yaml:"shared_library_path"`
	Dimensions        int    `yaml:"dimensions"`

	// CacheBytes bounds the in-process embedding cache.
	CacheBytes int64 `yaml:"cache_bytes"`
}

// SpeechConfig configures voice input.
type SpeechConfig struct {
	Enabled                  bool     `yaml:"enabled"`
	LanguageCode             string   `yaml:"language_code"`
	AlternativeLanguageCodes []string `yaml:"alternative_language_codes"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Mode string `yaml:"mode"` // "dev" or "prod"
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	LLM      LLMConfig      `yaml:"llm"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Speech   SpeechConfig   `yaml:"speech"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Load reads the config from path, overlaying a .env file from the working
// directory when one exists. A missing config file yields defaults.
func Load(path string) (*AppConfig, error) {
	// secrets such as the API key live in the environment, not the file
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-sonnet-4-20250514"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 8000
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "mock"
	}
	if cfg.Embedder.Dimensions == 0 {
		cfg.Embedder.Dimensions = 384
	}
	if cfg.Embedder.CacheBytes == 0 {
		cfg.Embedder.CacheBytes = 64 << 20
	}
	if cfg.Speech.LanguageCode == "" {
		cfg.Speech.LanguageCode = "en-US"
	}
	if cfg.Logging.Mode == "" {
		cfg.Logging.Mode = "dev"
	}
}
