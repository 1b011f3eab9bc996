package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// KV store connection
	KVStoreURL    string `yaml:"kvstore_url"`
	KVStoreAPIKey string `yaml:"-"`

	// Auth
	APIKey string `yaml:"-"`

	// Compression service
	CompressURL    string  `yaml:"compress_url"`
	CompressAPIKey string  `yaml:"-"`
	CompressModel  string  `yaml:"compress_model"`
	CompressRate   float64 `yaml:"compress_rate"`

	// Categorization/chat LLM
	LLMAPIKey string `yaml:"-"`
	LLMModel  string `yaml:"llm_model"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Extraction job state
	JobTTL time.Duration `yaml:"job_ttl"`
}

// Load builds the configuration from environment variables, with an
// optional YAML overlay named by MANUALQA_CONFIG applied first so env
// vars always win. Secrets come from the environment only.
func Load() (Config, error) {
	cfg := Config{
		Port:           "8090",
		KVStoreURL:     "http://localhost:8080",
		CompressModel:  "gpt-4o-mini",
		CompressRate:   0.95,
		LLMModel:       "gemini-2.0-flash",
		MaxUploadBytes: 52428800, // 50MB
		JobTTL:         1 * time.Hour,
	}

	if path := os.Getenv("MANUALQA_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.KVStoreURL = envOr("KVSTORE_URL", cfg.KVStoreURL)
	cfg.KVStoreAPIKey = os.Getenv("KVSTORE_API_KEY")
	cfg.APIKey = os.Getenv("MANUALQA_API_KEY")
	cfg.CompressURL = envOr("COMPRESS_URL", cfg.CompressURL)
	cfg.CompressAPIKey = os.Getenv("COMPRESS_API_KEY")
	cfg.CompressModel = envOr("COMPRESS_MODEL", cfg.CompressModel)
	cfg.CompressRate = envFloat("COMPRESS_RATE", cfg.CompressRate)
	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	cfg.LLMModel = envOr("LLM_MODEL", cfg.LLMModel)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)

	if cfg.CompressRate <= 0 || cfg.CompressRate > 1 {
		cfg.CompressRate = 0.95
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.KVStoreAPIKey == "" {
		return fmt.Errorf("KVSTORE_API_KEY is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("MANUALQA_API_KEY is required")
	}
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.CompressURL == "" {
		return fmt.Errorf("COMPRESS_URL is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
