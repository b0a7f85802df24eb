// Package config loads crier's YAML configuration and applies .env and
// CRIER_* environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Ollama struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"ollama"`

	Embedding struct {
		Model     string  `yaml:"model"`     // empty disables the near-duplicate guard
		Threshold float64 `yaml:"threshold"` // cosine similarity, 0-1
	} `yaml:"embedding"`

	Prompts struct {
		Promotional string `yaml:"promotional,omitempty"`
		Educational string `yaml:"educational,omitempty"`
		Engagement  string `yaml:"engagement,omitempty"`
		Announce    string `yaml:"announcement,omitempty"`
	} `yaml:"prompts,omitempty"`

	Temperatures struct {
		Promotional float64 `yaml:"promotional"`
		Educational float64 `yaml:"educational"`
		Engagement  float64 `yaml:"engagement"`
		Announce    float64 `yaml:"announcement"`
	} `yaml:"temperatures,omitempty"`

	Scheduler struct {
		AutoPublishInterval time.Duration `yaml:"auto_publish_interval"`
		FlushInterval       time.Duration `yaml:"flush_interval"`
		EngagementInterval  time.Duration `yaml:"engagement_interval"`
		FlushBatchSize      int           `yaml:"flush_batch_size"`
		Workers             int           `yaml:"workers"`
		EngagementWindow    time.Duration `yaml:"engagement_window"`
	} `yaml:"scheduler"`

	Timeouts struct {
		Generation time.Duration `yaml:"generation"`
		Publish    time.Duration `yaml:"publish"`
		Metrics    time.Duration `yaml:"metrics"`
	} `yaml:"timeouts"`

	Lease struct {
		Backend   string `yaml:"backend"` // "sqlite" or "redis"
		RedisAddr string `yaml:"redis_addr"`
		RedisDB   int    `yaml:"redis_db"`
		Prefix    string `yaml:"prefix"`
	} `yaml:"lease"`

	Platforms struct {
		XBaseURL        string `yaml:"x_base_url"`
		LinkedInBaseURL string `yaml:"linkedin_base_url"`
		MastodonBaseURL string `yaml:"mastodon_base_url"`
	} `yaml:"platforms"`

	API struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"api"`

	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notify"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./crier.db"
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.Model = "llama3"
	cfg.Embedding.Threshold = 0.92
	cfg.Temperatures.Promotional = 0.8
	cfg.Temperatures.Educational = 0.6
	cfg.Temperatures.Engagement = 0.9
	cfg.Temperatures.Announce = 0.5
	cfg.Scheduler.AutoPublishInterval = time.Hour
	cfg.Scheduler.FlushInterval = 15 * time.Minute
	cfg.Scheduler.EngagementInterval = 6 * time.Hour
	cfg.Scheduler.FlushBatchSize = 25
	cfg.Scheduler.Workers = 4
	cfg.Scheduler.EngagementWindow = 7 * 24 * time.Hour
	cfg.Timeouts.Generation = 60 * time.Second
	cfg.Timeouts.Publish = 30 * time.Second
	cfg.Timeouts.Metrics = 15 * time.Second
	cfg.Lease.Backend = "sqlite"
	cfg.Lease.Prefix = "crier"
	cfg.Platforms.XBaseURL = "https://api.twitter.com"
	cfg.Platforms.LinkedInBaseURL = "https://api.linkedin.com"
	cfg.API.Addr = ":8080"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	LoadEnvFiles()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate rejects values the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.Scheduler.FlushBatchSize <= 0 {
		return errors.New("scheduler.flush_batch_size must be positive")
	}
	if c.Scheduler.Workers <= 0 {
		return errors.New("scheduler.workers must be positive")
	}
	for name, d := range map[string]time.Duration{
		"scheduler.auto_publish_interval": c.Scheduler.AutoPublishInterval,
		"scheduler.flush_interval":        c.Scheduler.FlushInterval,
		"scheduler.engagement_interval":   c.Scheduler.EngagementInterval,
		"timeouts.generation":             c.Timeouts.Generation,
		"timeouts.publish":                c.Timeouts.Publish,
		"timeouts.metrics":                c.Timeouts.Metrics,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	switch c.Lease.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("lease.backend must be sqlite or redis, got %q", c.Lease.Backend)
	}
	if c.Lease.Backend == "redis" && c.Lease.RedisAddr == "" {
		return errors.New("lease.redis_addr is required for the redis lease backend")
	}
	if c.Embedding.Threshold <= 0 || c.Embedding.Threshold > 1 {
		return errors.New("embedding.threshold must be in (0, 1]")
	}
	return nil
}

// LoadEnvFiles loads .env and .env.dev from the working directory when present.
func LoadEnvFiles() []string {
	var loaded []string
	for _, file := range []string{".env", ".env.dev"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			continue
		}
		loaded = append(loaded, file)
	}
	return loaded
}

func (c *Config) applyEnv() {
	c.Database.Path = getEnv("CRIER_DB_PATH", c.Database.Path)
	c.Ollama.BaseURL = getEnv("CRIER_OLLAMA_URL", c.Ollama.BaseURL)
	c.Ollama.Model = getEnv("CRIER_OLLAMA_MODEL", c.Ollama.Model)
	c.Embedding.Model = getEnv("CRIER_EMBEDDING_MODEL", c.Embedding.Model)
	c.Lease.Backend = getEnv("CRIER_LEASE_BACKEND", c.Lease.Backend)
	c.Lease.RedisAddr = getEnv("CRIER_REDIS_ADDR", c.Lease.RedisAddr)
	c.API.Addr = getEnv("CRIER_API_ADDR", c.API.Addr)
	c.API.JWTSecret = getEnv("CRIER_JWT_SECRET", c.API.JWTSecret)
	c.Notify.WebhookURL = getEnv("CRIER_NOTIFY_WEBHOOK", c.Notify.WebhookURL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Scheduler.FlushBatchSize = getEnvInt("CRIER_FLUSH_BATCH_SIZE", c.Scheduler.FlushBatchSize)
	c.Scheduler.Workers = getEnvInt("CRIER_WORKERS", c.Scheduler.Workers)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
