package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.FlushBatchSize != 25 {
		t.Errorf("flush batch size: got %d", cfg.Scheduler.FlushBatchSize)
	}
	if cfg.Scheduler.AutoPublishInterval != time.Hour {
		t.Errorf("auto publish interval: got %s", cfg.Scheduler.AutoPublishInterval)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crier.yaml")
	yml := `
database:
  path: /tmp/file.db
scheduler:
  flush_interval: 5m
  flush_batch_size: 10
ollama:
  model: mistral
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CRIER_OLLAMA_MODEL", "gemma3:4b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/file.db" {
		t.Errorf("db path: got %s", cfg.Database.Path)
	}
	if cfg.Scheduler.FlushInterval != 5*time.Minute {
		t.Errorf("flush interval: got %s", cfg.Scheduler.FlushInterval)
	}
	if cfg.Scheduler.FlushBatchSize != 10 {
		t.Errorf("batch size: got %d", cfg.Scheduler.FlushBatchSize)
	}
	if cfg.Ollama.Model != "gemma3:4b" {
		t.Errorf("env override not applied: got %s", cfg.Ollama.Model)
	}
	// Untouched values keep their defaults.
	if cfg.Scheduler.EngagementInterval != 6*time.Hour {
		t.Errorf("engagement interval: got %s", cfg.Scheduler.EngagementInterval)
	}
}

func TestValidateRejectsRedisWithoutAddr(t *testing.T) {
	cfg := Default()
	cfg.Lease.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for redis backend without address")
	}
	cfg.Lease.RedisAddr = "localhost:6379"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsZeroBatch(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.FlushBatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero batch size")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Ollama.Model = "phi3"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Ollama.Model != "phi3" {
		t.Errorf("model: got %s", loaded.Ollama.Model)
	}
}
