package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources.NewsRSS.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}
	if cfg.Analysis.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.Analysis.Provider)
	}
	if cfg.Sources.Judiciary.Delay != 5*time.Second {
		t.Errorf("expected judiciary delay 5s, got %v", cfg.Sources.Judiciary.Delay)
	}
	if cfg.Matcher.CacheTTL != 5*time.Minute {
		t.Errorf("expected cache ttl 5m, got %v", cfg.Matcher.CacheTTL)
	}
	if cfg.Schedule["news-rss"] == "" {
		t.Error("expected a news-rss schedule")
	}
	if cfg.Sources.X.Enabled {
		t.Error("expected x source disabled by default")
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
analysis:
  provider: openai
  model: gpt-4o
sources:
  registry:
    delay: 10s
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Analysis.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.Analysis.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Sources.Registry.Delay != 10*time.Second {
		t.Errorf("expected registry delay 10s, got %v", cfg.Sources.Registry.Delay)
	}
	// Defaults should still be set for unspecified fields
	if !cfg.Sources.Registry.Enabled {
		t.Error("expected registry to stay enabled")
	}
	if cfg.Sources.Registry.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Sources.Registry.MaxRetries)
	}
	if cfg.Analysis.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Analysis.OllamaURL)
	}
	if cfg.Enrichment.MaxAttempts != 3 {
		t.Errorf("expected default max_attempts 3, got %d", cfg.Enrichment.MaxAttempts)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Sources.NewsRSS.Feeds) == 0 {
		t.Error("expected feeds to be populated from file")
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
