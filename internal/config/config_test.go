package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Gemini.FlashModel == "" {
		t.Error("expected a default flash model")
	}
	if cfg.WorldLabs.PollInterval != 5*time.Second {
		t.Errorf("poll interval = %v, want 5s", cfg.WorldLabs.PollInterval)
	}
	if cfg.WorldLabs.PollTimeout != 10*time.Minute {
		t.Errorf("poll timeout = %v, want 10m", cfg.WorldLabs.PollTimeout)
	}
	if cfg.Pipeline.AnalysisConcurrency != 5 {
		t.Errorf("analysis concurrency = %d, want 5", cfg.Pipeline.AnalysisConcurrency)
	}
	if cfg.Pipeline.DownloadConcurrency != 10 {
		t.Errorf("download concurrency = %d, want 10", cfg.Pipeline.DownloadConcurrency)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "pipeline:\n  analysis_concurrency: 3\n  output_dir: /tmp/rooms\nserver:\n  addr: \":9090\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.AnalysisConcurrency != 3 {
		t.Errorf("analysis concurrency = %d, want 3", cfg.Pipeline.AnalysisConcurrency)
	}
	if cfg.Pipeline.OutputDir != "/tmp/rooms" {
		t.Errorf("output dir = %q", cfg.Pipeline.OutputDir)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	// Untouched fields keep defaults.
	if cfg.WorldLabs.BaseURL == "" {
		t.Error("worldlabs base URL lost its default")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("gemini:\n  api_key: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("INSTAROOM_ANALYSIS_CONCURRENCY", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gemini.APIKey != "from-env" {
		t.Errorf("api key = %q, want env value to win", cfg.Gemini.APIKey)
	}
	if cfg.Pipeline.AnalysisConcurrency != 7 {
		t.Errorf("analysis concurrency = %d, want 7", cfg.Pipeline.AnalysisConcurrency)
	}
}

func TestLoadGoogleAPIKeyAlias(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "legacy-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gemini.APIKey != "legacy-key" {
		t.Errorf("api key = %q, want legacy alias to apply", cfg.Gemini.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
