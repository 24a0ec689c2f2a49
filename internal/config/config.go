// Package config holds process configuration for instaroom.
// Values come from the environment, optionally overridden by a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// GeminiConfig configures the Gemini model client.
type GeminiConfig struct {
	APIKey        string        `yaml:"api_key"`
	FlashModel    string        `yaml:"flash_model"`
	ImageGenModel string        `yaml:"image_gen_model"`
	Timeout       time.Duration `yaml:"timeout"`
}

// WorldLabsConfig configures the World Labs Marble client.
type WorldLabsConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
}

// ApifyConfig configures the Instagram scraping client.
type ApifyConfig struct {
	Token   string        `yaml:"token"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PipelineConfig holds tunables for the generation pipeline.
type PipelineConfig struct {
	AnalysisConcurrency int    `yaml:"analysis_concurrency"`
	DownloadConcurrency int    `yaml:"download_concurrency"`
	OutputDir           string `yaml:"output_dir"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root configuration object. Built once in main and passed down;
// nothing reads the environment after Load returns.
type Config struct {
	Gemini    GeminiConfig    `yaml:"gemini"`
	WorldLabs WorldLabsConfig `yaml:"worldlabs"`
	Apify     ApifyConfig     `yaml:"apify"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Server    ServerConfig    `yaml:"server"`
	Debug     bool            `yaml:"debug"`
}

// Default returns the baseline configuration before env/file overrides.
func Default() Config {
	return Config{
		Gemini: GeminiConfig{
			FlashModel:    "gemini-2.5-flash",
			ImageGenModel: "gemini-3-flash-preview",
			Timeout:       2 * time.Minute,
		},
		WorldLabs: WorldLabsConfig{
			BaseURL:      "https://api.worldlabs.ai/marble/v1",
			PollInterval: 5 * time.Second,
			PollTimeout:  10 * time.Minute,
		},
		Apify: ApifyConfig{
			BaseURL: "https://api.apify.com/v2",
			Timeout: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			AnalysisConcurrency: 5,
			DownloadConcurrency: 10,
			OutputDir:           "output",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables (highest precedence). Missing credentials are not an
// error here; each client fails at first use instead, so commands that do not
// touch a given service still run.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	// The original deployment used GOOGLE_API_KEY; accept it as an alias.
	if cfg.Gemini.APIKey == "" {
		setString(&cfg.Gemini.APIKey, "GOOGLE_API_KEY")
	}
	setString(&cfg.Gemini.FlashModel, "GEMINI_FLASH_MODEL")
	setString(&cfg.Gemini.ImageGenModel, "GEMINI_IMAGE_MODEL")

	setString(&cfg.WorldLabs.APIKey, "WORLDLABS_API_KEY")
	setString(&cfg.WorldLabs.BaseURL, "WORLDLABS_BASE_URL")

	setString(&cfg.Apify.Token, "APIFY_API_TOKEN")
	setString(&cfg.Apify.BaseURL, "APIFY_BASE_URL")

	setString(&cfg.Pipeline.OutputDir, "INSTAROOM_OUTPUT_DIR")
	setInt(&cfg.Pipeline.AnalysisConcurrency, "INSTAROOM_ANALYSIS_CONCURRENCY")
	setInt(&cfg.Pipeline.DownloadConcurrency, "INSTAROOM_DOWNLOAD_CONCURRENCY")

	setString(&cfg.Server.Addr, "INSTAROOM_ADDR")

	if v := os.Getenv("INSTAROOM_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
