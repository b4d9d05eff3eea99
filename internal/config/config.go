// Package config loads daemon configuration by layering defaults, an
// optional YAML file, and environment variables.
//
// Precedence (low to high):
//  1. defaults
//  2. YAML file named by GRIDKEEPER_CONFIG
//  3. environment (prefix GRIDKEEPER_, e.g. GRIDKEEPER_FEED_BASE_URL)
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type AppConfig struct {
	// Feed endpoints. At least one of FeedBaseURL (polling) and
	// FeedWSURL (push) must be set; both may be.
	FeedBaseURL string `koanf:"feed_base_url"`
	FeedWSURL   string `koanf:"feed_ws_url"`
	FeedToken   string `koanf:"feed_token"`

	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// LeagueFile is the roster path used for identity resolution.
	LeagueFile string `koanf:"league_file"`

	MetricsAddr string `koanf:"metrics_addr"`

	PollIntervalSec int `koanf:"poll_interval_sec"`
	BatchLimit      int `koanf:"batch_limit"`

	// Parser knobs. Zero means the extractor's built-in default.
	MaxGameNumber   int `koanf:"max_game_number"`
	GridWindowBytes int `koanf:"grid_window_bytes"`

	// SnapshotDir enables card snapshots when non-empty.
	SnapshotDir string `koanf:"snapshot_dir"`
}

func defaults() *AppConfig {
	return &AppConfig{
		MetricsAddr:     ":9090",
		PollIntervalSec: 20,
		BatchLimit:      200,
	}
}

func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if path := strings.TrimSpace(os.Getenv("GRIDKEEPER_CONFIG")); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// GRIDKEEPER_FEED_BASE_URL -> feed_base_url, matching the koanf
	// tags on AppConfig.
	envProvider := env.Provider("GRIDKEEPER_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "gridkeeper_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	cfg.FeedBaseURL = strings.TrimSpace(cfg.FeedBaseURL)
	cfg.FeedWSURL = strings.TrimSpace(cfg.FeedWSURL)
	cfg.LeagueFile = strings.TrimSpace(cfg.LeagueFile)

	if cfg.FeedBaseURL == "" && cfg.FeedWSURL == "" {
		return nil, errors.New("feed_base_url or feed_ws_url is required")
	}
	if cfg.LeagueFile == "" {
		return nil, errors.New("league_file is required")
	}
	if cfg.MetricsAddr == "" {
		return nil, errors.New("metrics_addr must not be empty")
	}
	if cfg.PollIntervalSec <= 0 {
		cfg.PollIntervalSec = 20
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 200
	}

	return cfg, nil
}
