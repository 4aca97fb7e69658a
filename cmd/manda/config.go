package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds all manda server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath            string `json:"db_path"`
	LogLevel          string `json:"log_level"`
	RulesPath         string `json:"rules_path"`
	SpecialistTimeout string `json:"specialist_timeout"`
	CheckpointTTL     string `json:"checkpoint_ttl"`
}

func defaultConfig() Config {
	return Config{
		DBPath:        filepath.Join(mandaDir(), "manda.db"),
		LogLevel:      "info",
		CheckpointTTL: "720h", // 30 days
	}
}

func mandaDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".manda"
	}
	return filepath.Join(home, ".manda")
}

func settingsPath() string {
	return filepath.Join(mandaDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("MANDA_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MANDA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MANDA_RULES_PATH"); v != "" {
		cfg.RulesPath = v
	}
	if v := os.Getenv("MANDA_SPECIALIST_TIMEOUT"); v != "" {
		cfg.SpecialistTimeout = v
	}
	if v := os.Getenv("MANDA_CHECKPOINT_TTL"); v != "" {
		cfg.CheckpointTTL = v
	}

	return cfg
}

// checkpointTTL parses the retention window, falling back to the default on
// a bad value.
func (c Config) checkpointTTL() time.Duration {
	d, err := time.ParseDuration(c.CheckpointTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}
