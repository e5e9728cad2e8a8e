package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DataDir returns ~/.tidelark, the root for config, sessions, and memory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tidelark"
	}
	return filepath.Join(home, ".tidelark")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// Load reads the config file, falling back to defaults when the file is
// missing or unreadable. A .env file in the data directory or the current
// directory is loaded first so env-based keys are visible.
func Load() Config {
	loadDotEnv()

	cfg := DefaultConfig()
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read config, using defaults", "path", ConfigPath(), "err", err)
		}
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("failed to parse config, using defaults", "path", ConfigPath(), "err", err)
		return DefaultConfig()
	}
	return cfg
}

// Save writes the config with pretty indentation. The file holds API keys,
// so it is created user-readable only.
func Save(cfg Config) error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(), append(data, '\n'), 0o600)
}

func loadDotEnv() {
	for _, p := range []string{filepath.Join(DataDir(), ".env"), ".env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}
