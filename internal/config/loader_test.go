package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDirUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if got := DataDir(); got != filepath.Join(home, ".tidelark") {
		t.Errorf("unexpected data dir: %q", got)
	}
	if got := ConfigPath(); got != filepath.Join(home, ".tidelark", "config.json") {
		t.Errorf("unexpected config path: %q", got)
	}
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := Load()
	if cfg.Agents.Defaults.Model != "anthropic/claude-opus-4-5" {
		t.Errorf("unexpected default model: %q", cfg.Agents.Defaults.Model)
	}
	if cfg.Agents.Defaults.MaxTokens != 8192 || cfg.Agents.Defaults.MaxToolIter != 20 {
		t.Errorf("unexpected defaults: %+v", cfg.Agents.Defaults)
	}
	if cfg.Tools.Exec.Timeout != 60 || cfg.Tools.Web.Search.MaxResults != 5 {
		t.Errorf("unexpected tool defaults: %+v", cfg.Tools)
	}
	if cfg.Heartbeat.Enabled || cfg.Heartbeat.IntervalMinutes != 30 {
		t.Errorf("unexpected heartbeat defaults: %+v", cfg.Heartbeat)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Agents.Defaults.Model = "deepseek-chat"
	cfg.Providers.DeepSeek.APIKey = "sk-test"
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = "123:abc"

	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(ConfigPath())
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config should be user-only, got %v", info.Mode().Perm())
	}

	loaded := Load()
	if loaded.Agents.Defaults.Model != "deepseek-chat" {
		t.Errorf("model not persisted: %q", loaded.Agents.Defaults.Model)
	}
	if loaded.Providers.DeepSeek.APIKey != "sk-test" {
		t.Errorf("provider key not persisted")
	}
	if !loaded.Channels.Telegram.Enabled || loaded.Channels.Telegram.Token != "123:abc" {
		t.Errorf("channel config not persisted: %+v", loaded.Channels.Telegram)
	}
}

func TestLoadFallsBackOnParseError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ConfigPath(), []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load()
	if cfg.Agents.Defaults.Model != "anthropic/claude-opus-4-5" {
		t.Errorf("expected defaults on parse failure, got %q", cfg.Agents.Defaults.Model)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(func() { os.Unsetenv("TIDELARK_DOTENV_PROBE") })

	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(DataDir(), ".env")
	if err := os.WriteFile(envPath, []byte("TIDELARK_DOTENV_PROBE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	Load()
	if got := os.Getenv("TIDELARK_DOTENV_PROBE"); got != "loaded" {
		t.Errorf("dotenv not loaded: %q", got)
	}
}

func TestWorkspacePathExpandsTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := DefaultConfig()
	if got := cfg.WorkspacePath(); got != filepath.Join(home, ".tidelark", "workspace") {
		t.Errorf("tilde not expanded: %q", got)
	}

	cfg.Agents.Defaults.Workspace = "/opt/agent"
	if got := cfg.WorkspacePath(); got != "/opt/agent" {
		t.Errorf("absolute path changed: %q", got)
	}
}
