package config

import (
	"testing"

	"github.com/tidelark/tidelark/internal/providers"
)

// clearProviderEnv blanks every conventional provider env var so matching
// sees only what the test configures.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, spec := range providers.Specs {
		if spec.EnvKey != "" {
			t.Setenv(spec.EnvKey, "")
		}
	}
}

func TestMatchByModelKeyword(t *testing.T) {
	clearProviderEnv(t)
	cfg := DefaultConfig()
	cfg.Providers.DeepSeek.APIKey = "sk-ds"

	m := cfg.MatchProvider("deepseek-chat")
	if m == nil || m.Spec.Name != "deepseek" {
		t.Fatalf("expected deepseek, got %+v", m)
	}
	if m.APIKey != "sk-ds" {
		t.Errorf("key not resolved: %q", m.APIKey)
	}
}

func TestMatchPrefersConfigOverEnv(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	cfg := DefaultConfig()
	cfg.Providers.Anthropic.APIKey = "config-key"

	m := cfg.MatchProvider("anthropic/claude-opus-4-5")
	if m == nil || m.APIKey != "config-key" {
		t.Fatalf("config key should win: %+v", m)
	}
}

func TestMatchFromEnvOnly(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	cfg := DefaultConfig()

	m := cfg.MatchProvider("claude-sonnet")
	if m == nil || m.Spec.Name != "anthropic" || m.APIKey != "env-key" {
		t.Fatalf("env key not picked up: %+v", m)
	}
	if m.APIBase != "https://api.anthropic.com/v1" {
		t.Errorf("default api base not applied: %q", m.APIBase)
	}
}

func TestMatchGatewayByKeyPrefix(t *testing.T) {
	clearProviderEnv(t)
	cfg := DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "sk-or-v1-abc"

	// Model keyword matches no standard provider with credentials, so the
	// configured gateway takes it.
	m := cfg.MatchProvider("meta-llama/llama-3-70b")
	if m == nil || m.Spec.Name != "openrouter" {
		t.Fatalf("expected openrouter gateway, got %+v", m)
	}
}

func TestMatchFallsBackToAnyConfigured(t *testing.T) {
	clearProviderEnv(t)
	cfg := DefaultConfig()
	cfg.Providers.Groq.APIKey = "gsk-x"

	m := cfg.MatchProvider("some-unknown-model")
	if m == nil || m.Spec.Name != "groq" {
		t.Fatalf("expected fallback to groq, got %+v", m)
	}
}

func TestMatchLocalProviderByBaseOnly(t *testing.T) {
	clearProviderEnv(t)
	cfg := DefaultConfig()
	cfg.Providers.VLLM.APIBase = "http://localhost:8000/v1"

	m := cfg.MatchProvider("vllm/qwen-7b")
	if m == nil || m.Spec.Name != "vllm" {
		t.Fatalf("expected vllm without api key, got %+v", m)
	}
	if m.APIBase != "http://localhost:8000/v1" {
		t.Errorf("api base not resolved: %q", m.APIBase)
	}
}

func TestMatchNothingConfigured(t *testing.T) {
	clearProviderEnv(t)
	cfg := DefaultConfig()
	if m := cfg.MatchProvider("anthropic/claude-opus-4-5"); m != nil {
		t.Errorf("expected nil with no credentials, got %+v", m)
	}
	if cfg.GetProviderName() != "" {
		t.Errorf("expected empty provider name")
	}
}
