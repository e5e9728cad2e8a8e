// Package providers implements LLM backends. All concrete providers speak
// either the OpenAI chat-completions wire format or the Anthropic Messages
// API; the registry maps configuration to the right endpoint and model
// naming conventions.
package providers

import "strings"

// ModelOverride applies extra request parameters for a model pattern.
type ModelOverride struct {
	Pattern   string         // case-insensitive substring matched in model name
	Overrides map[string]any // parameters merged into the request body
}

// ProviderSpec is the metadata record for one LLM provider.
type ProviderSpec struct {
	Name        string   // config field name, e.g. "deepseek"
	Keywords    []string // model-name keywords for matching (lowercase)
	EnvKey      string   // env var conventionally holding the API key
	DisplayName string   // shown in `tidelark status`

	RoutePrefix string // "provider/" prefix stripped before calling the API

	// Gateway / local detection.
	IsGateway           bool   // routes any model (OpenRouter, …)
	IsLocal             bool   // local deployment (vLLM)
	DetectByKeyPrefix   string // api_key prefix identifying the gateway
	DetectByBaseKeyword string // substring in api_base identifying the gateway
	DefaultAPIBase      string // fallback base URL when none is configured

	StripModelPrefix bool // gateway wants the bare model name

	ModelOverrides []ModelOverride

	// Provider supports cache_control content blocks (prompt caching).
	SupportsPromptCaching bool
}

// Label returns the display name, defaulting to title-cased Name.
func (s ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

// Specs is the provider registry. Order is match priority.
var Specs = []ProviderSpec{
	{
		Name:        "custom",
		DisplayName: "Custom",
	},
	{
		Name:                  "openrouter",
		Keywords:              []string{"openrouter"},
		EnvKey:                "OPENROUTER_API_KEY",
		DisplayName:           "OpenRouter",
		RoutePrefix:           "openrouter",
		IsGateway:             true,
		DetectByKeyPrefix:     "sk-or-",
		DetectByBaseKeyword:   "openrouter",
		DefaultAPIBase:        "https://openrouter.ai/api/v1",
		SupportsPromptCaching: true,
	},
	{
		Name:                "siliconflow",
		Keywords:            []string{"siliconflow"},
		EnvKey:              "OPENAI_API_KEY",
		DisplayName:         "SiliconFlow",
		IsGateway:           true,
		DetectByBaseKeyword: "siliconflow",
		DefaultAPIBase:      "https://api.siliconflow.cn/v1",
	},
	{
		Name:                  "anthropic",
		Keywords:              []string{"anthropic", "claude"},
		EnvKey:                "ANTHROPIC_API_KEY",
		DisplayName:           "Anthropic",
		DefaultAPIBase:        "https://api.anthropic.com/v1",
		SupportsPromptCaching: true,
	},
	{
		Name:        "openai",
		Keywords:    []string{"openai", "gpt"},
		EnvKey:      "OPENAI_API_KEY",
		DisplayName: "OpenAI",
	},
	{
		Name:        "deepseek",
		Keywords:    []string{"deepseek"},
		EnvKey:      "DEEPSEEK_API_KEY",
		DisplayName: "DeepSeek",
		RoutePrefix: "deepseek",
	},
	{
		Name:        "gemini",
		Keywords:    []string{"gemini"},
		EnvKey:      "GEMINI_API_KEY",
		DisplayName: "Gemini",
		RoutePrefix: "gemini",
	},
	{
		Name:        "dashscope",
		Keywords:    []string{"qwen", "dashscope"},
		EnvKey:      "DASHSCOPE_API_KEY",
		DisplayName: "DashScope",
		RoutePrefix: "dashscope",
	},
	{
		Name:           "moonshot",
		Keywords:       []string{"moonshot", "kimi"},
		EnvKey:         "MOONSHOT_API_KEY",
		DisplayName:    "Moonshot",
		RoutePrefix:    "moonshot",
		DefaultAPIBase: "https://api.moonshot.ai/v1",
		ModelOverrides: []ModelOverride{
			{Pattern: "kimi-k2.5", Overrides: map[string]any{"temperature": 1.0}},
		},
	},
	{
		Name:        "vllm",
		Keywords:    []string{"vllm"},
		EnvKey:      "HOSTED_VLLM_API_KEY",
		DisplayName: "vLLM/Local",
		RoutePrefix: "hosted_vllm",
		IsLocal:     true,
	},
	{
		Name:        "groq",
		Keywords:    []string{"groq"},
		EnvKey:      "GROQ_API_KEY",
		DisplayName: "Groq",
		RoutePrefix: "groq",
	},
}

// FindByModel matches a standard provider by model-name keyword. Gateways
// and local providers are skipped; those are matched by api_key/api_base.
func FindByModel(model string) *ProviderSpec {
	modelLower := strings.ToLower(model)
	modelNorm := strings.ReplaceAll(modelLower, "-", "_")
	modelPrefix, _, _ := strings.Cut(modelLower, "/")
	prefixNorm := strings.ReplaceAll(modelPrefix, "-", "_")

	var std []*ProviderSpec
	for i := range Specs {
		if !Specs[i].IsGateway && !Specs[i].IsLocal {
			std = append(std, &Specs[i])
		}
	}

	// An explicit "provider/…" prefix wins over keyword matching.
	for _, spec := range std {
		if modelPrefix != "" && prefixNorm == spec.Name {
			return spec
		}
	}
	for _, spec := range std {
		for _, kw := range spec.Keywords {
			kwNorm := strings.ReplaceAll(kw, "-", "_")
			if strings.Contains(modelLower, kw) || strings.Contains(modelNorm, kwNorm) {
				return spec
			}
		}
	}
	return nil
}

// FindGateway detects a gateway or local provider. Priority: explicit
// provider name, then api_key prefix, then api_base keyword.
func FindGateway(providerName, apiKey, apiBase string) *ProviderSpec {
	if providerName != "" {
		if s := FindByName(providerName); s != nil && (s.IsGateway || s.IsLocal) {
			return s
		}
	}
	for i := range Specs {
		spec := &Specs[i]
		if spec.DetectByKeyPrefix != "" && strings.HasPrefix(apiKey, spec.DetectByKeyPrefix) {
			return spec
		}
		if spec.DetectByBaseKeyword != "" && strings.Contains(apiBase, spec.DetectByBaseKeyword) {
			return spec
		}
	}
	return nil
}

// FindByName returns the ProviderSpec whose Name equals name, or nil.
func FindByName(name string) *ProviderSpec {
	for i := range Specs {
		if Specs[i].Name == name {
			return &Specs[i]
		}
	}
	return nil
}
