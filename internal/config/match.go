package config

import (
	"os"

	"github.com/tidelark/tidelark/internal/providers"
)

// Matched pairs a provider spec with the credentials resolved for it.
type Matched struct {
	Spec    *providers.ProviderSpec
	APIKey  string
	APIBase string
	Extra   map[string]string
}

// MatchProvider resolves which provider serves the given model. Priority:
//  1. a standard provider matched by model name whose key is configured
//  2. a configured gateway (matched by key prefix or api_base)
//  3. the first provider with any credentials at all
//
// Returns nil when nothing is configured.
func (c *Config) MatchProvider(model string) *Matched {
	if spec := providers.FindByModel(model); spec != nil {
		if m := c.resolve(spec); m != nil {
			return m
		}
	}

	for i := range providers.Specs {
		spec := &providers.Specs[i]
		if !spec.IsGateway && !spec.IsLocal {
			continue
		}
		pc := c.ProviderByName(spec.Name)
		if pc == nil {
			continue
		}
		key := firstNonEmpty(pc.APIKey, os.Getenv(spec.EnvKey))
		if g := providers.FindGateway(spec.Name, key, pc.APIBase); g != nil && g == spec {
			if key != "" || pc.APIBase != "" {
				return &Matched{Spec: spec, APIKey: key, APIBase: pc.APIBase, Extra: pc.ExtraHeaders}
			}
		}
	}

	for i := range providers.Specs {
		if m := c.resolve(&providers.Specs[i]); m != nil {
			return m
		}
	}
	return nil
}

// resolve returns the credentials for spec, preferring the config file over
// the conventional env var. Local providers need only an api_base.
func (c *Config) resolve(spec *providers.ProviderSpec) *Matched {
	pc := c.ProviderByName(spec.Name)
	if pc == nil {
		return nil
	}
	key := firstNonEmpty(pc.APIKey, os.Getenv(spec.EnvKey))
	base := firstNonEmpty(pc.APIBase, spec.DefaultAPIBase)
	if key == "" && !(spec.IsLocal && pc.APIBase != "") {
		return nil
	}
	return &Matched{Spec: spec, APIKey: key, APIBase: base, Extra: pc.ExtraHeaders}
}

// GetProviderName returns the name of the provider serving the default model,
// or "" when none is configured.
func (c *Config) GetProviderName() string {
	if m := c.MatchProvider(c.Agents.Defaults.Model); m != nil {
		return m.Spec.Name
	}
	return ""
}

// GetAPIKey returns the resolved API key for the default model's provider.
func (c *Config) GetAPIKey() string {
	if m := c.MatchProvider(c.Agents.Defaults.Model); m != nil {
		return m.APIKey
	}
	return ""
}

// GetAPIBase returns the resolved API base for the default model's provider.
func (c *Config) GetAPIBase() string {
	if m := c.MatchProvider(c.Agents.Defaults.Model); m != nil {
		return m.APIBase
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
