package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProvidersConfig is the server-side catalog of LLM providers available to
// local agents. Keys may be literal or ${ENV_VAR} references.
type ProvidersConfig struct {
	Providers       map[string]ProviderConfig `yaml:"providers"`
	DefaultProvider string                    `yaml:"default_provider"`
	DefaultModel    string                    `yaml:"default_model"`
}

// ProviderConfig defines a single provider entry.
type ProviderConfig struct {
	Enabled bool          `yaml:"enabled"`
	Key     string        `yaml:"key"`
	BaseURL string        `yaml:"base_url"`
	Models  []ModelConfig `yaml:"models"`
}

// ModelConfig defines a model available from the provider.
type ModelConfig struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	ContextWindow int    `yaml:"context_window"`
}

// ProvidersManager loads and queries the provider catalog.
type ProvidersManager struct {
	config *ProvidersConfig
}

// NewProvidersManager loads the catalog from configPath, falling back to
// built-in defaults when the file is absent.
func NewProvidersManager(configPath string) (*ProvidersManager, error) {
	pm := &ProvidersManager{}

	if configPath != "" {
		if err := pm.loadConfig(configPath); err != nil {
			return nil, fmt.Errorf("load providers config: %w", err)
		}
	} else {
		pm.config = defaultProvidersConfig()
	}

	pm.resolveEnvVars()
	return pm, nil
}

func (pm *ProvidersManager) loadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pm.config = &ProvidersConfig{}
	return yaml.Unmarshal(data, pm.config)
}

// resolveEnvVars replaces ${ENV_VAR} key references with their values.
func (pm *ProvidersManager) resolveEnvVars() {
	for id, p := range pm.config.Providers {
		if strings.HasPrefix(p.Key, "${") && strings.HasSuffix(p.Key, "}") {
			p.Key = os.Getenv(p.Key[2 : len(p.Key)-1])
			pm.config.Providers[id] = p
		}
	}
}

// GetAPIKey returns the key configured for a provider, if any.
func (pm *ProvidersManager) GetAPIKey(providerID string) string {
	if p, ok := pm.config.Providers[providerID]; ok {
		return p.Key
	}
	return ""
}

// GetBaseURL returns a provider's custom endpoint, if configured.
func (pm *ProvidersManager) GetBaseURL(providerID string) string {
	if p, ok := pm.config.Providers[providerID]; ok {
		return p.BaseURL
	}
	return ""
}

// GetDefaultProvider returns the default provider ID.
func (pm *ProvidersManager) GetDefaultProvider() string {
	if pm.config.DefaultProvider != "" {
		return pm.config.DefaultProvider
	}
	return "openai"
}

// GetDefaultModel returns the default model ID.
func (pm *ProvidersManager) GetDefaultModel() string {
	if pm.config.DefaultModel != "" {
		return pm.config.DefaultModel
	}
	return "gpt-4o"
}

func defaultProvidersConfig() *ProvidersConfig {
	return &ProvidersConfig{
		Providers: map[string]ProviderConfig{
			"openai": {
				Enabled: true,
				Key:     os.Getenv("OPENAI_API_KEY"),
				BaseURL: "https://api.openai.com/v1",
				Models: []ModelConfig{
					{ID: "gpt-4o", Name: "GPT-4o", ContextWindow: 128000},
					{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextWindow: 128000},
				},
			},
			"deepseek": {
				Enabled: true,
				Key:     os.Getenv("DEEPSEEK_API_KEY"),
				BaseURL: "https://api.deepseek.com/v1",
				Models: []ModelConfig{
					{ID: "deepseek-chat", Name: "DeepSeek V3", ContextWindow: 128000},
				},
			},
		},
		DefaultProvider: "openai",
		DefaultModel:    "gpt-4o",
	}
}

// FindConfigFile looks for providers.yaml in standard locations.
func FindConfigFile() string {
	paths := []string{"config/providers.yaml", "providers.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".payperwork", "providers.yaml"))
	}
	paths = append(paths, "/etc/payperwork/providers.yaml")

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
