package perception

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cad3dify/internal/config"
)

// ProviderConfig holds the resolved provider and API key.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
	Model    string // Optional model override
	BaseURL  string // Optional endpoint override (OpenAI-compatible vendors)
}

// LoadConfigJSON loads provider configuration from a JSON config file.
func LoadConfigJSON(path string) (*ProviderConfig, error) {
	userCfg, err := config.LoadUserConfig(path)
	if err != nil {
		return nil, err
	}

	providerStr, apiKey := userCfg.ActiveProvider()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key found in config")
	}

	return &ProviderConfig{
		Provider: Provider(providerStr),
		APIKey:   apiKey,
		Model:    userCfg.Model,
		BaseURL:  userCfg.BaseURL,
	}, nil
}

// DetectProvider checks <workspace>/.cad3dify/config.json first, then
// environment variables. Priority: config.json > env vars
// (ANTHROPIC > OPENAI > GEMINI). An empty workspace means the current
// directory.
func DetectProvider(workspace string) (*ProviderConfig, error) {
	configPath := filepath.Join(workspace, config.DefaultUserConfigPath())
	if cfg, err := LoadConfigJSON(configPath); err == nil && cfg.APIKey != "" {
		return cfg, nil
	}

	providers := []struct {
		envVar   string
		provider Provider
	}{
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"GEMINI_API_KEY", ProviderGemini},
	}
	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return &ProviderConfig{Provider: p.provider, APIKey: key}, nil
		}
	}

	return nil, fmt.Errorf("no API key found; configure .cad3dify/config.json or set one of: ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY")
}

// NewOracle creates the oracle client for a capability profile. Credential
// acquisition happens here, at construction, never at package init.
func NewOracle(ctx context.Context, cfg *ProviderConfig, profile Profile) (Oracle, error) {
	model := profile.Model
	if cfg.Model != "" {
		model = cfg.Model
	}

	switch profile.Provider {
	case ProviderAnthropic:
		ac := DefaultAnthropicConfig(cfg.APIKey)
		ac.Model = model
		ac.Temperature = profile.Temperature
		ac.MaxTokens = profile.MaxTokens
		return NewAnthropicClient(ac), nil

	case ProviderOpenAI, ProviderVertexAI:
		// Llama-on-vertex speaks the OpenAI wire format; only the endpoint
		// differs.
		oc := DefaultOpenAIConfig(cfg.APIKey)
		oc.Model = model
		oc.Temperature = profile.Temperature
		oc.MaxTokens = profile.MaxTokens
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		return NewOpenAIClient(oc), nil

	case ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:          cfg.APIKey,
			Model:           model,
			Temperature:     profile.Temperature,
			MaxOutputTokens: profile.MaxTokens,
		})

	default:
		return nil, fmt.Errorf("%w: provider %q", ErrUnsupportedProvider, profile.Provider)
	}
}
