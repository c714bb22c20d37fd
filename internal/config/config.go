// Package config loads and persists user configuration for cad3dify from
// .cad3dify/config.json. All fields are optional; missing values fall back
// to built-in defaults or environment detection.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoggingConfig mirrors the logging section consumed by internal/logging.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
}

// UserConfig is the on-disk configuration file schema.
type UserConfig struct {
	// Provider selects the oracle vendor: "anthropic", "openai", "gemini"
	// or "vertex_ai". Empty means environment-variable detection.
	Provider string `json:"provider,omitempty"`

	// APIKey authenticates against the selected provider.
	APIKey string `json:"api_key,omitempty"`

	// Model overrides the profile's default model name.
	Model string `json:"model,omitempty"`

	// BaseURL overrides the endpoint for OpenAI-compatible vendors.
	BaseURL string `json:"base_url,omitempty"`

	// Python is the interpreter used to run generated scripts.
	Python string `json:"python,omitempty"`

	// RenderCmd is the command template used to rasterize STEP models.
	RenderCmd string `json:"render_cmd,omitempty"`

	// Refinements is the number of refinement rounds per run.
	Refinements int `json:"refinements,omitempty"`

	Logging LoggingConfig `json:"logging,omitempty"`
}

// Default returns a UserConfig with built-in defaults applied.
func Default() *UserConfig {
	return &UserConfig{
		Python:      "python3",
		Refinements: 3,
	}
}

// DefaultUserConfigPath returns the conventional config location relative
// to the current working directory.
func DefaultUserConfigPath() string {
	return filepath.Join(".cad3dify", "config.json")
}

// LoadUserConfig reads and parses a config file. A missing file is an
// error; callers that treat absence as "use defaults" should check with
// os.IsNotExist.
func LoadUserConfig(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault reads the config at path, falling back to defaults when the
// file does not exist. Parse errors are still reported.
func LoadOrDefault(path string) (*UserConfig, error) {
	cfg, err := LoadUserConfig(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func (c *UserConfig) applyDefaults() {
	if c.Python == "" {
		c.Python = "python3"
	}
	if c.Refinements <= 0 {
		c.Refinements = 3
	}
}

// ActiveProvider returns the provider name and API key from the file.
// The provider defaults by which key source is present: an explicit
// provider field wins; otherwise the key alone implies nothing and the
// caller falls back to environment detection.
func (c *UserConfig) ActiveProvider() (string, string) {
	if c.APIKey == "" {
		return "", ""
	}
	provider := c.Provider
	if provider == "" {
		provider = "openai"
	}
	return provider, c.APIKey
}

// Save writes the config as indented JSON, creating parent directories.
func (c *UserConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
