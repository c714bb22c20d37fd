// Package perception holds the oracle boundary: vision-capable LLM clients,
// the provider enumeration, and the per-provider capability profiles that
// shape how image requests must be built.
package perception

import (
	"context"
	"errors"
	"time"

	"cad3dify/internal/imaging"
)

// Request is a fully bound oracle request: instruction text plus zero or
// more image payloads. Building one has no side effects; Complete performs
// the network call.
type Request struct {
	System string
	User   string
	Images []imaging.Image
}

// Oracle is the code-synthesis oracle boundary. Implementations send the
// request to a provider and return the free-form response text. No contract
// is assumed about the response beyond "may contain a fenced code block".
type Oracle interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Provider represents an oracle provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderVertexAI  Provider = "vertex_ai"
)

// ErrUnsupportedProvider is returned when no client or request-shaping
// branch exists for the requested provider configuration. It is fatal at
// construction time, before any oracle call.
var ErrUnsupportedProvider = errors.New("unsupported provider configuration")

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAIConfig holds configuration for the OpenAI-compatible client.
// BaseURL makes the same client serve any OpenAI-wire-format endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}
