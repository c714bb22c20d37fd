package perception

import "cad3dify/internal/imaging"

// ImageMode says how a provider must receive the two refinement images.
type ImageMode string

const (
	// ImageModeSeparate sends the reference drawing and the rendered view
	// as two independent image slots.
	ImageModeSeparate ImageMode = "separate"

	// ImageModeMerged concatenates both views horizontally into a single
	// image slot, for providers that only accept one image per request.
	ImageModeMerged ImageMode = "merged"
)

// ModelKind selects a built-in capability profile.
type ModelKind string

const (
	ModelGPT    ModelKind = "gpt"
	ModelClaude ModelKind = "claude"
	ModelGemini ModelKind = "gemini"
	ModelLlama  ModelKind = "llama"
)

// Profile describes how a given oracle provider must receive multi-image
// requests and how the repair loop may drive it. A profile is selected once
// per run and fixed for its duration.
type Profile struct {
	Provider    Provider
	Model       string
	Temperature float64
	MaxTokens   int

	// ImageMode controls whether refine requests carry two image slots or
	// one merged slot.
	ImageMode ImageMode

	// RequiredFormat, when set, forces every attached image into this
	// encoding (lossless reformat) before the request is built.
	RequiredFormat imaging.Format

	// ExecutionUnreliable marks providers that cannot drive the repair
	// loop effectively; the agent falls back to bare execution.
	ExecutionUnreliable bool

	// RepairCeiling bounds fix-and-rerun attempts. Zero means the default.
	RepairCeiling int
}

// DefaultRepairCeiling bounds the repair loop when a profile does not set one.
const DefaultRepairCeiling = 8

// Ceiling returns the effective repair attempt bound.
func (p Profile) Ceiling() int {
	if p.RepairCeiling > 0 {
		return p.RepairCeiling
	}
	return DefaultRepairCeiling
}

// ProfileFor returns the built-in capability profile for a model kind.
// Unknown kinds fall back to the GPT profile.
func ProfileFor(kind ModelKind, temperature float64) Profile {
	switch kind {
	case ModelClaude:
		// Anthropic image blocks are fed as PNG regardless of input
		// encoding.
		return Profile{
			Provider:       ProviderAnthropic,
			Model:          "claude-3-7-sonnet-20250219",
			Temperature:    temperature,
			MaxTokens:      8192,
			ImageMode:      ImageModeSeparate,
			RequiredFormat: imaging.FormatPNG,
		}
	case ModelGemini:
		return Profile{
			Provider:    ProviderGemini,
			Model:       "gemini-2.0-flash-exp",
			Temperature: temperature,
			MaxTokens:   8192,
			ImageMode:   ImageModeSeparate,
		}
	case ModelLlama:
		// Llama vision endpoints accept one image per request and cannot
		// drive the fix-and-rerun loop.
		return Profile{
			Provider:            ProviderVertexAI,
			Model:               "meta/llama-3.2-90b-vision-instruct-maas",
			Temperature:         temperature,
			ImageMode:           ImageModeMerged,
			RequiredFormat:      imaging.FormatPNG,
			ExecutionUnreliable: true,
		}
	default:
		return Profile{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4.1-2025-04-14",
			Temperature: temperature,
			MaxTokens:   16384,
			ImageMode:   ImageModeSeparate,
		}
	}
}
