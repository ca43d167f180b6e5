package provider

import (
	"aitester/config"
	"aitester/model"
)

// Spec parameterizes OpenAICompatProvider for one vendor.
type Spec struct {
	ID   string
	Name string

	// ModelPrefixes filters remotely listed model ids (case-insensitive).
	// Empty means every remote model is kept.
	ModelPrefixes []string

	// StaticModels is the curated list shown first and used whenever the
	// remote listing is unavailable.
	StaticModels []model.ModelInfo

	// ExtraAuthHeader sends the key in an "api-key" header as well as
	// the bearer token.
	ExtraAuthHeader bool

	// TrimModelPrefix is removed from remote model ids and requested
	// model names (Gemini reports "models/gemini-...").
	TrimModelPrefix string

	// UnsupportedParams are request fields the vendor is known to reject.
	// Sending one is logged as a warning; the request is not altered.
	UnsupportedParams []string
}

func curated(models ...model.ModelInfo) []model.ModelInfo {
	for i := range models {
		models[i].Category = model.CategoryRecommended
	}
	return models
}

// Presets holds the built-in cloud vendors, keyed by provider id.
var Presets = map[string]Spec{
	config.ProviderOpenAI: {
		ID:            config.ProviderOpenAI,
		Name:          config.DisplayName(config.ProviderOpenAI),
		ModelPrefixes: []string{"gpt-", "o1-"},
		StaticModels: curated(
			model.ModelInfo{ID: "o1", Name: "o1 (Reasoning)"},
			model.ModelInfo{ID: "o1-mini", Name: "o1-mini (Fast Reasoning)"},
			model.ModelInfo{ID: "gpt-4o", Name: "GPT-4o (Flagship)"},
			model.ModelInfo{ID: "gpt-4o-mini", Name: "GPT-4o Mini"},
			model.ModelInfo{ID: "gpt-4-turbo", Name: "GPT-4 Turbo"},
		),
	},
	config.ProviderGemini: {
		ID:            config.ProviderGemini,
		Name:          config.DisplayName(config.ProviderGemini),
		ModelPrefixes: []string{"gemini-", "gemma-"},
		StaticModels: curated(
			model.ModelInfo{ID: "gemini-3-flash-preview", Name: "Gemini 3 Flash Preview"},
			model.ModelInfo{ID: "gemini-3-pro", Name: "Gemini 3 Pro"},
			model.ModelInfo{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash"},
			model.ModelInfo{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro"},
			model.ModelInfo{ID: "gemma-3-27b-it", Name: "Gemma 3 27B"},
			model.ModelInfo{ID: "gemma-3-12b-it", Name: "Gemma 3 12B"},
			model.ModelInfo{ID: "gemma-3-4b-it", Name: "Gemma 3 4B"},
		),
		TrimModelPrefix:   "models/",
		UnsupportedParams: []string{"frequency_penalty", "presence_penalty"},
	},
	config.ProviderGrok: {
		ID:            config.ProviderGrok,
		Name:          config.DisplayName(config.ProviderGrok),
		ModelPrefixes: []string{"grok-"},
		StaticModels: curated(
			model.ModelInfo{ID: "grok-2-1212", Name: "Grok-2"},
			model.ModelInfo{ID: "grok-2-mini", Name: "Grok-2 Mini"},
			model.ModelInfo{ID: "grok-beta", Name: "Grok Beta"},
		),
	},
	config.ProviderGLM: {
		ID:            config.ProviderGLM,
		Name:          config.DisplayName(config.ProviderGLM),
		ModelPrefixes: []string{"glm-"},
		StaticModels: curated(
			model.ModelInfo{ID: "glm-4-plus", Name: "GLM-4 Plus"},
			model.ModelInfo{ID: "glm-4-0520", Name: "GLM-4 (0520)"},
			model.ModelInfo{ID: "glm-4-air", Name: "GLM-4 Air"},
			model.ModelInfo{ID: "glm-4-flash", Name: "GLM-4 Flash"},
		),
		ExtraAuthHeader: true,
	},
	config.ProviderKimi: {
		ID:            config.ProviderKimi,
		Name:          config.DisplayName(config.ProviderKimi),
		ModelPrefixes: []string{"moonshot-", "kimi-"},
		StaticModels: curated(
			model.ModelInfo{ID: "kimi-k2.5", Name: "Kimi K2.5 (Multimodal Agent)"},
			model.ModelInfo{ID: "kimi-k2-thinking", Name: "Kimi K2 Thinking"},
			model.ModelInfo{ID: "kimi-k2-turbo-preview", Name: "Kimi K2 Turbo"},
			model.ModelInfo{ID: "moonshot-v1-128k", Name: "Moonshot V1 128k"},
			model.ModelInfo{ID: "moonshot-v1-32k", Name: "Moonshot V1 32k"},
			model.ModelInfo{ID: "moonshot-v1-8k", Name: "Moonshot V1 8k"},
		),
		ExtraAuthHeader: true,
	},
}
