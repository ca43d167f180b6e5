package provider

import (
	"fmt"

	"aitester/config"
	"aitester/model"
)

// NewProvider creates a provider based on configuration.
//
// Config.ID selects the implementation: "ollama" builds an OllamaProvider,
// any id with an entry in Presets builds an OpenAICompatProvider for that
// vendor.
//
// Returns an error if the id is unknown or the base URL is unusable.
//
// Example:
//
//	p, err := provider.NewProvider(provider.Config{
//	    ID:      "kimi",
//	    BaseURL: "https://api.moonshot.cn/v1",
//	    Model:   "moonshot-v1-8k",
//	    APIKey:  "sk-...",
//	})
func NewProvider(cfg Config) (model.Provider, error) {
	if cfg.ID == config.ProviderOllama {
		return NewOllamaProvider(cfg)
	}

	spec, ok := Presets[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", cfg.ID)
	}
	return NewOpenAICompatProvider(spec, cfg)
}
