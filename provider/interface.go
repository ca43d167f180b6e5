// Package provider implements the LLM backends a prompt block can target.
//
// Two implementations cover every backend:
//   - OllamaProvider talks to a local Ollama server over its NDJSON API
//   - OpenAICompatProvider talks to any OpenAI-compatible chat completions
//     API over SSE, parameterized by a Spec (see presets.go)
//
// # Architecture
//
//   - model.Provider defines the contract (interface)
//   - provider.NewProvider() builds one provider from a Config
//   - provider.Registry owns the id → provider map and rebuilds it when
//     the settings snapshot changes
//
// # Usage
//
//	reg := provider.NewRegistry(cfg, nil)
//	p, err := reg.Resolve("gemini")
//	if err != nil {
//	    // *model.NotFoundError
//	}
//	err = p.StreamGenerate(ctx, prompt, "", opts, onChunk, onDone)
package provider

import (
	"net/http"

	"aitester/config"
)

// Note: The Provider interface lives in the model package (model/provider.go)
// to avoid import cycles. This package implements model.Provider.

// Config holds everything needed to build one provider.
type Config struct {
	ID         string
	BaseURL    string
	Model      string // default model when a block names none
	APIKey     string // unused for Ollama
	HTTPClient *http.Client
}

// ConfigFor builds the provider Config for id from a settings snapshot.
func ConfigFor(cfg *config.Config, id string, httpClient *http.Client) (Config, bool) {
	settings, ok := cfg.Provider(id)
	if !ok {
		return Config{}, false
	}
	return Config{
		ID:         id,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		APIKey:     settings.APIKey,
		HTTPClient: httpClient,
	}, true
}
