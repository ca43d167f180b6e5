package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ollama/ollama/api"

	"aitester/config"
	"aitester/model"
	"aitester/ollama"
)

// OllamaProvider adapts ollama.Client to model.Provider.
//
// Streaming chunks are forwarded as they arrive; the first chunk with
// done=true ends the generation and its server-side metrics (token counts
// and total duration in nanoseconds) are passed to onDone unchanged.
type OllamaProvider struct {
	client       *ollama.Client
	defaultModel string
}

// NewOllamaProvider creates a provider for the server at baseURL.
//
// Returns an error if baseURL is not an absolute URL.
func NewOllamaProvider(cfg Config) (*OllamaProvider, error) {
	client, err := ollama.NewClient(cfg.BaseURL, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaProvider{
		client:       client,
		defaultModel: cfg.Model,
	}, nil
}

func (p *OllamaProvider) ID() string {
	return config.ProviderOllama
}

func (p *OllamaProvider) Name() string {
	return config.DisplayName(config.ProviderOllama)
}

// ListModels returns the models installed on the server. An unreachable
// server is reported as *model.ConnectionError; there is no static
// fallback for a local server.
func (p *OllamaProvider) ListModels(ctx context.Context) (model.ModelList, error) {
	installed, err := p.client.ListModels(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return model.ModelList{}, model.Cancelled(ctx)
		}
		return model.ModelList{}, &model.ConnectionError{Provider: p.Name(), URL: p.client.BaseURL(), Err: err}
	}

	models := make([]model.ModelInfo, len(installed))
	for i, m := range installed {
		models[i] = model.ModelInfo{ID: m.Name, Name: m.Name, Details: modelDetails(m)}
	}

	return model.ModelList{Models: models}, nil
}

func (p *OllamaProvider) StreamGenerate(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
	if modelName == "" {
		modelName = p.defaultModel
	}

	req := &api.GenerateRequest{
		Model:   modelName,
		Prompt:  prompt,
		Options: ollamaOptions(opts),
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Ollama] generate model=%s prompt_len=%d", modelName, len(prompt))
	}

	var full []byte
	done := false
	err := p.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		if done || ctx.Err() != nil {
			return nil
		}
		if resp.Response != "" {
			full = append(full, resp.Response...)
			onChunk(resp.Response)
		}
		if resp.Done {
			done = true
			onDone(model.GenerateResponse{
				Response:        string(full),
				Done:            true,
				Model:           firstNonEmpty(resp.Model, modelName),
				TotalDuration:   resp.TotalDuration,
				PromptEvalCount: resp.PromptEvalCount,
				EvalCount:       resp.EvalCount,
			})
		}
		return nil
	})

	if ctx.Err() != nil {
		return model.Cancelled(ctx)
	}
	if err != nil {
		return p.generationError(err)
	}
	return nil
}

func (p *OllamaProvider) generationError(err error) error {
	var statusErr *ollama.StatusError
	if errors.As(err, &statusErr) {
		return &model.GenerationError{
			Provider:   p.Name(),
			StatusCode: statusErr.StatusCode,
			Message:    statusErr.Error(),
			Err:        err,
		}
	}
	return &model.ConnectionError{Provider: p.Name(), URL: p.client.BaseURL(), Err: err}
}

// ollamaOptions maps generation options onto Ollama's option names.
// Unset values are left out so the server applies its own defaults.
func ollamaOptions(opts model.GenerateOptions) map[string]any {
	options := map[string]any{
		"temperature":       opts.Temperature,
		"top_p":             opts.TopP,
		"frequency_penalty": opts.FrequencyPenalty,
		"presence_penalty":  opts.PresencePenalty,
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		options["stop"] = opts.Stop
	}
	return options
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// modelDetails renders "8.0B · 4.7 GB", leaving out whatever the server
// did not report.
func modelDetails(m ollama.ModelInfo) string {
	var parts []string
	if m.ParameterSize != "" {
		parts = append(parts, m.ParameterSize)
	}
	if m.Size > 0 {
		parts = append(parts, humanize.Bytes(uint64(m.Size)))
	}
	return strings.Join(parts, " · ")
}
