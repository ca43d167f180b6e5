package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"aitester/config"
	"aitester/model"
	"aitester/stream"
)

// OpenAICompatProvider talks to any OpenAI-compatible chat completions API.
//
// Model listing and the non-streaming fallback go through the openai-go
// client. The streaming path reads the SSE body itself so that a bad event
// line is skipped rather than ending the stream, and so that a transport
// failure can be retried without streaming.
type OpenAICompatProvider struct {
	spec         Spec
	baseURL      string
	apiKey       string
	defaultModel string
	http         *http.Client
	client       openai.Client
}

type chatRequest struct {
	Model            string                                   `json:"model"`
	Messages         []openai.ChatCompletionMessageParamUnion `json:"messages"`
	Stream           bool                                     `json:"stream"`
	Temperature      float64                                  `json:"temperature"`
	MaxTokens        int                                      `json:"max_tokens"`
	TopP             float64                                  `json:"top_p"`
	Stop             []string                                 `json:"stop,omitempty"`
	FrequencyPenalty float64                                  `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64                                  `json:"presence_penalty,omitempty"`
	StreamOptions    *streamOptions                           `json:"stream_options,omitempty"`
}

// streamOptions asks for a trailing usage chunk on streamed replies.
type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// NewOpenAICompatProvider creates a provider for spec. An empty API key is
// allowed: listing then serves the curated models and generation reports
// the server's authentication error.
func NewOpenAICompatProvider(spec Spec, cfg Config) (*OpenAICompatProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: base URL is required", spec.Name)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL + "/"),
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if spec.ExtraAuthHeader {
		opts = append(opts, option.WithHeader("api-key", cfg.APIKey))
	}

	return &OpenAICompatProvider{
		spec:         spec,
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.Model,
		http:         httpClient,
		client:       openai.NewClient(opts...),
	}, nil
}

func (p *OpenAICompatProvider) ID() string {
	return p.spec.ID
}

func (p *OpenAICompatProvider) Name() string {
	return p.spec.Name
}

// ListModels merges the curated list with the vendor's /models listing.
// It never returns an error for vendor failures: the curated list is
// returned with a Notice saying why.
func (p *OpenAICompatProvider) ListModels(ctx context.Context) (model.ModelList, error) {
	if p.apiKey == "" {
		return model.ModelList{
			Models: p.staticModels(),
			Notice: fmt.Sprintf("%s: no API key, showing the default model list", p.spec.Name),
		}, nil
	}

	page, err := p.client.Models.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return model.ModelList{}, model.Cancelled(ctx)
		}
		msg := listErrorMessage(err)
		config.Log().Warn().Str("provider", p.spec.ID).Err(err).Msg("model listing failed, using curated list")
		return model.ModelList{
			Models: p.staticModels(),
			Notice: fmt.Sprintf("%s: %s, showing the default model list", p.spec.Name, msg),
		}, nil
	}

	remote := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		remote = append(remote, m.ID)
	}
	models := mergeModels(p.staticModels(), p.filterRemote(remote))

	return model.ModelList{
		Models: models,
		Notice: fmt.Sprintf("%s: %d models synced", p.spec.Name, len(models)),
	}, nil
}

func (p *OpenAICompatProvider) staticModels() []model.ModelInfo {
	return slices.Clone(p.spec.StaticModels)
}

func (p *OpenAICompatProvider) filterRemote(ids []string) []string {
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimPrefix(id, p.spec.TrimModelPrefix)
		if len(p.spec.ModelPrefixes) == 0 || hasAnyPrefixFold(id, p.spec.ModelPrefixes) {
			kept = append(kept, id)
		}
	}
	return kept
}

// mergeModels keeps every curated model first, then appends remote ids the
// curated list does not already contain, tagged Others.
func mergeModels(static []model.ModelInfo, remote []string) []model.ModelInfo {
	seen := make(map[string]bool, len(static)+len(remote))
	merged := make([]model.ModelInfo, 0, len(static)+len(remote))
	for _, m := range static {
		seen[m.ID] = true
		merged = append(merged, m)
	}
	for _, id := range remote {
		if seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, model.ModelInfo{ID: id, Name: id, Category: model.CategoryOthers})
	}
	return merged
}

func hasAnyPrefixFold(s string, prefixes []string) bool {
	lower := strings.ToLower(s)
	for _, prefix := range prefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

func listErrorMessage(err error) string {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		return "API key is invalid"
	case http.StatusNotFound:
		return "models endpoint not found"
	default:
		return fmt.Sprintf("API error (status %d)", apiErr.StatusCode)
	}
}

func (p *OpenAICompatProvider) buildRequest(prompt, modelName string, opts model.GenerateOptions) chatRequest {
	if modelName == "" {
		modelName = p.defaultModel
	}
	return chatRequest{
		Model:            strings.TrimPrefix(modelName, p.spec.TrimModelPrefix),
		Messages:         []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Stream:           true,
		StreamOptions:    &streamOptions{IncludeUsage: true},
		Temperature:      opts.Temperature,
		MaxTokens:        opts.MaxTokens,
		TopP:             opts.TopP,
		Stop:             opts.Stop,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
	}
}

func (p *OpenAICompatProvider) warnUnsupported(req chatRequest) {
	var sent []string
	for _, param := range p.spec.UnsupportedParams {
		switch {
		case param == "frequency_penalty" && req.FrequencyPenalty != 0,
			param == "presence_penalty" && req.PresencePenalty != 0:
			sent = append(sent, param)
		}
	}
	if len(sent) > 0 {
		config.Log().Warn().Str("provider", p.spec.ID).Strs("params", sent).Msg("parameters may be rejected by this provider")
	}
}

// StreamGenerate posts a streaming chat completion and forwards each delta.
//
// If the request cannot be delivered (transport error) or the server
// answers a streaming request with a plain JSON body, the same request is
// re-sent with stream=false and its single answer is delivered through the
// same callbacks. Cancellation is never treated as a transport error.
func (p *OpenAICompatProvider) StreamGenerate(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
	start := time.Now()
	req := p.buildRequest(prompt, modelName, opts)
	p.warnUnsupported(req)

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if p.spec.ExtraAuthHeader {
		httpReq.Header.Set("api-key", p.apiKey)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[%s] POST %s/chat/completions model=%s", p.spec.Name, p.baseURL, req.Model)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return model.Cancelled(ctx)
		}
		config.Log().Warn().Str("provider", p.spec.ID).Err(err).Msg("streaming request failed, retrying without streaming")
		return p.generateOnce(ctx, req, start, onChunk, onDone)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return p.statusError(resp)
	}

	if isJSONResponse(resp.Header.Get("Content-Type")) {
		config.Log().Warn().Str("provider", p.spec.ID).Msg("server ignored stream=true, retrying without streaming")
		resp.Body.Close()
		return p.generateOnce(ctx, req, start, onChunk, onDone)
	}

	return p.readStream(ctx, resp.Body, req.Model, start, onChunk, onDone)
}

func isJSONResponse(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// readStream forwards deltas until the stream ends. A finish_reason only
// marks the answer complete: OpenAI sends usage in a later chunk with no
// choices, so onDone fires on the first of that usage chunk, [DONE] or EOF.
func (p *OpenAICompatProvider) readStream(ctx context.Context, body io.Reader, modelName string, start time.Time, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
	var (
		full      strings.Builder
		final     = model.GenerateResponse{Model: modelName}
		finished  bool
		delivered bool
	)

	deliver := func() {
		if delivered {
			return
		}
		delivered = true
		final.Done = true
		final.Response = full.String()
		final.TotalDuration = time.Since(start)
		onDone(final)
	}

	err := stream.Each(body, func(line []byte) error {
		if delivered {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		payload, ok := stream.Data(line)
		if !ok {
			return nil
		}
		if stream.IsDone(payload) {
			deliver()
			return nil
		}

		var chunk openai.ChatCompletionChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			config.Log().Warn().Str("provider", p.spec.ID).Err(err).Msg("skipping malformed stream event")
			return nil
		}

		if chunk.Model != "" {
			final.Model = chunk.Model
		}
		hasUsage := chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0
		if hasUsage {
			final.PromptEvalCount = int(chunk.Usage.PromptTokens)
			final.EvalCount = int(chunk.Usage.CompletionTokens)
		}

		if !finished && len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				full.WriteString(choice.Delta.Content)
				onChunk(choice.Delta.Content)
			}
			if choice.FinishReason != "" {
				finished = true
			}
		}

		if finished && hasUsage {
			deliver()
		}
		return nil
	})

	if delivered {
		return nil
	}
	if ctx.Err() != nil {
		return model.Cancelled(ctx)
	}
	if err != nil {
		return &model.GenerationError{Provider: p.spec.Name, Message: "stream interrupted: " + err.Error(), Err: err}
	}

	// some servers close the stream without a finish_reason or [DONE]
	deliver()
	return nil
}

// generateOnce re-sends req without streaming through the openai-go client.
func (p *OpenAICompatProvider) generateOnce(ctx context.Context, req chatRequest, start time.Time, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
	req.Stream = false
	req.StreamOptions = nil
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	var completion openai.ChatCompletion
	err = p.client.Post(ctx, "chat/completions", json.RawMessage(body), &completion)
	if err != nil {
		if ctx.Err() != nil {
			return model.Cancelled(ctx)
		}
		return p.sdkError(err)
	}
	if ctx.Err() != nil {
		return model.Cancelled(ctx)
	}

	content := ""
	if len(completion.Choices) > 0 {
		content = completion.Choices[0].Message.Content
	}
	if content != "" {
		onChunk(content)
	}

	onDone(model.GenerateResponse{
		Response:        content,
		Done:            true,
		Model:           firstNonEmpty(completion.Model, req.Model),
		TotalDuration:   time.Since(start),
		PromptEvalCount: int(completion.Usage.PromptTokens),
		EvalCount:       int(completion.Usage.CompletionTokens),
	})
	return nil
}

func (p *OpenAICompatProvider) sdkError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		if msg == "" {
			msg = "HTTP " + strconv.Itoa(apiErr.StatusCode)
		}
		return &model.GenerationError{Provider: p.spec.Name, StatusCode: apiErr.StatusCode, Message: msg, Err: err}
	}
	return &model.ConnectionError{Provider: p.spec.Name, URL: p.baseURL, Err: err}
}

func (p *OpenAICompatProvider) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return &model.GenerationError{
		Provider:   p.spec.Name,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(raw, resp.StatusCode, resp.Status),
	}
}

// errorMessage picks the most specific description of a failed request:
// the server's error message, then the whole JSON body, then the HTTP
// status text, then the bare status code.
func errorMessage(raw []byte, statusCode int, status string) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil && len(body) > 0 {
		switch e := body["error"].(type) {
		case map[string]any:
			if msg, ok := e["message"].(string); ok && msg != "" {
				return msg
			}
		case string:
			if e != "" {
				return e
			}
		}
		if compact, err := json.Marshal(body); err == nil {
			return string(compact)
		}
	}

	if text := strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(statusCode))); text != "" {
		return text
	}
	return "HTTP " + strconv.Itoa(statusCode)
}
