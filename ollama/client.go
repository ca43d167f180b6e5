package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"aitester/config"
	"aitester/stream"
)

const DefaultHost = "http://localhost:11434"

// Client talks to a local Ollama server. Model listing goes through the
// official api.Client; generation reads the NDJSON body line by line so
// that malformed lines can be skipped instead of aborting the stream.
type Client struct {
	client  *api.Client
	http    *http.Client
	baseURL string
}

type ModelInfo struct {
	Name          string
	Size          int64
	ParameterSize string
}

// StatusError is a non-2xx reply from /api/generate.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Status
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultHost
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL %q: scheme and host are required", baseURL)
	}

	return &Client{
		client:  api.NewClient(parsedURL, httpClient),
		http:    httpClient,
		baseURL: baseURL,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]ModelInfo, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = ModelInfo{
			Name:          m.Name,
			Size:          m.Size,
			ParameterSize: m.Details.ParameterSize,
		}
	}

	return models, nil
}

// Generate posts req to /api/generate with streaming enabled and calls fn
// for each decoded line. Lines that fail to decode are logged and skipped.
// Errors returned by fn stop the stream and are returned unchanged.
func (c *Client) Generate(ctx context.Context, req *api.GenerateRequest, fn func(api.GenerateResponse) error) error {
	streaming := true
	req.Stream = &streaming

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	return stream.Each(resp.Body, func(line []byte) error {
		var chunk api.GenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			config.Log().Warn().Err(err).Str("line", string(line)).Msg("skipping malformed ollama stream line")
			return nil
		}
		return fn(chunk)
	})
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var payload struct {
		Error string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(raw, &payload) == nil {
		msg = payload.Error
	}

	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    msg,
	}
}
