package testutil

import (
	"encoding/json"
	"fmt"
	"strings"

	"aitester/config"
)

// TestConfig returns a settings snapshot whose providers all point at
// baseURL, each with the API key "test-key".
func TestConfig(baseURL string) *config.Config {
	cfg := config.FromUserConfig("", &config.UserConfig{})
	cfg.Ollama.BaseURL = baseURL
	for id, s := range cfg.Cloud {
		s.BaseURL = baseURL
		s.APIKey = "test-key"
		cfg.Cloud[id] = s
	}
	return cfg
}

// SSEBody renders content deltas as an OpenAI-style SSE stream: a
// finish_reason chunk, a trailing usage chunk with no choices, then [DONE].
func SSEBody(model string, deltas ...string) string {
	var b strings.Builder
	for _, d := range deltas {
		content, _ := json.Marshal(d)
		fmt.Fprintf(&b, "data: {\"model\":%q,\"choices\":[{\"index\":0,\"delta\":{\"content\":%s}}]}\n\n", model, content)
	}
	fmt.Fprintf(&b, "data: {\"model\":%q,\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n", model)
	fmt.Fprintf(&b, "data: {\"model\":%q,\"choices\":[],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":%d}}\n\n", model, len(deltas))
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

// CompletionBody renders a non-streaming chat completion.
func CompletionBody(model, content string) string {
	text, _ := json.Marshal(content)
	return fmt.Sprintf(`{"id":"cmpl-1","object":"chat.completion","model":%q,"choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`, model, text)
}

// NDJSONBody renders Ollama generate lines followed by a done line.
func NDJSONBody(model string, parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		text, _ := json.Marshal(p)
		fmt.Fprintf(&b, "{\"model\":%q,\"response\":%s,\"done\":false}\n", model, text)
	}
	fmt.Fprintf(&b, "{\"model\":%q,\"response\":\"\",\"done\":true,\"total_duration\":2000000000,\"prompt_eval_count\":4,\"eval_count\":%d}\n", model, len(parts))
	return b.String()
}
