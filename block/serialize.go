package block

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Serialize writes every field that differs from DefaultConfig, one
// "key: value" line each, in declared field order, followed by unknown
// keys in sorted order. It returns "" when nothing differs.
func Serialize(cfg Config) string {
	def := DefaultConfig()
	var lines []string

	add := func(key, value string) {
		lines = append(lines, key+": "+value)
	}

	if cfg.Provider != def.Provider {
		add("provider", quoteString(cfg.Provider))
	}
	if cfg.Model != def.Model {
		add("model", quoteString(cfg.Model))
	}
	if cfg.Temperature != def.Temperature {
		add("temperature", formatFloat(cfg.Temperature))
	}
	if cfg.MaxTokens != def.MaxTokens {
		add("max_tokens", strconv.Itoa(cfg.MaxTokens))
	}
	if !slices.Equal(cfg.StopSequences, def.StopSequences) {
		add("stop_sequences", formatList(cfg.StopSequences))
	}
	if cfg.TopP != def.TopP {
		add("top_p", formatFloat(cfg.TopP))
	}
	if cfg.FrequencyPenalty != def.FrequencyPenalty {
		add("frequency_penalty", formatFloat(cfg.FrequencyPenalty))
	}
	if cfg.PresencePenalty != def.PresencePenalty {
		add("presence_penalty", formatFloat(cfg.PresencePenalty))
	}
	if cfg.NumResponses != def.NumResponses {
		add("num_responses", strconv.Itoa(cfg.NumResponses))
	}

	keys := make([]string, 0, len(cfg.Extra))
	for k := range cfg.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		out, err := yaml.Marshal(map[string]any{k: cfg.Extra[k]})
		if err != nil {
			continue
		}
		lines = append(lines, strings.TrimRight(string(out), "\n"))
	}

	return strings.Join(lines, "\n")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatList writes a string list as a JSON array, which YAML reads back
// as a flow sequence.
func formatList(values []string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(values); err != nil {
		return "[]"
	}
	return strings.TrimRight(buf.String(), "\n")
}

// quoteString quotes a value when it is empty, contains ':' or '#', or
// would not read back as the same plain string.
func quoteString(s string) string {
	if s == "" || strings.ContainsAny(s, ":#\n") || !readsBackAs(s) {
		return strconv.Quote(s)
	}
	return s
}

func readsBackAs(s string) bool {
	var v any
	if err := yaml.Unmarshal([]byte("v: "+s), &v); err != nil {
		return false
	}
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	got, ok := m["v"].(string)
	return ok && got == s
}
