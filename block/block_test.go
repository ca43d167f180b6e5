package block

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseWithoutHeader(t *testing.T) {
	s := Parse("  \n Tell me a joke.\n\n")
	if s.HasExplicitConfig {
		t.Error("HasExplicitConfig should be false")
	}
	if s.Prompt != "Tell me a joke." {
		t.Errorf("Prompt = %q", s.Prompt)
	}
	if !reflect.DeepEqual(s.Config, DefaultConfig()) {
		t.Errorf("Config = %+v, want defaults", s.Config)
	}
}

func TestParseHeader(t *testing.T) {
	s := Parse("---\ntemperature: 1.2\nnum_responses: 3\n---\nWrite a haiku about tides.")
	if !s.HasExplicitConfig {
		t.Fatal("HasExplicitConfig should be true")
	}
	if s.Config.Temperature != 1.2 {
		t.Errorf("Temperature = %v", s.Config.Temperature)
	}
	if s.Config.NumResponses != 3 {
		t.Errorf("NumResponses = %d", s.Config.NumResponses)
	}
	if s.Config.MaxTokens != 4096 || s.Config.TopP != 0.9 {
		t.Errorf("absent keys should keep defaults, got %+v", s.Config)
	}
	if s.Prompt != "Write a haiku about tides." {
		t.Errorf("Prompt = %q", s.Prompt)
	}
}

func TestParseCRLF(t *testing.T) {
	s := Parse("---\r\nmodel: llama3\r\n---\r\nhello\r\n")
	if s.Config.Model != "llama3" {
		t.Errorf("Model = %q", s.Config.Model)
	}
	if s.Prompt != "hello" {
		t.Errorf("Prompt = %q", s.Prompt)
	}
}

func TestParseHeaderOnly(t *testing.T) {
	s := Parse("---\nprovider: openai\n---")
	if !s.HasExplicitConfig {
		t.Fatal("HasExplicitConfig should be true")
	}
	if s.Config.Provider != "openai" {
		t.Errorf("Provider = %q", s.Config.Provider)
	}
	if s.Prompt != "" {
		t.Errorf("Prompt = %q, want empty", s.Prompt)
	}
}

func TestParseMalformedHeaderFailsOpen(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"wrong type", "---\ntemperature: hot\n---\nprompt"},
		{"bad yaml", "---\nmodel: [unclosed\n---\nprompt"},
		{"scalar header", "---\njust words\n---\nprompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Parse(tt.raw)
			if s.HasExplicitConfig {
				t.Error("HasExplicitConfig should be false")
			}
			if !reflect.DeepEqual(s.Config, DefaultConfig()) {
				t.Errorf("Config = %+v, want defaults", s.Config)
			}
			if s.Prompt != strings.TrimSpace(tt.raw) {
				t.Errorf("Prompt = %q, want whole text", s.Prompt)
			}
		})
	}
}

func TestParseKeepsUnknownKeys(t *testing.T) {
	s := Parse("---\nseed: 42\ntemperature: 0.2\n---\nx")
	if s.Config.Extra["seed"] != 42 {
		t.Errorf("Extra = %v", s.Config.Extra)
	}
	got := Serialize(s.Config)
	want := "temperature: 0.2\nseed: 42"
	if got != want {
		t.Errorf("Serialize = %q, want %q", got, want)
	}
}

func TestSerializeDefaultsIsEmpty(t *testing.T) {
	if got := Serialize(DefaultConfig()); got != "" {
		t.Errorf("Serialize(defaults) = %q, want empty", got)
	}
	s := Settings{Config: DefaultConfig(), Prompt: "hi"}
	if got := s.Text(); got != "hi" {
		t.Errorf("Text = %q, want bare prompt", got)
	}
}

func TestSerializeOrderAndFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumResponses = 3
	cfg.Provider = "openai"
	cfg.Model = "gpt-4o-mini"
	cfg.Temperature = 1
	cfg.StopSequences = []string{"END", "<stop>"}
	cfg.PresencePenalty = 0.5

	want := strings.Join([]string{
		"provider: openai",
		"model: gpt-4o-mini",
		"temperature: 1",
		`stop_sequences: ["END","<stop>"]`,
		"presence_penalty: 0.5",
		"num_responses: 3",
	}, "\n")
	if got := Serialize(cfg); got != want {
		t.Errorf("Serialize =\n%s\nwant\n%s", got, want)
	}
}

func TestQuoteString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"llama3", "llama3"},
		{"llama3:8b", `"llama3:8b"`},
		{"a#b", `"a#b"`},
		{"true", `"true"`},
		{"12", `"12"`},
		{"null", `"null"`},
		{"- item", `"- item"`},
		{" padded", `" padded"`},
	}
	for _, tt := range tests {
		if got := quoteString(tt.in); got != tt.want {
			t.Errorf("quoteString(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	configs := []Config{
		DefaultConfig(),
		func() Config {
			c := DefaultConfig()
			c.Model = "qwen2.5:7b"
			c.Temperature = 1.35
			c.MaxTokens = 256
			c.TopP = 0.5
			c.StopSequences = []string{"###", "a: b", `q"uote`}
			c.FrequencyPenalty = 1.1
			c.NumResponses = 20
			return c
		}(),
		func() Config {
			c := DefaultConfig()
			c.Provider = "gemini"
			c.Model = "yes"
			c.Extra = map[string]any{"notes": "keep me", "seed": 7}
			return c
		}(),
	}

	for i, cfg := range configs {
		text := Compose(Serialize(cfg), "the prompt")
		s := Parse(text)
		if !reflect.DeepEqual(s.Config, cfg) {
			t.Errorf("config %d: round trip = %+v, want %+v", i, s.Config, cfg)
		}
		if s.Prompt != "the prompt" {
			t.Errorf("config %d: prompt = %q", i, s.Prompt)
		}
		if again := Compose(Serialize(s.Config), s.Prompt); again != text {
			t.Errorf("config %d: not idempotent:\n%s\n---\n%s", i, text, again)
		}
	}
}

func TestValidate(t *testing.T) {
	if msgs := Validate(DefaultConfig()); len(msgs) != 0 {
		t.Errorf("defaults should be valid, got %v", msgs)
	}

	cfg := DefaultConfig()
	cfg.Temperature = 2.5
	cfg.MaxTokens = 0
	cfg.TopP = 1.01
	cfg.PresencePenalty = -1
	cfg.NumResponses = 21

	want := []string{
		"temperature must be between 0 and 2",
		"max_tokens must be between 1 and 20000",
		"top_p must be between 0 and 1",
		"presence_penalty must be between 0 and 2",
		"num_responses must be between 1 and 20",
	}
	if got := Validate(cfg); !reflect.DeepEqual(got, want) {
		t.Errorf("Validate =\n%v\nwant\n%v", got, want)
	}
}

func TestResponsesClamp(t *testing.T) {
	tests := []struct{ in, want int }{{0, 1}, {-3, 1}, {5, 5}, {20, 20}, {99, 20}}
	for _, tt := range tests {
		c := DefaultConfig()
		c.NumResponses = tt.in
		if got := c.Responses(); got != tt.want {
			t.Errorf("Responses(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestOverlayDoesNotMutateBase(t *testing.T) {
	base := DefaultConfig()
	base.StopSequences = []string{"a"}
	got, err := Overlay(base, []byte("stop_sequences: [b, c]"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(base.StopSequences, []string{"a"}) {
		t.Errorf("base mutated: %v", base.StopSequences)
	}
	if !reflect.DeepEqual(got.StopSequences, []string{"b", "c"}) {
		t.Errorf("StopSequences = %v", got.StopSequences)
	}
}
