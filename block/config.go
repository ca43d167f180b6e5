// Package block reads and writes the configuration header of a prompt block.
//
// A block is free prompt text, optionally preceded by a YAML header fenced
// with "---" lines:
//
//	---
//	temperature: 1.2
//	num_responses: 3
//	---
//	Write a haiku about tides.
//
// Only fields that differ from their defaults are written back, so the
// header is always a minimal diff against DefaultConfig.
package block

import (
	"maps"
	"slices"

	"aitester/config"
	"aitester/model"
)

const (
	MinResponses = 1
	MaxResponses = 20
)

// Config holds the generation parameters of one block. Field order is the
// order Serialize writes them in.
type Config struct {
	Provider         string   `yaml:"provider"`
	Model            string   `yaml:"model"`
	Temperature      float64  `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens        int      `yaml:"max_tokens" validate:"gte=1,lte=20000"`
	StopSequences    []string `yaml:"stop_sequences"`
	TopP             float64  `yaml:"top_p" validate:"gte=0,lte=1"`
	FrequencyPenalty float64  `yaml:"frequency_penalty" validate:"gte=0,lte=2"`
	PresencePenalty  float64  `yaml:"presence_penalty" validate:"gte=0,lte=2"`
	NumResponses     int      `yaml:"num_responses" validate:"gte=1,lte=20"`

	// Extra keeps header keys this package does not know about. They are
	// never interpreted, only carried through to the next Serialize.
	Extra map[string]any `yaml:",inline"`
}

// Settings is one parsed block.
type Settings struct {
	Config            Config
	Prompt            string
	HasExplicitConfig bool
}

// DefaultConfig returns a fresh copy of the default configuration.
func DefaultConfig() Config {
	return Config{
		Provider:         config.ProviderOllama,
		Model:            "",
		Temperature:      0.7,
		MaxTokens:        4096,
		StopSequences:    []string{},
		TopP:             0.9,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
		NumResponses:     1,
	}
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.StopSequences = slices.Clone(c.StopSequences)
	if c.StopSequences == nil {
		c.StopSequences = []string{}
	}
	c.Extra = maps.Clone(c.Extra)
	return c
}

// Options returns the sampling parameters sent to a provider.
func (c Config) Options() model.GenerateOptions {
	return model.GenerateOptions{
		Temperature:      c.Temperature,
		MaxTokens:        c.MaxTokens,
		TopP:             c.TopP,
		FrequencyPenalty: c.FrequencyPenalty,
		PresencePenalty:  c.PresencePenalty,
		Stop:             slices.Clone(c.StopSequences),
	}
}

// Responses returns NumResponses clamped to the supported range.
func (c Config) Responses() int {
	return min(max(c.NumResponses, MinResponses), MaxResponses)
}

// Text renders the block body: the header (if any field differs from its
// default) followed by the prompt.
func (s Settings) Text() string {
	return Compose(Serialize(s.Config), s.Prompt)
}
