package block

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"aitester/config"
)

var fencePattern = regexp.MustCompile(`^---\n([\s\S]*?)\n---(?:\n([\s\S]*)|$)`)

// Parse splits raw block text into configuration and prompt.
//
// A header that is present but cannot be decoded is ignored: the whole
// trimmed text becomes the prompt and the configuration stays at defaults,
// so a broken header never locks the user out of the block.
func Parse(raw string) Settings {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))

	settings := Settings{
		Config: DefaultConfig(),
		Prompt: text,
	}

	m := fencePattern.FindStringSubmatch(text)
	if m == nil {
		return settings
	}

	cfg, err := Overlay(DefaultConfig(), []byte(m[1]))
	if err != nil {
		config.Log().Warn().Err(err).Msg("ignoring malformed block header")
		return settings
	}

	settings.Config = cfg
	settings.Prompt = strings.TrimSpace(m[2])
	settings.HasExplicitConfig = true
	return settings
}

// Overlay decodes a YAML header on top of base. Keys present in the header
// win; absent keys keep their base value. base is not modified.
func Overlay(base Config, header []byte) (Config, error) {
	cfg := base.Clone()
	if err := yaml.Unmarshal(header, &cfg); err != nil {
		return base, err
	}
	if cfg.StopSequences == nil {
		cfg.StopSequences = []string{}
	}
	return cfg, nil
}

// Compose joins a serialized header and a prompt into block text. An empty
// header yields the bare prompt with no fence.
func Compose(header, prompt string) string {
	if header == "" {
		return prompt
	}
	return "---\n" + header + "\n---\n" + prompt
}
