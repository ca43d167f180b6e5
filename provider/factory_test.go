package provider

import (
	"errors"
	"testing"

	"aitester/config"
	"aitester/model"
	"aitester/provider/testutil"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		wantType    string
	}{
		{
			name:     "ollama with defaults",
			config:   Config{ID: config.ProviderOllama},
			wantType: "ollama",
		},
		{
			name:     "ollama with custom server",
			config:   Config{ID: config.ProviderOllama, BaseURL: "http://gpu-box:11434", Model: "llama3"},
			wantType: "ollama",
		},
		{
			name:     "kimi preset",
			config:   Config{ID: config.ProviderKimi, BaseURL: "https://api.moonshot.cn/v1", APIKey: "k"},
			wantType: "compat",
		},
		{
			name:     "cloud provider without key",
			config:   Config{ID: config.ProviderGemini, BaseURL: "https://example.test/v1"},
			wantType: "compat",
		},
		{
			name:        "cloud provider without base URL",
			config:      Config{ID: config.ProviderOpenAI},
			expectError: true,
		},
		{
			name:        "ollama with relative URL",
			config:      Config{ID: config.ProviderOllama, BaseURL: "localhost:11434"},
			expectError: true,
		},
		{
			name:        "unknown provider",
			config:      Config{ID: "anthropic", BaseURL: "https://api.anthropic.com"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got provider %T", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			switch tt.wantType {
			case "ollama":
				if _, ok := p.(*OllamaProvider); !ok {
					t.Errorf("got %T, want *OllamaProvider", p)
				}
			case "compat":
				if _, ok := p.(*OpenAICompatProvider); !ok {
					t.Errorf("got %T, want *OpenAICompatProvider", p)
				}
			}
			if p.ID() != tt.config.ID {
				t.Errorf("ID() = %q, want %q", p.ID(), tt.config.ID)
			}
		})
	}
}

func TestPresetsCoverCloudProviders(t *testing.T) {
	for _, id := range config.CloudProviderIDs {
		spec, ok := Presets[id]
		if !ok {
			t.Errorf("no preset for %s", id)
			continue
		}
		if spec.ID != id || spec.Name == "" {
			t.Errorf("preset %s = %+v", id, spec)
		}
		if len(spec.StaticModels) == 0 {
			t.Errorf("preset %s has no curated models", id)
		}
		for _, m := range spec.StaticModels {
			if m.Category != model.CategoryRecommended {
				t.Errorf("%s/%s category = %q", id, m.ID, m.Category)
			}
		}
	}
}

func TestRegistry(t *testing.T) {
	cfg := testutil.TestConfig("http://127.0.0.1:1")
	reg := NewRegistry(cfg, nil)

	list := reg.List()
	if len(list) != len(config.ProviderIDs) {
		t.Fatalf("List() has %d providers, want %d", len(list), len(config.ProviderIDs))
	}
	for i, id := range config.ProviderIDs {
		if list[i].ID() != id {
			t.Errorf("List()[%d] = %s, want %s", i, list[i].ID(), id)
		}
	}

	if _, err := reg.Resolve("gemini"); err != nil {
		t.Errorf("Resolve(gemini): %v", err)
	}

	_, err := reg.Resolve("claude")
	var notFound *model.NotFoundError
	if !errors.As(err, &notFound) || notFound.ID != "claude" {
		t.Errorf("Resolve(claude) err = %v, want *model.NotFoundError", err)
	}
}

func TestRegistryReconfigure(t *testing.T) {
	cfg := testutil.TestConfig("http://127.0.0.1:1")
	reg := NewRegistry(cfg, nil)

	before, _ := reg.Resolve(config.ProviderOpenAI)

	next := cfg.WithProvider(config.ProviderOpenAI, config.ProviderSettings{BaseURL: "http://127.0.0.1:2", APIKey: "new", Model: "gpt-4o-mini"})
	reg.Reconfigure(next)

	after, _ := reg.Resolve(config.ProviderOpenAI)
	if before == after {
		t.Error("Reconfigure should build new provider instances")
	}
	if reg.Settings() != next {
		t.Error("Settings() should return the latest snapshot")
	}
	if cfg.Cloud[config.ProviderOpenAI].APIKey != "test-key" {
		t.Error("old snapshot was mutated")
	}
	if got := after.(*OpenAICompatProvider).defaultModel; got != "gpt-4o-mini" {
		t.Errorf("default model = %q after reconfigure", got)
	}
}

func TestRegistrySkipsBrokenProvider(t *testing.T) {
	cfg := testutil.TestConfig("http://127.0.0.1:1")
	cfg = cfg.WithProvider(config.ProviderGrok, config.ProviderSettings{})

	reg := NewRegistry(cfg, nil)
	if _, err := reg.Resolve(config.ProviderGrok); err == nil {
		t.Error("grok without base URL should not be registered")
	}
	if _, err := reg.Resolve(config.ProviderGLM); err != nil {
		t.Errorf("other providers must stay available: %v", err)
	}
}
