package config

import (
	"fmt"
	"slices"
)

// UpdateProviderField updates a single provider configuration field and
// persists the user config.
//
// Fields:
//   - Ollama: "base_url", "model"
//   - Cloud providers: "api_key", "base_url", "model"
func UpdateProviderField(dataDir, providerID, fieldName, value string) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch {
	case providerID == ProviderOllama:
		switch fieldName {
		case "base_url":
			cfg.Ollama.BaseURL = value
		case "model":
			cfg.Ollama.Model = value
		default:
			return fmt.Errorf("unknown field for ollama: %s", fieldName)
		}

	case slices.Contains(CloudProviderIDs, providerID):
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]ProviderSettings)
		}
		settings := cfg.Providers[providerID]

		switch fieldName {
		case "api_key":
			secrets, err := LoadSecrets(SecretsPath(dataDir))
			if err != nil {
				return err
			}
			if secrets.IsLocked(providerID) {
				return fmt.Errorf("%s: %w", providerID, ErrSecretLocked)
			}
			settings.APIKey = value
		case "base_url":
			settings.BaseURL = value
		case "model":
			settings.Model = value
		default:
			return fmt.Errorf("unknown field for %s: %s", providerID, fieldName)
		}
		cfg.Providers[providerID] = settings

	default:
		return fmt.Errorf("unknown provider: %s", providerID)
	}

	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// SetActiveProvider persists the provider -models lists when no -provider
// is given. Blocks without a provider header always use Ollama.
func SetActiveProvider(dataDir, providerID string) error {
	if !slices.Contains(ProviderIDs, providerID) {
		return fmt.Errorf("unknown provider: %s", providerID)
	}

	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ActiveProvider = providerID

	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// DisplayName returns the human-readable name of a provider id.
func DisplayName(providerID string) string {
	switch providerID {
	case ProviderOllama:
		return "Ollama"
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderGemini:
		return "Google Gemini"
	case ProviderGrok:
		return "xAI Grok"
	case ProviderGLM:
		return "Zhipu GLM"
	case ProviderKimi:
		return "Moonshot Kimi"
	default:
		return providerID
	}
}
