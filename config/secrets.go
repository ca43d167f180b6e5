package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

// ErrSecretLocked is returned when an API key that came from the secret file
// is changed through the config update path.
var ErrSecretLocked = errors.New("api key is managed by the .env file")

var secretEnvKeys = map[string]string{
	"OPENAI_API_KEY": ProviderOpenAI,
	"GEMINI_API_KEY": ProviderGemini,
	"GROK_API_KEY":   ProviderGrok,
	"GLM_API_KEY":    ProviderGLM,
	"KIMI_API_KEY":   ProviderKimi,
}

// SecretStore holds API keys read from the data directory's .env file.
// Every provider with a key in the file is locked.
type SecretStore struct {
	keys map[string]string // providerID → API key
}

func NewSecretStore() *SecretStore {
	return &SecretStore{keys: make(map[string]string)}
}

// LoadSecrets reads a .env file. A missing file yields an empty store.
func LoadSecrets(path string) (*SecretStore, error) {
	store := NewSecretStore()
	if !FileExists(path) {
		return store, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for name, value := range values {
		id, ok := secretEnvKeys[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		store.keys[id] = value
	}

	if DebugLog != nil {
		DebugLog.Printf("Loaded %d API key(s) from %s", len(store.keys), path)
	}

	return store, nil
}

func (s *SecretStore) Get(providerID string) (string, bool) {
	if s == nil {
		return "", false
	}
	key, ok := s.keys[providerID]
	return key, ok
}

func (s *SecretStore) IsLocked(providerID string) bool {
	_, ok := s.Get(providerID)
	return ok
}

// Apply overwrites the API key of every locked provider in cfg.
func (s *SecretStore) Apply(cfg *Config) {
	if s == nil {
		return
	}
	for id, key := range s.keys {
		settings, ok := cfg.Cloud[id]
		if !ok {
			continue
		}
		settings.APIKey = key
		cfg.Cloud[id] = settings
	}
}
