package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

// ProviderSettings is the connection record one provider is built from.
// For the local provider BaseURL is the server URL and APIKey is unused.
type ProviderSettings struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key,omitempty"`
	Model   string `toml:"model"`
}

type UserConfig struct {
	ActiveProvider string                      `toml:"active_provider"`
	BlockLanguage  string                      `toml:"block_language"`
	Ollama         ProviderSettings            `toml:"ollama"`
	Providers      map[string]ProviderSettings `toml:"providers"`
}

// Config is an immutable snapshot of the runtime configuration. Providers
// are built from a snapshot and rebuilt when a new one is produced; nothing
// mutates a Config after Load returns it.
type Config struct {
	DataDirectory  string
	ActiveProvider string
	BlockLanguage  string
	Ollama         ProviderSettings
	Cloud          map[string]ProviderSettings
	Secrets        *SecretStore
}

var Debug = false
var DebugLog *zerolog.Logger

var nopLogger = zerolog.Nop()

// Log returns the debug logger, or a disabled logger when debug logging is off.
func Log() *zerolog.Logger {
	if DebugLog != nil {
		return DebugLog
	}
	return &nopLogger
}

func (c *Config) OllamaURL() string {
	return c.Ollama.BaseURL
}

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// Provider returns the settings for a provider id.
func (c *Config) Provider(id string) (ProviderSettings, bool) {
	if id == ProviderOllama {
		return c.Ollama, true
	}
	s, ok := c.Cloud[id]
	return s, ok
}

// DefaultModel returns the configured default model for a provider id.
func (c *Config) DefaultModel(id string) string {
	s, _ := c.Provider(id)
	return s.Model
}

// WithProvider returns a copy of c with the settings of one provider replaced.
func (c *Config) WithProvider(id string, s ProviderSettings) *Config {
	next := c.Clone()
	if id == ProviderOllama {
		next.Ollama = s
		return next
	}
	next.Cloud[id] = s
	return next
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	next := *c
	next.Cloud = make(map[string]ProviderSettings, len(c.Cloud))
	for id, s := range c.Cloud {
		next.Cloud[id] = s
	}
	return &next
}

func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("AITESTER_OLLAMA_HOST"); host != "" {
		c.Ollama.BaseURL = host
	}
	if model := os.Getenv("AITESTER_OLLAMA_MODEL"); model != "" {
		c.Ollama.Model = model
	}
	if dataDir := os.Getenv("AITESTER_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
}

func CheckDebug() bool {
	debug := os.Getenv("AITESTER_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: prompts and provider errors end up in here
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	logger := zerolog.New(f).With().Timestamp().Caller().Logger()
	DebugLog = &logger
	Debug = true
	DebugLog.Printf("=== Debug logging started (AITESTER_DEBUG=%s) ===", os.Getenv("AITESTER_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// FromUserConfig builds a runtime snapshot, filling every provider section
// the user config leaves out with its defaults.
func FromUserConfig(dataDirectory string, user *UserConfig) *Config {
	defaults := DefaultUserConfig()

	cfg := &Config{
		DataDirectory:  dataDirectory,
		ActiveProvider: user.ActiveProvider,
		BlockLanguage:  user.BlockLanguage,
		Ollama:         mergeProviderSettings(defaults.Ollama, user.Ollama),
		Cloud:          make(map[string]ProviderSettings, len(CloudProviderIDs)),
	}
	if cfg.ActiveProvider == "" {
		cfg.ActiveProvider = defaults.ActiveProvider
	}
	if cfg.BlockLanguage == "" {
		cfg.BlockLanguage = defaults.BlockLanguage
	}

	for _, id := range CloudProviderIDs {
		cfg.Cloud[id] = mergeProviderSettings(defaults.Providers[id], user.Providers[id])
	}

	return cfg
}

func mergeProviderSettings(base, override ProviderSettings) ProviderSettings {
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.Model != "" {
		base.Model = override.Model
	}
	return base
}

func Load() (*Config, error) {
	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}

	dataDirectory := systemCfg.DataDirectory
	if env := os.Getenv("AITESTER_DATA_DIR"); env != "" {
		dataDirectory = env
	}

	dataDir := ExpandPath(dataDirectory)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Ensure data directory has correct permissions (fix if needed)
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	cfg := FromUserConfig(dataDirectory, userCfg)
	cfg.applyEnvOverrides()

	secrets, err := LoadSecrets(SecretsPath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	cfg.Secrets = secrets
	secrets.Apply(cfg)

	return cfg, nil
}
