package config

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderGrok   = "grok"
	ProviderGLM    = "glm"
	ProviderKimi   = "kimi"
)

// DefaultBlockLanguage is the fenced-code info string that marks a prompt block.
const DefaultBlockLanguage = "ai-tester"

// ProviderIDs lists every provider in display order, local first.
var ProviderIDs = []string{ProviderOllama, ProviderOpenAI, ProviderGemini, ProviderGrok, ProviderGLM, ProviderKimi}

var CloudProviderIDs = ProviderIDs[1:]

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/aitester",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		ActiveProvider: ProviderOllama,
		BlockLanguage:  DefaultBlockLanguage,
		Ollama: ProviderSettings{
			BaseURL: "http://localhost:11434",
			Model:   "llama3",
		},
		Providers: map[string]ProviderSettings{
			ProviderOpenAI: {BaseURL: "https://api.openai.com/v1", Model: "gpt-4o"},
			ProviderGemini: {BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", Model: "gemini-1.5-flash"},
			ProviderGrok:   {BaseURL: "https://api.x.ai/v1", Model: "grok-beta"},
			ProviderGLM:    {BaseURL: "https://open.bigmodel.cn/api/paas/v4", Model: "glm-4-flash"},
			ProviderKimi:   {BaseURL: "https://api.moonshot.cn/v1", Model: "moonshot-v1-8k"},
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# aitester System Configuration
# Location: ~/.config/aitester/settings.toml
# This file uses TOML format: https://toml.io

# Directory where history, secrets and user config are stored
data_directory = "~/.local/share/aitester"
`
}

func GenerateUserConfigTemplate() string {
	return `# aitester User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Provider listed by -models when -provider is not given.
# Blocks without a provider header always use ollama.
active_provider = "ollama"

# Fenced code block language that marks a prompt block
block_language = "ai-tester"

[ollama]
base_url = "http://localhost:11434"
model = "llama3"

# Cloud providers. API keys placed in <data_directory>/.env
# (OPENAI_API_KEY, GEMINI_API_KEY, GROK_API_KEY, GLM_API_KEY, KIMI_API_KEY)
# take precedence over api_key here and cannot be changed from the app.

[providers.openai]
base_url = "https://api.openai.com/v1"
model = "gpt-4o"

[providers.gemini]
base_url = "https://generativelanguage.googleapis.com/v1beta/openai"
model = "gemini-1.5-flash"

[providers.grok]
base_url = "https://api.x.ai/v1"
model = "grok-beta"

[providers.glm]
base_url = "https://open.bigmodel.cn/api/paas/v4"
model = "glm-4-flash"

[providers.kimi]
base_url = "https://api.moonshot.cn/v1"
model = "moonshot-v1-8k"
`
}
