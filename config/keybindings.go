package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type KeyBindingsConfig struct {
	Modifiers ModifierConfig    `toml:"modifiers"`
	Actions   map[string]string `toml:"actions"`
}

type ModifierConfig struct {
	Primary   string `toml:"primary"`   // alt, ctrl, meta, super
	Secondary string `toml:"secondary"` // alt+shift, ctrl+shift
}

type binding struct {
	modifier string // "primary", "secondary" or "none"
	key      string
}

// actionRegistry maps action names to their default keys. Any entry can be
// overridden in the [actions] table of keybindings.toml.
var actionRegistry = map[string]binding{
	// Block editor
	"generate":        {"none", "enter"},
	"newline":         {"primary", "enter"},
	"cycle_provider":  {"primary", "p"},
	"model_selector":  {"primary", "m"},
	"responses_up":    {"primary", "="},
	"responses_down":  {"primary", "-"},
	"toggle_config":   {"primary", "e"},
	"save_block":      {"primary", "s"},
	"next_block":      {"secondary", "n"},
	"prev_block":      {"secondary", "p"},
	"next_panel":      {"primary", "j"},
	"prev_panel":      {"primary", "k"},
	"yank_response":   {"primary", "y"},
	"yank_prompt":     {"primary", "c"},
	"clear_input":     {"primary", "u"},
	"focus_next":      {"none", "tab"},
	"help":            {"primary", "h"},
	"quit":            {"primary", "q"},
	"scroll_down":     {"none", "pgdown"},
	"scroll_up":       {"none", "pgup"},
	"scroll_to_top":   {"primary", "g"},
	"scroll_to_end":   {"secondary", "g"},
	"refresh_models":  {"primary", "r"},
	"reload_config":   {"secondary", "r"},
	"selector_down":   {"none", "down"},
	"selector_up":     {"none", "up"},
	"selector_select": {"none", "enter"},
	"selector_close":  {"none", "esc"},
}

func DefaultKeybindings() *KeyBindingsConfig {
	return &KeyBindingsConfig{
		Modifiers: ModifierConfig{
			Primary:   "alt",
			Secondary: "alt+shift",
		},
	}
}

func KeybindingsPath(dataDir string) string {
	return filepath.Join(dataDir, "keybindings.toml")
}

// LoadKeybindings reads keybindings.toml from the data directory, writing
// the commented template on first run.
func LoadKeybindings(dataDir string) (*KeyBindingsConfig, error) {
	cfg := DefaultKeybindings()
	path := KeybindingsPath(dataDir)

	if !FileExists(path) {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(GenerateKeybindingsTemplate()), 0600); err != nil {
			return nil, fmt.Errorf("failed to write keybindings: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse keybindings: %w", err)
	}

	if cfg.Modifiers.Primary == "" {
		cfg.Modifiers.Primary = "alt"
	}
	if cfg.Modifiers.Secondary == "" {
		cfg.Modifiers.Secondary = "alt+shift"
	}

	return cfg, nil
}

func GenerateKeybindingsTemplate() string {
	return `# aitester Keybindings Configuration
# Location: <data_directory>/keybindings.toml

[modifiers]
primary = "alt"          # alt, ctrl, meta, super
secondary = "alt+shift"

# For tmux users (Alt may conflict):
#   primary = "ctrl"
#   secondary = "ctrl+shift"

[actions]
# Override single actions, e.g.:
#   generate = "ctrl+g"
#   quit = "ctrl+shift+q"
`
}

func (kb *KeyBindingsConfig) Primary() string {
	if kb.Modifiers.Primary == "" {
		return "alt"
	}
	return kb.Modifiers.Primary
}

func (kb *KeyBindingsConfig) Secondary() string {
	if kb.Modifiers.Secondary == "" {
		return "alt+shift"
	}
	return kb.Modifiers.Secondary
}

// SecondaryKey builds a key with the secondary modifier. A shifted single
// letter is reported by terminals as the uppercase letter, so "alt+shift"
// and "n" yield "alt+N".
func (kb *KeyBindingsConfig) SecondaryKey(key string) string {
	secondary := kb.Secondary()
	if len(key) != 1 || key[0] < 'a' || key[0] > 'z' {
		return secondary + "+" + key
	}

	var mods []string
	shifted := false
	for _, part := range strings.Split(secondary, "+") {
		if strings.EqualFold(part, "shift") {
			shifted = true
			continue
		}
		mods = append(mods, part)
	}
	if !shifted {
		return secondary + "+" + key
	}

	mods = append(mods, strings.ToUpper(key))
	return strings.Join(mods, "+")
}

// GetActionKey returns the key string bubbletea reports for an action.
func (kb *KeyBindingsConfig) GetActionKey(action string) string {
	if override, ok := kb.Actions[action]; ok && override != "" {
		return override
	}

	def, ok := actionRegistry[action]
	if !ok {
		return ""
	}
	switch def.modifier {
	case "primary":
		return kb.Primary() + "+" + def.key
	case "secondary":
		return kb.SecondaryKey(def.key)
	default:
		return def.key
	}
}

// DisplayActionKey formats an action's key for the footer, e.g. "Alt+Shift+N".
func (kb *KeyBindingsConfig) DisplayActionKey(action string) string {
	key := kb.GetActionKey(action)
	if key == "" {
		return ""
	}

	parts := strings.Split(key, "+")
	hasShift := false
	for _, p := range parts {
		if strings.EqualFold(p, "shift") {
			hasShift = true
		}
	}

	out := make([]string, 0, len(parts)+1)
	for i, part := range parts {
		if part == "" {
			continue
		}
		if len(part) == 1 && part[0] >= 'A' && part[0] <= 'Z' && !hasShift && i > 0 {
			out = append(out, "Shift")
		}
		out = append(out, strings.ToUpper(part[:1])+part[1:])
	}
	return strings.Join(out, "+")
}

// Validate reports whether the modifiers are usable, with an optional warning.
func (kb *KeyBindingsConfig) Validate() (bool, string) {
	primary := kb.Primary()
	secondary := kb.Secondary()

	if primary == "shift" || secondary == "shift" {
		return false, "Shift alone conflicts with typing"
	}
	if strings.Contains(primary, "ctrl") || strings.Contains(secondary, "ctrl") {
		return true, "Warning: Ctrl may conflict with terminal shortcuts (Ctrl+C, Ctrl+Z, Ctrl+D)"
	}
	return true, ""
}
