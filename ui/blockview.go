package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"aitester/block"
	"aitester/config"
	"aitester/document"
	"aitester/generation"
	"aitester/model"
)

// Providers is the part of the provider registry the view needs.
type Providers interface {
	Resolve(id string) (model.Provider, error)
	List() []model.Provider
}

// reconfigurer is implemented by provider sets that rebuild themselves
// from a new settings snapshot.
type reconfigurer interface {
	Reconfigure(cfg *config.Config)
}

// Options configures a BlockView. LoadConfig re-reads the settings for the
// reload key and defaults to config.Load.
type Options struct {
	Config     *config.Config
	Keys       *config.KeyBindingsConfig
	Providers  Providers
	Runner     *generation.Runner
	Document   *document.Document
	BlockIndex int
	LoadConfig func() (*config.Config, error)
}

type panelState int

const (
	panelWaiting panelState = iota
	panelStreaming
	panelDone
	panelFailed
	panelCancelled
)

type panel struct {
	text     *strings.Builder // Pointer to avoid copy panic
	state    panelState
	stats    string
	err      string
	rendered string
}

// BlockView is the interactive widget for one prompt block: provider and
// model selection, the prompt editor, the header editor and one panel per
// requested response.
type BlockView struct {
	cfg        *config.Config
	loadConfig func() (*config.Config, error)
	kb         *config.KeyBindingsConfig
	providers  Providers
	runner     *generation.Runner
	doc        *document.Document

	blockIndex int
	blockCount int
	settings   block.Settings
	warnings   []string

	prompt       textarea.Model
	configEditor textarea.Model
	showConfig   bool
	configError  string

	viewport viewport.Model
	spinner  spinner.Model

	// Model selector
	models           map[string]model.ModelList
	showSelector     bool
	selectorFilter   textinput.Model
	selectorItems    []model.ModelInfo
	selectedModelIdx int
	loadingModels    bool

	// Generation
	panels       []panel
	focusedPanel int
	generating   bool
	cancelling   bool
	batchSeq     int
	events       chan tea.Msg
	stop         context.CancelFunc

	status    string
	statusErr bool
	statusSeq int

	showHelp bool
	width    int
	height   int
	ready    bool
}

func NewBlockView(opts Options) (BlockView, error) {
	b, err := opts.Document.Block(opts.BlockIndex)
	if err != nil {
		return BlockView{}, err
	}

	kb := opts.Keys
	if kb == nil {
		kb = config.DefaultKeybindings()
	}

	prompt := textarea.New()
	prompt.Placeholder = "Write a prompt..."
	prompt.CharLimit = 0
	prompt.ShowLineNumbers = false
	prompt.SetHeight(5)
	prompt.SetWidth(80)
	prompt.KeyMap.InsertNewline = key.NewBinding(key.WithKeys(kb.GetActionKey("newline")))
	prompt.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})
	prompt.Focus()

	editor := textarea.New()
	editor.Placeholder = "temperature: 0.7"
	editor.CharLimit = 0
	editor.ShowLineNumbers = true
	editor.SetHeight(9)
	editor.SetWidth(80)

	filter := textinput.New()
	filter.Prompt = "Filter: "
	filter.CharLimit = 64

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = config.Load
	}

	v := BlockView{
		cfg:            opts.Config,
		loadConfig:     loadConfig,
		kb:             kb,
		providers:      opts.Providers,
		runner:         opts.Runner,
		doc:            opts.Document,
		prompt:         prompt,
		configEditor:   editor,
		viewport:       viewport.New(80, 10),
		spinner:        sp,
		models:         make(map[string]model.ModelList),
		selectorFilter: filter,
	}
	v.loadBlock(b)
	return v, nil
}

// loadBlock replaces the view state with a freshly parsed block.
func (v *BlockView) loadBlock(b document.Block) {
	v.blockIndex = b.Index
	v.blockCount = len(v.doc.Blocks())
	v.settings = b.Settings()
	v.warnings = block.Validate(v.settings.Config)
	v.prompt.SetValue(v.settings.Prompt)
	v.configEditor.SetValue(block.Serialize(v.settings.Config))
	v.showConfig = false
	v.configError = ""
	v.panels = nil
	v.focusedPanel = 0
	v.refreshPanels()
}

func (v BlockView) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		v.fetchModels(v.providerID()),
	)
}

// Settings returns the block as currently edited.
func (v BlockView) Settings() block.Settings {
	s := v.settings
	s.Config = s.Config.Clone()
	s.Prompt = strings.TrimSpace(v.prompt.Value())
	return s
}

func (v BlockView) providerID() string {
	return v.settings.Config.Provider
}

func (v BlockView) providerName() string {
	if p, err := v.providers.Resolve(v.providerID()); err == nil {
		return p.Name()
	}
	return config.DisplayName(v.providerID())
}

func (v BlockView) modelLabel() string {
	if v.settings.Config.Model != "" {
		return v.settings.Config.Model
	}
	if v.cfg != nil {
		if def := v.cfg.DefaultModel(v.providerID()); def != "" {
			return def + " (default)"
		}
	}
	return "default model"
}

func (v BlockView) View() string {
	if !v.ready {
		return "Loading aitester..."
	}

	if v.showHelp {
		return v.renderHelpModal(v.width, v.height)
	}

	if v.showSelector {
		return renderModelSelector(v.selectorItems, v.selectedModelIdx, v.settings.Config.Model,
			v.selectorFilter, v.providerName(), v.loadingModels, v.width, v.height)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		v.renderTitle(),
		v.renderConfigLine(),
		v.renderEditor(),
		v.viewport.View(),
		v.renderStatus(),
		v.renderFooter(),
	)
}

func (v BlockView) renderTitle() string {
	name := ResponseStyle.Bold(true).Render("aitester")
	providerText := TitleStyle.Render(fmt.Sprintf(" - %s", v.providerName()))
	modelText := PromptStyle.Render(fmt.Sprintf(" - %s", v.modelLabel()))

	where := fmt.Sprintf(" | block %d/%d", v.blockIndex+1, v.blockCount)
	if path := v.doc.Path(); path != "" {
		where += " | " + filepath.Base(path)
	}
	title := name + providerText + modelText + DimStyle.Render(where)

	if v.generating {
		title += " " + v.spinner.View()
	}
	return truncate(title, v.width)
}

func (v BlockView) renderConfigLine() string {
	c := v.settings.Config
	line := DimStyle.Render(fmt.Sprintf("temp %s · max %d · top_p %s · responses %d",
		formatNumber(c.Temperature), c.MaxTokens, formatNumber(c.TopP), c.Responses()))
	if len(c.StopSequences) > 0 {
		line += DimStyle.Render(fmt.Sprintf(" · stop %d", len(c.StopSequences)))
	}
	if len(v.warnings) > 0 {
		line += "  " + WarningStyle.Render("⚠ "+strings.Join(v.warnings, "; "))
	}
	return truncate(line, v.width)
}

func (v BlockView) renderEditor() string {
	if !v.showConfig {
		return v.prompt.View()
	}
	header := TitleStyle.Render("Block header")
	if v.configError != "" {
		header += "  " + ErrorStyle.Render(v.configError)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, v.configEditor.View())
}

func (v BlockView) renderStatus() string {
	if v.status == "" {
		return ""
	}
	if v.statusErr {
		return truncate(ErrorStyle.Render(v.status), v.width)
	}
	return truncate(StatusStyle.Render(v.status), v.width)
}

func (v BlockView) renderFooter() string {
	generate := "Generate"
	if v.generating {
		generate = "Stop"
	}
	if v.showConfig {
		return StatusStyle.Render(FormatFooter(
			v.kb.DisplayActionKey("toggle_config"), "Apply header",
			v.kb.DisplayActionKey("help"), "Help",
		))
	}
	return StatusStyle.Render(FormatFooter(
		v.kb.DisplayActionKey("generate"), generate,
		v.kb.DisplayActionKey("cycle_provider"), "Provider",
		v.kb.DisplayActionKey("model_selector"), "Model",
		v.kb.DisplayActionKey("toggle_config"), "Header",
		v.kb.DisplayActionKey("yank_response"), "Copy",
		v.kb.DisplayActionKey("help"), "Help",
		v.kb.DisplayActionKey("quit"), "Quit",
	))
}

// layout sizes the editors and the panel viewport to the window.
func (v *BlockView) layout() {
	width := max(v.width-2, 20)
	v.prompt.SetWidth(width)
	v.configEditor.SetWidth(width)

	editorHeight := v.prompt.Height()
	if v.showConfig {
		editorHeight = v.configEditor.Height() + 1
	}
	// title, config line, status, footer
	chrome := 4
	v.viewport.Width = v.width
	v.viewport.Height = max(v.height-editorHeight-chrome, 3)
}
