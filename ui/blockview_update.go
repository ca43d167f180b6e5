package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"aitester/block"
	"aitester/config"
	"aitester/generation"
	"aitester/model"
)

func (v BlockView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		v.ready = true
		v.layout()
		v.refreshPanels()
		return v, nil

	case tea.KeyMsg:
		return v.handleKey(msg)

	case spinner.TickMsg:
		if !v.generating && !v.loadingModels {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		v.refreshPanels()
		return v, cmd

	case modelsListMsg:
		return v.handleModelsList(msg)

	case clearStatusMsg:
		if msg.seq == v.statusSeq {
			v.status = ""
			v.statusErr = false
		}
		return v, nil

	case panelStartedMsg, panelChunkMsg, panelDoneMsg, panelFailedMsg,
		panelCancelledMsg, batchFinishedMsg, batchErrorMsg, markdownRenderedMsg:
		return v.handleGenerationMessage(msg)
	}

	return v.updateEditors(msg)
}

// is reports whether msg triggers action.
func (v BlockView) is(msg tea.KeyMsg, action string) bool {
	return msg.String() == v.kb.GetActionKey(action)
}

func (v BlockView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return v.quit()
	}

	if v.showHelp {
		if v.is(msg, "help") || msg.String() == "esc" {
			v.showHelp = false
		}
		return v, nil
	}

	if v.showSelector {
		return v.handleSelectorKey(msg)
	}

	switch {
	case v.is(msg, "quit"):
		return v.quit()

	case v.is(msg, "help"):
		v.showHelp = true
		return v, nil

	case v.is(msg, "toggle_config"):
		return v.toggleConfig()

	case v.showConfig:
		// The header editor takes every other key, Enter included.
		return v.updateEditors(msg)

	case v.is(msg, "generate"):
		return v.submit()

	case v.is(msg, "cycle_provider"):
		return v.cycleProvider()

	case v.is(msg, "model_selector"):
		return v.openSelector()

	case v.is(msg, "refresh_models"):
		delete(v.models, v.providerID())
		v.loadingModels = true
		return v, tea.Batch(v.spinner.Tick, v.fetchModels(v.providerID()))

	case v.is(msg, "reload_config"):
		return v.reloadConfig()

	case v.is(msg, "responses_up"):
		return v.setResponses(v.settings.Config.Responses() + 1)

	case v.is(msg, "responses_down"):
		return v.setResponses(v.settings.Config.Responses() - 1)

	case v.is(msg, "save_block"):
		if err := v.writeBack(); err != nil {
			return v, v.setStatus(err.Error(), true)
		}
		return v, v.setStatus("Saved", false)

	case v.is(msg, "next_block"):
		return v.switchBlock(v.blockIndex + 1)

	case v.is(msg, "prev_block"):
		return v.switchBlock(v.blockIndex - 1)

	case v.is(msg, "next_panel"):
		if v.focusedPanel < len(v.panels)-1 {
			v.focusedPanel++
			v.refreshPanels()
		}
		return v, nil

	case v.is(msg, "prev_panel"):
		if v.focusedPanel > 0 {
			v.focusedPanel--
			v.refreshPanels()
		}
		return v, nil

	case v.is(msg, "yank_response"):
		return v.yankResponse()

	case v.is(msg, "yank_prompt"):
		if err := clipboard.WriteAll(v.Settings().Prompt); err != nil {
			return v, v.setStatus(fmt.Sprintf("Copy failed: %v", err), true)
		}
		return v, v.setStatus("Prompt copied", false)

	case v.is(msg, "clear_input"):
		v.prompt.Reset()
		return v, nil

	case v.is(msg, "scroll_down"):
		v.viewport.PageDown()
		return v, nil

	case v.is(msg, "scroll_up"):
		v.viewport.PageUp()
		return v, nil

	case v.is(msg, "scroll_to_top"):
		v.viewport.GotoTop()
		return v, nil

	case v.is(msg, "scroll_to_end"):
		v.viewport.GotoBottom()
		return v, nil
	}

	return v.updateEditors(msg)
}

func (v BlockView) updateEditors(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if v.showConfig {
		v.configEditor, cmd = v.configEditor.Update(msg)
	} else {
		v.prompt, cmd = v.prompt.Update(msg)
	}
	return v, cmd
}

func (v BlockView) quit() (tea.Model, tea.Cmd) {
	if v.generating {
		v.cancelBatch()
	}
	if err := v.writeBack(); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("failed to write block on quit: %v", err)
	}
	return v, tea.Quit
}

// writeBack stores the edited block in the document and saves the file.
// The document is the source of truth; the view re-parses it when
// switching blocks.
func (v *BlockView) writeBack() error {
	s := v.Settings()
	if err := v.doc.UpdateBlock(v.blockIndex, s); err != nil {
		return fmt.Errorf("failed to update block: %w", err)
	}
	v.settings = s
	if v.doc.Path() == "" {
		return nil
	}
	if err := v.doc.Save(); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// applyConfig installs a changed configuration and persists it.
func (v *BlockView) applyConfig(cfg block.Config) tea.Cmd {
	v.settings.Config = cfg
	v.warnings = block.Validate(cfg)
	v.configEditor.SetValue(block.Serialize(cfg))
	if err := v.writeBack(); err != nil {
		return v.setStatus(err.Error(), true)
	}
	return nil
}

func (v BlockView) setResponses(n int) (tea.Model, tea.Cmd) {
	n = min(max(n, block.MinResponses), block.MaxResponses)
	if n == v.settings.Config.Responses() {
		return v, nil
	}
	cfg := v.settings.Config.Clone()
	cfg.NumResponses = n
	return v, v.applyConfig(cfg)
}

func (v BlockView) cycleProvider() (tea.Model, tea.Cmd) {
	providers := v.providers.List()
	if len(providers) == 0 {
		return v, v.setStatus("No providers configured", true)
	}

	next := 0
	for i, p := range providers {
		if p.ID() == v.providerID() {
			next = (i + 1) % len(providers)
			break
		}
	}

	cfg := v.settings.Config.Clone()
	cfg.Provider = providers[next].ID()
	cfg.Model = ""
	cmd := v.applyConfig(cfg)
	return v, tea.Batch(cmd, v.fetchModels(cfg.Provider))
}

func (v BlockView) toggleConfig() (tea.Model, tea.Cmd) {
	if !v.showConfig {
		v.showConfig = true
		v.configError = ""
		v.configEditor.SetValue(block.Serialize(v.settings.Config))
		v.prompt.Blur()
		v.configEditor.Focus()
		v.layout()
		return v, textarea.Blink
	}

	cfg, err := block.Overlay(block.DefaultConfig(), []byte(v.configEditor.Value()))
	if err != nil {
		v.configError = fmt.Sprintf("Invalid header: %v", err)
		return v, nil
	}
	if _, err := v.providers.Resolve(cfg.Provider); err != nil {
		v.configError = fmt.Sprintf("Unknown provider %q", cfg.Provider)
		return v, nil
	}

	providerChanged := cfg.Provider != v.providerID()
	v.showConfig = false
	v.configEditor.Blur()
	v.prompt.Focus()
	v.layout()

	cmds := []tea.Cmd{v.applyConfig(cfg), textarea.Blink}
	if providerChanged {
		cmds = append(cmds, v.fetchModels(cfg.Provider))
	}
	return v, tea.Batch(cmds...)
}

// reloadConfig re-reads config.toml and .env and rebuilds the providers.
// Cached model lists belong to the old providers and are dropped.
func (v BlockView) reloadConfig() (tea.Model, tea.Cmd) {
	if v.generating {
		return v, v.setStatus("Stop the running generation first", true)
	}

	cfg, err := v.loadConfig()
	if err != nil {
		return v, v.setStatus(fmt.Sprintf("Reload failed: %v", err), true)
	}
	if r, ok := v.providers.(reconfigurer); ok {
		r.Reconfigure(cfg)
	}
	v.cfg = cfg
	v.models = make(map[string]model.ModelList)

	if config.DebugLog != nil {
		config.DebugLog.Printf("[UI] configuration reloaded from %s", cfg.DataDir())
	}

	v.loadingModels = true
	return v, tea.Batch(
		v.setStatus("Configuration reloaded", false),
		v.spinner.Tick,
		v.fetchModels(v.providerID()),
	)
}

func (v BlockView) switchBlock(index int) (tea.Model, tea.Cmd) {
	if v.generating {
		return v, v.setStatus("Stop the running generation first", true)
	}
	if index < 0 || index >= v.blockCount {
		return v, nil
	}
	if err := v.writeBack(); err != nil {
		return v, v.setStatus(err.Error(), true)
	}
	b, err := v.doc.Block(index)
	if err != nil {
		return v, v.setStatus(err.Error(), true)
	}

	previous := v.providerID()
	v.loadBlock(b)
	if v.providerID() != previous {
		return v, v.fetchModels(v.providerID())
	}
	return v, nil
}

func (v BlockView) yankResponse() (tea.Model, tea.Cmd) {
	if v.focusedPanel >= len(v.panels) {
		return v, v.setStatus("No response to copy", true)
	}
	p := v.panels[v.focusedPanel]
	if p.text.Len() == 0 {
		return v, v.setStatus("No response to copy", true)
	}
	if err := clipboard.WriteAll(p.text.String()); err != nil {
		return v, v.setStatus(fmt.Sprintf("Copy failed: %v", err), true)
	}
	return v, v.setStatus(fmt.Sprintf("Response %d copied", v.focusedPanel+1), false)
}

// setStatus shows a message that clears itself after a few seconds.
func (v *BlockView) setStatus(text string, isErr bool) tea.Cmd {
	v.statusSeq++
	v.status = text
	v.statusErr = isErr
	seq := v.statusSeq
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

// submit starts a batch, or stops the running one.
func (v BlockView) submit() (tea.Model, tea.Cmd) {
	if v.generating {
		if v.cancelling {
			return v, nil
		}
		v.cancelBatch()
		v.cancelling = true
		return v, v.setStatus("Stopping...", false)
	}

	s := v.Settings()
	if s.Prompt == "" {
		return v, v.setStatus("Prompt is empty", true)
	}

	var cmds []tea.Cmd
	if err := v.writeBack(); err != nil {
		cmds = append(cmds, v.setStatus(err.Error(), true))
	}

	v.batchSeq++
	n := s.Config.Responses()
	v.panels = make([]panel, n)
	for i := range v.panels {
		v.panels[i] = panel{text: newBuilder(), state: panelWaiting}
	}
	v.focusedPanel = 0
	v.generating = true
	v.cancelling = false

	events := make(chan tea.Msg, 64)
	v.events = events

	req := generation.Request{
		Settings:   s,
		Document:   v.doc.Path(),
		BlockIndex: v.blockIndex,
	}
	ctx, stop := context.WithCancel(context.Background())
	v.stop = stop

	runner := v.runner
	sink := channelSink{batch: v.batchSeq, ch: events}
	batch := v.batchSeq

	go func() {
		defer close(events)
		if _, err := runner.Submit(ctx, req, sink); err != nil {
			events <- batchErrorMsg{batch: batch, err: err}
		}
	}()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[UI] batch %d submitted: provider=%s model=%q responses=%d",
			batch, s.Config.Provider, s.Config.Model, n)
	}

	v.refreshPanels()
	cmds = append(cmds, v.spinner.Tick, waitForEvent(events))
	return v, tea.Batch(cmds...)
}

func (v BlockView) handleGenerationMessage(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	listen := func() {
		if v.events != nil {
			cmds = append(cmds, waitForEvent(v.events))
		}
	}

	switch msg := msg.(type) {
	case panelStartedMsg:
		if p := v.panel(msg.batch, msg.index); p != nil {
			p.state = panelStreaming
		}
		listen()

	case panelChunkMsg:
		if p := v.panel(msg.batch, msg.index); p != nil {
			p.text.WriteString(msg.text)
		}
		listen()

	case panelDoneMsg:
		if p := v.panel(msg.batch, msg.index); p != nil {
			p.state = panelDone
			p.stats = msg.res.Stats()
			cmds = append(cmds, renderMarkdownAsync(msg.batch, msg.index, p.text.String(), v.width))
		}
		listen()

	case panelFailedMsg:
		if p := v.panel(msg.batch, msg.index); p != nil {
			p.state = panelFailed
			p.err = errorText(msg.err)
		}
		listen()

	case panelCancelledMsg:
		if p := v.panel(msg.batch, msg.index); p != nil {
			p.state = panelCancelled
		}
		listen()

	case batchFinishedMsg:
		if msg.batch == v.batchSeq {
			v.endBatch()
			v.dropUnstartedPanels()
			cmds = append(cmds, v.batchStatus(msg.outcome))
		}

	case batchErrorMsg:
		if msg.batch == v.batchSeq {
			v.endBatch()
			v.panels = nil
			cmds = append(cmds, v.setStatus(errorText(msg.err), true))
		}

	case markdownRenderedMsg:
		if p := v.panel(msg.batch, msg.index); p != nil {
			p.rendered = msg.rendered
		}
	}

	v.refreshPanels()
	return v, tea.Batch(cmds...)
}

// cancelBatch stops the running batch, including one whose goroutine has
// not reached Submit yet.
func (v *BlockView) cancelBatch() {
	if v.stop != nil {
		v.stop()
	}
	v.runner.Cancel()
}

func (v *BlockView) endBatch() {
	if v.stop != nil {
		v.stop()
		v.stop = nil
	}
	v.generating = false
	v.cancelling = false
	v.events = nil
}

// dropUnstartedPanels removes the panels a stopped batch never ran.
func (v *BlockView) dropUnstartedPanels() {
	v.panels = slices.DeleteFunc(v.panels, func(p panel) bool {
		return p.state == panelWaiting
	})
	v.focusedPanel = min(v.focusedPanel, max(len(v.panels)-1, 0))
}

// panel returns the panel an event targets, or nil for stale events.
func (v *BlockView) panel(batch, index int) *panel {
	if batch != v.batchSeq || index < 0 || index >= len(v.panels) {
		return nil
	}
	return &v.panels[index]
}

func (v *BlockView) batchStatus(out generation.Outcome) tea.Cmd {
	switch out.State {
	case generation.StateCancelled:
		return v.setStatus("Stopped", false)
	case generation.StateFailed:
		return v.setStatus(fmt.Sprintf("%d of %d responses failed", out.Failed, out.Panels), true)
	default:
		return v.setStatus(fmt.Sprintf("%d response(s) completed", out.Completed), false)
	}
}

// errorText turns an error into the message shown inside a panel.
func errorText(err error) string {
	var genErr *model.GenerationError
	var connErr *model.ConnectionError
	var notFound *model.NotFoundError
	switch {
	case errors.As(err, &genErr):
		return "Error: " + genErr.Message
	case errors.As(err, &connErr):
		return fmt.Sprintf("Error: cannot reach %s (%v)", connErr.URL, connErr.Err)
	case errors.As(err, &notFound):
		return fmt.Sprintf("Error: provider %q is not configured", notFound.ID)
	}
	return "Error: " + err.Error()
}

func (v BlockView) fetchModels(providerID string) tea.Cmd {
	if _, ok := v.models[providerID]; ok {
		return nil
	}
	p, err := v.providers.Resolve(providerID)
	if err != nil {
		return nil
	}
	return func() tea.Msg {
		list, err := p.ListModels(context.Background())
		return modelsListMsg{providerID: providerID, list: list, err: err}
	}
}

func (v BlockView) handleModelsList(msg modelsListMsg) (tea.Model, tea.Cmd) {
	v.loadingModels = false
	if msg.err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("Error fetching models for %s: %v", msg.providerID, msg.err)
		}
		if msg.providerID == v.providerID() {
			return v, v.setStatus(errorText(msg.err), true)
		}
		return v, nil
	}

	v.models[msg.providerID] = msg.list
	if config.DebugLog != nil {
		config.DebugLog.Printf("Fetched %d models for %s", len(msg.list.Models), msg.providerID)
	}

	var cmd tea.Cmd
	if msg.list.Notice != "" && msg.providerID == v.providerID() {
		cmd = v.setStatus(msg.list.Notice, false)
	}
	if v.showSelector && msg.providerID == v.providerID() {
		v.filterSelector()
	}
	return v, cmd
}

func (v BlockView) openSelector() (tea.Model, tea.Cmd) {
	v.showSelector = true
	v.selectorFilter.SetValue("")
	v.selectorFilter.Focus()
	v.filterSelector()

	if idx := slices.IndexFunc(v.selectorItems, func(m model.ModelInfo) bool {
		return m.ID == v.settings.Config.Model
	}); idx >= 0 {
		v.selectedModelIdx = idx
	}

	if _, ok := v.models[v.providerID()]; ok {
		return v, nil
	}
	v.loadingModels = true
	return v, tea.Batch(v.spinner.Tick, v.fetchModels(v.providerID()))
}

func (v BlockView) handleSelectorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case v.is(msg, "selector_close"):
		v.showSelector = false
		v.selectorFilter.Blur()
		return v, nil

	case v.is(msg, "selector_down"):
		if v.selectedModelIdx < len(v.selectorItems)-1 {
			v.selectedModelIdx++
		}
		return v, nil

	case v.is(msg, "selector_up"):
		if v.selectedModelIdx > 0 {
			v.selectedModelIdx--
		}
		return v, nil

	case v.is(msg, "selector_select"):
		v.showSelector = false
		v.selectorFilter.Blur()
		if v.selectedModelIdx >= len(v.selectorItems) {
			return v, nil
		}
		cfg := v.settings.Config.Clone()
		cfg.Model = v.selectorItems[v.selectedModelIdx].ID
		return v, v.applyConfig(cfg)
	}

	var cmd tea.Cmd
	v.selectorFilter, cmd = v.selectorFilter.Update(msg)
	v.filterSelector()
	return v, cmd
}

func (v *BlockView) filterSelector() {
	list := v.models[v.providerID()]
	v.selectorItems = filterModels(list.Models, v.selectorFilter.Value())
	if v.selectedModelIdx >= len(v.selectorItems) {
		v.selectedModelIdx = max(len(v.selectorItems)-1, 0)
	}
}
