package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"aitester/generation"
	"aitester/model"
)

// Panel events carry the batch sequence number so late events from an
// earlier batch are dropped.
type panelStartedMsg struct {
	batch int
	index int
}

type panelChunkMsg struct {
	batch int
	index int
	text  string
}

type panelDoneMsg struct {
	batch int
	index int
	res   model.GenerateResponse
}

type panelFailedMsg struct {
	batch int
	index int
	err   error
}

type panelCancelledMsg struct {
	batch int
	index int
}

type batchFinishedMsg struct {
	batch   int
	outcome generation.Outcome
}

type batchErrorMsg struct {
	batch int
	err   error
}

type modelsListMsg struct {
	providerID string
	list       model.ModelList
	err        error
}

type markdownRenderedMsg struct {
	batch    int
	index    int
	rendered string
}

type clearStatusMsg struct {
	seq int
}

// channelSink forwards orchestrator events to the bubbletea loop. It is
// the only place panel events cross goroutines.
type channelSink struct {
	batch int
	ch    chan<- tea.Msg
}

func (s channelSink) PanelStarted(index int) {
	s.ch <- panelStartedMsg{batch: s.batch, index: index}
}

func (s channelSink) PanelChunk(index int, text string) {
	s.ch <- panelChunkMsg{batch: s.batch, index: index, text: text}
}

func (s channelSink) PanelDone(index int, res model.GenerateResponse) {
	s.ch <- panelDoneMsg{batch: s.batch, index: index, res: res}
}

func (s channelSink) PanelFailed(index int, err error) {
	s.ch <- panelFailedMsg{batch: s.batch, index: index, err: err}
}

func (s channelSink) PanelCancelled(index int) {
	s.ch <- panelCancelledMsg{batch: s.batch, index: index}
}

func (s channelSink) BatchFinished(out generation.Outcome) {
	s.ch <- batchFinishedMsg{batch: s.batch, outcome: out}
}

// waitForEvent reads the next event of a running batch. It returns nil once
// the channel is closed, which ends the listening loop.
func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}
