package generation

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"aitester/model"
)

// WriterSink prints each panel to w once it ends, so concurrent panels
// never interleave. With a single panel, chunks are written as they
// arrive.
type WriterSink struct {
	w      io.Writer
	total  int
	mu     sync.Mutex
	panels map[int]*strings.Builder
}

func NewWriterSink(w io.Writer, panels int) *WriterSink {
	return &WriterSink{
		w:      w,
		total:  panels,
		panels: make(map[int]*strings.Builder),
	}
}

func (s *WriterSink) live() bool {
	return s.total <= 1
}

func (s *WriterSink) PanelStarted(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panels[index] = &strings.Builder{}
}

func (s *WriterSink) PanelChunk(index int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live() {
		io.WriteString(s.w, text)
		return
	}
	if b, ok := s.panels[index]; ok {
		b.WriteString(text)
	}
}

func (s *WriterSink) PanelDone(index int, res model.GenerateResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live() {
		fmt.Fprintf(s.w, "\n\n[%s]\n", res.Stats())
		return
	}
	s.header(index)
	fmt.Fprintf(s.w, "%s\n\n[%s]\n\n", s.panels[index].String(), res.Stats())
	delete(s.panels, index)
}

func (s *WriterSink) PanelFailed(index int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live() {
		s.header(index)
	}
	fmt.Fprintf(s.w, "Error: %v\n", err)
	delete(s.panels, index)
}

func (s *WriterSink) PanelCancelled(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.panels, index)
}

func (s *WriterSink) BatchFinished(out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out.State == StateCancelled {
		fmt.Fprintln(s.w, "Cancelled.")
	}
}

func (s *WriterSink) header(index int) {
	fmt.Fprintf(s.w, "=== Response %d/%d ===\n", index+1, s.total)
}
