package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aitester/block"
	"aitester/model"
	"aitester/provider/testutil"
	"aitester/storage"
)

type event struct {
	kind  string
	index int
	text  string
}

type recordingSink struct {
	mu      sync.Mutex
	events  []event
	chunks  chan int
	outcome Outcome
}

func newRecordingSink() *recordingSink {
	return &recordingSink{chunks: make(chan int, 64)}
}

func (s *recordingSink) add(e event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) PanelStarted(i int) { s.add(event{kind: "started", index: i}) }
func (s *recordingSink) PanelChunk(i int, text string) {
	s.add(event{kind: "chunk", index: i, text: text})
	s.chunks <- i
}
func (s *recordingSink) PanelDone(i int, res model.GenerateResponse) {
	s.add(event{kind: "done", index: i, text: res.Response})
}
func (s *recordingSink) PanelFailed(i int, err error) {
	s.add(event{kind: "failed", index: i, text: err.Error()})
}
func (s *recordingSink) PanelCancelled(i int) { s.add(event{kind: "cancelled", index: i}) }
func (s *recordingSink) BatchFinished(out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = out
}

func (s *recordingSink) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func request(providerID string, responses int) Request {
	cfg := block.DefaultConfig()
	cfg.Provider = providerID
	cfg.NumResponses = responses
	return Request{Settings: block.Settings{Config: cfg, Prompt: "hello"}, Document: "notes.md"}
}

func TestSequentialProviderNeverOverlaps(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32

	p := testutil.NewMockProvider("ollama")
	p.StreamGenerateFunc = func(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		onChunk("x")
		onDone(model.GenerateResponse{Done: true})
		return nil
	}

	r := NewRunner(testutil.MockResolver{"ollama": p})
	sink := newRecordingSink()
	out, err := r.Submit(context.Background(), request("ollama", 5), sink)
	if err != nil {
		t.Fatal(err)
	}

	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max in-flight = %d, want 1", got)
	}
	if out.Completed != 5 || out.State != StateCompleted {
		t.Errorf("outcome = %+v", out)
	}
	if len(p.Calls()) != 5 {
		t.Errorf("calls = %d, want 5", len(p.Calls()))
	}
	if r.State() != StateIdle {
		t.Errorf("state after batch = %s", r.State())
	}
}

func TestConcurrentProviderAwaitsFirst(t *testing.T) {
	var calls atomic.Int32
	var firstDone atomic.Bool
	var startedEarly atomic.Bool
	var rest sync.WaitGroup
	rest.Add(4)

	p := testutil.NewMockProvider("openai")
	p.StreamGenerateFunc = func(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
		if calls.Add(1) == 1 {
			time.Sleep(10 * time.Millisecond)
			firstDone.Store(true)
			onDone(model.GenerateResponse{Done: true})
			return nil
		}
		if !firstDone.Load() {
			startedEarly.Store(true)
		}

		// Every remaining panel waits here until all four are running.
		rest.Done()
		waited := make(chan struct{})
		go func() {
			rest.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(2 * time.Second):
			return errors.New("remaining panels did not overlap")
		}
		onDone(model.GenerateResponse{Done: true})
		return nil
	}

	r := NewRunner(testutil.MockResolver{"openai": p})
	sink := newRecordingSink()
	out, err := r.Submit(context.Background(), request("openai", 5), sink)
	if err != nil {
		t.Fatal(err)
	}

	if startedEarly.Load() {
		t.Error("a later panel started before the first one finished")
	}
	if out.Completed != 5 {
		t.Errorf("outcome = %+v, err = %v", out, out.Err)
	}
}

func TestFirstFailureAbortsBatch(t *testing.T) {
	for _, id := range []string{"ollama", "openai"} {
		t.Run(id, func(t *testing.T) {
			p := testutil.NewMockProvider(id)
			p.StreamGenerateFunc = func(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
				return &model.GenerationError{Provider: id, StatusCode: 401, Message: "bad key"}
			}

			r := NewRunner(testutil.MockResolver{id: p})
			sink := newRecordingSink()
			out, err := r.Submit(context.Background(), request(id, 4), sink)
			if err != nil {
				t.Fatal(err)
			}

			if len(p.Calls()) != 1 {
				t.Errorf("calls = %d, want 1", len(p.Calls()))
			}
			if out.State != StateFailed || out.Failed != 1 {
				t.Errorf("outcome = %+v", out)
			}
			var genErr *model.GenerationError
			if !errors.As(out.Err, &genErr) {
				t.Errorf("Err = %v, want GenerationError", out.Err)
			}
			if sink.count("failed") != 1 || sink.count("started") != 1 {
				t.Errorf("events = %+v", sink.events)
			}
		})
	}
}

func TestSequentialStopsAtFailure(t *testing.T) {
	var calls atomic.Int32
	p := testutil.NewMockProvider("ollama")
	p.StreamGenerateFunc = func(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
		if calls.Add(1) == 2 {
			return errors.New("model unloaded")
		}
		onDone(model.GenerateResponse{Done: true})
		return nil
	}

	r := NewRunner(testutil.MockResolver{"ollama": p})
	out, _ := r.Submit(context.Background(), request("ollama", 4), newRecordingSink())
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if out.Completed != 1 || out.Failed != 1 || out.State != StateFailed {
		t.Errorf("outcome = %+v", out)
	}
}

func TestConcurrentFailureLeavesSiblings(t *testing.T) {
	var calls atomic.Int32
	p := testutil.NewMockProvider("grok")
	p.StreamGenerateFunc = func(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
		if calls.Add(1) == 3 {
			return errors.New("rate limited")
		}
		onDone(model.GenerateResponse{Done: true})
		return nil
	}

	r := NewRunner(testutil.MockResolver{"grok": p})
	out, _ := r.Submit(context.Background(), request("grok", 4), newRecordingSink())
	if out.Completed != 3 || out.Failed != 1 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestSubmitWhileGeneratingCancels(t *testing.T) {
	p := testutil.NewMockProvider("openai")
	p.StreamGenerateFunc = func(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
		onChunk("partial")
		<-ctx.Done()
		onChunk("late")
		return model.Cancelled(ctx)
	}

	r := NewRunner(testutil.MockResolver{"openai": p})
	sink := newRecordingSink()

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := r.Submit(context.Background(), request("openai", 3), sink)
		done <- result{out, err}
	}()

	select {
	case <-sink.chunks:
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk received")
	}
	if r.State() != StateGenerating {
		t.Fatalf("state = %s, want generating", r.State())
	}

	toggle, err := r.Submit(context.Background(), request("openai", 3), sink)
	if err != nil {
		t.Fatal(err)
	}
	if !toggle.Toggled {
		t.Error("second submit should toggle")
	}

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not stop after cancel")
	}

	if res.out.State != StateCancelled {
		t.Errorf("state = %s, want cancelled", res.out.State)
	}
	if sink.count("failed") != 0 {
		t.Error("cancellation must not be reported as a failure")
	}
	if sink.count("cancelled") != 1 {
		t.Errorf("cancelled events = %d, want 1", sink.count("cancelled"))
	}
	if sink.count("chunk") != 1 {
		t.Errorf("chunks = %d, want only the one before cancel", sink.count("chunk"))
	}
	if len(p.Calls()) != 1 {
		t.Errorf("calls = %d, later panels must not start", len(p.Calls()))
	}
	if r.State() != StateIdle {
		t.Errorf("state = %s, want idle", r.State())
	}
}

func TestFinishedPanelSurvivesLateError(t *testing.T) {
	tests := []struct {
		name string
		late func(ctx context.Context, r *Runner) error
	}{
		{
			name: "cancelled after onDone",
			late: func(ctx context.Context, r *Runner) error {
				r.Cancel()
				<-ctx.Done()
				return model.Cancelled(ctx)
			},
		},
		{
			name: "read error after onDone",
			late: func(ctx context.Context, r *Runner) error {
				return errors.New("connection reset")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memRecorder{}
			p := testutil.NewMockProvider("openai")
			var r *Runner
			p.StreamGenerateFunc = func(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
				onChunk("all of it")
				onDone(model.GenerateResponse{Done: true, EvalCount: 3})
				return tt.late(ctx, r)
			}
			r = NewRunner(testutil.MockResolver{"openai": p}, WithRecorder(rec))

			sink := newRecordingSink()
			out, err := r.Submit(context.Background(), request("openai", 1), sink)
			if err != nil {
				t.Fatal(err)
			}
			if out.State != StateCompleted || out.Completed != 1 || out.Cancelled != 0 || out.Failed != 0 {
				t.Errorf("outcome = %+v", out)
			}
			if sink.count("done") != 1 || sink.count("cancelled") != 0 || sink.count("failed") != 0 {
				t.Errorf("events = %+v", sink.events)
			}
			if len(rec.gens) != 1 || rec.gens[0].Response != "all of it" || rec.gens[0].CompletionTokens != 3 {
				t.Errorf("recorded = %+v", rec.gens)
			}
		})
	}
}

func TestCancelWhenIdle(t *testing.T) {
	r := NewRunner(testutil.MockResolver{})
	if r.Cancel() {
		t.Error("Cancel on an idle runner should report false")
	}
}

func TestUnknownProvider(t *testing.T) {
	r := NewRunner(testutil.MockResolver{})
	_, err := r.Submit(context.Background(), request("nope", 1), newRecordingSink())
	var nf *model.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("err = %v, want NotFoundError", err)
	}
	if r.State() != StateIdle {
		t.Errorf("state = %s", r.State())
	}
}

func TestSubmitPassesBlockSettings(t *testing.T) {
	p := testutil.NewMockProvider("gemini")
	r := NewRunner(testutil.MockResolver{"gemini": p})

	req := request("gemini", 1)
	req.Settings.Config.Model = "gemini-2.5-flash"
	req.Settings.Config.Temperature = 1.5
	req.Settings.Config.StopSequences = []string{"END"}

	sink := newRecordingSink()
	if _, err := r.Submit(context.Background(), req, sink); err != nil {
		t.Fatal(err)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	c := calls[0]
	if c.Prompt != "hello" || c.Model != "gemini-2.5-flash" || c.Opts.Temperature != 1.5 || c.Opts.Stop[0] != "END" {
		t.Errorf("call = %+v", c)
	}
	if sink.count("done") != 1 {
		t.Errorf("events = %+v", sink.events)
	}
}

func TestNumResponsesClamped(t *testing.T) {
	p := testutil.NewMockProvider("kimi")
	r := NewRunner(testutil.MockResolver{"kimi": p})
	out, _ := r.Submit(context.Background(), request("kimi", 50), newRecordingSink())
	if out.Panels != block.MaxResponses || len(p.Calls()) != block.MaxResponses {
		t.Errorf("panels = %d, calls = %d", out.Panels, len(p.Calls()))
	}
}

type memRecorder struct {
	mu   sync.Mutex
	gens []storage.Generation
}

func (m *memRecorder) Record(g *storage.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens = append(m.gens, *g)
	return nil
}

func TestRecorder(t *testing.T) {
	rec := &memRecorder{}
	p := testutil.NewMockProvider("openai")
	r := NewRunner(testutil.MockResolver{"openai": p}, WithRecorder(rec))

	out, err := r.Submit(context.Background(), request("openai", 2), newRecordingSink())
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.gens) != 2 {
		t.Fatalf("recorded %d, want 2", len(rec.gens))
	}
	for _, g := range rec.gens {
		if g.BatchID != out.BatchID || g.Response != "Mock response" || g.Provider != "openai" || g.Document != "notes.md" {
			t.Errorf("generation = %+v", g)
		}
	}
}

func TestWithSequentialProviders(t *testing.T) {
	r := NewRunner(testutil.MockResolver{}, WithSequentialProviders("glm"))
	if !r.Sequential("glm") || r.Sequential("ollama") {
		t.Error("sequential set not replaced")
	}
}

func TestWriterSink(t *testing.T) {
	t.Run("single panel streams", func(t *testing.T) {
		var buf bytes.Buffer
		p := testutil.NewMockProvider("openai")
		r := NewRunner(testutil.MockResolver{"openai": p})
		if _, err := r.Submit(context.Background(), request("openai", 1), NewWriterSink(&buf, 1)); err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(buf.String(), "Mock response\n\n[2 tkn | ") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("panels are not interleaved", func(t *testing.T) {
		var buf bytes.Buffer
		p := testutil.NewMockProvider("openai")
		r := NewRunner(testutil.MockResolver{"openai": p})
		if _, err := r.Submit(context.Background(), request("openai", 3), NewWriterSink(&buf, 3)); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for i := 1; i <= 3; i++ {
			if !strings.Contains(out, fmt.Sprintf("=== Response %d/3 ===\nMock response\n", i)) {
				t.Errorf("missing panel %d in %q", i, out)
			}
		}
	})
}

func TestStateString(t *testing.T) {
	if StateCancelled.String() != "cancelled" || State(42).String() != "unknown" {
		t.Error("unexpected State strings")
	}
}
