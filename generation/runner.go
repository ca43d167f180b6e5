// Package generation runs a batch of responses for one prompt block.
//
// The first response is always awaited on its own so a bad key, model or
// server fails the batch once instead of N times. The rest run one after
// another for providers that share local hardware and concurrently for
// everything else.
package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aitester/block"
	"aitester/config"
	"aitester/model"
	"aitester/storage"
)

type State int

const (
	StateIdle State = iota
	StateGenerating
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Resolver maps a provider id to a provider instance.
type Resolver interface {
	Resolve(id string) (model.Provider, error)
}

// Recorder stores finished responses.
type Recorder interface {
	Record(g *storage.Generation) error
}

// Sink receives panel events. Events for one panel arrive in order; events
// of different panels may interleave and arrive from different goroutines.
type Sink interface {
	PanelStarted(index int)
	PanelChunk(index int, text string)
	PanelDone(index int, res model.GenerateResponse)
	PanelFailed(index int, err error)
	PanelCancelled(index int)
	BatchFinished(out Outcome)
}

// Request is one submission of a block.
type Request struct {
	Settings   block.Settings
	Document   string
	BlockIndex int
}

// Outcome summarizes a finished batch. Toggled is set when the submission
// cancelled a running batch instead of starting a new one.
type Outcome struct {
	BatchID   string
	State     State
	Panels    int
	Completed int
	Failed    int
	Cancelled int
	Err       error
	Toggled   bool
}

type Option func(*Runner)

// WithRecorder stores every completed panel.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithSequentialProviders replaces the set of provider ids whose batches
// never overlap.
func WithSequentialProviders(ids ...string) Option {
	return func(r *Runner) {
		r.sequential = make(map[string]bool, len(ids))
		for _, id := range ids {
			r.sequential[id] = true
		}
	}
}

type Runner struct {
	resolver   Resolver
	recorder   Recorder
	sequential map[string]bool

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

func NewRunner(resolver Resolver, opts ...Option) *Runner {
	r := &Runner{
		resolver:   resolver,
		sequential: map[string]bool{config.ProviderOllama: true},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Sequential reports whether batches for providerID run one at a time.
func (r *Runner) Sequential(providerID string) bool {
	return r.sequential[providerID]
}

// Cancel stops the running batch. It reports whether one was running.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateGenerating || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Submit runs a batch and blocks until it ends. If a batch is already
// running, Submit cancels it and returns immediately with Toggled set.
// The only error returned is a provider that cannot be resolved; panel
// failures are reported through the sink and the Outcome.
func (r *Runner) Submit(ctx context.Context, req Request, sink Sink) (Outcome, error) {
	r.mu.Lock()
	if r.state == StateGenerating {
		r.cancel()
		r.mu.Unlock()
		return Outcome{State: StateGenerating, Toggled: true}, nil
	}

	cfg := req.Settings.Config
	p, err := r.resolver.Resolve(cfg.Provider)
	if err != nil {
		r.mu.Unlock()
		return Outcome{State: StateIdle}, err
	}

	batchCtx, cancel := context.WithCancel(ctx)
	r.state = StateGenerating
	r.cancel = cancel
	r.mu.Unlock()

	b := &batch{
		runner:   r,
		id:       uuid.New().String(),
		provider: p,
		req:      req,
		sink:     sink,
		results:  make([]panelResult, cfg.Responses()),
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[%s] batch %s started: %d responses, sequential=%v",
			p.ID(), b.id, len(b.results), r.Sequential(p.ID()))
	}

	b.run(batchCtx)
	cancel()

	out := b.outcome()
	r.mu.Lock()
	r.state = StateIdle
	r.cancel = nil
	r.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[%s] batch %s finished: %s (%d ok, %d failed, %d cancelled)",
			p.ID(), b.id, out.State, out.Completed, out.Failed, out.Cancelled)
	}

	sink.BatchFinished(out)
	return out, nil
}

type panelStatus int

const (
	panelPending panelStatus = iota
	panelCompleted
	panelFailed
	panelCancelled
)

type panelResult struct {
	status panelStatus
	err    error
}

type batch struct {
	runner   *Runner
	id       string
	provider model.Provider
	req      Request
	sink     Sink
	results  []panelResult
}

func (b *batch) run(ctx context.Context) {
	if !b.runPanel(ctx, 0) {
		return
	}

	if b.runner.Sequential(b.provider.ID()) {
		for i := 1; i < len(b.results); i++ {
			if !b.runPanel(ctx, i) {
				return
			}
		}
		return
	}

	var wg sync.WaitGroup
	for i := 1; i < len(b.results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.runPanel(ctx, i)
		}(i)
	}
	wg.Wait()
}

// runPanel streams one response and reports whether it completed.
func (b *batch) runPanel(ctx context.Context, i int) bool {
	if ctx.Err() != nil {
		b.results[i] = panelResult{status: panelCancelled}
		b.sink.PanelCancelled(i)
		return false
	}

	b.sink.PanelStarted(i)

	cfg := b.req.Settings.Config
	var text strings.Builder
	var final *model.GenerateResponse
	start := time.Now()

	err := b.provider.StreamGenerate(ctx, b.req.Settings.Prompt, cfg.Model, cfg.Options(),
		func(chunk string) {
			if ctx.Err() != nil {
				return
			}
			text.WriteString(chunk)
			b.sink.PanelChunk(i, chunk)
		},
		func(res model.GenerateResponse) {
			if final == nil {
				final = &res
			}
		},
	)

	// A stream that delivered its final response before the cancel landed
	// still counts, whatever the provider returned afterwards.
	switch {
	case final != nil:
		if err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[%s] panel %d finished, ignoring late error: %v", b.provider.ID(), i, err)
		}
	case model.IsCancelled(err) || ctx.Err() != nil:
		b.results[i] = panelResult{status: panelCancelled}
		b.sink.PanelCancelled(i)
		return false
	case err != nil:
		if config.DebugLog != nil {
			config.DebugLog.Printf("[%s] panel %d failed: %v", b.provider.ID(), i, err)
		}
		b.results[i] = panelResult{status: panelFailed, err: err}
		b.sink.PanelFailed(i, err)
		return false
	}

	// a nil error without onDone is a finished stream too
	res := model.GenerateResponse{Done: true, Model: cfg.Model, TotalDuration: time.Since(start)}
	if final != nil {
		res = *final
	}
	res.Response = text.String()

	b.results[i] = panelResult{status: panelCompleted}
	b.sink.PanelDone(i, res)
	b.record(res)
	return true
}

func (b *batch) record(res model.GenerateResponse) {
	if b.runner.recorder == nil {
		return
	}
	modelName := res.Model
	if modelName == "" {
		modelName = b.req.Settings.Config.Model
	}
	err := b.runner.recorder.Record(&storage.Generation{
		BatchID:          b.id,
		Document:         b.req.Document,
		BlockIndex:       b.req.BlockIndex,
		Provider:         b.provider.ID(),
		Model:            modelName,
		Prompt:           b.req.Settings.Prompt,
		Response:         res.Response,
		PromptTokens:     res.PromptEvalCount,
		CompletionTokens: res.EvalCount,
		Duration:         res.TotalDuration,
	})
	if err != nil {
		config.Log().Warn().Err(err).Str("batch", b.id).Msg("failed to record generation")
	}
}

func (b *batch) outcome() Outcome {
	out := Outcome{BatchID: b.id, Panels: len(b.results)}
	var errs []error
	for _, r := range b.results {
		switch r.status {
		case panelCompleted:
			out.Completed++
		case panelFailed:
			out.Failed++
			errs = append(errs, r.err)
		case panelCancelled:
			out.Cancelled++
		}
	}

	switch {
	case out.Cancelled > 0:
		out.State = StateCancelled
	case out.Failed > 0:
		out.State = StateFailed
	default:
		out.State = StateCompleted
	}
	out.Err = errors.Join(errs...)
	return out
}
