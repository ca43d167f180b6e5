package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"

	"aitester/model"
)

// MockProvider implements model.Provider for testing
type MockProvider struct {
	IDValue   string
	NameValue string

	// Configurable responses
	ListModelsFunc     func(ctx context.Context) (model.ModelList, error)
	StreamGenerateFunc func(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error

	mu    sync.Mutex
	calls []GenerateCall
}

// GenerateCall records one StreamGenerate invocation.
type GenerateCall struct {
	Prompt string
	Model  string
	Opts   model.GenerateOptions
}

// NewMockProvider creates a mock provider that answers every prompt with
// "Mock response" in two chunks.
func NewMockProvider(id string) *MockProvider {
	mock := &MockProvider{IDValue: id, NameValue: id}
	mock.ListModelsFunc = mock.defaultListModels
	mock.StreamGenerateFunc = mock.defaultStreamGenerate
	return mock
}

func (m *MockProvider) defaultListModels(ctx context.Context) (model.ModelList, error) {
	return model.ModelList{Models: []model.ModelInfo{
		{ID: "mock-model-1", Name: "mock-model-1"},
		{ID: "mock-model-2", Name: "mock-model-2"},
	}}, nil
}

func (m *MockProvider) defaultStreamGenerate(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
	onChunk("Mock ")
	onChunk("response")
	onDone(model.GenerateResponse{Response: "Mock response", Done: true, Model: modelName, EvalCount: 2})
	return nil
}

func (m *MockProvider) ID() string {
	return m.IDValue
}

func (m *MockProvider) Name() string {
	return m.NameValue
}

func (m *MockProvider) ListModels(ctx context.Context) (model.ModelList, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) StreamGenerate(ctx context.Context, prompt, modelName string, opts model.GenerateOptions, onChunk model.ChunkFunc, onDone model.DoneFunc) error {
	m.mu.Lock()
	m.calls = append(m.calls, GenerateCall{Prompt: prompt, Model: modelName, Opts: opts})
	m.mu.Unlock()
	return m.StreamGenerateFunc(ctx, prompt, modelName, opts, onChunk, onDone)
}

// Calls returns every StreamGenerate invocation so far.
func (m *MockProvider) Calls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GenerateCall(nil), m.calls...)
}

// MockResolver resolves ids against a fixed set of providers.
type MockResolver map[string]model.Provider

func (r MockResolver) Resolve(id string) (model.Provider, error) {
	p, ok := r[id]
	if !ok {
		return nil, &model.NotFoundError{ID: id}
	}
	return p, nil
}

// List returns the providers ordered by id.
func (r MockResolver) List() []model.Provider {
	out := make([]model.Provider, 0, len(r))
	for _, p := range r {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.Provider) int {
		return strings.Compare(a.ID(), b.ID())
	})
	return out
}
