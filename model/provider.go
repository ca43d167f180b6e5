package model

import (
	"context"
)

// Provider abstracts an LLM backend (local Ollama or an OpenAI-compatible
// cloud API) behind one streaming contract.
//
// This interface is defined in the model package (not provider package) to avoid
// import cycles: the generation and ui packages depend on it without importing
// the concrete implementations.
type Provider interface {
	// ID returns the stable registry key ("ollama", "openai", ...).
	ID() string

	// Name returns the display name.
	Name() string

	// ListModels returns the selectable models. Cloud providers never fail
	// here; they fall back to their curated list and explain why in
	// ModelList.Notice.
	ListModels(ctx context.Context) (ModelList, error)

	// StreamGenerate sends one prompt and streams the answer. onChunk gets
	// every non-empty text fragment in arrival order. onDone fires at most
	// once, and only on success. A cancelled ctx yields an error matching
	// ErrCancelled and no further callbacks.
	StreamGenerate(ctx context.Context, prompt, model string, opts GenerateOptions, onChunk ChunkFunc, onDone DoneFunc) error
}

type ChunkFunc func(chunk string)

type DoneFunc func(res GenerateResponse)
