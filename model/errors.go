package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrCancelled marks a generation stopped by the caller. It is never
// reported to the user as a failure.
var ErrCancelled = errors.New("generation cancelled")

// IsCancelled reports whether err is a caller-initiated cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Cancelled wraps the context error so both ErrCancelled and the context
// cause match.
func Cancelled(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, cause)
	}
	return ErrCancelled
}

// ConnectionError means the provider could not be reached at all.
type ConnectionError struct {
	Provider string
	URL      string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to %s at %s: %v", e.Provider, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// GenerationError is a failed generation request. Message is the most
// specific description available, preferring the server's own text.
type GenerationError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned by the registry for an unknown provider id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found", e.ID)
}
