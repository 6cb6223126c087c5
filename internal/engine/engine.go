package engine

import (
	"context"
	"errors"
)

var (
	// ErrConstructionFailed is returned when the engine could not be built.
	// The manager stays uninitialized and the next caller retries.
	ErrConstructionFailed = errors.New("engine construction failed")
	// ErrProcessingFailed is returned when the engine failed on one document.
	ErrProcessingFailed = errors.New("engine processing failed")
	// ErrLockTimeout is returned when waiting for the engine was cut short.
	ErrLockTimeout = errors.New("engine lock wait timed out")
)

// Engine annotates documents. Implementations need not be reentrant; the
// Manager never calls Process concurrently on one instance.
type Engine interface {
	Process(ctx context.Context, cas *CAS) error
}

// Factory constructs an engine. Construction may be slow.
type Factory func(ctx context.Context) (Engine, error)

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, cas *CAS) error

func (f EngineFunc) Process(ctx context.Context, cas *CAS) error { return f(ctx, cas) }
