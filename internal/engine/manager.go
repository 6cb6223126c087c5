package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"annotation-backend/internal/shared/metrics"
	"annotation-backend/internal/shared/telemetry"
)

// Manager owns the single shared engine instance. It builds the engine on
// first use and lets exactly one caller hold it at a time.
type Manager struct {
	factory     Factory
	sem         *semaphore.Weighted
	lockTimeout time.Duration
	now         func() time.Time

	mu            sync.Mutex
	eng           Engine
	setup         time.Duration
	constructions int
	failures      int
	lastErr       string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLockTimeout bounds how long Acquire waits for the engine. Zero waits
// until the caller's context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lockTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a manager around factory. Nothing is built until the
// first Acquire or Warm.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory: factory,
		sem:     semaphore.NewWeighted(1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status is a point-in-time view of the manager.
type Status struct {
	Initialized          bool    `json:"initialized"`
	Constructions        int     `json:"constructions"`
	SetupSeconds         float64 `json:"setupSeconds"`
	ConstructionFailures int     `json:"constructionFailures"`
	LastError            string  `json:"lastError,omitempty"`
}

// Status reports whether the engine exists and how long it took to build.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Initialized:          m.eng != nil,
		Constructions:        m.constructions,
		SetupSeconds:         m.setup.Seconds(),
		ConstructionFailures: m.failures,
		LastError:            m.lastErr,
	}
}

// Acquire waits for exclusive use of the engine, building it if needed.
// The returned handle must be released.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	waitStart := m.now()
	lockCtx := ctx
	if m.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, m.lockTimeout)
		defer cancel()
	}
	if err := m.sem.Acquire(lockCtx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	waited := m.now().Sub(waitStart)
	metrics.ObserveEngineLockWaitMs(float64(waited.Microseconds()) / 1000.0)

	eng, reused, setup, err := m.ensure(ctx)
	if err != nil {
		m.sem.Release(1)
		return nil, err
	}
	return &Handle{m: m, eng: eng, reused: reused, setup: setup, waited: waited}, nil
}

// Do runs fn while holding the engine.
func (m *Manager) Do(ctx context.Context, fn func(h *Handle) error) error {
	h, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h)
}

// Warm builds the engine ahead of the first request.
func (m *Manager) Warm(ctx context.Context) error {
	h, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	h.Release()
	return nil
}

// Close drops the engine, closing it when it implements io.Closer. A later
// Acquire builds a fresh one.
func (m *Manager) Close(ctx context.Context) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	eng := m.eng
	m.eng = nil
	m.setup = 0
	m.mu.Unlock()

	if closer, ok := eng.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ensure must be called with the semaphore held.
func (m *Manager) ensure(ctx context.Context) (Engine, bool, time.Duration, error) {
	m.mu.Lock()
	eng, setup := m.eng, m.setup
	m.mu.Unlock()
	if eng != nil {
		return eng, true, setup, nil
	}

	start := m.now()
	eng, err := m.construct(ctx)
	elapsed := m.now().Sub(start)
	if err == nil && eng == nil {
		err = fmt.Errorf("factory returned no engine")
	}
	if err != nil {
		m.mu.Lock()
		m.failures++
		m.lastErr = err.Error()
		m.mu.Unlock()
		metrics.IncEngineConstructionFailures()
		telemetry.Error("engine.construct_failed", map[string]any{
			"error":       err.Error(),
			"duration_ms": float64(elapsed.Microseconds()) / 1000.0,
		})
		return nil, false, 0, fmt.Errorf("%w: %w", ErrConstructionFailed, err)
	}

	m.mu.Lock()
	m.eng = eng
	m.setup = elapsed
	m.constructions++
	m.lastErr = ""
	m.mu.Unlock()
	metrics.IncEngineConstructions()
	telemetry.Info("engine.construct", map[string]any{
		"setup_seconds": elapsed.Seconds(),
	})
	return eng, false, elapsed, nil
}

func (m *Manager) construct(ctx context.Context) (eng Engine, err error) {
	if m.factory == nil {
		return nil, fmt.Errorf("no engine factory configured")
	}
	defer func() {
		if r := recover(); r != nil {
			eng = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.factory(ctx)
}

// Handle is exclusive access to the shared engine.
type Handle struct {
	m        *Manager
	eng      Engine
	reused   bool
	setup    time.Duration
	waited   time.Duration
	released atomic.Bool
}

// Reused reports whether the engine existed before this acquisition.
func (h *Handle) Reused() bool { return h.reused }

// SetupSeconds is the time it took to construct the engine.
func (h *Handle) SetupSeconds() float64 { return h.setup.Seconds() }

// Waited is how long Acquire blocked on the lock.
func (h *Handle) Waited() time.Duration { return h.waited }

// Process runs the engine over cas.
func (h *Handle) Process(ctx context.Context, cas *CAS) (err error) {
	if h == nil || h.released.Load() {
		return fmt.Errorf("%w: engine handle already released", ErrProcessingFailed)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrProcessingFailed, r)
		}
	}()
	if err := h.eng.Process(ctx, cas); err != nil {
		return fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}
	return nil
}

// Release gives the engine back. Extra calls are no-ops.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	if h.released.CompareAndSwap(false, true) {
		h.m.sem.Release(1)
	}
}
