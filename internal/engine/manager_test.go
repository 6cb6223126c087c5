package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"annotation-backend/internal/engine"
	"annotation-backend/internal/engine/enginetest"
)

func TestAcquireReportsReuseAfterFirstConstruction(t *testing.T) {
	var built atomic.Int32
	m := engine.NewManager(enginetest.Factory(&enginetest.Scripted{}, &built))

	for i, wantReused := range []bool{false, true, true} {
		h, err := m.Acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if h.Reused() != wantReused {
			t.Fatalf("acquire %d reused = %v, want %v", i, h.Reused(), wantReused)
		}
		if err := h.Process(context.Background(), engine.NewCAS("text")); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
		h.Release()
	}
	if built.Load() != 1 {
		t.Fatalf("factory called %d times, want 1", built.Load())
	}
	if st := m.Status(); !st.Initialized || st.Constructions != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestSetupSecondsKeptAcrossReuse(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	factory := func(ctx context.Context) (engine.Engine, error) {
		mu.Lock()
		now = now.Add(1500 * time.Millisecond)
		mu.Unlock()
		return &enginetest.Scripted{}, nil
	}
	m := engine.NewManager(factory, engine.WithClock(clock))

	for i := 0; i < 2; i++ {
		h, err := m.Acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if got := h.SetupSeconds(); got != 1.5 {
			t.Fatalf("acquire %d setup seconds = %v, want 1.5", i, got)
		}
		h.Release()
	}
}

func TestConstructionFailureLeavesManagerRetryable(t *testing.T) {
	attempts := 0
	factory := func(ctx context.Context) (engine.Engine, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("dictionary missing")
		}
		return &enginetest.Scripted{}, nil
	}
	m := engine.NewManager(factory)

	_, err := m.Acquire(context.Background())
	if !errors.Is(err, engine.ErrConstructionFailed) {
		t.Fatalf("expected ErrConstructionFailed, got %v", err)
	}
	if st := m.Status(); st.Initialized || st.ConstructionFailures != 1 || st.LastError == "" {
		t.Fatalf("unexpected status after failure %+v", st)
	}

	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("retry acquire: %v", err)
	}
	defer h.Release()
	if h.Reused() {
		t.Fatalf("engine built on retry must not report reuse")
	}
}

func TestConstructionPanicIsReported(t *testing.T) {
	m := engine.NewManager(func(ctx context.Context) (engine.Engine, error) {
		panic("boom")
	})
	if _, err := m.Acquire(context.Background()); !errors.Is(err, engine.ErrConstructionFailed) {
		t.Fatalf("expected ErrConstructionFailed, got %v", err)
	}
	// The lock must have been released.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := m.Acquire(ctx); errors.Is(err, engine.ErrLockTimeout) {
		t.Fatalf("lock leaked after failed construction")
	}
}

func TestProcessFailureKeepsEngine(t *testing.T) {
	calls := 0
	eng := &enginetest.Scripted{Annotate: func(cas *engine.CAS) error {
		calls++
		if calls == 1 {
			return errors.New("parser exploded")
		}
		return nil
	}}
	m := engine.NewManager(enginetest.Factory(eng, nil))

	err := m.Do(context.Background(), func(h *engine.Handle) error {
		return h.Process(context.Background(), engine.NewCAS("a"))
	})
	if !errors.Is(err, engine.ErrProcessingFailed) {
		t.Fatalf("expected ErrProcessingFailed, got %v", err)
	}
	err = m.Do(context.Background(), func(h *engine.Handle) error {
		if !h.Reused() {
			t.Fatalf("engine should be reused after a processing failure")
		}
		return h.Process(context.Background(), engine.NewCAS("b"))
	})
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
}

func TestProcessRecoversEnginePanic(t *testing.T) {
	eng := engine.EngineFunc(func(ctx context.Context, cas *engine.CAS) error {
		panic("nil map")
	})
	m := engine.NewManager(enginetest.Factory(eng, nil))
	err := m.Do(context.Background(), func(h *engine.Handle) error {
		return h.Process(context.Background(), engine.NewCAS("x"))
	})
	if !errors.Is(err, engine.ErrProcessingFailed) {
		t.Fatalf("expected ErrProcessingFailed, got %v", err)
	}
}

func TestConcurrentCallsNeverOverlap(t *testing.T) {
	fake := &enginetest.Reentrancy{Hold: 5 * time.Millisecond}
	m := engine.NewManager(enginetest.Factory(fake, nil))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Do(context.Background(), func(h *engine.Handle) error {
				return h.Process(context.Background(), engine.NewCAS("doc"))
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if fake.Calls() != workers {
		t.Fatalf("calls = %d, want %d", fake.Calls(), workers)
	}
	if fake.Violations() != 0 {
		t.Fatalf("engine entered reentrantly %d times", fake.Violations())
	}
}

func TestLockTimeout(t *testing.T) {
	m := engine.NewManager(enginetest.Factory(&enginetest.Scripted{}, nil), engine.WithLockTimeout(20*time.Millisecond))

	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Release()

	_, err = m.Acquire(context.Background())
	if !errors.Is(err, engine.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
}

func TestAcquireHonorsCallerContext(t *testing.T) {
	m := engine.NewManager(enginetest.Factory(&enginetest.Scripted{}, nil))
	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(ctx)
		done <- err
	}()
	cancel()
	if err := <-done; !errors.Is(err, engine.ErrLockTimeout) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled lock wait, got %v", err)
	}
	h.Release()
	h.Release()

	h2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	h2.Release()
}

func TestReleasedHandleRejectsProcess(t *testing.T) {
	m := engine.NewManager(enginetest.Factory(&enginetest.Scripted{}, nil))
	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h.Release()
	if err := h.Process(context.Background(), engine.NewCAS("x")); !errors.Is(err, engine.ErrProcessingFailed) {
		t.Fatalf("expected ErrProcessingFailed, got %v", err)
	}
}

type closingEngine struct {
	enginetest.Scripted
	closed bool
}

func (c *closingEngine) Close() error {
	c.closed = true
	return nil
}

func TestCloseDropsEngine(t *testing.T) {
	eng := &closingEngine{}
	var built atomic.Int32
	m := engine.NewManager(enginetest.Factory(eng, &built))
	if err := m.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !eng.closed {
		t.Fatalf("expected engine Close to be called")
	}
	if m.Status().Initialized {
		t.Fatalf("expected manager to be uninitialized after Close")
	}
	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer h.Release()
	if h.Reused() || built.Load() != 2 {
		t.Fatalf("expected fresh construction, reused=%v built=%d", h.Reused(), built.Load())
	}
}
