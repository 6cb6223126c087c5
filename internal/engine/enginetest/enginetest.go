// Package enginetest provides fake engines for tests.
package enginetest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"annotation-backend/internal/engine"
)

// Scripted is an engine that runs Annotate on every document and records
// the texts it saw.
type Scripted struct {
	Annotate func(cas *engine.CAS) error

	mu    sync.Mutex
	texts []string
}

func (s *Scripted) Process(ctx context.Context, cas *engine.CAS) error {
	s.mu.Lock()
	s.texts = append(s.texts, cas.Text())
	s.mu.Unlock()
	if s.Annotate == nil {
		return nil
	}
	return s.Annotate(cas)
}

// Texts returns the documents processed so far.
func (s *Scripted) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// Reentrancy wraps an engine and counts overlapping Process calls. Hold
// keeps each call inside the critical section for a while so overlaps
// have a chance to show up.
type Reentrancy struct {
	Inner engine.Engine
	Hold  time.Duration

	active     atomic.Int32
	calls      atomic.Int32
	violations atomic.Int32
}

func (r *Reentrancy) Process(ctx context.Context, cas *engine.CAS) error {
	if r.active.Add(1) > 1 {
		r.violations.Add(1)
	}
	defer r.active.Add(-1)
	r.calls.Add(1)

	if r.Hold > 0 {
		timer := time.NewTimer(r.Hold)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	if r.Inner == nil {
		return nil
	}
	return r.Inner.Process(ctx, cas)
}

// Calls is the number of Process calls entered.
func (r *Reentrancy) Calls() int { return int(r.calls.Load()) }

// Violations is the number of times Process was entered while another call
// was still running.
func (r *Reentrancy) Violations() int { return int(r.violations.Load()) }

// Factory returns a factory that hands out eng and counts its invocations.
func Factory(eng engine.Engine, calls *atomic.Int32) engine.Factory {
	return func(ctx context.Context) (engine.Engine, error) {
		if calls != nil {
			calls.Add(1)
		}
		return eng, nil
	}
}

// FeverText is a short document with one negated finding.
const FeverText = "Patient has no fever."

// AnnotateFever adds a token for "fever" and a negated sign/symptom mention
// over the same span, without concepts.
func AnnotateFever(cas *engine.CAS) error {
	if err := cas.Add(engine.NewToken(engine.SyntaxNamespace+"Token", 15, 20, 3)); err != nil {
		return err
	}
	return cas.Add(engine.NewMention(engine.TextSemNamespace+"SignSymptomMention", 15, 20, engine.Attributes{
		Polarity:  -1,
		Subject:   "patient",
		HistoryOf: 0,
	}))
}
