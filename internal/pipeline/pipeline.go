// Package pipeline runs one submission through the shared engine and renders
// the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"annotation-backend/internal/annotation"
	"annotation-backend/internal/engine"
	"annotation-backend/internal/render"
	"annotation-backend/internal/shared/metrics"
)

// ErrNoInput is returned when a submission carries neither text nor a file.
var ErrNoInput = errors.New("no input provided")

// Kind says where a submission's text came from.
type Kind int

const (
	SubmissionText Kind = iota + 1
	SubmissionFile
)

func (k Kind) String() string {
	switch k {
	case SubmissionText:
		return "text"
	case SubmissionFile:
		return "file"
	default:
		return "none"
	}
}

// Submission is one document to annotate. Text holds the document body for
// both kinds; FileName is set only for file submissions.
type Submission struct {
	Kind     Kind
	Text     string
	FileName string
}

// TextSubmission wraps directly posted text.
func TextSubmission(text string) Submission {
	return Submission{Kind: SubmissionText, Text: text}
}

// FileSubmission wraps text extracted from an uploaded file.
func FileSubmission(fileName, text string) Submission {
	return Submission{Kind: SubmissionFile, Text: text, FileName: fileName}
}

// Validate reports ErrNoInput for empty submissions.
func (s Submission) Validate() error {
	switch s.Kind {
	case SubmissionText:
		if strings.TrimSpace(s.Text) == "" {
			return fmt.Errorf("%w: text is empty", ErrNoInput)
		}
	case SubmissionFile:
		if strings.TrimSpace(s.FileName) == "" {
			return fmt.Errorf("%w: file has no name", ErrNoInput)
		}
	default:
		return ErrNoInput
	}
	return nil
}

// Output is a rendered document plus the numbers that went into it.
type Output struct {
	XML           []byte
	Metadata      render.Metadata
	SyntaxCount   int
	SemanticCount int
}

// Processor drives the engine manager for single documents.
type Processor struct {
	manager *engine.Manager
	now     func() time.Time
}

// New creates a processor around manager.
func New(manager *engine.Manager) *Processor {
	return &Processor{manager: manager, now: time.Now}
}

// Manager exposes the engine manager for status reporting.
func (p *Processor) Manager() *engine.Manager { return p.manager }

// Process annotates the submission and renders the XML document. The engine
// is held only while annotating and collecting.
func (p *Processor) Process(ctx context.Context, sub Submission) (Output, error) {
	if err := sub.Validate(); err != nil {
		return Output{}, err
	}
	result, meta, err := p.analyze(ctx, sub)
	if err != nil {
		return Output{}, err
	}
	data, err := render.Marshal(render.Document{Metadata: meta, Result: result})
	if err != nil {
		return Output{}, fmt.Errorf("render output: %w", err)
	}
	return Output{
		XML:           data,
		Metadata:      meta,
		SyntaxCount:   result.SyntaxCount(),
		SemanticCount: result.SemanticCount(),
	}, nil
}

func (p *Processor) analyze(ctx context.Context, sub Submission) (annotation.Result, render.Metadata, error) {
	h, err := p.manager.Acquire(ctx)
	if err != nil {
		return annotation.Result{}, render.Metadata{}, err
	}
	defer h.Release()

	cas := engine.NewCAS(sub.Text)
	start := p.now()
	if err := h.Process(ctx, cas); err != nil {
		return annotation.Result{}, render.Metadata{}, err
	}
	parse := p.now().Sub(start)
	metrics.ObserveAnnotationParseMs(float64(parse.Microseconds()) / 1000.0)

	meta := render.Metadata{
		SourceText:   sub.Text,
		SetupSeconds: h.SetupSeconds(),
		Reused:       h.Reused(),
		ParseSeconds: parse.Seconds(),
	}
	if sub.Kind == SubmissionFile {
		meta.FileName = sub.FileName
	}
	return annotation.Collect(cas), meta, nil
}
