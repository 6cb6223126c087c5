package annotations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"annotation-backend/internal/engine"
	"annotation-backend/internal/extract"
	"annotation-backend/internal/pipeline"
	"annotation-backend/internal/queue"
	"annotation-backend/internal/render"
	"annotation-backend/internal/shared/metrics"
	"annotation-backend/internal/shared/storage/object"
	"annotation-backend/internal/shared/telemetry"
)

const textSourceType = "text/plain; charset=utf-8"

// Annotator runs one submission through the engine.
type Annotator interface {
	Process(ctx context.Context, sub pipeline.Submission) (pipeline.Output, error)
}

// Service contains business logic for annotation runs.
type Service struct {
	Repo     Repo
	Store    object.ObjectStore
	Pipeline Annotator
	// Queue receives asynchronous runs. When nil they are processed in a
	// background goroutine of this process.
	Queue queue.Client
	Now   func() time.Time
}

// Upload is a raw client submission. Non-blank Text wins over a file.
// Blank text and zero-byte files count as absent.
type Upload struct {
	Text        string
	FileName    string
	ContentType string
	Data        []byte
	// Namespace groups stored sources, usually the client address.
	Namespace string
}

func (u Upload) kind() string {
	switch {
	case strings.TrimSpace(u.Text) != "":
		return KindText
	case len(u.Data) > 0:
		return KindFile
	default:
		return ""
	}
}

// Outcome is the result of a synchronous annotation.
type Outcome struct {
	Output pipeline.Output
	// Run is nil when the run could not be recorded.
	Run *Run
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Annotate processes an upload immediately and records the run when a
// repository and store are configured. Recording is best effort.
func (s *Service) Annotate(ctx context.Context, u Upload) (Outcome, error) {
	sub, err := s.submission(ctx, u)
	if err != nil {
		return Outcome{}, err
	}

	metrics.IncAnnotationStarted()
	out, err := s.Pipeline.Process(ctx, sub)
	if err != nil {
		metrics.IncAnnotationFailed()
		telemetry.Warn("annotation.failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"kind":       sub.Kind.String(),
			"error":      sanitizeError(err),
		})
		return Outcome{}, err
	}
	metrics.IncAnnotationCompleted()

	outcome := Outcome{Output: out}
	if s.Repo == nil || s.Store == nil {
		return outcome, nil
	}
	run, err := s.record(ctx, u, out)
	if err != nil {
		telemetry.Warn("annotation.record_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"error":      sanitizeError(err),
		})
		return outcome, nil
	}
	outcome.Run = &run
	return outcome, nil
}

// Enqueue stores the upload and creates a queued run for later processing.
func (s *Service) Enqueue(ctx context.Context, u Upload) (Run, error) {
	kind := u.kind()
	switch {
	case kind == "":
		return Run{}, u.missingInput()
	case kind == KindFile && strings.TrimSpace(u.FileName) == "":
		return Run{}, fmt.Errorf("%w: file has no name", pipeline.ErrNoInput)
	case kind == KindFile && !extract.Supported(u.ContentType, u.FileName, u.Data):
		return Run{}, fmt.Errorf("%w: %s", extract.ErrUnsupported, extract.NormalizeMimeType(u.ContentType, u.FileName, u.Data))
	}

	run := Run{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Kind:      kind,
		RequestID: requestIDFromContext(ctx),
		CreatedAt: s.now(),
	}
	if err := s.saveSource(ctx, &run, u); err != nil {
		return Run{}, err
	}
	if err := s.Repo.Create(ctx, run); err != nil {
		s.deleteSource(ctx, run)
		return Run{}, storageErr("create run", err)
	}
	telemetry.Info("annotation.status", map[string]any{
		"request_id": run.RequestID,
		"run_id":     run.ID,
		"kind":       run.Kind,
		"status":     StatusQueued,
	})

	if s.Queue != nil {
		if err := s.Queue.Send(ctx, queue.NewMessage(run.ID, run.RequestID, run.CreatedAt)); err != nil {
			err = storageErr("enqueue run", err)
			s.failRun(ctx, run.ID, err, nil)
			return Run{}, err
		}
		return run, nil
	}

	go s.completeAsync(backgroundWithRequestID(ctx), run.ID)
	return run, nil
}

// ProcessRun claims a queued run, annotates its stored source and records
// the outcome. It returns ErrNotFound or ErrNotClaimable without touching
// the run.
func (s *Service) ProcessRun(ctx context.Context, runID string) (err error) {
	startedAt := s.now()
	if err := s.Repo.MarkProcessing(ctx, runID, startedAt); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotClaimable) {
			return err
		}
		return storageErr("mark processing", err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.failRun(ctx, runID, err, &startedAt)
		}
	}()

	run, err := s.Repo.GetByID(ctx, runID)
	if err != nil {
		err = storageErr("load run", err)
		s.failRun(ctx, runID, err, &startedAt)
		return err
	}
	metrics.IncAnnotationStarted()
	telemetry.Info("annotation.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"run_id":            run.ID,
		"status":            StatusProcessing,
		"status_transition": "queued->processing",
	})

	sub, err := s.loadSubmission(ctx, run)
	if err != nil {
		s.failRun(ctx, runID, err, &startedAt)
		return err
	}
	out, err := s.Pipeline.Process(ctx, sub)
	if err != nil {
		s.failRun(ctx, runID, err, &startedAt)
		return err
	}
	completion, err := s.saveOutput(ctx, run.ID, out)
	if err != nil {
		s.failRun(ctx, runID, err, &startedAt)
		return err
	}
	completedAt := s.now()
	if err := s.Repo.Complete(ctx, run.ID, completion, completedAt); err != nil {
		err = storageErr("complete run", err)
		s.failRun(ctx, runID, err, &startedAt)
		return err
	}

	metrics.IncAnnotationCompleted()
	telemetry.Info("annotation.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"run_id":            run.ID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"engine_reused":     completion.Reused,
		"syntax_count":      completion.SyntaxCount,
		"semantic_count":    completion.SemanticCount,
		"duration_ms":       durationMs(&startedAt, &completedAt),
	})
	return nil
}

// Get returns a run by ID.
func (s *Service) Get(ctx context.Context, runID string) (Run, error) {
	if strings.TrimSpace(runID) == "" {
		return Run{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, runID)
}

// List returns runs newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Run, error) {
	return s.Repo.List(ctx, limit, offset)
}

// Download opens the rendered document of a completed run.
func (s *Service) Download(ctx context.Context, runID string) (io.ReadCloser, Run, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, Run{}, err
	}
	if run.Status != StatusCompleted || run.OutputKey == "" {
		return nil, run, ErrNotReady
	}
	body, err := s.Store.Open(ctx, run.OutputKey)
	if err != nil {
		return nil, run, storageErr("open output", err)
	}
	return body, run, nil
}

// Retryable reports whether a failed ProcessRun may succeed on redelivery.
func Retryable(err error) bool {
	_, retryable := classifyFailure(err)
	return retryable
}

func (s *Service) completeAsync(ctx context.Context, runID string) {
	if err := s.ProcessRun(ctx, runID); err != nil {
		telemetry.Warn("annotation.async_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"run_id":     runID,
			"error":      sanitizeError(err),
		})
	}
}

func (s *Service) submission(ctx context.Context, u Upload) (pipeline.Submission, error) {
	switch u.kind() {
	case KindText:
		return pipeline.TextSubmission(u.Text), nil
	case KindFile:
		if strings.TrimSpace(u.FileName) == "" {
			return pipeline.Submission{}, fmt.Errorf("%w: file has no name", pipeline.ErrNoInput)
		}
		text, err := extract.FromUpload(ctx, u.Data, u.ContentType, u.FileName)
		if err != nil {
			return pipeline.Submission{}, err
		}
		return pipeline.FileSubmission(u.FileName, text), nil
	default:
		return pipeline.Submission{}, u.missingInput()
	}
}

func (u Upload) missingInput() error {
	if u.FileName != "" {
		return fmt.Errorf("%w: file %s is empty", pipeline.ErrNoInput, u.FileName)
	}
	return pipeline.ErrNoInput
}

func (s *Service) loadSubmission(ctx context.Context, run Run) (pipeline.Submission, error) {
	body, err := s.Store.Open(ctx, run.SourceKey)
	if err != nil {
		return pipeline.Submission{}, storageErr("open source", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return pipeline.Submission{}, storageErr("read source", err)
	}
	if run.Kind == KindText {
		return pipeline.TextSubmission(string(data)), nil
	}
	return s.submission(ctx, Upload{FileName: run.FileName, ContentType: run.SourceType, Data: data})
}

func (s *Service) saveSource(ctx context.Context, run *Run, u Upload) error {
	name, data, sourceType := "input.txt", []byte(u.Text), textSourceType
	if run.Kind == KindFile {
		name, data = u.FileName, u.Data
		sourceType = extract.NormalizeMimeType(u.ContentType, u.FileName, u.Data)
		run.FileName = u.FileName
	}
	key, _, _, err := s.Store.Save(ctx, u.Namespace, name, bytes.NewReader(data))
	if err != nil {
		return storageErr("save source", err)
	}
	run.SourceKey = key
	run.SourceType = sourceType
	return nil
}

func (s *Service) saveOutput(ctx context.Context, runID string, out pipeline.Output) (Completion, error) {
	key := outputKey(runID)
	if _, err := s.Store.SaveWithKey(ctx, key, render.ContentType, bytes.NewReader(out.XML)); err != nil {
		return Completion{}, storageErr("save output", err)
	}
	return Completion{
		OutputKey:     key,
		Reused:        out.Metadata.Reused,
		SetupSeconds:  out.Metadata.SetupSeconds,
		ParseSeconds:  out.Metadata.ParseSeconds,
		SyntaxCount:   out.SyntaxCount,
		SemanticCount: out.SemanticCount,
	}, nil
}

func (s *Service) record(ctx context.Context, u Upload, out pipeline.Output) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Status:    StatusProcessing,
		Kind:      u.kind(),
		RequestID: requestIDFromContext(ctx),
		CreatedAt: s.now(),
	}
	if err := s.saveSource(ctx, &run, u); err != nil {
		return Run{}, err
	}
	if err := s.Repo.Create(ctx, run); err != nil {
		s.deleteSource(ctx, run)
		return Run{}, storageErr("create run", err)
	}
	completion, err := s.saveOutput(ctx, run.ID, out)
	if err != nil {
		s.failRun(ctx, run.ID, err, nil)
		return Run{}, err
	}
	completedAt := s.now()
	if err := s.Repo.Complete(ctx, run.ID, completion, completedAt); err != nil {
		err = storageErr("complete run", err)
		s.failRun(ctx, run.ID, err, nil)
		return Run{}, err
	}
	return s.Repo.GetByID(ctx, run.ID)
}

func (s *Service) deleteSource(ctx context.Context, run Run) {
	if err := s.Store.Delete(context.WithoutCancel(ctx), run.SourceKey); err != nil {
		telemetry.Warn("annotation.source_cleanup_failed", map[string]any{"run_id": run.ID, "error": err.Error()})
	}
}

func (s *Service) failRun(ctx context.Context, runID string, err error, startedAt *time.Time) {
	code, retryable := classifyFailure(err)
	msg := sanitizeError(err)
	completedAt := s.now()
	if updateErr := s.Repo.Fail(context.WithoutCancel(ctx), runID, Failure{Code: code, Message: msg, Retryable: retryable}, completedAt); updateErr != nil {
		telemetry.Error("annotation.fail_update_failed", map[string]any{
			"run_id": runID,
			"error":  updateErr.Error(),
			"cause":  msg,
		})
	}
	metrics.IncAnnotationFailed()
	telemetry.Info("annotation.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"run_id":            runID,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"error_code":        code,
		"retryable":         retryable,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})
}

func outputKey(runID string) string {
	return "outputs/" + runID + ".xml"
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func classifyFailure(err error) (string, bool) {
	var se *storageError
	switch {
	case err == nil:
		return ErrorCodeInternal, false
	case errors.Is(err, pipeline.ErrNoInput), errors.Is(err, extract.ErrUnsupported):
		return ErrorCodeValidation, false
	case errors.Is(err, engine.ErrLockTimeout):
		return ErrorCodeEngineBusy, true
	case errors.Is(err, engine.ErrConstructionFailed):
		return ErrorCodeEngineUnavailable, true
	case errors.Is(err, engine.ErrProcessingFailed):
		return ErrorCodeEngineFailed, errors.Is(err, context.DeadlineExceeded)
	case errors.As(err, &se):
		return ErrorCodeStorage, !errors.Is(err, object.ErrNotFound)
	default:
		return ErrorCodeInternal, false
	}
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
		for !utf8.ValidString(msg) {
			msg = msg[:len(msg)-1]
		}
	}
	return msg
}
