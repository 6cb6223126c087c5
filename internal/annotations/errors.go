package annotations

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrNotClaimable is returned when a run is already processing or done.
	ErrNotClaimable = errors.New("run not claimable")
	// ErrNotReady is returned when downloading a run that has no output yet.
	ErrNotReady = errors.New("run output not ready")
)

const (
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	ErrorCodeEngineFailed      = "ENGINE_FAILED"
	ErrorCodeEngineBusy        = "ENGINE_BUSY"
	ErrorCodeStorage           = "STORAGE_ERROR"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)

// storageError marks failures of the object store or run repository.
type storageError struct {
	op  string
	err error
}

func (e *storageError) Error() string { return e.op + ": " + e.err.Error() }

func (e *storageError) Unwrap() error { return e.err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storageError{op: op, err: err}
}
