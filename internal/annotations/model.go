package annotations

import "time"

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Submission kinds as persisted.
const (
	KindText = "text"
	KindFile = "file"
)

// Run is one annotation request and its outcome.
type Run struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Kind          string     `json:"kind"`
	FileName      string     `json:"fileName,omitempty"`
	SourceKey     string     `json:"-"`
	SourceType    string     `json:"sourceType,omitempty"`
	OutputKey     string     `json:"-"`
	Reused        bool       `json:"reused"`
	SetupSeconds  float64    `json:"setupSeconds"`
	ParseSeconds  float64    `json:"parseSeconds"`
	SyntaxCount   int        `json:"syntaxCount"`
	SemanticCount int        `json:"semanticCount"`
	ErrorCode     *string    `json:"errorCode,omitempty"`
	ErrorMessage  *string    `json:"errorMessage,omitempty"`
	Retryable     *bool      `json:"retryable,omitempty"`
	RequestID     string     `json:"requestId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Completion carries the numbers recorded when a run succeeds.
type Completion struct {
	OutputKey     string
	Reused        bool
	SetupSeconds  float64
	ParseSeconds  float64
	SyntaxCount   int
	SemanticCount int
}

// Failure is the classified reason a run failed.
type Failure struct {
	Code      string
	Message   string
	Retryable bool
}

// Claimable reports whether a worker may start processing the run.
func (r Run) Claimable() bool {
	switch r.Status {
	case StatusQueued:
		return true
	case StatusFailed:
		return r.Retryable != nil && *r.Retryable
	default:
		return false
	}
}
