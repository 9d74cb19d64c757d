package domain

import "time"

// JobStatus tracks the lifecycle of a single conversion job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether a status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// TransposeRequest selects one of two mutually exclusive transposition modes.
// The zero value means no transposition was requested.
type TransposeRequest struct {
	Semitones *int   `json:"semitones,omitempty"`
	FromKey   string `json:"fromKey,omitempty"`
	ToKey     string `json:"toKey,omitempty"`
}

// IsZero reports whether neither representation is populated.
func (r TransposeRequest) IsZero() bool {
	return r.Semitones == nil && r.FromKey == "" && r.ToKey == ""
}

// Job identifies one end-to-end conversion request and its artifacts.
type Job struct {
	ID                 string           `json:"id"`
	Status             JobStatus        `json:"status"`
	Progress           int              `json:"progress"`
	SourceImagePath    string           `json:"sourceImagePath"`
	SymbolicScorePath  string           `json:"symbolicScorePath,omitempty"`
	RenderedOutputPath string           `json:"renderedOutputPath,omitempty"`
	Transpose          TransposeRequest `json:"transpose"`
	ErrorMessage       string           `json:"errorMessage,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	CompletedAt        *time.Time       `json:"completedAt,omitempty"`
}

// StageResult is the uniform return contract for every pipeline stage.
type StageResult struct {
	Success    bool   `json:"success"`
	OutputPath string `json:"outputPath,omitempty"`
	Error      string `json:"error,omitempty"`
}
