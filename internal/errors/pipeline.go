package errors

import "fmt"

// Pipeline stage names used in PipelineError.
const (
	StageGather     = "gather"
	StageSynthesize = "synthesize"
)

// PipelineError reports the failure of one research pipeline stage. It is
// retryable: the task executor decides between a new attempt and terminal
// failure based on the job's remaining retry budget.
type PipelineError struct {
	// Stage is the pipeline stage that failed, StageGather or StageSynthesize.
	Stage string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps a stage failure.
func NewPipelineError(stage string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Err: err}
}
