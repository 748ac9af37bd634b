package core

import (
	"context"
	"time"

	"github.com/chainscope/chainscope/internal/domain/model"
	"github.com/chainscope/chainscope/internal/domain/research"
)

// This file contains repository and capability interface definitions (ports
// in hexagonal architecture). These interfaces define the contracts between
// the service layer, the data layer, and the external research providers.
// Service implementations should depend on these interfaces, not concrete
// implementations.

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	UpdateProgress(ctx context.Context, jobID string, progress int) (bool, error)
	Complete(ctx context.Context, jobID, reportID string) (bool, error)
	Fail(ctx context.Context, jobID, errMsg string) (bool, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	Stats(ctx context.Context) (*model.JobStats, error)
}

// ReportRepository defines the interface for report data operations.
// Reports are write-once; there is no update operation.
type ReportRepository interface {
	Create(ctx context.Context, req *CreateReportRequest) (*model.Report, error)
	GetByID(ctx context.Context, id string) (*model.Report, error)
}

// CreateReportRequest groups the fields persisted for a new report.
type CreateReportRequest struct {
	Topic    string
	Findings *research.Findings
}

// EvidenceSearcher is the evidence-collection capability backing the gather
// stage. Implementations are network clients; failures and empty result
// sets are both reported as errors.
type EvidenceSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]research.Evidence, error)
}

// FindingsSynthesizer is the structured-synthesis capability backing the
// synthesize stage. Implementations must return output conforming to the
// Findings shape or an error.
type FindingsSynthesizer interface {
	Synthesize(ctx context.Context, topic string, evidence []research.Evidence) (*research.Findings, error)
}

// ReportCache defines the cache operations used by the report read path.
type ReportCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count ≤3.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for job cleanup operations.
type ReaperRepository interface {
	// RequeueExpiredLeases returns processing jobs whose lease expired to the
	// pending queue, counting the requeue against the retry budget. Returns
	// the number of jobs requeued.
	RequeueExpiredLeases(ctx context.Context) (int64, error)

	// FailStalePendingJobs marks pending jobs older than maxAge as failed.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs marked as failed.
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldJobs deletes jobs with the given status older than maxAge.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs deleted.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}
