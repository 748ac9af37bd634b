package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainscope/chainscope/internal/core"
	"github.com/chainscope/chainscope/internal/data"
	domainjob "github.com/chainscope/chainscope/internal/domain/job"
	"github.com/chainscope/chainscope/internal/domain/model"
	apperrors "github.com/chainscope/chainscope/internal/errors"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	DefaultLease    time.Duration             // Required: default lease duration for jobs
	Logger          *slog.Logger              // Optional: structured logger
	LeasePolicy     *domainjob.LeasePolicy    // Optional: override default lease policy
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
}

// JobService provides business logic for research job operations.
//
// This service manages:
// - Job submission, status, cancellation, and manual re-runs
// - Job reservation and lease management for the worker pool
// - Pub/sub notification system for job availability
// - Graceful shutdown of notification listeners.
type JobService struct {
	repo        core.JobRepository
	leasePolicy *domainjob.LeasePolicy
	notifier    domainjob.Notifier
	logger      *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized",
			"default_lease", leasePolicy.Default(),
		)
	}

	return &JobService{
		repo:        opts.Repo,
		leasePolicy: leasePolicy,
		notifier:    notifier,
		logger:      logger,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Submit creates a manually requested research job for the given topic.
// Manual jobs rank above scheduled ones in the queue.
func (s *JobService) Submit(ctx context.Context, topic string) (*model.Job, error) {
	req := &model.CreateJobRequest{
		Topic:    topic,
		Kind:     model.JobKindManual,
		Priority: 50,
	}
	return s.Create(ctx, req)
}

// Retry creates a fresh job for the topic of an existing terminal job. The
// new job carries kind=retry and its own full retry budget; the original job
// is left untouched.
func (s *JobService) Retry(ctx context.Context, id string) (*model.Job, error) {
	prior, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	if !prior.Status.Terminal() {
		return nil, apperrors.Validation("only finished jobs can be re-run")
	}

	req := &model.CreateJobRequest{
		Topic:    prior.Topic,
		Kind:     model.JobKindRetry,
		Priority: 50,
	}
	return s.Create(ctx, req)
}

// Create creates a new job with the given request parameters.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(
			ctx,
			"job created",
			"id",
			job.ID,
			"topic",
			job.Topic,
			"kind",
			job.Kind,
			"status",
			job.Status,
		)
	}

	return job, nil
}

// ReserveNext reserves the next available job for processing.
func (s *JobService) ReserveNext(
	ctx context.Context,
	lease time.Duration,
) (*model.Job, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", decision.Requested)
	}

	job, err := s.repo.ReserveNext(ctx, decision.Seconds)
	if err != nil {
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(
			ctx,
			"job reserved",
			"id",
			job.ID,
			"topic",
			job.Topic,
			"lease_seconds",
			decision.Seconds,
		)
	}

	return job, nil
}

// Subscribe creates a subscription for job availability notifications.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *JobService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// Heartbeat extends the lease on a job to indicate it's still being processed.
func (s *JobService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	decision := s.leasePolicy.Resolve(extend)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second heartbeat duration to 1 second",
			"requested_duration", decision.Requested,
			"job_id", id)
	}

	updated, err := s.repo.Heartbeat(ctx, id, decision.Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}

	if s.logger != nil && updated {
		s.logger.DebugContext(ctx, "job heartbeat updated", "id", id, "extend_seconds", decision.Seconds)
	}

	return updated, nil
}

// UpdateProgress raises a processing job's progress checkpoint. Returns
// false when the job is no longer processing and the write was discarded.
func (s *JobService) UpdateProgress(ctx context.Context, id string, progress int) (bool, error) {
	updated, err := s.repo.UpdateProgress(ctx, id, progress)
	if err != nil {
		return false, fmt.Errorf("update progress for job %s: %w", id, err)
	}

	if s.logger != nil && !updated {
		s.logger.DebugContext(ctx, "progress update skipped, job no longer processing",
			"id", id, "progress", progress)
	}

	return updated, nil
}

// Complete marks a job as completed and attaches its report. Returns false
// when the job left the processing state mid-flight and the result was
// discarded.
func (s *JobService) Complete(ctx context.Context, id, reportID string) (bool, error) {
	completed, err := s.repo.Complete(ctx, id, reportID)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}

	if s.logger != nil && completed {
		s.logger.DebugContext(ctx, "job completed", "id", id, "report_id", reportID)
	}

	return completed, nil
}

// Fail records a failed attempt for a job. The repository decides between a
// retry attempt and terminal failure based on the remaining budget.
func (s *JobService) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	if errMsg == "" {
		return false, errors.New("error message required")
	}

	failed, err := s.repo.Fail(ctx, id, errMsg)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", id, err)
	}

	if s.logger != nil && failed {
		s.logger.DebugContext(ctx, "job attempt failed", "id", id, "error", errMsg)
	}

	return failed, nil
}

// Cancel requests cancellation of a pending or processing job. Best-effort:
// an in-flight attempt finishes its external calls and its result is
// discarded at finalize time.
func (s *JobService) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.Validation("job id is required")
	}

	cancelled, err := s.repo.Cancel(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return apperrors.NotFoundf("job %s not found", id)
		}
		return fmt.Errorf("cancel job %s: %w", id, err)
	}

	if !cancelled {
		job, getErr := s.repo.GetByID(ctx, id)
		if getErr != nil {
			if errors.Is(getErr, data.ErrJobNotFound) {
				return apperrors.NotFoundf("job %s not found", id)
			}
			return fmt.Errorf("re-check job %s after cancel: %w", id, getErr)
		}
		return apperrors.Conflict(fmt.Sprintf("job %s is already %s", id, job.Status))
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job cancelled", "id", id)
	}

	return nil
}

// Stats returns counts of jobs in each lifecycle state.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return stats, nil
}

// GetStatus returns the client-visible status for a specific job.
func (s *JobService) GetStatus(ctx context.Context, id string) (*model.JobStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	return &model.JobStatusResponse{
		ID:           job.ID,
		Topic:        job.Topic,
		Kind:         job.Kind,
		Status:       job.Status,
		Progress:     job.Progress,
		RetryCount:   job.RetryCount,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		ErrorMessage: job.ErrorMessage,
		ReportID:     job.ReportID,
	}, nil
}

// GetByID returns a job by its ID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// StopAllListeners stops all active job notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *JobService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all job listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
