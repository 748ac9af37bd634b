// Package researchrunner provides the worker pool that executes research jobs
// through the two-stage gather and synthesize pipeline.
package researchrunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chainscope/chainscope/internal/core"
	"github.com/chainscope/chainscope/internal/data"
	"github.com/chainscope/chainscope/internal/domain/model"
	"github.com/chainscope/chainscope/internal/observability/metrics"
	"github.com/chainscope/chainscope/internal/observability/statsd"
	"github.com/chainscope/chainscope/internal/service"
)

// RunnerOptions configures the research runner adapter.
type RunnerOptions struct {
	DB     *sql.DB
	Logger *slog.Logger

	// Job processing settings
	Lease       time.Duration // per-job lease duration; defaults to 2m
	Concurrency int           // number of worker goroutines; defaults to 1

	// Pipeline stage providers
	Searcher    core.EvidenceSearcher    // required
	Synthesizer core.FindingsSynthesizer // required

	// MaxEvidenceResults caps evidence documents gathered per job.
	MaxEvidenceResults int

	// Optional dependency injections (useful for tests/decoupling)
	JobsRepo    core.JobRepository
	ReportsRepo core.ReportRepository
	Metrics     statsd.Sink
}

// Runner pulls research jobs and drives them through the pipeline.
type Runner struct {
	jobs     *service.JobService
	reports  *service.ReportService
	research *service.ResearchService
	logger   *slog.Logger
	lease    time.Duration
	workers  int
	metrics  statsd.Sink
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// NewRunner wires repositories/services and constructs a research runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && (opts.JobsRepo == nil || opts.ReportsRepo == nil) {
		return nil, errors.New("either DB or both JobsRepo and ReportsRepo must be provided")
	}
	if opts.Searcher == nil {
		return nil, errors.New("EvidenceSearcher is required")
	}
	if opts.Synthesizer == nil {
		return nil, errors.New("FindingsSynthesizer is required")
	}

	logger := resolveLogger(opts.Logger)

	lease := opts.Lease
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	jobsRepo := opts.JobsRepo
	if jobsRepo == nil {
		jobsRepo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
	}
	reportsRepo := opts.ReportsRepo
	if reportsRepo == nil {
		reportsRepo = data.NewReportRepo(opts.DB, nil)
	}

	jobSvc := service.MustNewJobService(service.JobServiceOptions{
		Repo:         jobsRepo,
		DefaultLease: lease,
		Logger:       logger,
	})
	reportSvc := service.MustNewReportService(service.ReportServiceOptions{
		Repo:   reportsRepo,
		Logger: logger,
	})
	researchSvc := service.MustNewResearchService(service.ResearchServiceOptions{
		Searcher:    opts.Searcher,
		Synthesizer: opts.Synthesizer,
		MaxResults:  opts.MaxEvidenceResults,
		Logger:      logger,
	})

	return &Runner{
		jobs:     jobSvc,
		reports:  reportSvc,
		research: researchSvc,
		logger:   logger,
		lease:    lease,
		workers:  workers,
		metrics:  opts.Metrics,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting research runner", "workers", r.workers, "lease", r.lease)

	unsub, ch := r.jobs.Subscribe()
	defer unsub()

	// First worker error cancels the group and stops the remaining workers.
	g, ctx := errgroup.WithContext(ctx)
	for range r.workers {
		g.Go(func() error {
			return r.workerLoop(ctx, ch)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, notify) {
				return nil
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobKind:    string(job.Kind),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	reportID, err := r.runPipeline(ctx, job)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			// Shutdown mid-run. Leave the job leased so lease expiry
			// requeues it instead of burning a retry attempt.
			r.logger.InfoContext(ctx, "abandoning job on shutdown", "job_id", job.ID)
			return
		}
		if _, ferr := r.jobs.Fail(ctx, job.ID, err.Error()); ferr != nil {
			r.logger.ErrorContext(ctx, "fail job error", "job_id", job.ID, "error", ferr, "original_error", err)
		}
		emit("failed", metrics.ResultError, err)
		return
	}
	if reportID == "" {
		// Job left the processing state mid-run (cancelled). Nothing to finalize.
		emit("completed", metrics.ResultNoop, nil)
		return
	}
	if completed, err := r.jobs.Complete(ctx, job.ID, reportID); err != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "error", err)
		emit("completed", metrics.ResultError, err)
	} else {
		result := metrics.ResultNoop
		if completed {
			result = metrics.ResultSuccess
		} else {
			r.logger.InfoContext(ctx, "job no longer processing, result discarded",
				"job_id", job.ID, "report_id", reportID)
		}
		emit("completed", result, nil)
	}
}

// runPipeline executes the gather and synthesize stages for one job and
// persists the resulting report. It returns the new report ID, or an empty
// ID when the job stopped being processable mid-run (e.g. cancelled).
func (r *Runner) runPipeline(ctx context.Context, job *model.Job) (string, error) {
	if ok, err := r.checkpoint(ctx, job.ID, model.ProgressGathering); err != nil || !ok {
		return "", err
	}
	evidence, err := r.research.Gather(ctx, job.Topic)
	if err != nil {
		return "", err
	}

	// Extend the lease before the synthesis stage, which dominates run time.
	if ok, err := r.jobs.Heartbeat(ctx, job.ID, r.lease); err != nil {
		return "", fmt.Errorf("heartbeat: %w", err)
	} else if !ok {
		return "", nil
	}
	if ok, err := r.checkpoint(ctx, job.ID, model.ProgressSynthesizing); err != nil || !ok {
		return "", err
	}
	findings, err := r.research.Synthesize(ctx, job.Topic, evidence)
	if err != nil {
		return "", err
	}

	report, err := r.reports.Create(ctx, &core.CreateReportRequest{
		Topic:    job.Topic,
		Findings: findings,
	})
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	if ok, err := r.checkpoint(ctx, job.ID, model.ProgressReportSaved); err != nil || !ok {
		return "", err
	}

	r.logger.InfoContext(ctx, "research pipeline finished",
		"job_id", job.ID,
		"topic", job.Topic,
		"report_id", report.ID,
		"fragility_score", report.FragilityScore,
	)
	return report.ID, nil
}

// checkpoint advances the job's progress. A false return without error means
// the job is no longer processing and the run should stop quietly.
func (r *Runner) checkpoint(ctx context.Context, jobID string, progress int) (bool, error) {
	ok, err := r.jobs.UpdateProgress(ctx, jobID, progress)
	if err != nil {
		return false, fmt.Errorf("update progress to %d: %w", progress, err)
	}
	if !ok {
		r.logger.InfoContext(ctx, "job no longer processing, stopping pipeline",
			"job_id", jobID, "progress", progress)
	}
	return ok, nil
}
