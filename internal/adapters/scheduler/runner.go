// Package scheduler provides adapters for running the daily job scheduler.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainscope/chainscope/config"
	"github.com/chainscope/chainscope/internal/core"
	"github.com/chainscope/chainscope/internal/data"
	obserrors "github.com/chainscope/chainscope/internal/observability/errors"
	"github.com/chainscope/chainscope/internal/observability/metrics"
	"github.com/chainscope/chainscope/internal/observability/statsd"
	"github.com/chainscope/chainscope/internal/service"
)

// Runner provides a simple adapter to run the scheduler loop.
// It constructs the scheduler service and runs a tick loop with configurable interval.
type Runner struct {
	scheduler *service.SchedulerService
	interval  time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB      *sql.DB
	Config  config.SchedulerConfig
	Logger  *slog.Logger
	Metrics statsd.Sink

	// Optional dependency injections for testing/decoupling
	Jobs         core.JobRepository
	TimeProvider data.TimeProvider
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	jobs := opts.Jobs
	if jobs == nil {
		jobs = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	scheduler, err := service.NewSchedulerService(service.SchedulerServiceOptions{
		Jobs:         jobs,
		Topics:       opts.Config.Topics,
		FireHourUTC:  opts.Config.FireHourUTC,
		TimeProvider: opts.TimeProvider,
		Logger:       opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire scheduler service: %w", err)
	}

	return &Runner{
		scheduler: scheduler,
		interval:  opts.Config.Interval,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Jobs == nil {
		return errors.New("database connection is required")
	}
	if opts.Config.Interval <= 0 {
		opts.Config.Interval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the scheduler loop and runs until the context is cancelled.
// It calls Tick() at the configured interval and logs the results.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scheduler runner", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "scheduler runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			start := time.Now()
			created, err := r.scheduler.Tick(ctx, now)
			elapsed := time.Since(start)

			r.emitTickMetrics(created, elapsed, err)

			if err != nil {
				r.logger.ErrorContext(ctx, "scheduler tick error", "error", err)
				// Continue running despite errors
			} else if created > 0 {
				r.logger.InfoContext(ctx, "scheduler enqueued daily jobs", "count", created)
			}
		}
	}
}

func (r *Runner) emitTickMetrics(created int, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if created == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("scheduler.tick", 1, tags)

	if created > 0 {
		r.metrics.Count("scheduler.jobs_enqueued", int64(created), tags)
	}

	if elapsed > 0 {
		r.metrics.Timing("scheduler.tick_duration", elapsed, metrics.CloneTags(tags))
	}

	if err == nil {
		r.metrics.Gauge("scheduler.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}
