package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/chainscope/chainscope/config"
	"github.com/chainscope/chainscope/internal/adapters/llm"
	"github.com/chainscope/chainscope/internal/adapters/reaper"
	"github.com/chainscope/chainscope/internal/adapters/researchrunner"
	schedrunner "github.com/chainscope/chainscope/internal/adapters/scheduler"
	"github.com/chainscope/chainscope/internal/adapters/search"
	"github.com/chainscope/chainscope/internal/observability/statsd"
)

// ResearchRunnerConfig contains configuration for the research runner.
type ResearchRunnerConfig struct {
	DB       *sql.DB
	Logger   *slog.Logger
	Runner   config.ResearchRunnerConfig
	Research config.ResearchConfig
	Metrics  statsd.Sink
}

// RunResearchRunner starts the research runner service. The search and LLM
// providers are constructed here so deployments that never run the worker
// pool do not need provider credentials.
func RunResearchRunner(ctx context.Context, cfg ResearchRunnerConfig) error {
	searcher, err := search.NewClient(cfg.Research.Search, cfg.Logger)
	if err != nil {
		return fmt.Errorf("create search client: %w", err)
	}

	synthesizer, err := llm.NewSynthesizer(cfg.Research.LLM, cfg.Logger)
	if err != nil {
		return fmt.Errorf("create synthesizer: %w", err)
	}

	runner, err := researchrunner.NewRunner(researchrunner.RunnerOptions{
		DB:                 cfg.DB,
		Logger:             cfg.Logger,
		Lease:              cfg.Runner.JobLease,
		Concurrency:        cfg.Runner.Concurrency,
		Searcher:           searcher,
		Synthesizer:        synthesizer,
		MaxEvidenceResults: cfg.Research.Search.MaxResults,
		Metrics:            cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create research runner: %w", err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run research runner: %w", runErr)
	}
	return nil
}

// SchedulerConfig contains configuration for scheduler.
type SchedulerConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.SchedulerConfig
	Metrics statsd.Sink
}

// RunScheduler starts the scheduler service.
func RunScheduler(ctx context.Context, cfg SchedulerConfig) error {
	runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create scheduler runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
