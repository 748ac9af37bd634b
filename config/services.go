package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeAPI runs the HTTP API server.
	ServiceModeAPI ServiceMode = "api"
	// ServiceModeResearchRunner runs the research pipeline worker pool.
	ServiceModeResearchRunner ServiceMode = "research-runner"
	// ServiceModeScheduler runs the daily job scheduler.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeAPI,
		ServiceModeResearchRunner,
		ServiceModeScheduler,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// The special value "all" enables every service. It validates that all service names are valid
// and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		if serviceName == "all" {
			for _, mode := range ValidServiceModes() {
				services[mode] = true
			}
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeAPI,
			ServiceModeResearchRunner,
			ServiceModeScheduler,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: api, research-runner, scheduler, reaper, all)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ResearchRunnerConfig contains research runner service configuration.
type ResearchRunnerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"RESEARCH_RUNNER_CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a research job. Leases are extended
	// via heartbeats between pipeline stages, so this only needs to cover a
	// single stage plus headroom.
	JobLease time.Duration `env:"RESEARCH_RUNNER_JOB_LEASE" envDefault:"2m"`
}

// Sanitize applies guardrails to research runner configuration values.
func (r *ResearchRunnerConfig) Sanitize() {
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.JobLease < 5*time.Second {
		r.JobLease = 5 * time.Second
	}
}

// SchedulerConfig contains scheduler service configuration.
type SchedulerConfig struct {
	// Topics is the list of industries that get a research job every day.
	Topics []string `env:"SCHEDULER_TOPICS" envDefault:"Technology,Automotive,Pharmaceuticals"`

	// FireHourUTC is the UTC hour of day at which daily jobs are enqueued.
	FireHourUTC int `env:"SCHEDULER_HOUR_UTC" envDefault:"9"`

	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.FireHourUTC < 0 || s.FireHourUTC > 23 {
		s.FireHourUTC = 9
	}
	if s.Interval < time.Second {
		s.Interval = time.Second
	}

	topics := make([]string, 0, len(s.Topics))
	for _, t := range s.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	s.Topics = topics
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is the maximum age for pending jobs before they are marked as failed.
	// Jobs stuck in pending status longer than this will be failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"24h"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// CancelledMaxAge is the maximum age for cancelled jobs before deletion.
	CancelledMaxAge time.Duration `env:"REAPER_CANCELLED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.CancelledMaxAge < 1*time.Hour {
		r.CancelledMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
