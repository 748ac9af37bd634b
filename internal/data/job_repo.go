package data

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrReportNotFound is returned when a report is not found.
	ErrReportNotFound = errors.New("report not found")
)

// validID reports whether id parses as a UUID. IDs arrive from URL paths and
// CLI arguments; treating malformed ones as unknown avoids a Postgres cast
// error on every lookup.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	RetryDelaySeconds int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
}

// JobRepo provides database operations for research job management.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  topic,
  kind,
  status,
  progress,
  priority,
  metadata,
  scheduled_at,
  started_at,
  completed_at,
  retry_count,
  max_retries,
  error_message,
  report_id,
  lease_expires_at,
  created_at,
  updated_at
`
