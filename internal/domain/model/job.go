// Package model defines the core data types and structures used throughout the chainscope research system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobKind records the provenance of a research job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus represents the current lifecycle state of a job.
type JobStatus string

const (
	// JobKindManual represents a job submitted directly by a client.
	JobKindManual JobKind = "manual"
	// JobKindScheduled represents a job created by the periodic scheduler.
	JobKindScheduled JobKind = "scheduled"
	// JobKindRetry represents a job created as a manual re-run of a finished job.
	JobKindRetry JobKind = "retry"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a job is currently being processed by a worker.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates a job finished successfully and has a report attached.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job exhausted its retry budget.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates a job was cancelled before finishing.
	JobStatusCancelled JobStatus = "cancelled"

	// ProgressClaimed through ProgressDone are the checkpoint values written
	// as a job moves through the pipeline. They are checkpoints, not a
	// continuous measure; within one attempt they never decrease.
	ProgressClaimed      = 10
	ProgressGathering    = 25
	ProgressSynthesizing = 50
	ProgressReportSaved  = 90
	ProgressDone         = 100
)

// UnmarshalText implements encoding.TextUnmarshaler for JobKind to allow env parsing.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jk := JobKind(v)
	if jk.Valid() {
		*k = jk
		return nil
	}
	return fmt.Errorf("invalid JobKind: %q", v)
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobKind is valid.
func (k JobKind) Valid() bool {
	return k == JobKindManual || k == JobKindScheduled || k == JobKindRetry
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed || s == JobStatusCancelled
}

// Terminal returns true if the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents a research job with all its lifecycle and bookkeeping fields.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Topic          string          `json:"topic"                      db:"topic"`
	Kind           JobKind         `json:"kind"                       db:"kind"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Progress       int             `json:"progress"                   db:"progress"`
	Priority       int             `json:"priority"                   db:"priority"`
	Metadata       json.RawMessage `json:"metadata,omitempty"         db:"metadata"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	RetryCount     int             `json:"retry_count"                db:"retry_count"`
	MaxRetries     int             `json:"max_retries"                db:"max_retries"`
	ErrorMessage   *string         `json:"error_message,omitempty"    db:"error_message"`
	ReportID       *string         `json:"report_id,omitempty"        db:"report_id"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// CreateJobRequest represents a request to create a new research job.
type CreateJobRequest struct {
	Topic       string          `json:"topic"`
	Kind        JobKind         `json:"kind"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	MaxRetries  int             `json:"max_retries"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return errors.New("topic is required")
	}
	if !r.Kind.Valid() {
		return errors.New("invalid job kind")
	}
	if r.Priority < 0 || r.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// JobStats represents counts of jobs in each lifecycle state.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// JobStatusResponse represents the client-visible status of a specific job.
type JobStatusResponse struct {
	ID           string     `json:"id"`
	Topic        string     `json:"topic"`
	Kind         JobKind    `json:"kind"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	RetryCount   int        `json:"retry_count"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	ReportID     *string    `json:"report_id,omitempty"`
}
