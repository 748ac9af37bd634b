// Package service provides business logic services for the chainscope research system.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainscope/chainscope/internal/core"
	"github.com/chainscope/chainscope/internal/data"
	"github.com/chainscope/chainscope/internal/domain/model"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// SchedulerService creates the daily batch of scheduled research jobs, one
// per configured topic. Safe under concurrent replicas: every job carries a
// scheduler fire key backed by a unique index, so whichever replica inserts
// first wins and the rest observe a duplicate and move on.
type SchedulerService struct {
	jobs         core.JobRepository
	topics       []string
	fireHourUTC  int
	timeProvider data.TimeProvider
	logger       *slog.Logger

	lastFireDate string
}

// SchedulerServiceOptions holds the dependencies for creating a SchedulerService.
type SchedulerServiceOptions struct {
	Jobs         core.JobRepository // Required: job repository
	Topics       []string           // Required: static topic list
	FireHourUTC  int                // Hour of day (UTC) after which the daily batch fires
	TimeProvider data.TimeProvider  // Optional: defaults to real time
	Logger       *slog.Logger       // Optional: structured logger
}

// NewSchedulerService creates a new SchedulerService with the given dependencies.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if len(opts.Topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}
	if opts.FireHourUTC < 0 || opts.FireHourUTC > 23 {
		return nil, fmt.Errorf("fire hour must be between 0 and 23, got %d", opts.FireHourUTC)
	}

	tp := opts.TimeProvider
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SchedulerService{
		jobs:         opts.Jobs,
		topics:       opts.Topics,
		fireHourUTC:  opts.FireHourUTC,
		timeProvider: tp,
		logger:       logger.With("component", "scheduler_service"),
	}, nil
}

// Tick evaluates whether the daily batch is due and creates one scheduled
// job per topic if so. Returns the number of jobs created this tick.
//
// Failure isolation: a failure creating one topic's job never blocks the
// remaining topics; the error is logged and the loop continues. A duplicate
// fire key (another replica, or a re-tick on the same day) is a silent
// no-op, not an error.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (int, error) {
	fireDate, due := s.dueFireDate(now)
	if !due {
		return 0, nil
	}

	created := 0
	var failedTopics []string
	for _, topic := range s.topics {
		ok, err := s.createScheduledJob(ctx, topic, fireDate)
		if err != nil {
			failedTopics = append(failedTopics, topic)
			s.logger.ErrorContext(ctx, "scheduler failed to create job for topic",
				"topic", topic, "fire_date", fireDate, "error", err)
			continue
		}
		if ok {
			created++
		}
	}

	// Only remember the fire date when every topic got its job in, so failed
	// topics are retried on the next tick.
	if len(failedTopics) == 0 {
		s.lastFireDate = fireDate
	}

	if created > 0 {
		s.logger.InfoContext(ctx, "scheduler fired daily batch",
			"fire_date", fireDate, "created", created, "topics", len(s.topics))
	}

	return created, nil
}

// dueFireDate returns today's fire date and whether the batch should fire
// this tick. The in-memory guard only suppresses repeat work within one
// process; cross-replica dedup is the fire-key unique index.
func (s *SchedulerService) dueFireDate(now time.Time) (string, bool) {
	utc := now.UTC()
	if utc.Hour() < s.fireHourUTC {
		return "", false
	}
	fireDate := utc.Format("2006-01-02")
	if fireDate == s.lastFireDate {
		return "", false
	}
	return fireDate, true
}

// createScheduledJob inserts one topic's job for the fire date. Returns
// false with nil error when another replica already created it.
func (s *SchedulerService) createScheduledJob(ctx context.Context, topic, fireDate string) (bool, error) {
	metadata, err := buildSchedulerMetadata(topic, fireDate)
	if err != nil {
		return false, fmt.Errorf("build scheduler metadata: %w", err)
	}

	req := &model.CreateJobRequest{
		Topic:    topic,
		Kind:     model.JobKindScheduled,
		Metadata: metadata,
	}

	if _, err := s.jobs.Create(ctx, req); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			s.logger.DebugContext(ctx, "scheduled job already exists for fire key",
				"topic", topic, "fire_date", fireDate)
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func buildSchedulerMetadata(topic, fireDate string) (json.RawMessage, error) {
	meta := map[string]string{
		"scheduler.fire_key": fmt.Sprintf("daily:%s:%s", topic, fireDate),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
