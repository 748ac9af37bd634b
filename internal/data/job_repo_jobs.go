package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chainscope/chainscope/internal/data/pgxutil"
	"github.com/chainscope/chainscope/internal/domain/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// insertJobParams groups parameters for inserting a job within a transaction.
type insertJobParams struct {
	Req        *model.CreateJobRequest
	Meta       []byte
	MaxRetries int
}

const (
	defaultRetryDelaySeconds = 60
	defaultMaxRetries        = 3

	// jobAddedChannel is the pg_notify channel signalled on every job insert.
	jobAddedChannel = "job_added"

	// leaseExpiredMessage is recorded when a worker's lease lapses mid-attempt.
	leaseExpiredMessage = "worker lease expired"
)

func (r *JobRepo) retryDelay() int {
	if r.cfg.RetryDelaySeconds > 0 {
		return r.cfg.RetryDelaySeconds
	}
	return defaultRetryDelaySeconds
}

// SQL used by ReserveNext to atomically reserve the next job. Claiming a job
// stamps started_at for the attempt and raises progress to the claimed
// checkpoint in the same statement, so readers never observe a processing
// job without them.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE status = 'pending' AND scheduled_at <= $1
    ORDER BY priority DESC, scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'processing',
    progress = GREATEST(j.progress, $2),
    started_at = COALESCE(j.started_at, $3),
    lease_expires_at = $4,
    updated_at = $5
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.topic, j.kind, j.status, j.progress, j.priority, j.metadata, j.scheduled_at, j.started_at, j.completed_at, j.retry_count, j.max_retries, j.error_message, j.report_id, j.lease_expires_at, j.created_at, j.updated_at`

// Create creates a new job in the database with the given parameters.
func (r *JobRepo) Create(
	ctx context.Context,
	req *model.CreateJobRequest,
) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}

	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	meta, maxRetries, err := r.prepareJobData(req)
	if err != nil {
		return nil, err
	}

	p := &insertJobParams{
		Req:        req,
		Meta:       meta,
		MaxRetries: maxRetries,
	}

	var job *model.Job
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var insertErr error
			job, insertErr = r.insertJobInTx(ctx, tx, p)
			return insertErr
		},
	}); txErr != nil {
		return nil, txErr
	}

	return job, nil
}

// prepareJobData prepares the metadata and maxRetries for job creation.
func (r *JobRepo) prepareJobData(req *model.CreateJobRequest) ([]byte, int, error) {
	if req == nil {
		return nil, 0, errors.New("create job request is required")
	}

	meta := []byte(`{}`)
	if req.Metadata != nil {
		var err error
		meta, err = json.Marshal(req.Metadata)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	maxRetries := defaultMaxRetries
	if req.MaxRetries > 0 {
		maxRetries = req.MaxRetries
	}

	return meta, maxRetries, nil
}

// insertJobInTx inserts a job within a pgx.Tx and returns the created job.
func (r *JobRepo) insertJobInTx(ctx context.Context, tx pgx.Tx, params *insertJobParams) (*model.Job, error) {
	if params == nil || params.Req == nil {
		return nil, errors.New("insert job params are required")
	}

	query, args := r.buildInsertQuery(params)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	job, collectErr := collectJobFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect job: %w", collectErr)
	}

	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, jobAddedChannel, job.ID); execErr != nil {
		return nil, fmt.Errorf("send job notification: %w", execErr)
	}

	return job, nil
}

// buildInsertQuery builds an INSERT statement for a job based on the provided parameters.
func (r *JobRepo) buildInsertQuery(p *insertJobParams) (string, []any) {
	if p == nil || p.Req == nil {
		return "", nil
	}

	query := `
      INSERT INTO jobs(topic, kind, status, priority, metadata, scheduled_at, max_retries)
      VALUES ($1,$2,'pending',$3,$4,$5,$6)
      RETURNING ` + jobColumns

	var scheduledAt time.Time
	if p.Req.ScheduledAt != nil {
		scheduledAt = p.Req.ScheduledAt.UTC()
	} else {
		scheduledAt = r.timeProvider.Now().UTC()
	}

	args := []any{
		p.Req.Topic,
		p.Req.Kind,
		p.Req.Priority,
		p.Meta,
		scheduledAt,
		p.MaxRetries,
	}
	return query, args
}

// collectJobFromRows collects a single job from pgx rows using pgx v5 helpers.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	metadata               []byte
	errorMessage, reportID sql.NullString
	startedAt, completedAt sql.NullTime
	leaseExpiresAt         sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.Topic,
		&job.Kind,
		&job.Status,
		&job.Progress,
		&job.Priority,
		&d.metadata,
		&job.ScheduledAt,
		&d.startedAt,
		&d.completedAt,
		&job.RetryCount,
		&job.MaxRetries,
		&d.errorMessage,
		&d.reportID,
		&d.leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.Metadata = cloneJSON(d.metadata)
	job.ErrorMessage = cloneNullableString(d.errorMessage)
	job.ReportID = cloneNullableString(d.reportID)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Advisory lock key for requeueExpired so concurrent workers and reapers
// don't race on the same sweep.
const (
	advisoryLockRequeueMajor int64 = 1001
	advisoryLockRequeueMinor int64 = 1
)

// requeueExpired sweeps processing jobs whose lease has lapsed. A lapsed
// lease consumes one attempt: jobs with budget left go back to pending with
// a fresh attempt (progress and started_at reset), jobs without become
// failed. Returns the number of rows touched.
func (r *JobRepo) requeueExpired(ctx context.Context) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", advisoryLockRequeueMajor, advisoryLockRequeueMinor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now().UTC()
			res, err := tx.ExecContext(ctx, `
          UPDATE jobs
          SET
            status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
            retry_count = CASE WHEN retry_count + 1 >= max_retries THEN retry_count ELSE retry_count + 1 END,
            progress = CASE WHEN retry_count + 1 >= max_retries THEN progress ELSE 0 END,
            started_at = CASE WHEN retry_count + 1 >= max_retries THEN started_at ELSE NULL END,
            completed_at = CASE WHEN retry_count + 1 >= max_retries THEN $2::timestamptz ELSE NULL END,
            error_message = $3,
            lease_expires_at = NULL,
            updated_at = $2
          WHERE status = 'processing'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $1
        `, currentTime, currentTime, leaseExpiredMessage)
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// RequeueExpiredLeases exposes the expired-lease sweep for the reaper.
func (r *JobRepo) RequeueExpiredLeases(ctx context.Context) (int64, error) {
	return r.requeueExpired(ctx)
}

// ReserveNext reserves the next available job for processing.
func (r *JobRepo) ReserveNext(
	ctx context.Context,
	leaseSeconds int,
) (*model.Job, error) {
	if _, err := r.requeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				currentTime.UTC(),
				model.ProgressClaimed,
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat refreshes the lease on a processing job.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	query := `
		UPDATE jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.DB.ExecContext(ctx, query, jobID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	return true, nil
}

// UpdateProgress raises a processing job's progress to the given checkpoint.
// GREATEST keeps progress monotonically non-decreasing within an attempt,
// and the status guard makes the write a no-op once the job left processing
// (cancelled mid-flight, lease reaped). Returns false in the no-op case.
func (r *JobRepo) UpdateProgress(ctx context.Context, jobID string, progress int) (bool, error) {
	if progress < 0 || progress > 100 {
		return false, fmt.Errorf("progress must be between 0 and 100, got %d", progress)
	}

	currentTime := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET progress = GREATEST(progress, $2),
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`, jobID, progress, currentTime)
	if err != nil {
		return false, fmt.Errorf("update progress: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update progress rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Complete marks a job as completed and attaches its report. The status
// guard plus the single UPDATE keep the completed/report_id/progress=100
// invariant atomic: no reader ever sees one without the others. Returns
// false when the job is no longer processing, which is how a cancelled
// job's result gets discarded.
func (r *JobRepo) Complete(ctx context.Context, jobID, reportID string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE jobs
		SET status = 'completed',
		    progress = 100,
		    report_id = $2,
		    completed_at = $3,
		    updated_at = $3,
		    lease_expires_at = NULL,
		    error_message = NULL
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.DB.ExecContext(ctx, query, jobID, reportID, currentTime)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Fail records a failed attempt for a processing job. With retry budget
// remaining the job returns to pending as a fresh attempt (progress and
// started_at reset, scheduled_at pushed out by the retry delay); with the
// budget exhausted it becomes terminally failed. The error message is
// recorded either way. Returns false when the job is no longer processing.
func (r *JobRepo) Fail(ctx context.Context, jobID, errMsg string) (bool, error) {
	retryDelay := r.retryDelay()
	currentTime := r.timeProvider.Now()
	retryScheduledAt := currentTime.Add(time.Duration(retryDelay) * time.Second)

	query := `
      UPDATE jobs
      SET
        error_message = $2,
        status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
        retry_count = CASE WHEN retry_count + 1 >= max_retries THEN retry_count ELSE retry_count + 1 END,
        progress = CASE WHEN retry_count + 1 >= max_retries THEN progress ELSE 0 END,
        started_at = CASE WHEN retry_count + 1 >= max_retries THEN started_at ELSE NULL END,
        completed_at = CASE WHEN retry_count + 1 >= max_retries THEN $3::timestamptz ELSE NULL END,
        lease_expires_at = NULL,
        scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at
                            ELSE $4::timestamptz END,
        updated_at = $5
      WHERE id = $1 AND status = 'processing'
    `

	res, err := r.DB.ExecContext(ctx, query, jobID, errMsg, currentTime.UTC(), retryScheduledAt.UTC(), currentTime.UTC())
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Cancel marks a pending or processing job as cancelled. Best-effort: an
// in-flight attempt is not interrupted, its finalize writes become no-ops
// through the processing-status guards. Returns false if the job was
// already terminal.
func (r *JobRepo) Cancel(ctx context.Context, jobID string) (bool, error) {
	if !validID(jobID) {
		return false, ErrJobNotFound
	}
	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'cancelled',
		    completed_at = $2,
		    updated_at = $2,
		    lease_expires_at = NULL
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, jobID, currentTime)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Stats returns counts of jobs in each lifecycle state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')    AS pending,
    count(*) FILTER (WHERE status = 'processing') AS processing,
    count(*) FILTER (WHERE status = 'completed')  AS completed,
    count(*) FILTER (WHERE status = 'failed')     AS failed,
    count(*) FILTER (WHERE status = 'cancelled')  AS cancelled
  FROM jobs
  `).Scan(
		&s.Pending,
		&s.Processing,
		&s.Completed,
		&s.Failed,
		&s.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs are available.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{jobAddedChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", jobAddedChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if !validID(id) {
		return nil, ErrJobNotFound
	}
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}
