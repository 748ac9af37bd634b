package workflowtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/core"
	"github.com/chainscope/chainscope/internal/data"
	"github.com/chainscope/chainscope/internal/domain/model"
	"github.com/chainscope/chainscope/internal/testutil"
)

// dbRepositoryProvider backs the harness with the production Postgres repos.
type dbRepositoryProvider struct {
	jobs    *data.JobRepo
	reports *data.ReportRepo
}

func (p dbRepositoryProvider) JobRepository() core.JobRepository       { return p.jobs }
func (p dbRepositoryProvider) ReportRepository() core.ReportRepository { return p.reports }

func newDBHarness(t *testing.T, db *sql.DB, tp data.TimeProvider) *WorkflowTestHarness {
	t.Helper()
	provider := dbRepositoryProvider{
		jobs:    data.NewJobRepo(db, data.RepoConfig{TimeProvider: tp}),
		reports: data.NewReportRepo(db, tp),
	}
	return NewWorkflowTestHarness(t, DefaultWorkflowOptions(provider))
}

// finishReservedJob walks a reserved job through the worker-side pipeline
// steps and attaches a report, the way the research runner does.
func finishReservedJob(ctx context.Context, t *testing.T, h *WorkflowTestHarness, jobID, topic string) *model.Report {
	t.Helper()

	for _, checkpoint := range []int{model.ProgressGathering, model.ProgressSynthesizing} {
		ok, err := h.JobSvc.UpdateProgress(ctx, jobID, checkpoint)
		require.NoError(t, err)
		require.True(t, ok, "job %s left processing at checkpoint %d", jobID, checkpoint)
	}

	report, err := h.ReportSvc.Create(ctx, &core.CreateReportRequest{
		Topic:    topic,
		Findings: TestFindings(),
	})
	require.NoError(t, err)

	ok, err := h.JobSvc.UpdateProgress(ctx, jobID, model.ProgressReportSaved)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.JobSvc.Complete(ctx, jobID, report.ID)
	require.NoError(t, err)
	require.True(t, ok, "job %s was not completed", jobID)

	return report
}

// jobSnapshot is one observed point of a job's lifecycle.
type jobSnapshot struct {
	Status     model.JobStatus
	Progress   int
	RetryCount int
}

func snapshotJob(ctx context.Context, t *testing.T, h *WorkflowTestHarness, jobID string) jobSnapshot {
	t.Helper()
	job, err := h.JobSvc.GetByID(ctx, jobID)
	require.NoError(t, err)
	return jobSnapshot{Status: job.Status, Progress: job.Progress, RetryCount: job.RetryCount}
}

// legalTransitions lists the status moves a job may make. Terminal states
// have no successors.
var legalTransitions = map[model.JobStatus][]model.JobStatus{
	model.JobStatusPending:    {model.JobStatusProcessing, model.JobStatusCancelled},
	model.JobStatusProcessing: {model.JobStatusPending, model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled},
}

// verifyLifecycleSequence checks an observed snapshot sequence against the
// lifecycle rules: only legal status moves, retry count never decreases, and
// progress never decreases within a single processing attempt.
func verifyLifecycleSequence(t *testing.T, snaps []jobSnapshot) {
	t.Helper()
	require.NotEmpty(t, snaps)
	require.Equal(t, model.JobStatusPending, snaps[0].Status, "jobs start out pending")

	for i := 1; i < len(snaps); i++ {
		prev, cur := snaps[i-1], snaps[i]
		require.GreaterOrEqual(t, cur.RetryCount, prev.RetryCount,
			"retry count decreased between snapshots %d and %d", i-1, i)

		if cur.Status == prev.Status {
			if cur.Status == model.JobStatusProcessing && cur.RetryCount == prev.RetryCount {
				require.GreaterOrEqual(t, cur.Progress, prev.Progress,
					"progress decreased within attempt between snapshots %d and %d", i-1, i)
			}
			continue
		}
		require.Contains(t, legalTransitions[prev.Status], cur.Status,
			"illegal transition %s -> %s at snapshot %d", prev.Status, cur.Status, i)
	}

	last := snaps[len(snaps)-1]
	if last.Status == model.JobStatusCompleted {
		require.Equal(t, model.ProgressDone, last.Progress)
	}
}

func Test_Workflow_SubmitReserveCompleteReport(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		h := newDBHarness(t, db, nil)
		defer h.Close()

		helpers := h.NewWorkflowHelpers()
		status, report := helpers.RunCompleteWorkflow("Semiconductors")

		assert.Equal(t, model.JobStatusCompleted, status.Status)
		assert.Equal(t, model.ProgressDone, status.Progress)
		require.NotNil(t, status.ReportID)
		assert.Equal(t, report.ID, *status.ReportID)

		helpers.VerifyJobCompleted(status.ID)

		fetched := h.NewHTTPClient().GetReport(report.ID)
		assert.Equal(t, "Semiconductors", fetched.Topic)
		assert.Equal(t, report.Summary, fetched.Summary)
	})
}

// Test_Workflow_GatherFailuresRetryUntilSuccess drives a job whose gather
// stage fails on the first two attempts and succeeds on the third. The job
// must come out completed with two retries on the books, backing off between
// attempts, and every observed transition must be a legal lifecycle move.
func Test_Workflow_GatherFailuresRetryUntilSuccess(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := testutil.NewTestTimeProvider(testutil.TestTime())
		h := newDBHarness(t, db, tp)
		defer h.Close()

		ctx := context.Background()
		client := h.NewHTTPClient()

		var snaps []jobSnapshot
		observe := func(jobID string) {
			snaps = append(snaps, snapshotJob(ctx, t, h, jobID))
		}

		submitted := client.SubmitResearch("Rare Earth Magnets")
		observe(submitted.ID)

		// Attempt 1: reserve, then the gather stage fails.
		reserved, err := h.JobSvc.ReserveNext(ctx, 30*time.Second)
		require.NoError(t, err)
		require.Equal(t, submitted.ID, reserved.ID)
		observe(reserved.ID)

		failed, err := h.JobSvc.Fail(ctx, reserved.ID, "search provider unavailable")
		require.NoError(t, err)
		require.True(t, failed)
		observe(reserved.ID)

		afterFirst, err := h.JobSvc.GetByID(ctx, reserved.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, afterFirst.Status)
		assert.Equal(t, 1, afterFirst.RetryCount)
		assert.Zero(t, afterFirst.Progress)
		assert.Equal(t, testutil.StringPtr("search provider unavailable"), afterFirst.ErrorMessage)

		// The retry is scheduled out by the backoff delay, so an immediate
		// reserve finds nothing.
		_, err = h.JobSvc.ReserveNext(ctx, 30*time.Second)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)

		// Attempt 2: past the backoff, reserve and fail again.
		tp.AddTime(61 * time.Second)
		reserved2, err := h.JobSvc.ReserveNext(ctx, 30*time.Second)
		require.NoError(t, err)
		require.Equal(t, submitted.ID, reserved2.ID)
		observe(reserved2.ID)

		failed, err = h.JobSvc.Fail(ctx, reserved2.ID, "search provider timeout")
		require.NoError(t, err)
		require.True(t, failed)
		observe(reserved2.ID)

		afterSecond, err := h.JobSvc.GetByID(ctx, reserved2.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, afterSecond.Status)
		assert.Equal(t, 2, afterSecond.RetryCount)
		assert.Equal(t, testutil.StringPtr("search provider timeout"), afterSecond.ErrorMessage)

		testutil.LogJobStates(t, db, "after second failed attempt")

		// Attempt 3: the pipeline runs through, attaching a report.
		tp.AddTime(61 * time.Second)
		reserved3, err := h.JobSvc.ReserveNext(ctx, 30*time.Second)
		require.NoError(t, err)
		require.Equal(t, submitted.ID, reserved3.ID)
		observe(reserved3.ID)

		report := finishReservedJob(ctx, t, h, reserved3.ID, "Rare Earth Magnets")
		observe(reserved3.ID)

		verifyLifecycleSequence(t, snaps)

		status := client.GetJobStatus(submitted.ID)
		assert.Equal(t, model.JobStatusCompleted, status.Status)
		assert.Equal(t, model.ProgressDone, status.Progress)
		assert.Equal(t, 2, status.RetryCount)
		assert.Nil(t, status.ErrorMessage, "completion clears the last attempt's error")
		require.NotNil(t, status.ReportID)
		assert.Equal(t, report.ID, *status.ReportID)

		states := testutil.InspectJobStates(t, db)
		require.Len(t, states, 1)
		assert.Equal(t, string(model.JobStatusCompleted), states[0].Status)
		assert.Equal(t, 2, states[0].RetryCount)
		assert.Nil(t, states[0].ErrorMessage)
		assert.NotNil(t, states[0].CompletedAt)
	})
}

func Test_Workflow_CancelThenRetry(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		h := newDBHarness(t, db, nil)
		defer h.Close()

		ctx := context.Background()
		client := h.NewHTTPClient()

		submitted := client.SubmitResearch("Lithium Batteries")
		client.CancelJob(submitted.ID)

		cancelled := client.GetJobStatus(submitted.ID)
		assert.Equal(t, model.JobStatusCancelled, cancelled.Status)

		// A cancelled job is terminal, so it can be re-run as a fresh job.
		retried := client.RetryJob(submitted.ID)
		assert.NotEqual(t, submitted.ID, retried.ID)
		assert.Equal(t, model.JobKindRetry, retried.Kind)
		assert.Equal(t, "Lithium Batteries", retried.Topic)

		reserved, err := h.JobSvc.ReserveNext(ctx, 30*time.Second)
		require.NoError(t, err)
		require.Equal(t, retried.ID, reserved.ID)

		finishReservedJob(ctx, t, h, reserved.ID, retried.Topic)
		h.NewWorkflowHelpers().VerifyJobCompleted(reserved.ID)

		// The original stays cancelled.
		original := client.GetJobStatus(submitted.ID)
		assert.Equal(t, model.JobStatusCancelled, original.Status)
	})
}

func Test_Workflow_ConcurrentReserve(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		h := newDBHarness(t, db, nil)
		defer h.Close()

		ctx := context.Background()
		client := h.NewHTTPClient()

		const workers = 3
		for i := 0; i < workers; i++ {
			client.SubmitResearch(fmt.Sprintf("Topic %d", i))
		}

		runner := testutil.NewConcurrentTestRunner(t, db)
		reservedIDs := make([]string, workers)
		reserve := func(slot int) func() error {
			return func() error {
				job, err := h.JobSvc.ReserveNext(ctx, 30*time.Second)
				if err != nil {
					return err
				}
				reservedIDs[slot] = job.ID
				return nil
			}
		}

		errs := runner.RunConcurrent(reserve(0), reserve(1), reserve(2))
		runner.AssertNoErrors(errs)

		// Every worker got its own job.
		seen := make(map[string]bool, workers)
		for _, id := range reservedIDs {
			require.NotEmpty(t, id)
			require.False(t, seen[id], "job %s reserved twice", id)
			seen[id] = true
		}

		// The queue is drained.
		_, err := h.JobSvc.ReserveNext(ctx, 30*time.Second)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)

		stats, err := h.JobSvc.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, workers, stats.Processing)
		assert.Zero(t, stats.Pending)
	})
}
