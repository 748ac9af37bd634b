package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/chainscope/chainscope/internal/data"
	domainjob "github.com/chainscope/chainscope/internal/domain/job"
	"github.com/chainscope/chainscope/internal/domain/model"
	apperrors "github.com/chainscope/chainscope/internal/errors"
	"github.com/chainscope/chainscope/internal/mocks"
)

type stubJobNotifier struct {
	subscribeCalls int
	stopCalled     bool
	subscribeFn    func() (func(), <-chan struct{})
	stopAllFn      func()
}

func (s *stubJobNotifier) Subscribe() (func(), <-chan struct{}) {
	s.subscribeCalls++
	if s.subscribeFn != nil {
		return s.subscribeFn()
	}
	ch := make(chan struct{})
	unsub := func() {
		select {
		case <-ch:
		default:
		}
		close(ch)
	}
	return unsub, ch
}

func (s *stubJobNotifier) StopAll() {
	s.stopCalled = true
	if s.stopAllFn != nil {
		s.stopAllFn()
	}
}

var _ domainjob.Notifier = (*stubJobNotifier)(nil)

func newTestJobService(t *testing.T, repo *mocks.MockJobRepository) (*JobService, *stubJobNotifier) {
	t.Helper()
	notifier := &stubJobNotifier{}
	svc := MustNewJobService(JobServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		Notifier:     notifier,
	})
	return svc, notifier
}

func TestNewJobService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	notifierOpts := domainjob.NotifierOptions{
		WaitWindow: 2 * time.Second,
		Backoff:    50 * time.Millisecond,
	}

	t.Run("success", func(t *testing.T) {
		notifier := &stubJobNotifier{}
		svc, err := NewJobService(JobServiceOptions{
			Repo:            repo,
			DefaultLease:    30 * time.Second,
			Notifier:        notifier,
			NotifierOptions: notifierOpts,
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
		assert.Equal(t, repo, svc.repo)
		assert.Equal(t, 30*time.Second, svc.leasePolicy.Default())
		assert.Equal(t, notifier, svc.notifier)
	})

	t.Run("success with logger", func(t *testing.T) {
		svc, err := NewJobService(JobServiceOptions{
			Repo:            repo,
			DefaultLease:    30 * time.Second,
			Logger:          slog.New(slog.DiscardHandler),
			Notifier:        &stubJobNotifier{},
			NotifierOptions: notifierOpts,
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
		assert.NotNil(t, svc.logger)
	})

	t.Run("missing repo", func(t *testing.T) {
		svc, err := NewJobService(JobServiceOptions{
			DefaultLease: 30 * time.Second,
		})
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "JobRepository is required")
	})

	t.Run("missing lease", func(t *testing.T) {
		svc, err := NewJobService(JobServiceOptions{
			Repo: repo,
		})
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "DefaultLease must be positive")
	})

	t.Run("default notifier uses repo as waiter", func(t *testing.T) {
		svc, err := NewJobService(JobServiceOptions{
			Repo:            repo,
			DefaultLease:    30 * time.Second,
			NotifierOptions: notifierOpts,
		})
		require.NoError(t, err)
		assert.NotNil(t, svc.notifier)
	})
}

func TestMustNewJobServicePanics(t *testing.T) {
	assert.Panics(t, func() {
		MustNewJobService(JobServiceOptions{})
	})
}

func TestJobServiceSubmit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)
	ctx := context.Background()

	expected := &model.Job{
		ID:     "job-1",
		Topic:  "Semiconductors",
		Kind:   model.JobKindManual,
		Status: model.JobStatusPending,
	}
	repo.EXPECT().
		Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			assert.Equal(t, "Semiconductors", req.Topic)
			assert.Equal(t, model.JobKindManual, req.Kind)
			assert.Equal(t, 50, req.Priority)
			return expected, nil
		})

	job, err := svc.Submit(ctx, "Semiconductors")
	require.NoError(t, err)
	assert.Equal(t, expected, job)
}

func TestJobServiceRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("creates fresh retry job for failed job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		prior := &model.Job{
			ID:     "job-1",
			Topic:  "Automotive",
			Kind:   model.JobKindScheduled,
			Status: model.JobStatusFailed,
		}
		repo.EXPECT().GetByID(ctx, "job-1").Return(prior, nil)
		repo.EXPECT().
			Create(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
				assert.Equal(t, "Automotive", req.Topic)
				assert.Equal(t, model.JobKindRetry, req.Kind)
				return &model.Job{ID: "job-2", Topic: req.Topic, Kind: req.Kind}, nil
			})

		job, err := svc.Retry(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-2", job.ID)
	})

	t.Run("rejects non-terminal job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().GetByID(ctx, "job-1").Return(&model.Job{
			ID:     "job-1",
			Status: model.JobStatusProcessing,
		}, nil)

		job, err := svc.Retry(ctx, "job-1")
		require.Error(t, err)
		assert.Nil(t, job)
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})

	t.Run("not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().GetByID(ctx, "missing").Return(nil, data.ErrJobNotFound)

		job, err := svc.Retry(ctx, "missing")
		require.Error(t, err)
		assert.Nil(t, job)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestJobServiceReserveNext(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves with requested lease", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		expected := &model.Job{ID: "job-1", Status: model.JobStatusProcessing, Progress: model.ProgressClaimed}
		repo.EXPECT().ReserveNext(ctx, 60).Return(expected, nil)

		job, err := svc.ReserveNext(ctx, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, expected, job)
	})

	t.Run("falls back to default lease", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().ReserveNext(ctx, 30).Return(nil, model.ErrNoJobsAvailable)

		job, err := svc.ReserveNext(ctx, 0)
		require.Error(t, err)
		assert.Nil(t, job)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})

	t.Run("clamps sub-second lease", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().ReserveNext(ctx, 1).Return(nil, model.ErrNoJobsAvailable)

		_, err := svc.ReserveNext(ctx, 100*time.Millisecond)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})
}

func TestJobServiceHeartbeat(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)
	ctx := context.Background()

	repo.EXPECT().Heartbeat(ctx, "job-1", 45).Return(true, nil)

	updated, err := svc.Heartbeat(ctx, "job-1", 45*time.Second)
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestJobServiceUpdateProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("updated", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().UpdateProgress(ctx, "job-1", model.ProgressGathering).Return(true, nil)

		updated, err := svc.UpdateProgress(ctx, "job-1", model.ProgressGathering)
		require.NoError(t, err)
		assert.True(t, updated)
	})

	t.Run("skipped when job left processing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().UpdateProgress(ctx, "job-1", model.ProgressSynthesizing).Return(false, nil)

		updated, err := svc.UpdateProgress(ctx, "job-1", model.ProgressSynthesizing)
		require.NoError(t, err)
		assert.False(t, updated)
	})
}

func TestJobServiceComplete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)
	ctx := context.Background()

	repo.EXPECT().Complete(ctx, "job-1", "report-1").Return(true, nil)

	completed, err := svc.Complete(ctx, "job-1", "report-1")
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestJobServiceFail(t *testing.T) {
	ctx := context.Background()

	t.Run("records failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().Fail(ctx, "job-1", "search unavailable").Return(true, nil)

		failed, err := svc.Fail(ctx, "job-1", "search unavailable")
		require.NoError(t, err)
		assert.True(t, failed)
	})

	t.Run("requires error message", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		failed, err := svc.Fail(ctx, "job-1", "")
		require.Error(t, err)
		assert.False(t, failed)
	})
}

func TestJobServiceCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels pending job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().Cancel(ctx, "job-1").Return(true, nil)

		require.NoError(t, svc.Cancel(ctx, "job-1"))
	})

	t.Run("conflict when already terminal", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().Cancel(ctx, "job-1").Return(false, nil)
		repo.EXPECT().GetByID(ctx, "job-1").Return(&model.Job{
			ID:     "job-1",
			Status: model.JobStatusCompleted,
		}, nil)

		err := svc.Cancel(ctx, "job-1")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetCode(err))
	})

	t.Run("not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().Cancel(ctx, "missing").Return(false, nil)
		repo.EXPECT().GetByID(ctx, "missing").Return(nil, data.ErrJobNotFound)

		err := svc.Cancel(ctx, "missing")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})

	t.Run("empty id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		err := svc.Cancel(ctx, "")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})
}

func TestJobServiceStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)
	ctx := context.Background()

	expected := &model.JobStats{Pending: 2, Processing: 1, Completed: 10}
	repo.EXPECT().Stats(ctx).Return(expected, nil)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, expected, stats)
}

func TestJobServiceGetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("maps job to status response", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		reportID := "report-1"
		completedAt := time.Now().UTC()
		repo.EXPECT().GetByID(ctx, "job-1").Return(&model.Job{
			ID:          "job-1",
			Topic:       "Pharma",
			Kind:        model.JobKindScheduled,
			Status:      model.JobStatusCompleted,
			Progress:    model.ProgressDone,
			ReportID:    &reportID,
			CompletedAt: &completedAt,
		}, nil)

		status, err := svc.GetStatus(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", status.ID)
		assert.Equal(t, "Pharma", status.Topic)
		assert.Equal(t, model.JobStatusCompleted, status.Status)
		assert.Equal(t, model.ProgressDone, status.Progress)
		require.NotNil(t, status.ReportID)
		assert.Equal(t, reportID, *status.ReportID)
	})

	t.Run("not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().GetByID(ctx, "missing").Return(nil, data.ErrJobNotFound)

		status, err := svc.GetStatus(ctx, "missing")
		require.Error(t, err)
		assert.Nil(t, status)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})
}

func TestJobServiceSubscribe(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, notifier := newTestJobService(t, repo)

	unsub, ch := svc.Subscribe()
	assert.NotNil(t, unsub)
	assert.NotNil(t, ch)
	assert.Equal(t, 1, notifier.subscribeCalls)
	unsub()
}

func TestJobServiceStopAllListeners(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, notifier := newTestJobService(t, repo)

	svc.StopAllListeners()
	assert.True(t, notifier.stopCalled)
}

func TestJobServiceRepoErrorsWrapped(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)
	ctx := context.Background()

	repoErr := errors.New("connection reset")
	repo.EXPECT().Create(ctx, gomock.Any()).Return(nil, repoErr)

	_, err := svc.Submit(ctx, "Energy")
	require.Error(t, err)
	assert.ErrorIs(t, err, repoErr)
}
