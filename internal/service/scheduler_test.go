package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/chainscope/chainscope/internal/domain/model"
	"github.com/chainscope/chainscope/internal/mocks"
	"github.com/chainscope/chainscope/internal/testutil"
)

var testSchedulerTopics = []string{"semiconductors", "pharmaceuticals", "automotive"}

func newTestSchedulerService(t *testing.T, repo *mocks.MockJobRepository) *SchedulerService {
	t.Helper()
	svc, err := NewSchedulerService(SchedulerServiceOptions{
		Jobs:        repo,
		Topics:      testSchedulerTopics,
		FireHourUTC: 6,
		Logger:      slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	return svc
}

func TestNewSchedulerService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)

	t.Run("success", func(t *testing.T) {
		svc, err := NewSchedulerService(SchedulerServiceOptions{
			Jobs:   repo,
			Topics: testSchedulerTopics,
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("missing repo", func(t *testing.T) {
		svc, err := NewSchedulerService(SchedulerServiceOptions{Topics: testSchedulerTopics})
		require.Error(t, err)
		assert.Nil(t, svc)
	})

	t.Run("missing topics", func(t *testing.T) {
		svc, err := NewSchedulerService(SchedulerServiceOptions{Jobs: repo})
		require.Error(t, err)
		assert.Nil(t, svc)
	})

	t.Run("invalid fire hour", func(t *testing.T) {
		svc, err := NewSchedulerService(SchedulerServiceOptions{
			Jobs:        repo,
			Topics:      testSchedulerTopics,
			FireHourUTC: 24,
		})
		require.Error(t, err)
		assert.Nil(t, svc)
	})
}

func TestSchedulerTickFiresOncePerDay(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc := newTestSchedulerService(t, repo)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)
	fireDate := "2026-03-14"

	var created []string
	repo.EXPECT().
		Create(ctx, gomock.Any()).
		Times(len(testSchedulerTopics)).
		DoAndReturn(func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			assert.Equal(t, model.JobKindScheduled, req.Kind)

			var meta map[string]string
			require.NoError(t, json.Unmarshal(req.Metadata, &meta))
			assert.Equal(t, fmt.Sprintf("daily:%s:%s", req.Topic, fireDate), meta["scheduler.fire_key"])

			created = append(created, req.Topic)
			return &model.Job{ID: "job-" + req.Topic, Topic: req.Topic}, nil
		})

	count, err := svc.Tick(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, len(testSchedulerTopics), count)
	assert.ElementsMatch(t, testSchedulerTopics, created)

	// Same day, later tick: in-memory guard suppresses the batch.
	count, err = svc.Tick(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSchedulerTickBeforeFireHour(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc := newTestSchedulerService(t, repo)

	now := time.Date(2026, 3, 14, 5, 59, 0, 0, time.UTC)

	count, err := svc.Tick(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSchedulerTickNextDayFiresAgain(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc := newTestSchedulerService(t, repo)
	ctx := context.Background()

	repo.EXPECT().
		Create(ctx, gomock.Any()).
		Times(2 * len(testSchedulerTopics)).
		Return(&model.Job{ID: "job-1"}, nil)

	day1 := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	count, err := svc.Tick(ctx, day1)
	require.NoError(t, err)
	assert.Equal(t, len(testSchedulerTopics), count)

	day2 := day1.Add(24 * time.Hour)
	count, err = svc.Tick(ctx, day2)
	require.NoError(t, err)
	assert.Equal(t, len(testSchedulerTopics), count)
}

func TestSchedulerTickDuplicateFireKeyIsNoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc := newTestSchedulerService(t, repo)
	ctx := context.Background()

	dup := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	repo.EXPECT().
		Create(ctx, gomock.Any()).
		Times(len(testSchedulerTopics)).
		Return(nil, dup)

	now := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)
	count, err := svc.Tick(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, count)

	// All topics resolved this fire date, so the guard is set.
	count, err = svc.Tick(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSchedulerTickRetriesFailedTopics(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc := newTestSchedulerService(t, repo)
	ctx := context.Background()

	now := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)

	// First tick: one topic fails, the others succeed.
	repo.EXPECT().
		Create(ctx, gomock.Any()).
		Times(len(testSchedulerTopics)).
		DoAndReturn(func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			if req.Topic == "pharmaceuticals" {
				return nil, errors.New("db unavailable")
			}
			return &model.Job{ID: "job-" + req.Topic}, nil
		})

	count, err := svc.Tick(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, len(testSchedulerTopics)-1, count)

	// Second tick, same day: the batch fires again because the fire date was
	// not recorded; already-created topics dedup on the fire key.
	dup := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	repo.EXPECT().
		Create(ctx, gomock.Any()).
		Times(len(testSchedulerTopics)).
		DoAndReturn(func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
			if req.Topic == "pharmaceuticals" {
				return &model.Job{ID: "job-pharmaceuticals"}, nil
			}
			return nil, dup
		})

	count, err = svc.Tick(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSchedulerTickWithTimeProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	tp := testutil.NewTestTimeProvider(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	svc, err := NewSchedulerService(SchedulerServiceOptions{
		Jobs:         repo,
		Topics:       []string{"energy"},
		FireHourUTC:  6,
		TimeProvider: tp,
		Logger:       slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(&model.Job{ID: "job-1"}, nil)

	count, err := svc.Tick(context.Background(), tp.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
