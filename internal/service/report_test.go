package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/chainscope/chainscope/internal/core"
	"github.com/chainscope/chainscope/internal/data"
	"github.com/chainscope/chainscope/internal/domain/model"
	"github.com/chainscope/chainscope/internal/domain/research"
	apperrors "github.com/chainscope/chainscope/internal/errors"
	"github.com/chainscope/chainscope/internal/mocks"
)

func testReport() *model.Report {
	return &model.Report{
		ID:             "report-1",
		Topic:          "Semiconductors",
		FragilityScore: 7,
		Summary:        "Persistent packaging capacity constraints in Southeast Asia.",
		Alerts:         []string{"Port congestion at Kaohsiung"},
		RiskItems: []model.RiskItem{
			{Category: "logistics", ImpactScore: 8, Description: "Single-source substrate supplier with no qualified second source."},
		},
		Citations: []model.Citation{
			{URL: "https://example.com/report", Title: "Substrate shortage deepens"},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestNewReportService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockReportRepository(ctrl)

	t.Run("success", func(t *testing.T) {
		svc, err := NewReportService(ReportServiceOptions{Repo: repo})
		require.NoError(t, err)
		assert.NotNil(t, svc)
		assert.Equal(t, time.Hour, svc.cacheTTL)
	})

	t.Run("custom ttl", func(t *testing.T) {
		svc, err := NewReportService(ReportServiceOptions{Repo: repo, CacheTTL: 5 * time.Minute})
		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, svc.cacheTTL)
	})

	t.Run("missing repo", func(t *testing.T) {
		svc, err := NewReportService(ReportServiceOptions{})
		require.Error(t, err)
		assert.Nil(t, svc)
	})
}

func TestMustNewReportServicePanics(t *testing.T) {
	assert.Panics(t, func() {
		MustNewReportService(ReportServiceOptions{})
	})
}

func TestReportServiceCreate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockReportRepository(ctrl)
	svc := MustNewReportService(ReportServiceOptions{Repo: repo})
	ctx := context.Background()

	req := &core.CreateReportRequest{
		Topic: "Semiconductors",
		Findings: &research.Findings{
			Summary:        "Constrained substrate supply.",
			FragilityScore: 7,
		},
	}
	expected := testReport()
	repo.EXPECT().Create(ctx, req).Return(expected, nil)

	report, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, expected, report)
}

func TestReportServiceGet(t *testing.T) {
	ctx := context.Background()

	t.Run("empty id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		svc := MustNewReportService(ReportServiceOptions{Repo: mocks.NewMockReportRepository(ctrl)})

		report, err := svc.Get(ctx, "")
		require.Error(t, err)
		assert.Nil(t, report)
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})

	t.Run("db read without cache", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockReportRepository(ctrl)
		svc := MustNewReportService(ReportServiceOptions{Repo: repo})

		expected := testReport()
		repo.EXPECT().GetByID(ctx, "report-1").Return(expected, nil)

		report, err := svc.Get(ctx, "report-1")
		require.NoError(t, err)
		assert.Equal(t, expected, report)
	})

	t.Run("not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockReportRepository(ctrl)
		svc := MustNewReportService(ReportServiceOptions{Repo: repo})

		repo.EXPECT().GetByID(ctx, "missing").Return(nil, data.ErrReportNotFound)

		report, err := svc.Get(ctx, "missing")
		require.Error(t, err)
		assert.Nil(t, report)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})

	t.Run("cache hit skips db", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockReportRepository(ctrl)
		cache := mocks.NewMockReportCache(ctrl)
		svc := MustNewReportService(ReportServiceOptions{Repo: repo, Cache: cache})

		cached := testReport()
		raw, err := json.Marshal(cached)
		require.NoError(t, err)
		cache.EXPECT().Get(ctx, "report:report-1").Return(string(raw), nil)

		report, err := svc.Get(ctx, "report-1")
		require.NoError(t, err)
		assert.Equal(t, cached.ID, report.ID)
		assert.Equal(t, cached.FragilityScore, report.FragilityScore)
	})

	t.Run("cache miss falls through and populates", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockReportRepository(ctrl)
		cache := mocks.NewMockReportCache(ctrl)
		svc := MustNewReportService(ReportServiceOptions{Repo: repo, Cache: cache, CacheTTL: time.Minute})

		expected := testReport()
		cache.EXPECT().Get(ctx, "report:report-1").Return("", data.ErrCacheMiss)
		repo.EXPECT().GetByID(ctx, "report-1").Return(expected, nil)
		cache.EXPECT().
			Set(ctx, "report:report-1", gomock.Any(), time.Minute).
			DoAndReturn(func(_ context.Context, _ string, value string, _ time.Duration) error {
				var stored model.Report
				require.NoError(t, json.Unmarshal([]byte(value), &stored))
				assert.Equal(t, expected.ID, stored.ID)
				return nil
			})

		report, err := svc.Get(ctx, "report-1")
		require.NoError(t, err)
		assert.Equal(t, expected, report)
	})

	t.Run("cache errors degrade to db read", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockReportRepository(ctrl)
		cache := mocks.NewMockReportCache(ctrl)
		svc := MustNewReportService(ReportServiceOptions{Repo: repo, Cache: cache})

		expected := testReport()
		cache.EXPECT().Get(ctx, "report:report-1").Return("", errors.New("redis down"))
		repo.EXPECT().GetByID(ctx, "report-1").Return(expected, nil)
		cache.EXPECT().Set(ctx, "report:report-1", gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

		report, err := svc.Get(ctx, "report-1")
		require.NoError(t, err)
		assert.Equal(t, expected, report)
	})

	t.Run("corrupt cache entry falls back to db", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockReportRepository(ctrl)
		cache := mocks.NewMockReportCache(ctrl)
		svc := MustNewReportService(ReportServiceOptions{Repo: repo, Cache: cache})

		expected := testReport()
		cache.EXPECT().Get(ctx, "report:report-1").Return("{not json", nil)
		repo.EXPECT().GetByID(ctx, "report-1").Return(expected, nil)
		cache.EXPECT().Set(ctx, "report:report-1", gomock.Any(), gomock.Any()).Return(nil)

		report, err := svc.Get(ctx, "report-1")
		require.NoError(t, err)
		assert.Equal(t, expected, report)
	})
}
