package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/chainscope/chainscope/internal/domain/research"
	apperrors "github.com/chainscope/chainscope/internal/errors"
	"github.com/chainscope/chainscope/internal/mocks"
)

func testEvidence() []research.Evidence {
	return []research.Evidence{
		{URL: "https://example.com/a", Title: "Port strike update", Content: "Dockworkers extended the strike."},
		{URL: "https://example.com/b", Title: "Chip supply brief", Content: "Substrate lead times doubled."},
	}
}

func testFindings() *research.Findings {
	return &research.Findings{
		Summary:        "Logistics disruption concentrated at two ports.",
		FragilityScore: 6,
		RiskItems: []research.RiskItem{
			{Category: "logistics", ImpactScore: 7, Description: "Strike halts container throughput."},
		},
		Citations: []research.Citation{
			{URL: "https://example.com/a", Title: "Port strike update"},
		},
	}
}

func newTestResearchService(t *testing.T) (*ResearchService, *mocks.MockEvidenceSearcher, *mocks.MockFindingsSynthesizer) {
	t.Helper()
	ctrl := gomock.NewController(t)
	searcher := mocks.NewMockEvidenceSearcher(ctrl)
	synthesizer := mocks.NewMockFindingsSynthesizer(ctrl)
	svc := MustNewResearchService(ResearchServiceOptions{
		Searcher:    searcher,
		Synthesizer: synthesizer,
		Logger:      slog.New(slog.DiscardHandler),
	})
	return svc, searcher, synthesizer
}

func TestNewResearchService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	searcher := mocks.NewMockEvidenceSearcher(ctrl)
	synthesizer := mocks.NewMockFindingsSynthesizer(ctrl)

	t.Run("success with defaults", func(t *testing.T) {
		svc, err := NewResearchService(ResearchServiceOptions{
			Searcher:    searcher,
			Synthesizer: synthesizer,
		})
		require.NoError(t, err)
		assert.Equal(t, defaultMaxEvidenceResults, svc.maxResults)
	})

	t.Run("missing searcher", func(t *testing.T) {
		svc, err := NewResearchService(ResearchServiceOptions{Synthesizer: synthesizer})
		require.Error(t, err)
		assert.Nil(t, svc)
	})

	t.Run("missing synthesizer", func(t *testing.T) {
		svc, err := NewResearchService(ResearchServiceOptions{Searcher: searcher})
		require.Error(t, err)
		assert.Nil(t, svc)
	})
}

func TestResearchServiceGather(t *testing.T) {
	ctx := context.Background()

	t.Run("returns evidence", func(t *testing.T) {
		svc, searcher, _ := newTestResearchService(t)

		evidence := testEvidence()
		searcher.EXPECT().
			Search(ctx, research.Query("semiconductors"), defaultMaxEvidenceResults).
			Return(evidence, nil)

		items, err := svc.Gather(ctx, "semiconductors")
		require.NoError(t, err)
		assert.Equal(t, evidence, items)
	})

	t.Run("search failure wrapped as gather stage error", func(t *testing.T) {
		svc, searcher, _ := newTestResearchService(t)

		searchErr := errors.New("upstream 503")
		searcher.EXPECT().Search(ctx, gomock.Any(), gomock.Any()).Return(nil, searchErr)

		items, err := svc.Gather(ctx, "semiconductors")
		require.Error(t, err)
		assert.Nil(t, items)

		var pipelineErr *apperrors.PipelineError
		require.ErrorAs(t, err, &pipelineErr)
		assert.Equal(t, apperrors.StageGather, pipelineErr.Stage)
		assert.ErrorIs(t, err, searchErr)
	})

	t.Run("empty result set is a gather failure", func(t *testing.T) {
		svc, searcher, _ := newTestResearchService(t)

		searcher.EXPECT().Search(ctx, gomock.Any(), gomock.Any()).Return([]research.Evidence{}, nil)

		items, err := svc.Gather(ctx, "semiconductors")
		require.Error(t, err)
		assert.Nil(t, items)

		var pipelineErr *apperrors.PipelineError
		require.ErrorAs(t, err, &pipelineErr)
		assert.Equal(t, apperrors.StageGather, pipelineErr.Stage)
	})
}

func TestResearchServiceSynthesize(t *testing.T) {
	ctx := context.Background()

	t.Run("returns validated findings", func(t *testing.T) {
		svc, _, synthesizer := newTestResearchService(t)

		evidence := testEvidence()
		findings := testFindings()
		synthesizer.EXPECT().Synthesize(ctx, "semiconductors", evidence).Return(findings, nil)

		got, err := svc.Synthesize(ctx, "semiconductors", evidence)
		require.NoError(t, err)
		assert.Equal(t, findings, got)
	})

	t.Run("synthesizer failure wrapped as synthesize stage error", func(t *testing.T) {
		svc, _, synthesizer := newTestResearchService(t)

		synthErr := errors.New("model refused")
		synthesizer.EXPECT().Synthesize(ctx, gomock.Any(), gomock.Any()).Return(nil, synthErr)

		got, err := svc.Synthesize(ctx, "semiconductors", testEvidence())
		require.Error(t, err)
		assert.Nil(t, got)

		var pipelineErr *apperrors.PipelineError
		require.ErrorAs(t, err, &pipelineErr)
		assert.Equal(t, apperrors.StageSynthesize, pipelineErr.Stage)
		assert.ErrorIs(t, err, synthErr)
	})

	t.Run("invalid findings rejected", func(t *testing.T) {
		svc, _, synthesizer := newTestResearchService(t)

		synthesizer.EXPECT().
			Synthesize(ctx, gomock.Any(), gomock.Any()).
			Return(&research.Findings{FragilityScore: 6}, nil)

		got, err := svc.Synthesize(ctx, "semiconductors", testEvidence())
		require.Error(t, err)
		assert.Nil(t, got)

		var pipelineErr *apperrors.PipelineError
		require.ErrorAs(t, err, &pipelineErr)
		assert.Equal(t, apperrors.StageSynthesize, pipelineErr.Stage)
	})

	t.Run("out-of-range score accepted", func(t *testing.T) {
		svc, _, synthesizer := newTestResearchService(t)

		findings := testFindings()
		findings.FragilityScore = 14
		synthesizer.EXPECT().Synthesize(ctx, gomock.Any(), gomock.Any()).Return(findings, nil)

		got, err := svc.Synthesize(ctx, "semiconductors", testEvidence())
		require.NoError(t, err)
		assert.Equal(t, 14, got.FragilityScore)
	})
}

func TestResearchServiceRun(t *testing.T) {
	ctx := context.Background()

	t.Run("runs both stages in order", func(t *testing.T) {
		svc, searcher, synthesizer := newTestResearchService(t)

		evidence := testEvidence()
		findings := testFindings()
		gomock.InOrder(
			searcher.EXPECT().
				Search(ctx, research.Query("automotive"), defaultMaxEvidenceResults).
				Return(evidence, nil),
			synthesizer.EXPECT().Synthesize(ctx, "automotive", evidence).Return(findings, nil),
		)

		got, err := svc.Run(ctx, "automotive")
		require.NoError(t, err)
		assert.Equal(t, findings, got)
	})

	t.Run("gather failure skips synthesis", func(t *testing.T) {
		svc, searcher, _ := newTestResearchService(t)

		searcher.EXPECT().Search(ctx, gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

		got, err := svc.Run(ctx, "automotive")
		require.Error(t, err)
		assert.Nil(t, got)

		var pipelineErr *apperrors.PipelineError
		require.ErrorAs(t, err, &pipelineErr)
		assert.Equal(t, apperrors.StageGather, pipelineErr.Stage)
	})
}
