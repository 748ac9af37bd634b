package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chainscope/chainscope/internal/core"
	"github.com/chainscope/chainscope/internal/domain/research"
	apperrors "github.com/chainscope/chainscope/internal/errors"
)

const defaultMaxEvidenceResults = 5

// ResearchServiceOptions groups dependencies for ResearchService.
type ResearchServiceOptions struct {
	Searcher    core.EvidenceSearcher    // Required: evidence-collection capability
	Synthesizer core.FindingsSynthesizer // Required: structured-synthesis capability
	MaxResults  int                      // Optional: evidence cap per run, default 5
	Logger      *slog.Logger             // Optional: structured logger
}

// ResearchService sequences the two pipeline stages for one topic: gather
// evidence, then synthesize findings. Stages are not retried here; the task
// executor retries whole runs against the job's budget, because a partial
// success has no resume point worth preserving across external API calls.
type ResearchService struct {
	searcher    core.EvidenceSearcher
	synthesizer core.FindingsSynthesizer
	maxResults  int
	logger      *slog.Logger
}

// NewResearchService constructs a new ResearchService.
func NewResearchService(opts ResearchServiceOptions) (*ResearchService, error) {
	if opts.Searcher == nil {
		return nil, errors.New("EvidenceSearcher is required")
	}
	if opts.Synthesizer == nil {
		return nil, errors.New("FindingsSynthesizer is required")
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxEvidenceResults
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "research_service")
	}

	return &ResearchService{
		searcher:    opts.Searcher,
		synthesizer: opts.Synthesizer,
		maxResults:  maxResults,
		logger:      logger,
	}, nil
}

// MustNewResearchService constructs a new ResearchService and panics on error.
func MustNewResearchService(opts ResearchServiceOptions) *ResearchService {
	svc, err := NewResearchService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ResearchService: %v", err))
	}
	return svc
}

// Gather runs the evidence-collection stage for a topic.
func (s *ResearchService) Gather(ctx context.Context, topic string) ([]research.Evidence, error) {
	query := research.Query(topic)

	items, err := s.searcher.Search(ctx, query, s.maxResults)
	if err != nil {
		return nil, apperrors.NewPipelineError(apperrors.StageGather, err)
	}
	if len(items) == 0 {
		return nil, apperrors.NewPipelineError(apperrors.StageGather, errors.New("no usable evidence returned"))
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "evidence gathered", "topic", topic, "items", len(items))
	}

	return items, nil
}

// Synthesize runs the structured-synthesis stage over gathered evidence.
// Out-of-range scores are a data-quality concern, logged but accepted.
func (s *ResearchService) Synthesize(ctx context.Context, topic string, evidence []research.Evidence) (*research.Findings, error) {
	findings, err := s.synthesizer.Synthesize(ctx, topic, evidence)
	if err != nil {
		return nil, apperrors.NewPipelineError(apperrors.StageSynthesize, err)
	}

	if validateErr := findings.Validate(); validateErr != nil {
		return nil, apperrors.NewPipelineError(apperrors.StageSynthesize, validateErr)
	}

	if s.logger != nil {
		for _, warning := range findings.ScoreWarnings() {
			s.logger.WarnContext(ctx, "synthesis score outside advisory range",
				"topic", topic, "detail", warning)
		}
	}

	return findings, nil
}

// Run executes the full pipeline for a topic and returns the findings, or a
// PipelineError naming the failed stage.
func (s *ResearchService) Run(ctx context.Context, topic string) (*research.Findings, error) {
	evidence, err := s.Gather(ctx, topic)
	if err != nil {
		return nil, err
	}
	return s.Synthesize(ctx, topic, evidence)
}
