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
	apperrors "github.com/chainscope/chainscope/internal/errors"
)

const reportCacheKeyPrefix = "report:"

// ReportServiceOptions groups dependencies for ReportService.
type ReportServiceOptions struct {
	Repo     core.ReportRepository // Required: report repository
	Cache    core.ReportCache      // Optional: read-through cache
	CacheTTL time.Duration         // Optional: cache entry lifetime, default 1h
	Logger   *slog.Logger          // Optional: structured logger
}

// ReportService provides read and write access to research reports. Reports
// are immutable after creation, so the read path caches aggressively: a
// cache hit never needs invalidation.
type ReportService struct {
	repo     core.ReportRepository
	cache    core.ReportCache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewReportService constructs a new ReportService.
func NewReportService(opts ReportServiceOptions) (*ReportService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReportRepository is required")
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "report_service")
	}

	return &ReportService{
		repo:     opts.Repo,
		cache:    opts.Cache,
		cacheTTL: ttl,
		logger:   logger,
	}, nil
}

// MustNewReportService constructs a new ReportService and panics on error.
func MustNewReportService(opts ReportServiceOptions) *ReportService {
	svc, err := NewReportService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ReportService: %v", err))
	}
	return svc
}

// Create persists a report from pipeline findings.
func (s *ReportService) Create(ctx context.Context, req *core.CreateReportRequest) (*model.Report, error) {
	report, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "report created",
			"id", report.ID,
			"topic", report.Topic,
			"fragility_score", report.FragilityScore,
		)
	}

	return report, nil
}

// Get returns a report by ID, consulting the cache first. Cache failures
// degrade to a database read, never to a request failure.
func (s *ReportService) Get(ctx context.Context, id string) (*model.Report, error) {
	if id == "" {
		return nil, apperrors.Validation("report id is required")
	}

	if report, ok := s.cacheLookup(ctx, id); ok {
		return report, nil
	}

	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrReportNotFound) {
			return nil, apperrors.NotFoundf("report %s not found", id)
		}
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}

	s.cacheStore(ctx, report)
	return report, nil
}

func (s *ReportService) cacheLookup(ctx context.Context, id string) (*model.Report, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, reportCacheKeyPrefix+id)
	if err != nil {
		if !errors.Is(err, data.ErrCacheMiss) && s.logger != nil {
			s.logger.WarnContext(ctx, "report cache read failed", "id", id, "error", err)
		}
		return nil, false
	}

	var report model.Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "report cache entry corrupt, falling back to db", "id", id, "error", err)
		}
		return nil, false
	}
	return &report, true
}

func (s *ReportService) cacheStore(ctx context.Context, report *model.Report) {
	if s.cache == nil || report == nil {
		return
	}

	raw, err := json.Marshal(report)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "marshal report for cache failed", "id", report.ID, "error", err)
		}
		return
	}

	if err := s.cache.Set(ctx, reportCacheKeyPrefix+report.ID, string(raw), s.cacheTTL); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "report cache write failed", "id", report.ID, "error", err)
	}
}
