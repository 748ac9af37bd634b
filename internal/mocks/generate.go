// Package mocks provides mock implementations for testing the chainscope job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository
// and capability interfaces. The mocks are generated using go:generate directives and provide
// a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, ReserveNext, WaitForNotification, Heartbeat, UpdateProgress, Complete, Fail, Cancel, Stats
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/chainscope/chainscope/internal/core JobRepository

// Generate mock for ReportRepository interface from internal/core package.
// This creates MockReportRepository with methods for all ReportRepository interface methods:
// Create, GetByID
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=report_repository_mock.go github.com/chainscope/chainscope/internal/core ReportRepository

// Generate mock for EvidenceSearcher interface from internal/core package.
// This creates MockEvidenceSearcher with methods for all EvidenceSearcher interface methods:
// Search
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=evidence_searcher_mock.go github.com/chainscope/chainscope/internal/core EvidenceSearcher

// Generate mock for FindingsSynthesizer interface from internal/core package.
// This creates MockFindingsSynthesizer with methods for all FindingsSynthesizer interface methods:
// Synthesize
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=findings_synthesizer_mock.go github.com/chainscope/chainscope/internal/core FindingsSynthesizer

// Generate mock for ReportCache interface from internal/core package.
// This creates MockReportCache with methods for all ReportCache interface methods:
// Get, Set
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=report_cache_mock.go github.com/chainscope/chainscope/internal/core ReportCache

// Generate mock for ReaperRepository interface from internal/core package.
// This creates MockReaperRepository with methods for all ReaperRepository interface methods:
// RequeueExpiredLeases, FailStalePendingJobs, DeleteOldJobs
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/chainscope/chainscope/internal/core ReaperRepository
