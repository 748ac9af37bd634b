// Package workflowtest provides workflow testing utilities and helpers for the chainscope job system.
package workflowtest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chainscope/chainscope/internal/core"
	"github.com/chainscope/chainscope/internal/domain/model"
	"github.com/chainscope/chainscope/internal/domain/research"
	httpx "github.com/chainscope/chainscope/internal/http"
	"github.com/chainscope/chainscope/internal/service"
	"github.com/chainscope/chainscope/internal/testutil"
)

// RepositoryProvider is a simple interface for providing repositories.
// This avoids import cycles by letting callers provide their own implementations.
type RepositoryProvider interface {
	JobRepository() core.JobRepository
	ReportRepository() core.ReportRepository
}

// CacheProvider provides a report cache given a Redis client created by the harness.
type CacheProvider interface {
	ReportCache(client *redis.Client) core.ReportCache
}

// WorkflowTestHarness provides utilities for end-to-end workflow testing.
//
//nolint:revive // WorkflowTestHarness is intentionally verbose for clarity in test code.
type WorkflowTestHarness struct {
	t  testutil.TestingTB
	ts *httptest.Server

	// Repositories (using interfaces to avoid import cycles)
	JobRepo    core.JobRepository
	ReportRepo core.ReportRepository

	// Services
	JobSvc    *service.JobService
	ReportSvc *service.ReportService

	// Optional Redis components
	RedisAddr   string
	RedisClient *redis.Client
	Cache       core.ReportCache
}

// WorkflowTestOptions configures the workflow test harness.
//
//nolint:revive // WorkflowTestOptions is intentionally verbose for clarity in test code.
type WorkflowTestOptions struct {
	// EnableRedis enables the Redis-backed report cache
	EnableRedis bool
	// RedisAddr overrides the default Redis test address
	RedisAddr string
	// JobLease sets the default job lease duration
	JobLease time.Duration
	// CacheTTL sets the report cache TTL
	CacheTTL time.Duration
	// RepositoryProvider provides repositories (required to avoid import cycles)
	RepositoryProvider RepositoryProvider
	// CacheProvider provides the report cache (optional, only used if EnableRedis is true)
	CacheProvider CacheProvider
}

// NewWorkflowTestHarness creates a new workflow test harness with all components wired up.
func NewWorkflowTestHarness(t testutil.TestingTB, opts WorkflowTestOptions) *WorkflowTestHarness {
	t.Helper()

	// Set defaults
	if opts.JobLease == 0 {
		opts.JobLease = 30 * time.Second
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.RepositoryProvider == nil {
		t.Fatalf("RepositoryProvider is required to avoid import cycles")
	}

	h := &WorkflowTestHarness{t: t}

	// Wire repositories using provider
	h.JobRepo = opts.RepositoryProvider.JobRepository()
	h.ReportRepo = opts.RepositoryProvider.ReportRepository()

	// Setup Redis components if enabled
	if opts.EnableRedis {
		h.setupRedis(opts.RedisAddr, opts.CacheProvider)
	}

	// Wire services
	h.JobSvc = service.MustNewJobService(service.JobServiceOptions{
		Repo:         h.JobRepo,
		DefaultLease: opts.JobLease,
	})
	h.ReportSvc = service.MustNewReportService(service.ReportServiceOptions{
		Repo:     h.ReportRepo,
		Cache:    h.Cache,
		CacheTTL: opts.CacheTTL,
	})

	h.setupHTTPServer()
	return h
}

func (h *WorkflowTestHarness) setupRedis(addr string, cacheProvider CacheProvider) {
	if addr == "" {
		detected, ok := testutil.GetTestRedisAddr(h.t)
		if !ok {
			h.t.Skip("Redis not available for workflow testing")
		}
		addr = detected
	}
	h.RedisAddr = addr
	h.RedisClient = testutil.SetupTestRedis(h.t)
	if cacheProvider != nil {
		h.Cache = cacheProvider.ReportCache(h.RedisClient)
	}
}

func (h *WorkflowTestHarness) setupHTTPServer() {
	handler := httpx.NewRouter(httpx.RouterServices{
		Jobs:    h.JobSvc,
		Reports: h.ReportSvc,
		Logger:  slog.New(slog.DiscardHandler),
	})
	h.ts = httptest.NewServer(handler)
}

// Close shuts down the harness and releases its resources.
func (h *WorkflowTestHarness) Close() {
	if h.ts != nil {
		h.ts.Close()
	}
	h.JobSvc.StopAllListeners()
	if h.RedisClient != nil {
		if err := h.RedisClient.Close(); err != nil {
			h.t.Logf("warning: failed to close redis client: %v", err)
		}
	}
}

// BaseURL returns the base URL of the test HTTP server.
func (h *WorkflowTestHarness) BaseURL() string {
	return h.ts.URL
}

// HTTPClient wraps HTTP interactions with the test server.
type HTTPClient struct {
	t       testutil.TestingTB
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates an HTTP client bound to the harness server.
func (h *WorkflowTestHarness) NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		t:       h.t,
		baseURL: h.ts.URL,
		client:  h.ts.Client(),
	}
}

// DoJSON performs an HTTP request with a JSON payload and returns the response.
func (c *HTTPClient) DoJSON(method, path string, payload any) *http.Response {
	c.t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		c.t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *HTTPClient) decodeJob(resp *http.Response, wantStatus int) model.Job {
	c.t.Helper()
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.t.Logf("warning: close response body: %v", cerr)
		}
	}()

	if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("unexpected status %d (want %d): %s", resp.StatusCode, wantStatus, raw)
	}

	var job model.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		c.t.Fatalf("decode job: %v", err)
	}
	return job
}

// SubmitResearch submits a research job over HTTP and returns the accepted job.
func (c *HTTPClient) SubmitResearch(topic string) model.Job {
	c.t.Helper()
	resp := c.DoJSON(http.MethodPost, "/api/research", map[string]string{"topic": topic})
	return c.decodeJob(resp, http.StatusAccepted)
}

// GetJobStatus fetches the status view of a job over HTTP.
func (c *HTTPClient) GetJobStatus(jobID string) model.JobStatusResponse {
	c.t.Helper()
	resp := c.DoJSON(http.MethodGet, "/api/jobs/"+jobID+"/status", nil)
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.t.Logf("warning: close response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("unexpected status %d: %s", resp.StatusCode, raw)
	}

	var status model.JobStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		c.t.Fatalf("decode job status: %v", err)
	}
	return status
}

// CancelJob cancels a job over HTTP.
func (c *HTTPClient) CancelJob(jobID string) {
	c.t.Helper()
	resp := c.DoJSON(http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.t.Logf("warning: close response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("cancel job %s: unexpected status %d: %s", jobID, resp.StatusCode, raw)
	}
}

// RetryJob requests a manual re-run of a finished job over HTTP.
func (c *HTTPClient) RetryJob(jobID string) model.Job {
	c.t.Helper()
	resp := c.DoJSON(http.MethodPost, "/api/jobs/"+jobID+"/retry", nil)
	return c.decodeJob(resp, http.StatusAccepted)
}

// GetReport fetches a report over HTTP.
func (c *HTTPClient) GetReport(reportID string) model.Report {
	c.t.Helper()
	resp := c.DoJSON(http.MethodGet, "/api/reports/"+reportID, nil)
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.t.Logf("warning: close response body: %v", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("unexpected status %d: %s", resp.StatusCode, raw)
	}

	var report model.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		c.t.Fatalf("decode report: %v", err)
	}
	return report
}

// WorkflowHelpers provides higher-level workflow actions combining the HTTP
// surface with direct service calls for the worker side of the pipeline.
type WorkflowHelpers struct {
	harness *WorkflowTestHarness
	client  *HTTPClient
}

// NewWorkflowHelpers creates workflow helpers.
func (h *WorkflowTestHarness) NewWorkflowHelpers() *WorkflowHelpers {
	return &WorkflowHelpers{
		harness: h,
		client:  h.NewHTTPClient(),
	}
}

// TestFindings returns a small findings payload for completing pipelines in tests.
func TestFindings() *research.Findings {
	return &research.Findings{
		FragilityScore: 6,
		Summary:        "Concentrated supplier base with limited alternatives.",
		Alerts:         []string{"single-source dependency on one region"},
		RiskItems: []research.RiskItem{
			{Category: "geographic concentration", ImpactScore: 7, Description: "production clustered in one region"},
		},
		Citations: []research.Citation{
			{URL: "https://example.com/report", Title: "Industry outlook"},
		},
	}
}

// RunCompleteWorkflow submits a job over HTTP, processes it the way a worker
// would, and returns the completed job status and the persisted report.
func (w *WorkflowHelpers) RunCompleteWorkflow(topic string) (model.JobStatusResponse, *model.Report) {
	w.harness.t.Helper()
	ctx := context.Background()

	submitted := w.client.SubmitResearch(topic)

	reserved, err := w.harness.JobSvc.ReserveNext(ctx, 30*time.Second)
	if err != nil {
		w.harness.t.Fatalf("reserve job: %v", err)
	}
	if reserved.ID != submitted.ID {
		w.harness.t.Fatalf("reserved job %s, expected %s", reserved.ID, submitted.ID)
	}

	for _, progress := range []int{model.ProgressGathering, model.ProgressSynthesizing} {
		ok, progressErr := w.harness.JobSvc.UpdateProgress(ctx, reserved.ID, progress)
		if progressErr != nil {
			w.harness.t.Fatalf("update progress to %d: %v", progress, progressErr)
		}
		if !ok {
			w.harness.t.Fatalf("job %s no longer processing at progress %d", reserved.ID, progress)
		}
	}

	report, err := w.harness.ReportSvc.Create(ctx, &core.CreateReportRequest{
		Topic:    topic,
		Findings: TestFindings(),
	})
	if err != nil {
		w.harness.t.Fatalf("create report: %v", err)
	}

	ok, err := w.harness.JobSvc.Complete(ctx, reserved.ID, report.ID)
	if err != nil {
		w.harness.t.Fatalf("complete job: %v", err)
	}
	if !ok {
		w.harness.t.Fatalf("job %s was not completed", reserved.ID)
	}

	status := w.client.GetJobStatus(reserved.ID)
	return status, report
}

// VerifyJobCompleted asserts a job reached the completed state with full progress.
func (w *WorkflowHelpers) VerifyJobCompleted(jobID string) {
	w.harness.t.Helper()

	status := w.client.GetJobStatus(jobID)
	if status.Status != model.JobStatusCompleted {
		w.harness.t.Fatalf("job %s status = %s, want completed", jobID, status.Status)
	}
	if status.Progress != model.ProgressDone {
		w.harness.t.Fatalf("job %s progress = %d, want %d", jobID, status.Progress, model.ProgressDone)
	}
	if status.ReportID == nil {
		w.harness.t.Fatalf("job %s has no report attached", jobID)
	}
}

// WithWorkflowHarness sets up a harness, runs the provided function, and tears down.
func WithWorkflowHarness(t testutil.TestingTB, opts WorkflowTestOptions, fn func(*WorkflowTestHarness)) {
	t.Helper()
	h := NewWorkflowTestHarness(t, opts)
	defer h.Close()
	fn(h)
}

// DefaultWorkflowOptions returns options for a database-only workflow harness.
func DefaultWorkflowOptions(provider RepositoryProvider) WorkflowTestOptions {
	return WorkflowTestOptions{
		RepositoryProvider: provider,
	}
}

// RedisWorkflowOptions returns options for a workflow harness with the report cache enabled.
func RedisWorkflowOptions(provider RepositoryProvider, cache CacheProvider) WorkflowTestOptions {
	return WorkflowTestOptions{
		EnableRedis:        true,
		RepositoryProvider: provider,
		CacheProvider:      cache,
	}
}
