package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chainscope/chainscope/internal/data"
	"github.com/chainscope/chainscope/internal/domain/model"
	"github.com/redis/go-redis/v9"
)

const reportCacheKeyPrefix = "report:"

type showReportOptions struct {
	ReportID string
	RawJSON  bool
}

type clearReportCacheOptions struct {
	ReportID string
	All      bool
	DryRun   bool
	Yes      bool
}

func runShowReport(cmdCtx *commandContext, args []string) error {
	opts, err := parseShowReportFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantDB:    true,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	payload, src, err := fetchReport(ctx, reportFetchOptions{
		DB:       db,
		Redis:    redisClient,
		Logger:   cmdCtx.Logger,
		ReportID: opts.ReportID,
	})
	if err != nil {
		return err
	}

	return displayReport(opts, payload, src)
}

func runClearReportCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseClearReportCacheFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(reportCacheConfirmOptions{opts}, "clear cached reports"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	deleted, err := deleteReportCacheKeys(ctx, redisClient, cmdCtx.Logger, opts)
	if err != nil {
		return err
	}

	if opts.DryRun {
		if writeErr := writef(os.Stdout, "Dry-run: would delete %d cached reports\n", deleted); writeErr != nil {
			return fmt.Errorf("print dry-run summary: %w", writeErr)
		}
		return nil
	}

	if writeErr := writef(os.Stdout, "Deleted %d cached reports\n", deleted); writeErr != nil {
		return fmt.Errorf("print delete summary: %w", writeErr)
	}
	return nil
}

type reportCacheConfirmOptions struct {
	opts clearReportCacheOptions
}

func (r reportCacheConfirmOptions) IsDryRun() bool { return r.opts.DryRun }
func (r reportCacheConfirmOptions) IsYes() bool    { return r.opts.Yes }
func (r reportCacheConfirmOptions) GetWarning() string {
	return "WARNING: this will remove every cached report entry from Redis."
}

func (r reportCacheConfirmOptions) GetTarget() string {
	if r.opts.All {
		return ""
	}
	return fmt.Sprintf("report %q", r.opts.ReportID)
}

func parseShowReportFlags(args []string) (showReportOptions, error) {
	fs := flag.NewFlagSet("show-report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts showReportOptions
	fs.StringVar(&opts.ReportID, "report-id", "", "Report ID to inspect (required)")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print raw JSON payload")

	if err := fs.Parse(args); err != nil {
		return showReportOptions{}, err
	}

	opts.ReportID = strings.TrimSpace(opts.ReportID)
	if opts.ReportID == "" {
		return showReportOptions{}, errors.New("--report-id is required")
	}

	return opts, nil
}

func parseClearReportCacheFlags(args []string) (clearReportCacheOptions, error) {
	fs := flag.NewFlagSet("clear-report-cache", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts clearReportCacheOptions
	fs.StringVar(&opts.ReportID, "report-id", "", "Report ID to evict (required unless --all)")
	fs.BoolVar(&opts.All, "all", false, "Evict every cached report")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return clearReportCacheOptions{}, err
	}

	opts.ReportID = strings.TrimSpace(opts.ReportID)
	if !opts.All && opts.ReportID == "" {
		return clearReportCacheOptions{}, errors.New("--report-id is required unless --all is set")
	}
	if opts.All && opts.ReportID != "" {
		return clearReportCacheOptions{}, errors.New("--report-id and --all are mutually exclusive")
	}

	return opts, nil
}

type reportFetchOptions struct {
	DB       *sql.DB
	Redis    redis.UniversalClient
	Logger   *slog.Logger
	ReportID string
}

type reportPayload struct {
	raw json.RawMessage
}

type reportSource struct {
	CacheKey string
	Source   string
	TTL      *time.Duration
}

func fetchReport(ctx context.Context, opts reportFetchOptions) (reportPayload, reportSource, error) {
	cacheKey := reportCacheKeyPrefix + opts.ReportID
	src := reportSource{CacheKey: cacheKey}

	// Try cache first
	if opts.Redis != nil {
		raw, err := opts.Redis.Get(ctx, cacheKey).Bytes()
		switch {
		case err == nil:
			src.Source = "cache"
			if ttl, ttlErr := opts.Redis.TTL(ctx, cacheKey).Result(); ttlErr == nil {
				src.TTL = &ttl
			}
			return reportPayload{raw: raw}, src, nil
		case errors.Is(err, redis.Nil):
			// fall through to database
		default:
			return reportPayload{}, src, fmt.Errorf("redis get %s: %w", cacheKey, err)
		}
	}

	// Fall back to database
	if opts.DB == nil {
		return reportPayload{}, src, nil
	}
	repo := data.NewReportRepo(opts.DB, nil)
	report, err := repo.GetByID(ctx, opts.ReportID)
	if err != nil {
		if errors.Is(err, data.ErrReportNotFound) {
			return reportPayload{}, src, nil
		}
		return reportPayload{}, src, err
	}

	raw, err := json.Marshal(report)
	if err != nil {
		return reportPayload{}, src, fmt.Errorf("encode report: %w", err)
	}
	src.Source = "database"
	return reportPayload{raw: raw}, src, nil
}

func displayReport(opts showReportOptions, payload reportPayload, src reportSource) error {
	if payload.raw == nil {
		if err := writef(
			os.Stdout,
			"No cached or persisted report found for %s (%s)\n",
			opts.ReportID,
			src.CacheKey,
		); err != nil {
			return fmt.Errorf("print empty report notice: %w", err)
		}
		return nil
	}

	if opts.RawJSON {
		return printRawReport(payload.raw, src)
	}

	return printStructuredReport(opts, payload.raw, src)
}

func printRawReport(raw json.RawMessage, src reportSource) error {
	if err := writef(os.Stdout, "%s\n", raw); err != nil {
		return fmt.Errorf("print raw report payload: %w", err)
	}

	if src.TTL != nil {
		if err := writef(os.Stdout, "\nTTL remaining: %s\n", renderTTL(*src.TTL)); err != nil {
			return fmt.Errorf("print raw payload ttl: %w", err)
		}
	}

	if err := writef(os.Stdout, "\nSource: %s\n", src.Source); err != nil {
		return fmt.Errorf("print raw payload source: %w", err)
	}
	return nil
}

func printStructuredReport(opts showReportOptions, raw json.RawMessage, src reportSource) error {
	report := &model.Report{}
	if err := json.Unmarshal(raw, report); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}

	if err := printReportHeader(opts.ReportID, report, src); err != nil {
		return err
	}
	if err := printReportRisks(report); err != nil {
		return err
	}
	return printReportCitations(report)
}

func printReportHeader(reportID string, report *model.Report, src reportSource) error {
	if err := writef(os.Stdout, "\nResearch Report\n"); err != nil {
		return fmt.Errorf("write report title: %w", err)
	}
	if err := writef(os.Stdout, "Report ID:       %s\n", reportID); err != nil {
		return fmt.Errorf("write report id: %w", err)
	}
	if err := writef(os.Stdout, "Topic:           %s\n", report.Topic); err != nil {
		return fmt.Errorf("write report topic: %w", err)
	}
	if err := writef(os.Stdout, "Fragility Score: %d\n", report.FragilityScore); err != nil {
		return fmt.Errorf("write report score: %w", err)
	}
	if err := writef(os.Stdout, "Created:         %s\n", formatTimestamp(report.CreatedAt)); err != nil {
		return fmt.Errorf("write report created: %w", err)
	}
	if src.Source != "" {
		if err := writef(os.Stdout, "Source:          %s\n", src.Source); err != nil {
			return fmt.Errorf("write report source: %w", err)
		}
	}
	if src.TTL != nil {
		if err := writef(os.Stdout, "Cache TTL:       %s\n", renderTTL(*src.TTL)); err != nil {
			return fmt.Errorf("write report ttl: %w", err)
		}
	}
	if err := writef(os.Stdout, "\nSummary:\n  %s\n", report.Summary); err != nil {
		return fmt.Errorf("write report summary: %w", err)
	}
	if len(report.Alerts) > 0 {
		if err := writef(os.Stdout, "\nAlerts:\n  %s\n", strings.Join(report.Alerts, "\n  ")); err != nil {
			return fmt.Errorf("write report alerts: %w", err)
		}
	}
	return nil
}

func printReportRisks(report *model.Report) error {
	if len(report.RiskItems) == 0 {
		return nil
	}
	if err := writef(os.Stdout, "\nRisk Items\n"); err != nil {
		return fmt.Errorf("write risk section title: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Category\tImpact\tDescription"); err != nil {
		return fmt.Errorf("write risk table header: %w", err)
	}
	for _, item := range report.RiskItems {
		if err := writef(w, "%s\t%d\t%s\n", item.Category, item.ImpactScore, item.Description); err != nil {
			return fmt.Errorf("write risk row %q: %w", item.Category, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush risk table: %w", err)
	}
	return nil
}

func printReportCitations(report *model.Report) error {
	if len(report.Citations) == 0 {
		return nil
	}
	if err := writef(os.Stdout, "\nCitations\n"); err != nil {
		return fmt.Errorf("write citation section title: %w", err)
	}
	for _, c := range report.Citations {
		if err := writef(os.Stdout, "  %s (%s)\n", c.Title, c.URL); err != nil {
			return fmt.Errorf("write citation %q: %w", c.URL, err)
		}
	}
	return nil
}

func deleteReportCacheKeys(
	ctx context.Context,
	client redis.UniversalClient,
	logger *slog.Logger,
	opts clearReportCacheOptions,
) (int, error) {
	if !opts.All {
		key := reportCacheKeyPrefix + opts.ReportID
		if opts.DryRun {
			logger.Info("dry-run skipping cache delete", "key", key)
			return 1, nil
		}
		n, err := client.Del(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("delete redis key %s: %w", key, err)
		}
		return int(n), nil
	}

	pattern := reportCacheKeyPrefix + "*"
	logger.Info("scanning redis", "pattern", pattern, "dry_run", opts.DryRun)

	iter := client.Scan(ctx, 0, pattern, 1000).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan redis: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if opts.DryRun {
		return len(keys), nil
	}

	deleted := 0
	for start := 0; start < len(keys); start += 100 {
		end := min(start+100, len(keys))
		n, err := client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, fmt.Errorf("delete redis keys: %w", err)
		}
		deleted += int(n)
	}
	return deleted, nil
}
