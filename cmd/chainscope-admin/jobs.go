package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chainscope/chainscope/internal/data"
	"github.com/chainscope/chainscope/internal/domain/model"
)

type listJobsOptions struct {
	Status string
	Topic  string
	Limit  int
	Offset int
}

func runJobStats(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	stats, err := repo.Stats(ctx)
	if err != nil {
		return fmt.Errorf("fetch job stats: %w", err)
	}

	return printJobStats(stats)
}

func printJobStats(stats *model.JobStats) error {
	if stats == nil {
		return errors.New("job stats are required")
	}

	if err := writef(os.Stdout, "\nJob Counts\n"); err != nil {
		return fmt.Errorf("write stats header: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Status\tCount"); err != nil {
		return fmt.Errorf("write stats table header: %w", err)
	}
	rows := []struct {
		label string
		count int
	}{
		{"Pending", stats.Pending},
		{"Processing", stats.Processing},
		{"Completed", stats.Completed},
		{"Failed", stats.Failed},
		{"Cancelled", stats.Cancelled},
	}
	total := 0
	for _, row := range rows {
		total += row.count
		if err := writef(w, "%s\t%d\n", row.label, row.count); err != nil {
			return fmt.Errorf("write stats row %q: %w", row.label, err)
		}
	}
	if err := writef(w, "Total\t%d\n", total); err != nil {
		return fmt.Errorf("write stats total: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush stats table: %w", err)
	}
	return nil
}

func runListJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseListJobsFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	rows, err := queryJobRows(ctx, db, &opts)
	if err != nil {
		return err
	}

	return printJobRows(rows, &opts)
}

func parseListJobsFlags(args []string) (listJobsOptions, error) {
	fs := flag.NewFlagSet("list-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listJobsOptions
	fs.StringVar(&opts.Status, "status", "", "Filter by job status (pending, processing, completed, failed, cancelled)")
	fs.StringVar(&opts.Topic, "topic", "", "Filter by topic substring (case-insensitive)")
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum rows to display (0 for unlimited)")
	fs.IntVar(&opts.Offset, "offset", 0, "Offset for query results")

	if err := fs.Parse(args); err != nil {
		return listJobsOptions{}, err
	}

	opts.Status = strings.ToLower(strings.TrimSpace(opts.Status))
	opts.Topic = strings.TrimSpace(opts.Topic)
	if opts.Status != "" && !model.JobStatus(opts.Status).Valid() {
		return listJobsOptions{}, fmt.Errorf("invalid --status %q", opts.Status)
	}
	if opts.Limit < 0 {
		return listJobsOptions{}, errors.New("--limit must be >= 0")
	}
	if opts.Offset < 0 {
		return listJobsOptions{}, errors.New("--offset must be >= 0")
	}

	return opts, nil
}

type jobRow struct {
	ID          string
	Topic       string
	Kind        string
	Status      string
	Progress    int
	RetryCount  int
	ScheduledAt time.Time
	CompletedAt sql.NullTime
}

func queryJobRows(ctx context.Context, db *sql.DB, opts *listJobsOptions) ([]jobRow, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 4)

	if opts.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, opts.Status)
	}
	if opts.Topic != "" {
		where = append(where, fmt.Sprintf("topic ILIKE $%d", len(args)+1))
		args = append(args, "%"+opts.Topic+"%")
	}

	query := "SELECT id, topic, kind, status, progress, retry_count, scheduled_at, completed_at FROM jobs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]jobRow, 0, opts.Limit)
	for rows.Next() {
		var row jobRow
		if scanErr := rows.Scan(
			&row.ID,
			&row.Topic,
			&row.Kind,
			&row.Status,
			&row.Progress,
			&row.RetryCount,
			&row.ScheduledAt,
			&row.CompletedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("scan job row: %w", scanErr)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return out, nil
}

func printJobRows(rows []jobRow, opts *listJobsOptions) error {
	if err := writef(os.Stdout, "\nResearch Jobs"); err != nil {
		return fmt.Errorf("write jobs header: %w", err)
	}
	if opts.Status != "" {
		if err := writef(os.Stdout, " (status=%s)", opts.Status); err != nil {
			return fmt.Errorf("write jobs status filter: %w", err)
		}
	}
	if err := writeln(os.Stdout); err != nil {
		return fmt.Errorf("write jobs header newline: %w", err)
	}

	if len(rows) == 0 {
		if err := writeln(os.Stdout, "(no jobs found)"); err != nil {
			return fmt.Errorf("write jobs empty notice: %w", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "ID\tTopic\tKind\tStatus\tProgress\tRetries\tScheduled\tCompleted"); err != nil {
		return fmt.Errorf("write jobs table header: %w", err)
	}
	for _, row := range rows {
		completed := "-"
		if row.CompletedAt.Valid {
			completed = formatTimestamp(row.CompletedAt.Time)
		}
		if err := writef(
			w,
			"%s\t%s\t%s\t%s\t%d%%\t%d\t%s\t%s\n",
			row.ID,
			row.Topic,
			row.Kind,
			row.Status,
			row.Progress,
			row.RetryCount,
			formatTimestamp(row.ScheduledAt),
			completed,
		); err != nil {
			return fmt.Errorf("write job row %q: %w", row.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush jobs table: %w", err)
	}

	if err := writef(os.Stdout, "\nTotal rows: %d\n", len(rows)); err != nil {
		return fmt.Errorf("write jobs total: %w", err)
	}
	return nil
}
