package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chainscope/chainscope/internal/core"
	"github.com/chainscope/chainscope/internal/domain/model"
)

// ReportRepo provides database operations for research reports.
// Reports are write-once rows; there is no update path.
type ReportRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewReportRepo creates a new ReportRepo instance.
func NewReportRepo(db *sql.DB, tp TimeProvider) *ReportRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &ReportRepo{DB: db, timeProvider: tp}
}

const reportColumns = `
  id,
  topic,
  fragility_score,
  summary,
  alerts,
  risk_items,
  citations,
  created_at
`

// Create persists a report built from pipeline findings and returns the
// stored row.
func (r *ReportRepo) Create(ctx context.Context, req *core.CreateReportRequest) (*model.Report, error) {
	if req == nil || req.Findings == nil {
		return nil, errors.New("create report request with findings is required")
	}
	if validateErr := req.Findings.Validate(); validateErr != nil {
		return nil, fmt.Errorf("invalid findings: %w", validateErr)
	}

	alerts, err := marshalOrdered(req.Findings.Alerts, `[]`)
	if err != nil {
		return nil, fmt.Errorf("marshal alerts: %w", err)
	}
	riskItems, err := marshalOrdered(req.Findings.RiskItems, `[]`)
	if err != nil {
		return nil, fmt.Errorf("marshal risk items: %w", err)
	}
	citations, err := marshalOrdered(req.Findings.Citations, `[]`)
	if err != nil {
		return nil, fmt.Errorf("marshal citations: %w", err)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO reports(topic, fragility_score, summary, alerts, risk_items, citations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+reportColumns+`
	`, req.Topic, req.Findings.FragilityScore, req.Findings.Summary, alerts, riskItems, citations, r.timeProvider.Now().UTC())

	report, scanErr := scanReportFromRow(row)
	if scanErr != nil {
		return nil, fmt.Errorf("insert report: %w", scanErr)
	}
	return report, nil
}

// GetByID retrieves a report by its ID.
func (r *ReportRepo) GetByID(ctx context.Context, id string) (*model.Report, error) {
	if !validID(id) {
		return nil, ErrReportNotFound
	}
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE id = $1
	`, id)

	report, err := scanReportFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// marshalOrdered marshals a slice to JSON, substituting the given empty
// document for nil so JSONB columns never hold SQL NULL.
func marshalOrdered[T any](items []T, empty string) ([]byte, error) {
	if items == nil {
		return []byte(empty), nil
	}
	return json.Marshal(items)
}

func scanReportFromRow(scanner jobRowScanner) (*model.Report, error) {
	report := &model.Report{}
	var alerts, riskItems, citations []byte
	if err := scanner.Scan(
		&report.ID,
		&report.Topic,
		&report.FragilityScore,
		&report.Summary,
		&alerts,
		&riskItems,
		&citations,
		&report.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(alerts, &report.Alerts); err != nil {
		return nil, fmt.Errorf("unmarshal alerts: %w", err)
	}
	if err := json.Unmarshal(riskItems, &report.RiskItems); err != nil {
		return nil, fmt.Errorf("unmarshal risk items: %w", err)
	}
	if err := json.Unmarshal(citations, &report.Citations); err != nil {
		return nil, fmt.Errorf("unmarshal citations: %w", err)
	}
	return report, nil
}
