package model

import "time"

// RiskItem is one categorized risk identified by the synthesis stage.
// Items are stored in the order synthesis produced them, most salient first.
type RiskItem struct {
	Category    string `json:"category"`
	ImpactScore int    `json:"impact_score"`
	Description string `json:"description"`
}

// Citation points at a source document that backed the synthesis.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Report represents the persisted output of one completed research job.
// Reports are immutable after creation.
type Report struct {
	ID             string     `json:"id"              db:"id"`
	Topic          string     `json:"topic"           db:"topic"`
	FragilityScore int        `json:"fragility_score" db:"fragility_score"`
	Summary        string     `json:"summary"         db:"summary"`
	Alerts         []string   `json:"alerts"          db:"alerts"`
	RiskItems      []RiskItem `json:"risk_items"      db:"risk_items"`
	Citations      []Citation `json:"citations"       db:"citations"`
	CreatedAt      time.Time  `json:"created_at"      db:"created_at"`
}
