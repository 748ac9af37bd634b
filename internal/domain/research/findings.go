// Package research defines the working state of the two-stage research
// pipeline: evidence gathered for a topic and the structured findings
// synthesized from it.
package research

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ScoreMin and ScoreMax bound the advisory 1-10 scoring scale used by
	// fragility and impact scores. Values outside the range are accepted
	// and surfaced to callers as a data-quality concern, not rejected.
	ScoreMin = 1
	ScoreMax = 10
)

// Evidence is one item returned by the evidence-collection capability.
type Evidence struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// RiskItem is one categorized risk produced by synthesis.
type RiskItem struct {
	Category    string `json:"category"     jsonschema_description:"Risk category, e.g. logistics, labor, geopolitical"`
	ImpactScore int    `json:"impact_score" jsonschema_description:"Impact severity from 1 (minimal) to 10 (critical)"`
	Description string `json:"description"  jsonschema_description:"One or two sentences describing the risk"`
}

// Citation references a source document used during synthesis.
type Citation struct {
	URL   string `json:"url"   jsonschema_description:"Source URL"`
	Title string `json:"title" jsonschema_description:"Source title"`
}

// Findings is the typed output of the synthesis stage.
type Findings struct {
	Summary        string     `json:"summary"         jsonschema_description:"Executive summary of supply chain conditions for the industry"`
	FragilityScore int        `json:"fragility_score" jsonschema_description:"Overall supply chain fragility from 1 (robust) to 10 (fragile)"`
	RiskItems      []RiskItem `json:"risk_items"      jsonschema_description:"Identified risks ordered most salient first"`
	Alerts         []string   `json:"alerts"          jsonschema_description:"Short critical alerts ordered most salient first"`
	Citations      []Citation `json:"citations"       jsonschema_description:"Sources consulted"`
}

// Validate checks that the findings carry the required fields. Score bounds
// are advisory and reported separately via ScoreWarnings.
func (f *Findings) Validate() error {
	if strings.TrimSpace(f.Summary) == "" {
		return errors.New("summary is required")
	}
	return nil
}

// ScoreWarnings returns a human-readable note for every score outside the
// advisory 1-10 range. An empty slice means all scores are in range.
func (f *Findings) ScoreWarnings() []string {
	var warnings []string
	if f.FragilityScore < ScoreMin || f.FragilityScore > ScoreMax {
		warnings = append(warnings, fmt.Sprintf("fragility_score %d outside %d-%d", f.FragilityScore, ScoreMin, ScoreMax))
	}
	for i, item := range f.RiskItems {
		if item.ImpactScore < ScoreMin || item.ImpactScore > ScoreMax {
			warnings = append(warnings, fmt.Sprintf("risk_items[%d].impact_score %d outside %d-%d", i, item.ImpactScore, ScoreMin, ScoreMax))
		}
	}
	return warnings
}

// Query derives the deterministic evidence-collection query for a topic.
func Query(topic string) string {
	return fmt.Sprintf("recent supply chain disruptions, port strikes, and logistics risks in %s industry", topic)
}

// CombinedText concatenates evidence content with source attribution, in
// gathering order, for handoff to the synthesis capability.
func CombinedText(items []Evidence) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s", i+1, item.Title, item.URL, item.Content)
	}
	return b.String()
}
