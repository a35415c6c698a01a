package types

import (
	"time"
)

// InvestigationResult is the complete output of one investigation.
// It is owned by the orchestrator while the investigation runs and handed
// off read-only to the report and write-back collaborators afterward.
type InvestigationResult struct {
	IssueID         string           `json:"issue_id"`
	IssueURL        string           `json:"issue_url,omitempty"`
	Findings        []Finding        `json:"findings"`
	Recommendations []Recommendation `json:"recommendations"`
	PatternMatches  []PatternMatch   `json:"pattern_matches"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Duration        time.Duration    `json:"duration"`

	// Degraded marks results missing a non-fatal input (history research
	// or pattern recording failed). The primary claims remain valid.
	Degraded bool     `json:"degraded,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	SimilarIssueCount int `json:"similar_issue_count"`
	CitationCount     int `json:"citation_count"`
}

// CountCitations returns the total citations across findings and recommendations
func (r *InvestigationResult) CountCitations() int {
	n := 0
	for _, f := range r.Findings {
		n += len(f.Citations)
	}
	for _, rec := range r.Recommendations {
		n += len(rec.Citations)
	}
	return n
}

// AddWarning records a degradation warning on the result
func (r *InvestigationResult) AddWarning(msg string) {
	r.Degraded = true
	r.Warnings = append(r.Warnings, msg)
}
