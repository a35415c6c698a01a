package types

import (
	"fmt"
	"time"
)

// Outcome tracks what happened after a pattern's recommendation was applied
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeRejected  Outcome = "rejected"
)

// IsValid checks if the outcome value is valid
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomePending, OutcomeConfirmed, OutcomeRejected:
		return true
	}
	return false
}

// PatternRecord is one entry in the append-only pattern log.
//
// Identity is the pattern signature, which is NOT unique across records:
// corrections and outcome updates are appended as new records sharing the
// same signature and recommendation text. Readers fold the log and treat
// the most recently appended record per (signature, recommendation_text)
// pair as authoritative. Records are never deleted or rewritten in place.
type PatternRecord struct {
	RecordID           string    `json:"record_id"`
	Signature          string    `json:"pattern_signature"`
	RecommendationText string    `json:"recommendation_text"`
	Outcome            Outcome   `json:"outcome"`
	Confidence         float64   `json:"confidence"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	ObservationCount   int       `json:"observation_count"`
}

// Validate checks the record's field invariants
func (r *PatternRecord) Validate() error {
	if r.RecordID == "" {
		return fmt.Errorf("record_id is required")
	}
	if r.Signature == "" {
		return fmt.Errorf("pattern_signature is required")
	}
	if r.RecommendationText == "" {
		return fmt.Errorf("recommendation_text is required")
	}
	if !r.Outcome.IsValid() {
		return fmt.Errorf("invalid outcome: %q", r.Outcome)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1] (got %.4f)", r.Confidence)
	}
	if r.ObservationCount < 1 {
		return fmt.Errorf("observation_count must be >= 1 (got %d)", r.ObservationCount)
	}
	return nil
}

// PatternMatch pairs a stored pattern with its similarity to the issue
// under investigation. Computed per query, never persisted.
type PatternMatch struct {
	Record          PatternRecord `json:"record"`
	SimilarityScore float64       `json:"similarity_score"`
}
