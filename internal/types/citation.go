package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxExcerptLength bounds citation excerpts. Excerpts are evidence
// pointers, not full reproductions of the source.
const MaxExcerptLength = 500

// TruncateExcerpt shortens source text to fit within MaxExcerptLength,
// cutting on a rune boundary so the result stays valid UTF-8. Truncated
// excerpts end in "...".
func TruncateExcerpt(s string) string {
	if len(s) <= MaxExcerptLength {
		return s
	}
	cut := MaxExcerptLength - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// SourceType identifies where a citation's evidence came from
type SourceType string

const (
	SourceTrackerIssue SourceType = "tracker-issue"
	SourcePatternStore SourceType = "pattern-store"
)

// IsValid checks if the source type value is valid
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTrackerIssue, SourcePatternStore:
		return true
	}
	return false
}

// Citation points to a specific excerpt of external evidence backing a claim.
// The excerpt must be verbatim (or a close paraphrase of) retrieved source
// content - callers must never fabricate one.
type Citation struct {
	SourceType  SourceType `json:"source_type"`
	SourceID    string     `json:"source_id"`
	SourceURL   string     `json:"source_url"`
	Excerpt     string     `json:"excerpt"`
	RetrievedAt time.Time  `json:"retrieved_at"`
}

// Validate checks the citation's structural invariants
func (c *Citation) Validate() error {
	if !c.SourceType.IsValid() {
		return fmt.Errorf("invalid source type: %q", c.SourceType)
	}
	if c.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if strings.TrimSpace(c.Excerpt) == "" {
		return fmt.Errorf("excerpt is required")
	}
	if len(c.Excerpt) > MaxExcerptLength {
		return fmt.Errorf("excerpt exceeds %d characters (got %d)", MaxExcerptLength, len(c.Excerpt))
	}
	if c.SourceURL != "" {
		u, err := url.Parse(c.SourceURL)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("source_url must be an absolute URL (got %q)", c.SourceURL)
		}
	}
	return nil
}

// CitationError reports missing or malformed evidence on a finding,
// recommendation, or citation.
type CitationError struct {
	Subject string // what failed validation ("finding", "recommendation", "citation")
	Detail  string
}

func (e *CitationError) Error() string {
	if e.Subject == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.Subject, e.Detail)
}

// Finding is an evidence-backed observation produced during investigation.
// Construct via NewFinding - a Finding with zero citations is a
// construction failure, not a warning.
type Finding struct {
	Claim      string     `json:"claim"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
}

// NewFinding builds a Finding, enforcing the mandatory-citation invariant
func NewFinding(claim string, confidence float64, citations []Citation) (*Finding, error) {
	if strings.TrimSpace(claim) == "" {
		return nil, &CitationError{Subject: "finding", Detail: "claim is required"}
	}
	if len(citations) == 0 {
		return nil, &CitationError{
			Subject: "finding",
			Detail:  fmt.Sprintf("%q has no citations (required: >=1)", truncate(claim, 50)),
		}
	}
	if confidence < 0 || confidence > 1 {
		return nil, &CitationError{Subject: "finding", Detail: fmt.Sprintf("confidence must be in [0,1] (got %.2f)", confidence)}
	}
	return &Finding{Claim: claim, Citations: citations, Confidence: confidence}, nil
}

// Recommendation is an evidence-backed suggested action
type Recommendation struct {
	Action     string     `json:"action"`
	Rationale  string     `json:"rationale"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
}

// NewRecommendation builds a Recommendation, enforcing the mandatory-citation invariant
func NewRecommendation(action, rationale string, confidence float64, citations []Citation) (*Recommendation, error) {
	if strings.TrimSpace(action) == "" {
		return nil, &CitationError{Subject: "recommendation", Detail: "action is required"}
	}
	if len(citations) == 0 {
		return nil, &CitationError{
			Subject: "recommendation",
			Detail:  fmt.Sprintf("%q has no citations (required: >=1)", truncate(action, 50)),
		}
	}
	if confidence < 0 || confidence > 1 {
		return nil, &CitationError{Subject: "recommendation", Detail: fmt.Sprintf("confidence must be in [0,1] (got %.2f)", confidence)}
	}
	return &Recommendation{Action: action, Rationale: rationale, Citations: citations, Confidence: confidence}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
