// Package citation enforces the evidentiary contract: every finding and
// recommendation must cite evidence. The ledger validates objects that
// already hold citations; it never stores citations itself.
package citation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sleuthdev/sleuth/internal/types"
)

// ValidateFinding checks a finding against the citation rules.
// Returns a *types.CitationError describing the first violation, or nil.
func ValidateFinding(f *types.Finding) error {
	if len(f.Citations) == 0 {
		return &types.CitationError{
			Subject: "finding",
			Detail:  fmt.Sprintf("%q has no citations (required: >=1)", truncate(f.Claim, 50)),
		}
	}
	return validateCitations("finding", f.Citations)
}

// ValidateRecommendation checks a recommendation against the citation rules
func ValidateRecommendation(r *types.Recommendation) error {
	if len(r.Citations) == 0 {
		return &types.CitationError{
			Subject: "recommendation",
			Detail:  fmt.Sprintf("%q has no citations (required: >=1)", truncate(r.Action, 50)),
		}
	}
	return validateCitations("recommendation", r.Citations)
}

// ValidateResult validates every finding and recommendation on a result.
// The orchestrator uses this as a gate: a result with any uncited or
// malformed claim must not be published.
func ValidateResult(result *types.InvestigationResult) error {
	for i := range result.Findings {
		if err := ValidateFinding(&result.Findings[i]); err != nil {
			return err
		}
	}
	for i := range result.Recommendations {
		if err := ValidateRecommendation(&result.Recommendations[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateCitations(subject string, citations []types.Citation) error {
	for i := range citations {
		c := &citations[i]
		if strings.TrimSpace(c.Excerpt) == "" {
			return &types.CitationError{
				Subject: subject,
				Detail:  fmt.Sprintf("citation %d (%s) has an empty excerpt", i+1, c.SourceID),
			}
		}
		if len(c.Excerpt) > types.MaxExcerptLength {
			return &types.CitationError{
				Subject: subject,
				Detail: fmt.Sprintf("citation %d (%s) excerpt exceeds %d characters",
					i+1, c.SourceID, types.MaxExcerptLength),
			}
		}
		if c.SourceURL == "" {
			return &types.CitationError{
				Subject: subject,
				Detail:  fmt.Sprintf("citation %d (%s) has no source URL", i+1, c.SourceID),
			}
		}
		if u, err := url.Parse(c.SourceURL); err != nil || !u.IsAbs() {
			return &types.CitationError{
				Subject: subject,
				Detail:  fmt.Sprintf("citation %d (%s) source URL is not absolute: %q", i+1, c.SourceID, c.SourceURL),
			}
		}
	}
	return nil
}

// FormatForDisplay renders citations as "[n] source_id — source_url"
// lines, numbered by first appearance. Duplicate (id, url) pairs collapse
// onto their first index, so the numbering is stable across findings that
// cite the same evidence.
func FormatForDisplay(citations []types.Citation) []string {
	var lines []string
	seen := make(map[string]bool)

	for _, c := range citations {
		key := c.SourceID + "\x00" + c.SourceURL
		if seen[key] {
			continue
		}
		seen[key] = true
		lines = append(lines, fmt.Sprintf("[%d] %s — %s", len(lines)+1, c.SourceID, c.SourceURL))
	}
	return lines
}

// FormatMarkdown renders citations as a markdown evidence block for
// reports and tracker comments
func FormatMarkdown(citations []types.Citation) string {
	if len(citations) == 0 {
		return "(No citations)"
	}

	var b strings.Builder
	b.WriteString("**Supporting Evidence:**")
	for _, c := range citations {
		b.WriteString(fmt.Sprintf("\n- [%s: %s](%s): %q", c.SourceType, c.SourceID, c.SourceURL, c.Excerpt))
	}
	return b.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
