package investigate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sleuthdev/sleuth/internal/citation"
	"github.com/sleuthdev/sleuth/internal/tracker"
	"github.com/sleuthdev/sleuth/internal/types"
)

// WriteReport renders the investigation as markdown under dir, one file
// per issue, and returns the written path. An existing report for the
// same issue is replaced.
func WriteReport(dir string, issue *tracker.IssueRecord, result *types.InvestigationResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	path := filepath.Join(dir, sanitizeFilename(issue.ID)+".md")
	if err := os.WriteFile(path, []byte(renderReport(issue, result)), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func renderReport(issue *tracker.IssueRecord, result *types.InvestigationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Investigation: %s\n\n", issue.ID)
	fmt.Fprintf(&b, "**%s**\n\n", issue.Title)
	if result.IssueURL != "" {
		fmt.Fprintf(&b, "Issue: %s\n\n", result.IssueURL)
	}

	if result.Degraded {
		b.WriteString("> **Note:** this investigation is degraded; some inputs were unavailable.\n")
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "> - %s\n", w)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Findings\n\n")
	if len(result.Findings) == 0 {
		b.WriteString("No findings.\n\n")
	}
	for i, f := range result.Findings {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, f.Claim)
		fmt.Fprintf(&b, "Confidence: %.0f%%\n\n", f.Confidence*100)
		b.WriteString(citation.FormatMarkdown(f.Citations))
		b.WriteString("\n\n")
	}

	b.WriteString("## Recommendations\n\n")
	if len(result.Recommendations) == 0 {
		b.WriteString("No recommendations.\n\n")
	}
	for i, r := range result.Recommendations {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, r.Action)
		if r.Rationale != "" {
			fmt.Fprintf(&b, "%s\n\n", r.Rationale)
		}
		fmt.Fprintf(&b, "Confidence: %.0f%%\n\n", r.Confidence*100)
		b.WriteString(citation.FormatMarkdown(r.Citations))
		b.WriteString("\n\n")
	}

	if len(result.PatternMatches) > 0 {
		b.WriteString("## Matched Patterns\n\n")
		for _, m := range result.PatternMatches {
			fmt.Fprintf(&b, "- %q (similarity %.2f, confidence %.2f, %s, observed %dx)\n",
				m.Record.RecommendationText, m.SimilarityScore,
				m.Record.Confidence, m.Record.Outcome, m.Record.ObservationCount)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "Generated at %s in %s. Related issues examined: %d. Citations: %d.\n",
		result.GeneratedAt.Format(time.RFC3339),
		result.Duration.Round(time.Millisecond),
		result.SimilarIssueCount,
		result.CitationCount)
	return b.String()
}

// BuildComment renders the compact summary posted back to the tracker
func BuildComment(result *types.InvestigationResult) string {
	var b strings.Builder
	b.WriteString("## Investigation Summary\n")

	if len(result.Findings) > 0 {
		b.WriteString("\n**Findings:**\n")
		for _, f := range result.Findings {
			fmt.Fprintf(&b, "- %s (%.0f%%)\n", f.Claim, f.Confidence*100)
		}
	}
	if len(result.Recommendations) > 0 {
		b.WriteString("\n**Recommendations:**\n")
		for _, r := range result.Recommendations {
			fmt.Fprintf(&b, "- %s (%.0f%%)\n", r.Action, r.Confidence*100)
		}
	}

	var all []types.Citation
	for _, f := range result.Findings {
		all = append(all, f.Citations...)
	}
	for _, r := range result.Recommendations {
		all = append(all, r.Citations...)
	}
	if lines := citation.FormatForDisplay(all); len(lines) > 0 {
		b.WriteString("\n**Sources:**\n")
		for _, line := range lines {
			fmt.Fprintf(&b, "%s\n", line)
		}
	}

	if result.Degraded {
		b.WriteString("\n_Degraded: ")
		b.WriteString(strings.Join(result.Warnings, "; "))
		b.WriteString("_\n")
	}
	return b.String()
}

// sanitizeFilename keeps issue IDs filesystem-safe
func sanitizeFilename(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, id)
}
