package investigate

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleuthdev/sleuth/internal/tracker"
	"github.com/sleuthdev/sleuth/internal/types"
)

func TestWriteReport(t *testing.T) {
	issue := testIssue("ABC-1", "login fails after timeout", "login fails after timeout")
	result := &types.InvestigationResult{
		IssueID:     "ABC-1",
		IssueURL:    issue.URL,
		GeneratedAt: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
		Duration:    1500 * time.Millisecond,
		Findings: []types.Finding{{
			Claim:      "session expiry is the probable cause",
			Confidence: 0.8,
			Citations: []types.Citation{{
				SourceType: types.SourceTrackerIssue,
				SourceID:   "ABC-0",
				SourceURL:  "https://tracker.example.com/issue/ABC-0",
				Excerpt:    "increase session timeout config",
			}},
		}},
		PatternMatches: []types.PatternMatch{{
			Record: types.PatternRecord{
				RecommendationText: "increase session timeout config",
				Outcome:            types.OutcomeConfirmed,
				Confidence:         0.6,
				ObservationCount:   2,
			},
			SimilarityScore: 0.9,
		}},
		SimilarIssueCount: 1,
		CitationCount:     1,
	}

	dir := t.TempDir()
	path, err := WriteReport(dir, issue, result)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)

	assert.Contains(t, report, "# Investigation: ABC-1")
	assert.Contains(t, report, "session expiry is the probable cause")
	assert.Contains(t, report, "Confidence: 80%")
	assert.Contains(t, report, "**Supporting Evidence:**")
	assert.Contains(t, report, "## Matched Patterns")
	assert.Contains(t, report, "No recommendations.")
	assert.Contains(t, report, "Citations: 1")
	assert.NotContains(t, report, "Degraded")
}

func TestWriteReportSanitizesIssueID(t *testing.T) {
	issue := &tracker.IssueRecord{ID: "TEAM/ABC 1", Title: "t", URL: "https://x.example/1"}
	result := &types.InvestigationResult{IssueID: issue.ID}

	dir := t.TempDir()
	path, err := WriteReport(dir, issue, result)
	require.NoError(t, err)
	assert.Contains(t, path, "TEAM-ABC-1.md")
}
