package citation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleuthdev/sleuth/internal/types"
)

func cite(id, url, excerpt string) types.Citation {
	return types.Citation{
		SourceType:  types.SourceTrackerIssue,
		SourceID:    id,
		SourceURL:   url,
		Excerpt:     excerpt,
		RetrievedAt: time.Now(),
	}
}

func TestValidateFinding(t *testing.T) {
	tests := []struct {
		name      string
		citations []types.Citation
		wantErr   string
	}{
		{
			name:      "valid",
			citations: []types.Citation{cite("ABC-0", "https://t.example.com/ABC-0", "increase session timeout")},
		},
		{
			name:      "no citations",
			citations: nil,
			wantErr:   "no citations",
		},
		{
			name:      "empty excerpt",
			citations: []types.Citation{cite("ABC-0", "https://t.example.com/ABC-0", "  ")},
			wantErr:   "empty excerpt",
		},
		{
			name:      "oversized excerpt",
			citations: []types.Citation{cite("ABC-0", "https://t.example.com/ABC-0", strings.Repeat("x", types.MaxExcerptLength+1))},
			wantErr:   "exceeds",
		},
		{
			name:      "missing URL",
			citations: []types.Citation{cite("ABC-0", "", "evidence text")},
			wantErr:   "no source URL",
		},
		{
			name:      "relative URL",
			citations: []types.Citation{cite("ABC-0", "issue/ABC-0", "evidence text")},
			wantErr:   "not absolute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := types.Finding{Claim: "the timeout is too low", Citations: tt.citations, Confidence: 0.8}
			err := ValidateFinding(&f)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cerr *types.CitationError
			require.ErrorAs(t, err, &cerr)
			assert.Contains(t, cerr.Detail, tt.wantErr)
		})
	}
}

func TestValidateResultGatesEveryObject(t *testing.T) {
	good := cite("ABC-0", "https://t.example.com/ABC-0", "fixed by config change")
	result := types.InvestigationResult{
		IssueID: "ABC-1",
		Findings: []types.Finding{
			{Claim: "ok finding", Citations: []types.Citation{good}, Confidence: 0.9},
		},
		Recommendations: []types.Recommendation{
			{Action: "uncited action", Rationale: "r", Confidence: 0.5}, // no citations
		},
	}

	err := ValidateResult(&result)
	require.Error(t, err)
	var cerr *types.CitationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "recommendation", cerr.Subject)
}

func TestFormatForDisplay(t *testing.T) {
	citations := []types.Citation{
		cite("ABC-0", "https://t.example.com/ABC-0", "a"),
		cite("ABC-7", "https://t.example.com/ABC-7", "b"),
		cite("ABC-0", "https://t.example.com/ABC-0", "same source, different excerpt"),
	}

	lines := FormatForDisplay(citations)
	require.Len(t, lines, 2)
	assert.Equal(t, "[1] ABC-0 — https://t.example.com/ABC-0", lines[0])
	assert.Equal(t, "[2] ABC-7 — https://t.example.com/ABC-7", lines[1])
}

func TestFormatMarkdown(t *testing.T) {
	md := FormatMarkdown([]types.Citation{cite("ABC-0", "https://t.example.com/ABC-0", "the fix")})
	assert.Contains(t, md, "Supporting Evidence")
	assert.Contains(t, md, "[tracker-issue: ABC-0](https://t.example.com/ABC-0)")

	assert.Equal(t, "(No citations)", FormatMarkdown(nil))
}
