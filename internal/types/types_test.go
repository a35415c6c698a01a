package types

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCitation() Citation {
	return Citation{
		SourceType:  SourceTrackerIssue,
		SourceID:    "ABC-0",
		SourceURL:   "https://tracker.example.com/issue/ABC-0",
		Excerpt:     "increase session timeout config",
		RetrievedAt: time.Now(),
	}
}

func TestCitationValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Citation)
		wantErr string
	}{
		{
			name:   "valid citation",
			mutate: func(c *Citation) {},
		},
		{
			name:    "empty excerpt",
			mutate:  func(c *Citation) { c.Excerpt = "" },
			wantErr: "excerpt is required",
		},
		{
			name:    "whitespace excerpt",
			mutate:  func(c *Citation) { c.Excerpt = "   \n\t" },
			wantErr: "excerpt is required",
		},
		{
			name: "excerpt too long",
			mutate: func(c *Citation) {
				long := make([]byte, MaxExcerptLength+1)
				for i := range long {
					long[i] = 'x'
				}
				c.Excerpt = string(long)
			},
			wantErr: "excerpt exceeds",
		},
		{
			name:    "relative source URL",
			mutate:  func(c *Citation) { c.SourceURL = "/issue/ABC-0" },
			wantErr: "absolute URL",
		},
		{
			name:    "missing source id",
			mutate:  func(c *Citation) { c.SourceID = "" },
			wantErr: "source_id is required",
		},
		{
			name:    "unknown source type",
			mutate:  func(c *Citation) { c.SourceType = "wiki-page" },
			wantErr: "invalid source type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCitation()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestTruncateExcerpt(t *testing.T) {
	short := "increase session timeout config"
	assert.Equal(t, short, TruncateExcerpt(short))

	long := strings.Repeat("x", MaxExcerptLength+100)
	got := TruncateExcerpt(long)
	assert.Len(t, got, MaxExcerptLength)
	assert.True(t, strings.HasSuffix(got, "..."))

	// Cutting must never split a multi-byte rune
	multibyte := strings.Repeat("é", MaxExcerptLength) // 2 bytes per rune
	got = TruncateExcerpt(multibyte)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), MaxExcerptLength)
	assert.True(t, strings.HasSuffix(got, "..."))

	c := validCitation()
	c.Excerpt = TruncateExcerpt(multibyte)
	assert.NoError(t, c.Validate())
}

func TestNewFindingRequiresCitations(t *testing.T) {
	// Zero citations must fail construction - never coerced into a
	// placeholder citation.
	f, err := NewFinding("login fails after timeout", 0.8, nil)
	require.Error(t, err)
	assert.Nil(t, f)

	var cerr *CitationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "finding", cerr.Subject)
	assert.Contains(t, cerr.Detail, "no citations")
}

func TestNewFindingValid(t *testing.T) {
	f, err := NewFinding("login fails after timeout", 0.8, []Citation{validCitation()})
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Len(t, f.Citations, 1)
	assert.Equal(t, 0.8, f.Confidence)
}

func TestNewFindingConfidenceBounds(t *testing.T) {
	_, err := NewFinding("claim", 1.2, []Citation{validCitation()})
	assert.Error(t, err)

	_, err = NewFinding("claim", -0.1, []Citation{validCitation()})
	assert.Error(t, err)
}

func TestNewRecommendationRequiresCitations(t *testing.T) {
	r, err := NewRecommendation("restart the scheduler", "mitigates the leak", 0.5, []Citation{})
	require.Error(t, err)
	assert.Nil(t, r)

	var cerr *CitationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "recommendation", cerr.Subject)
}

func TestPatternRecordValidate(t *testing.T) {
	rec := PatternRecord{
		RecordID:           "r-1",
		Signature:          "login fails after timeout",
		RecommendationText: "increase session timeout",
		Outcome:            OutcomePending,
		Confidence:         0.5,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
		ObservationCount:   1,
	}
	assert.NoError(t, rec.Validate())

	bad := rec
	bad.Outcome = "maybe"
	assert.Error(t, bad.Validate())

	bad = rec
	bad.Confidence = 1.5
	assert.Error(t, bad.Validate())

	bad = rec
	bad.ObservationCount = 0
	assert.Error(t, bad.Validate())
}

func TestResultCountCitationsAndWarnings(t *testing.T) {
	f, err := NewFinding("claim one", 0.9, []Citation{validCitation(), validCitation()})
	require.NoError(t, err)
	r, err := NewRecommendation("do the thing", "because evidence", 0.7, []Citation{validCitation()})
	require.NoError(t, err)

	result := InvestigationResult{
		IssueID:         "ABC-1",
		Findings:        []Finding{*f},
		Recommendations: []Recommendation{*r},
	}
	assert.Equal(t, 3, result.CountCitations())
	assert.False(t, result.Degraded)

	result.AddWarning("history research unavailable")
	assert.True(t, result.Degraded)
	assert.Len(t, result.Warnings, 1)
}
