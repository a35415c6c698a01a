package investigate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleuthdev/sleuth/internal/ai"
	"github.com/sleuthdev/sleuth/internal/history"
	"github.com/sleuthdev/sleuth/internal/patterns"
	"github.com/sleuthdev/sleuth/internal/tracker"
	"github.com/sleuthdev/sleuth/internal/types"
)

type fakeTracker struct {
	issues   map[string]*tracker.IssueRecord
	queryErr error
	comments []string
}

func (f *fakeTracker) Fetch(ctx context.Context, id string) (*tracker.IssueRecord, error) {
	if issue, ok := f.issues[id]; ok {
		return issue, nil
	}
	return nil, tracker.ErrNotFound
}

func (f *fakeTracker) Query(ctx context.Context, filter tracker.Filter) ([]*tracker.IssueRecord, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []*tracker.IssueRecord
	for _, issue := range f.issues {
		out = append(out, issue)
	}
	return out, nil
}

func (f *fakeTracker) Comment(ctx context.Context, id, text string) error {
	f.comments = append(f.comments, text)
	return nil
}

// fixedTransport always returns the same agent output
type fixedTransport struct {
	output string
	calls  int
}

func (t *fixedTransport) Run(ctx context.Context, task string) (string, error) {
	t.calls++
	return t.output, nil
}

func testIssue(id, title, description string) *tracker.IssueRecord {
	return &tracker.IssueRecord{
		ID:          id,
		Title:       title,
		Description: description,
		State:       "open",
		URL:         "https://tracker.example.com/issue/" + id,
		UpdatedAt:   time.Now(),
	}
}

func newTestOrchestrator(t *testing.T, ft *fakeTracker, transport ai.Transport, cfg Config) (*Orchestrator, *patterns.Store) {
	t.Helper()
	store, err := patterns.Open(filepath.Join(t.TempDir(), "patterns.jsonl"))
	require.NoError(t, err)
	if cfg.ReportDir == "" {
		cfg.ReportDir = filepath.Join(t.TempDir(), "investigations")
	}
	retry := ai.DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	invoker := ai.NewInvoker(transport, retry)
	return NewOrchestrator(ft, history.NewResearcher(ft), invoker, store, cfg), store
}

func TestInvestigateHappyPath(t *testing.T) {
	resolved := testIssue("ABC-0", "login fails after timeout", "users report login fails after timeout under load")
	resolved.State = "completed"
	resolved.Resolution = "increase session timeout config"

	ft := &fakeTracker{issues: map[string]*tracker.IssueRecord{
		"ABC-0": resolved,
		"ABC-1": testIssue("ABC-1", "login fails after timeout", "login fails after timeout"),
	}}

	// Evidence order: [1] the issue itself, [2] related ABC-0
	transport := &fixedTransport{output: `{
		"findings": [{"claim": "timeout is likely session expiry", "confidence": 0.8, "evidence": [1, 2]}],
		"recommendations": [{"action": "increase session timeout config", "rationale": "resolved ABC-0", "confidence": 0.7, "evidence": [2]}]
	}`}

	reportDir := filepath.Join(t.TempDir(), "investigations")
	orch, store := newTestOrchestrator(t, ft, transport, Config{ReportDir: reportDir})

	result, err := orch.Investigate(context.Background(), "ABC-1")
	require.NoError(t, err)

	assert.Equal(t, "ABC-1", result.IssueID)
	assert.Equal(t, "https://tracker.example.com/issue/ABC-1", result.IssueURL)
	assert.False(t, result.Degraded)
	assert.Equal(t, 1, result.SimilarIssueCount)
	assert.Equal(t, 3, result.CitationCount)

	require.Len(t, result.Findings, 1)
	require.Len(t, result.Findings[0].Citations, 2)
	assert.Equal(t, "ABC-1", result.Findings[0].Citations[0].SourceID)
	assert.Equal(t, "ABC-0", result.Findings[0].Citations[1].SourceID)
	assert.Equal(t, "increase session timeout config", result.Findings[0].Citations[1].Excerpt)

	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, "increase session timeout config", result.Recommendations[0].Action)

	// The recommendation became a pending pattern
	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "increase session timeout config", records[0].RecommendationText)
	assert.Equal(t, types.OutcomePending, records[0].Outcome)

	// Report written, no write-back by default
	data, err := os.ReadFile(filepath.Join(reportDir, "ABC-1.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Investigation: ABC-1")
	assert.Contains(t, string(data), "increase session timeout config")
	assert.Empty(t, ft.comments)
}

func TestInvestigateFetchFailureIsFatal(t *testing.T) {
	ft := &fakeTracker{issues: map[string]*tracker.IssueRecord{}}
	orch, _ := newTestOrchestrator(t, ft, &fixedTransport{output: "{}"}, Config{})

	result, err := orch.Investigate(context.Background(), "GONE-1")
	assert.Nil(t, result)

	var sf *StageFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, StageFetching, sf.Stage)
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestInvestigateResearchFailureDegrades(t *testing.T) {
	ft := &fakeTracker{
		issues:   map[string]*tracker.IssueRecord{"ABC-1": testIssue("ABC-1", "login fails after timeout", "login fails after timeout")},
		queryErr: errors.New("tracker unavailable"),
	}
	// With research degraded the only evidence is the issue itself
	transport := &fixedTransport{output: `{
		"findings": [{"claim": "description points at session handling", "confidence": 0.5, "evidence": [1]}],
		"recommendations": []
	}`}
	orch, _ := newTestOrchestrator(t, ft, transport, Config{})

	result, err := orch.Investigate(context.Background(), "ABC-1")
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "history research failed")
	assert.Equal(t, 0, result.SimilarIssueCount)
	require.Len(t, result.Findings, 1)
}

func TestInvestigateRejectsOutOfRangeEvidence(t *testing.T) {
	ft := &fakeTracker{issues: map[string]*tracker.IssueRecord{
		"ABC-1": testIssue("ABC-1", "login fails after timeout", "login fails after timeout"),
	}}
	transport := &fixedTransport{output: `{
		"findings": [{"claim": "made up claim", "confidence": 0.9, "evidence": [99]}],
		"recommendations": []
	}`}
	orch, _ := newTestOrchestrator(t, ft, transport, Config{})

	_, err := orch.Investigate(context.Background(), "ABC-1")
	var sf *StageFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, StageValidatingCitations, sf.Stage)
	assert.Contains(t, sf.Detail, "[99]")
}

func TestInvestigateRejectsUncitedFinding(t *testing.T) {
	ft := &fakeTracker{issues: map[string]*tracker.IssueRecord{
		"ABC-1": testIssue("ABC-1", "login fails after timeout", "login fails after timeout"),
	}}
	transport := &fixedTransport{output: `{
		"findings": [{"claim": "uncited claim", "confidence": 0.9, "evidence": []}],
		"recommendations": []
	}`}
	orch, store := newTestOrchestrator(t, ft, transport, Config{})

	_, err := orch.Investigate(context.Background(), "ABC-1")
	var sf *StageFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, StageValidatingCitations, sf.Stage)

	// Nothing recorded when validation fails
	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInvestigateAgentExhaustionIsFatal(t *testing.T) {
	ft := &fakeTracker{issues: map[string]*tracker.IssueRecord{
		"ABC-1": testIssue("ABC-1", "login fails after timeout", "login fails after timeout"),
	}}
	transport := &fixedTransport{output: "this is not json at all"}
	orch, _ := newTestOrchestrator(t, ft, transport, Config{MaxAgentAttempts: 2})

	_, err := orch.Investigate(context.Background(), "ABC-1")
	var sf *StageFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, StageSynthesizing, sf.Stage)
	assert.Equal(t, 2, transport.calls)

	var af *ai.AgentFailure
	assert.ErrorAs(t, err, &af)
}

func TestInvestigateWriteBack(t *testing.T) {
	ft := &fakeTracker{issues: map[string]*tracker.IssueRecord{
		"ABC-1": testIssue("ABC-1", "login fails after timeout", "login fails after timeout"),
	}}
	transport := &fixedTransport{output: `{
		"findings": [{"claim": "session handling is suspect", "confidence": 0.6, "evidence": [1]}],
		"recommendations": [{"action": "audit session middleware", "rationale": "", "confidence": 0.5, "evidence": [1]}]
	}`}
	orch, _ := newTestOrchestrator(t, ft, transport, Config{EnableWriteBack: true})

	_, err := orch.Investigate(context.Background(), "ABC-1")
	require.NoError(t, err)

	require.Len(t, ft.comments, 1)
	assert.Contains(t, ft.comments[0], "Investigation Summary")
	assert.Contains(t, ft.comments[0], "audit session middleware")
	assert.Contains(t, ft.comments[0], "[1] ABC-1")
}

func TestInvestigateSkipsAlreadyLearnedPattern(t *testing.T) {
	ft := &fakeTracker{issues: map[string]*tracker.IssueRecord{
		"ABC-1": testIssue("ABC-1", "login fails after timeout", "login fails after timeout"),
	}}
	transport := &fixedTransport{output: `{
		"findings": [],
		"recommendations": [{"action": "increase session timeout config", "rationale": "", "confidence": 0.7, "evidence": [1]}]
	}`}
	orch, store := newTestOrchestrator(t, ft, transport, Config{})

	// Pre-learn the same recommendation and confirm it once
	rec, err := store.Record("after fails login timeout", "increase session timeout config")
	require.NoError(t, err)
	_, err = store.UpdateOutcome(rec.RecordID, types.OutcomeConfirmed)
	require.NoError(t, err)

	result, err := orch.Investigate(context.Background(), "ABC-1")
	require.NoError(t, err)
	require.Len(t, result.PatternMatches, 1)

	// Re-investigation must not reset the learned confidence to the prior
	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 0.6, records[0].Confidence, 1e-9)
}

func TestInvestigateTruncatesLongPatternEvidence(t *testing.T) {
	// A stored recommendation longer than the excerpt cap must still be
	// citable: the evidence excerpt is truncated, not rejected.
	ft := &fakeTracker{issues: map[string]*tracker.IssueRecord{
		"ABC-1": testIssue("ABC-1", "login fails after timeout", "login fails after timeout"),
	}}
	transport := &fixedTransport{output: `{
		"findings": [{"claim": "a previously learned fix applies", "confidence": 0.7, "evidence": [2]}],
		"recommendations": []
	}`}
	orch, store := newTestOrchestrator(t, ft, transport, Config{})

	longRec := strings.Repeat("increase session timeout config and ", 30)
	require.Greater(t, len(longRec), types.MaxExcerptLength)
	_, err := store.Record("after fails login timeout", longRec)
	require.NoError(t, err)

	result, err := orch.Investigate(context.Background(), "ABC-1")
	require.NoError(t, err)

	require.Len(t, result.Findings, 1)
	require.Len(t, result.Findings[0].Citations, 1)
	cit := result.Findings[0].Citations[0]
	assert.Equal(t, types.SourcePatternStore, cit.SourceType)
	assert.LessOrEqual(t, len(cit.Excerpt), types.MaxExcerptLength)
	assert.True(t, strings.HasSuffix(cit.Excerpt, "..."))
}

func TestBuildCommentDegradedNote(t *testing.T) {
	result := &types.InvestigationResult{IssueID: "ABC-1"}
	result.AddWarning("history research failed: tracker unavailable")

	comment := BuildComment(result)
	assert.Contains(t, comment, "Degraded")
	assert.Contains(t, comment, "tracker unavailable")
}
