package triage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleuthdev/sleuth/internal/ai"
	"github.com/sleuthdev/sleuth/internal/tracker"
)

// fakeTracker serves a fixed issue set and records posted comments
type fakeTracker struct {
	issues   map[string]*tracker.IssueRecord
	comments map[string][]string
}

func newFakeTracker(issues ...*tracker.IssueRecord) *fakeTracker {
	ft := &fakeTracker{
		issues:   make(map[string]*tracker.IssueRecord),
		comments: make(map[string][]string),
	}
	for _, issue := range issues {
		ft.issues[issue.ID] = issue
	}
	return ft
}

func (f *fakeTracker) Fetch(ctx context.Context, issueID string) (*tracker.IssueRecord, error) {
	issue, ok := f.issues[issueID]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	return issue, nil
}

func (f *fakeTracker) Query(ctx context.Context, filter tracker.Filter) ([]*tracker.IssueRecord, error) {
	return nil, nil
}

func (f *fakeTracker) Comment(ctx context.Context, issueID, text string) error {
	f.comments[issueID] = append(f.comments[issueID], text)
	return nil
}

// scriptedTransport returns canned responses in order
type scriptedTransport struct {
	outputs []string
	calls   int
}

func (s *scriptedTransport) Run(ctx context.Context, task string) (string, error) {
	if s.calls >= len(s.outputs) {
		return "", errors.New("scripted transport exhausted")
	}
	out := s.outputs[s.calls]
	s.calls++
	return out, nil
}

func testIssue() *tracker.IssueRecord {
	return &tracker.IssueRecord{
		ID:          "ABC-7",
		Title:       "login fails after timeout",
		Description: "users report being logged out and unable to log back in",
		State:       "open",
		URL:         "https://tracker.example.com/issue/ABC-7",
		UpdatedAt:   time.Now(),
	}
}

func newTestTriager(ft *fakeTracker, transport ai.Transport, cfg Config) *Triager {
	retry := ai.DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	retry.MaxBackoff = 5 * time.Millisecond
	return NewTriager(ft, ai.NewInvoker(transport, retry), cfg)
}

func TestTriageValidIssue(t *testing.T) {
	ft := newFakeTracker(testIssue())
	transport := &scriptedTransport{outputs: []string{
		`{"valid": true, "actionable": true, "missing_context": [], "reasoning": "reproducible with clear steps"}`,
		`{"severity": "P1", "reasoning": "blocks all logins after session expiry"}`,
	}}

	a, err := newTestTriager(ft, transport, Config{}).Triage(context.Background(), "ABC-7")
	require.NoError(t, err)

	assert.Equal(t, "ABC-7", a.IssueID)
	assert.True(t, a.Valid)
	assert.True(t, a.Actionable)
	assert.Equal(t, SeverityP1, a.Severity)
	assert.Equal(t, 2, a.Priority)
	assert.Equal(t, "blocks all logins after session expiry", a.SeverityReasoning)
	assert.Equal(t, "reproducible with clear steps", a.ValidityReasoning)
	assert.Empty(t, a.Warnings)

	// Write-back disabled by default
	assert.Empty(t, ft.comments["ABC-7"])
}

func TestTriageInvalidIssueWithMissingContext(t *testing.T) {
	ft := newFakeTracker(testIssue())
	transport := &scriptedTransport{outputs: []string{
		`{"valid": false, "actionable": false, "missing_context": ["affected browser", "account id"], "reasoning": "cannot reproduce as described"}`,
		`{"severity": "P3", "reasoning": "single unverified report"}`,
	}}

	a, err := newTestTriager(ft, transport, Config{}).Triage(context.Background(), "ABC-7")
	require.NoError(t, err)

	assert.False(t, a.Valid)
	assert.False(t, a.Actionable)
	assert.Equal(t, []string{"affected browser", "account id"}, a.MissingContext)
	assert.Equal(t, SeverityP3, a.Severity)
	assert.Equal(t, 4, a.Priority)
}

func TestTriageRejectsUnknownSeverityBand(t *testing.T) {
	ft := newFakeTracker(testIssue())
	transport := &scriptedTransport{outputs: []string{
		`{"valid": true, "actionable": true, "reasoning": "clear report"}`,
		`{"severity": "urgent", "reasoning": "bad band name"}`,
	}}

	_, err := newTestTriager(ft, transport, Config{MaxAgentAttempts: 1}).Triage(context.Background(), "ABC-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown band")
}

func TestTriageNormalizesSeverityCase(t *testing.T) {
	ft := newFakeTracker(testIssue())
	transport := &scriptedTransport{outputs: []string{
		`{"valid": true, "actionable": true, "reasoning": "clear report"}`,
		`{"severity": " p0 ", "reasoning": "production down"}`,
	}}

	a, err := newTestTriager(ft, transport, Config{}).Triage(context.Background(), "ABC-7")
	require.NoError(t, err)
	assert.Equal(t, SeverityP0, a.Severity)
	assert.Equal(t, 1, a.Priority)
}

func TestTriageWriteBack(t *testing.T) {
	ft := newFakeTracker(testIssue())
	transport := &scriptedTransport{outputs: []string{
		`{"valid": true, "actionable": true, "reasoning": "reproducible"}`,
		`{"severity": "P2", "reasoning": "degraded but usable"}`,
	}}

	a, err := newTestTriager(ft, transport, Config{EnableWriteBack: true}).Triage(context.Background(), "ABC-7")
	require.NoError(t, err)
	assert.Empty(t, a.Warnings)

	require.Len(t, ft.comments["ABC-7"], 1)
	comment := ft.comments["ABC-7"][0]
	assert.Contains(t, comment, "Triage Assessment")
	assert.Contains(t, comment, "P2")
	assert.Contains(t, comment, "priority 3")
	assert.Contains(t, comment, "degraded but usable")
}

func TestTriageMissingIssue(t *testing.T) {
	ft := newFakeTracker()
	transport := &scriptedTransport{}

	_, err := newTestTriager(ft, transport, Config{}).Triage(context.Background(), "NOPE-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	assert.Zero(t, transport.calls)
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, 1, PriorityFor(SeverityP0))
	assert.Equal(t, 2, PriorityFor(SeverityP1))
	assert.Equal(t, 3, PriorityFor(SeverityP2))
	assert.Equal(t, 4, PriorityFor(SeverityP3))
	assert.Equal(t, 0, PriorityFor(Severity("P9")))
}

func TestBuildCommentIncludesMissingContext(t *testing.T) {
	a := &Assessment{
		IssueID:           "ABC-7",
		Valid:             false,
		Actionable:        false,
		MissingContext:    []string{"affected browser"},
		ValidityReasoning: "cannot reproduce",
		Severity:          SeverityP3,
		Priority:          4,
		SeverityReasoning: "single report",
	}
	comment := BuildComment(a)
	assert.Contains(t, comment, "Invalid, Not Actionable")
	assert.Contains(t, comment, "Missing Context")
	assert.Contains(t, comment, "- affected browser")
}
