// Package triage assesses whether a tracker issue is a valid, actionable
// bug and how severe it is, before anyone spends an investigation on it.
//
// Triage is two independent agent assessments over the same issue text: a
// validity analysis and a severity assessment. Both must succeed; the
// optional tracker write-back is best-effort and degrades the result with
// a warning instead of failing it.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sleuthdev/sleuth/internal/ai"
	"github.com/sleuthdev/sleuth/internal/tracker"
)

// Severity is the assessed priority band of an issue
type Severity string

const (
	SeverityP0 Severity = "P0" // critical, drop everything
	SeverityP1 Severity = "P1" // high
	SeverityP2 Severity = "P2" // medium
	SeverityP3 Severity = "P3" // low
)

// IsValid reports whether s is one of the known severity bands
func (s Severity) IsValid() bool {
	switch s {
	case SeverityP0, SeverityP1, SeverityP2, SeverityP3:
		return true
	}
	return false
}

// PriorityFor maps a severity band to a tracker priority level
// (1=urgent, 2=high, 3=medium, 4=low; 0=none for anything unknown).
func PriorityFor(s Severity) int {
	switch s {
	case SeverityP0:
		return 1
	case SeverityP1:
		return 2
	case SeverityP2:
		return 3
	case SeverityP3:
		return 4
	}
	return 0
}

// Assessment is the complete triage outcome for one issue
type Assessment struct {
	IssueID  string `json:"issue_id"`
	IssueURL string `json:"issue_url,omitempty"`

	Valid             bool     `json:"valid"`
	Actionable        bool     `json:"actionable"`
	MissingContext    []string `json:"missing_context,omitempty"`
	ValidityReasoning string   `json:"validity_reasoning"`

	Severity          Severity `json:"severity"`
	Priority          int      `json:"priority"`
	SeverityReasoning string   `json:"severity_reasoning"`

	Warnings    []string      `json:"warnings,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
	Duration    time.Duration `json:"duration"`
}

// Config controls one triage run
type Config struct {
	MaxAgentAttempts int  // agent attempt budget (default 3)
	EnableWriteBack  bool // post the assessment as a tracker comment
}

// Triager runs triage assessments
type Triager struct {
	tracker tracker.Client
	invoker *ai.Invoker
	cfg     Config
}

// NewTriager wires the triage pipeline
func NewTriager(tc tracker.Client, invoker *ai.Invoker, cfg Config) *Triager {
	if cfg.MaxAgentAttempts <= 0 {
		cfg.MaxAgentAttempts = 3
	}
	return &Triager{tracker: tc, invoker: invoker, cfg: cfg}
}

type validityOutput struct {
	Valid          bool     `json:"valid"`
	Actionable     bool     `json:"actionable"`
	MissingContext []string `json:"missing_context"`
	Reasoning      string   `json:"reasoning"`
}

var validitySchema = ai.Schema{
	"valid":           {Kind: ai.KindBool, Required: true},
	"actionable":      {Kind: ai.KindBool, Required: true},
	"missing_context": {Kind: ai.KindArray},
	"reasoning":       {Kind: ai.KindString, Required: true},
}

type severityOutput struct {
	Severity  string `json:"severity"`
	Reasoning string `json:"reasoning"`
}

var severitySchema = ai.Schema{
	"severity":  {Kind: ai.KindString, Required: true},
	"reasoning": {Kind: ai.KindString, Required: true},
}

// Triage fetches the issue, runs the validity and severity assessments,
// and optionally posts the combined analysis back to the tracker.
func (t *Triager) Triage(ctx context.Context, issueID string) (*Assessment, error) {
	start := time.Now()

	slog.Info("triage started", "issue", issueID)
	issue, err := t.tracker.Fetch(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", issueID, err)
	}

	assessment := &Assessment{
		IssueID:     issue.ID,
		IssueURL:    issue.URL,
		GeneratedAt: start.UTC(),
	}

	slog.Info("analyzing validity", "issue", issueID)
	validity, err := ai.InvokeInto[validityOutput](ctx, t.invoker, buildValidityTask(issue), validitySchema, t.cfg.MaxAgentAttempts)
	if err != nil {
		return nil, fmt.Errorf("validity analysis failed: %w", err)
	}
	assessment.Valid = validity.Valid
	assessment.Actionable = validity.Actionable
	assessment.MissingContext = validity.MissingContext
	assessment.ValidityReasoning = validity.Reasoning

	slog.Info("assessing severity", "issue", issueID)
	severity, err := ai.InvokeInto[severityOutput](ctx, t.invoker, buildSeverityTask(issue), severitySchema, t.cfg.MaxAgentAttempts)
	if err != nil {
		return nil, fmt.Errorf("severity assessment failed: %w", err)
	}
	band := Severity(strings.ToUpper(strings.TrimSpace(severity.Severity)))
	if !band.IsValid() {
		return nil, fmt.Errorf("severity assessment returned unknown band %q (want P0..P3)", severity.Severity)
	}
	assessment.Severity = band
	assessment.Priority = PriorityFor(band)
	assessment.SeverityReasoning = severity.Reasoning

	if t.cfg.EnableWriteBack {
		if err := t.tracker.Comment(ctx, issue.ID, BuildComment(assessment)); err != nil {
			assessment.Warnings = append(assessment.Warnings, fmt.Sprintf("tracker comment failed: %v", err))
		}
	} else {
		slog.Info("write-back disabled, skipping tracker comment", "issue", issueID)
	}

	assessment.Duration = time.Since(start)
	slog.Info("triage complete", "issue", issueID,
		"valid", assessment.Valid, "severity", assessment.Severity,
		"duration", assessment.Duration)
	return assessment, nil
}

func buildValidityTask(issue *tracker.IssueRecord) string {
	var b strings.Builder
	b.WriteString("You are triaging an issue in a software project's tracker.\n\n")
	writeIssue(&b, issue)
	b.WriteString(`
Determine whether this is a valid bug or issue, and whether there is
enough information to act on it. List any missing context a responder
would need.

Respond with a single JSON object and no other text:
{"valid": true, "actionable": true, "missing_context": ["..."], "reasoning": "..."}`)
	return b.String()
}

func buildSeverityTask(issue *tracker.IssueRecord) string {
	var b strings.Builder
	b.WriteString("You are assessing the severity of an issue in a software project's tracker.\n\n")
	writeIssue(&b, issue)
	b.WriteString(`
Assign a severity band: P0 (critical outage or data loss), P1 (major
functionality broken), P2 (degraded but usable), P3 (minor or cosmetic).

Respond with a single JSON object and no other text:
{"severity": "P2", "reasoning": "..."}`)
	return b.String()
}

func writeIssue(b *strings.Builder, issue *tracker.IssueRecord) {
	fmt.Fprintf(b, "Issue %s: %s\n", issue.ID, issue.Title)
	if desc := strings.TrimSpace(issue.Description); desc != "" {
		fmt.Fprintf(b, "Description: %s\n", desc)
	}
	if len(issue.Labels) > 0 {
		fmt.Fprintf(b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	if len(issue.Comments) > 0 {
		fmt.Fprintf(b, "Comments: %d\n", len(issue.Comments))
	}
}

// BuildComment renders the assessment as a tracker comment
func BuildComment(a *Assessment) string {
	var b strings.Builder
	b.WriteString("## Triage Assessment\n\n")

	validity := "Invalid"
	if a.Valid {
		validity = "Valid"
	}
	actionable := "Not Actionable"
	if a.Actionable {
		actionable = "Actionable"
	}
	fmt.Fprintf(&b, "**Validity**: %s, %s\n", validity, actionable)
	fmt.Fprintf(&b, "**Severity**: %s (priority %d)\n", a.Severity, a.Priority)

	b.WriteString("\n**Validity Analysis**\n")
	fmt.Fprintf(&b, "%s\n", a.ValidityReasoning)
	if len(a.MissingContext) > 0 {
		b.WriteString("\n**Missing Context**\n")
		for _, item := range a.MissingContext {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}

	b.WriteString("\n**Severity Assessment**\n")
	fmt.Fprintf(&b, "%s\n", a.SeverityReasoning)
	return b.String()
}
