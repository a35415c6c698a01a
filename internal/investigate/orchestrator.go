// Package investigate coordinates a full investigation: fetch the issue,
// research tracker history, synthesize evidence-backed findings through
// the agent, gate on citation validation, and record learned patterns.
package investigate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sleuthdev/sleuth/internal/ai"
	"github.com/sleuthdev/sleuth/internal/citation"
	"github.com/sleuthdev/sleuth/internal/history"
	"github.com/sleuthdev/sleuth/internal/lexical"
	"github.com/sleuthdev/sleuth/internal/patterns"
	"github.com/sleuthdev/sleuth/internal/tracker"
	"github.com/sleuthdev/sleuth/internal/types"
)

// Stage identifies where an investigation is in its lifecycle
type Stage string

const (
	StageFetching            Stage = "fetching"
	StageResearching         Stage = "researching"
	StageSynthesizing        Stage = "synthesizing"
	StageValidatingCitations Stage = "validating-citations"
	StageRecordingPattern    Stage = "recording-pattern"
	StageDone                Stage = "done"
)

// StageFailure is the terminal error of a failed investigation. Only the
// fatal stages produce one: research and pattern recording degrade the
// result instead of failing it.
type StageFailure struct {
	Stage  Stage
	Detail string
	Err    error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("investigation failed at %s: %s", e.Stage, e.Detail)
}

func (e *StageFailure) Unwrap() error {
	return e.Err
}

// Config controls one investigation run
type Config struct {
	MaxRelated       int  // related issues to research (default 10)
	TopKPatterns     int  // learned patterns to match (default 5)
	MaxAgentAttempts int  // agent attempt budget (default 3)
	EnableWriteBack  bool // post the summary as a tracker comment
	ReportDir        string
}

// DefaultConfig returns the default investigation configuration
func DefaultConfig() Config {
	return Config{
		MaxRelated:       10,
		TopKPatterns:     5,
		MaxAgentAttempts: 3,
		ReportDir:        "investigations",
	}
}

// Orchestrator runs investigations end to end
type Orchestrator struct {
	tracker    tracker.Client
	researcher *history.Researcher
	invoker    *ai.Invoker
	store      *patterns.Store
	cfg        Config
}

// NewOrchestrator wires the investigation pipeline
func NewOrchestrator(tc tracker.Client, researcher *history.Researcher, invoker *ai.Invoker, store *patterns.Store, cfg Config) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.MaxRelated <= 0 {
		cfg.MaxRelated = defaults.MaxRelated
	}
	if cfg.TopKPatterns <= 0 {
		cfg.TopKPatterns = defaults.TopKPatterns
	}
	if cfg.MaxAgentAttempts <= 0 {
		cfg.MaxAgentAttempts = defaults.MaxAgentAttempts
	}
	return &Orchestrator{tracker: tc, researcher: researcher, invoker: invoker, store: store, cfg: cfg}
}

// evidenceItem is one numbered entry in the evidence list handed to the
// agent. The agent cites by number; the orchestrator maps numbers back to
// the real citations, so excerpts and URLs are never agent-produced.
type evidenceItem struct {
	Label    string
	Citation types.Citation
}

// Investigate runs the full pipeline for one issue. Fetching, synthesis,
// and citation validation are fatal; history research and pattern
// recording degrade the result with a warning instead.
func (o *Orchestrator) Investigate(ctx context.Context, issueID string) (*types.InvestigationResult, error) {
	start := time.Now()

	result := &types.InvestigationResult{
		IssueID:     issueID,
		GeneratedAt: start.UTC(),
	}

	// Fetching
	slog.Info("investigation started", "issue", issueID, "stage", StageFetching)
	issue, err := o.tracker.Fetch(ctx, issueID)
	if err != nil {
		return nil, &StageFailure{Stage: StageFetching, Detail: fmt.Sprintf("failed to fetch %s: %v", issueID, err), Err: err}
	}
	result.IssueURL = issue.URL

	signature := lexical.Signature(issue.Title + " " + issue.Description)

	// Researching: history and pattern matching both degrade on failure.
	// Matching runs before any recording so a recommendation produced in
	// this run can never match itself.
	slog.Info("researching history", "issue", issueID, "stage", StageResearching)
	related, err := o.researcher.FindRelated(ctx, issue, o.cfg.MaxRelated)
	if err != nil {
		result.AddWarning(fmt.Sprintf("history research failed: %v", err))
		related = nil
	}
	result.SimilarIssueCount = len(related)

	matches, err := o.store.Match(signature, o.cfg.TopKPatterns)
	if err != nil {
		result.AddWarning(fmt.Sprintf("pattern matching failed: %v", err))
		matches = nil
	}
	result.PatternMatches = matches

	evidence := buildEvidence(issue, related, matches)

	// Synthesizing
	slog.Info("synthesizing findings", "issue", issueID, "stage", StageSynthesizing,
		"related", len(related), "patterns", len(matches))
	output, err := o.synthesize(ctx, issue, evidence)
	if err != nil {
		return nil, &StageFailure{Stage: StageSynthesizing, Detail: err.Error(), Err: err}
	}

	// ValidatingCitations: resolve evidence numbers to citations through
	// the constructors, then gate the whole result through the ledger.
	slog.Info("validating citations", "issue", issueID, "stage", StageValidatingCitations)
	if err := o.assemble(result, output, evidence); err != nil {
		return nil, &StageFailure{Stage: StageValidatingCitations, Detail: err.Error(), Err: err}
	}
	if err := citation.ValidateResult(result); err != nil {
		return nil, &StageFailure{Stage: StageValidatingCitations, Detail: err.Error(), Err: err}
	}

	// RecordingPattern: only after validation succeeded
	slog.Info("recording patterns", "issue", issueID, "stage", StageRecordingPattern)
	o.recordPatterns(result, signature, matches)

	result.CitationCount = result.CountCitations()
	result.Duration = time.Since(start)

	o.report(ctx, issue, result)

	slog.Info("investigation complete", "issue", issueID, "stage", StageDone,
		"findings", len(result.Findings), "recommendations", len(result.Recommendations),
		"degraded", result.Degraded, "duration", result.Duration)
	return result, nil
}

// buildEvidence numbers the citable material: the issue itself first, then
// related issues, then learned patterns
func buildEvidence(issue *tracker.IssueRecord, related []history.RelatedIssue, matches []types.PatternMatch) []evidenceItem {
	var items []evidenceItem

	selfExcerpt := strings.TrimSpace(issue.Description)
	if selfExcerpt == "" {
		selfExcerpt = strings.TrimSpace(issue.Title)
	}
	selfExcerpt = types.TruncateExcerpt(selfExcerpt)
	items = append(items, evidenceItem{
		Label: fmt.Sprintf("issue under investigation %s", issue.ID),
		Citation: types.Citation{
			SourceType:  types.SourceTrackerIssue,
			SourceID:    issue.ID,
			SourceURL:   issue.URL,
			Excerpt:     selfExcerpt,
			RetrievedAt: time.Now().UTC(),
		},
	})

	for _, rel := range related {
		items = append(items, evidenceItem{
			Label:    fmt.Sprintf("related issue %s (similarity %.2f, state %s)", rel.Issue.ID, rel.Score, rel.Issue.State),
			Citation: rel.Citation,
		})
	}

	for _, m := range matches {
		items = append(items, evidenceItem{
			Label: fmt.Sprintf("learned pattern (confidence %.2f, outcome %s)", m.Record.Confidence, m.Record.Outcome),
			Citation: types.Citation{
				SourceType:  types.SourcePatternStore,
				SourceID:    m.Record.RecordID,
				SourceURL:   "sleuth://patterns/" + m.Record.RecordID,
				Excerpt:     types.TruncateExcerpt(m.Record.RecommendationText),
				RetrievedAt: time.Now().UTC(),
			},
		})
	}
	return items
}

// synthesisOutput is the shape the agent must produce. Evidence entries
// are 1-based indices into the numbered evidence list.
type synthesisOutput struct {
	Findings []struct {
		Claim      string  `json:"claim"`
		Confidence float64 `json:"confidence"`
		Evidence   []int   `json:"evidence"`
	} `json:"findings"`
	Recommendations []struct {
		Action     string  `json:"action"`
		Rationale  string  `json:"rationale"`
		Confidence float64 `json:"confidence"`
		Evidence   []int   `json:"evidence"`
	} `json:"recommendations"`
}

var synthesisSchema = ai.Schema{
	"findings":        {Kind: ai.KindArray, Required: true},
	"recommendations": {Kind: ai.KindArray, Required: true},
}

func (o *Orchestrator) synthesize(ctx context.Context, issue *tracker.IssueRecord, evidence []evidenceItem) (*synthesisOutput, error) {
	task := buildSynthesisTask(issue, evidence)

	output, err := ai.InvokeInto[synthesisOutput](ctx, o.invoker, task, synthesisSchema, o.cfg.MaxAgentAttempts)
	if err != nil {
		return nil, err
	}
	if len(output.Findings) == 0 && len(output.Recommendations) == 0 {
		return nil, fmt.Errorf("agent produced neither findings nor recommendations")
	}
	return &output, nil
}

func buildSynthesisTask(issue *tracker.IssueRecord, evidence []evidenceItem) string {
	var b strings.Builder
	b.WriteString("You are investigating an issue in a software project's tracker.\n\n")
	fmt.Fprintf(&b, "Issue %s: %s\n", issue.ID, issue.Title)
	if desc := strings.TrimSpace(issue.Description); desc != "" {
		fmt.Fprintf(&b, "Description: %s\n", desc)
	}
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}

	b.WriteString("\nEvidence (cite entries by number, use only these):\n")
	for i, item := range evidence {
		fmt.Fprintf(&b, "[%d] %s: %q\n", i+1, item.Label, item.Citation.Excerpt)
	}

	b.WriteString(`
Produce findings (observations about probable cause) and recommendations
(concrete next actions), each grounded ONLY in the evidence above.

Respond with a single JSON object and no other text:
{"findings": [{"claim": "...", "confidence": 0.0-1.0, "evidence": [1]}],
 "recommendations": [{"action": "...", "rationale": "...", "confidence": 0.0-1.0, "evidence": [2]}]}

Every finding and recommendation must list at least one evidence number.`)
	return b.String()
}

// assemble converts the agent's indexed output into validated findings and
// recommendations. An out-of-range or empty evidence list is a validation
// failure: claims without real evidence must not survive.
func (o *Orchestrator) assemble(result *types.InvestigationResult, output *synthesisOutput, evidence []evidenceItem) error {
	resolve := func(subject string, indices []int) ([]types.Citation, error) {
		if len(indices) == 0 {
			return nil, fmt.Errorf("%s cites no evidence", subject)
		}
		var cits []types.Citation
		for _, n := range indices {
			if n < 1 || n > len(evidence) {
				return nil, fmt.Errorf("%s cites evidence [%d], which does not exist (have 1..%d)", subject, n, len(evidence))
			}
			cits = append(cits, evidence[n-1].Citation)
		}
		return cits, nil
	}

	for i, f := range output.Findings {
		cits, err := resolve(fmt.Sprintf("finding %d", i+1), f.Evidence)
		if err != nil {
			return err
		}
		finding, err := types.NewFinding(f.Claim, f.Confidence, cits)
		if err != nil {
			return fmt.Errorf("finding %d: %w", i+1, err)
		}
		result.Findings = append(result.Findings, *finding)
	}

	for i, r := range output.Recommendations {
		cits, err := resolve(fmt.Sprintf("recommendation %d", i+1), r.Evidence)
		if err != nil {
			return err
		}
		rec, err := types.NewRecommendation(r.Action, r.Rationale, r.Confidence, cits)
		if err != nil {
			return fmt.Errorf("recommendation %d: %w", i+1, err)
		}
		result.Recommendations = append(result.Recommendations, *rec)
	}
	return nil
}

// recordPatterns appends a pending pattern per validated recommendation.
// Recommendations that already exist verbatim among the matched patterns
// are skipped so re-investigation does not reset their learned confidence.
func (o *Orchestrator) recordPatterns(result *types.InvestigationResult, signature string, matches []types.PatternMatch) {
	known := make(map[string]bool, len(matches))
	for _, m := range matches {
		if m.Record.Signature == signature {
			known[m.Record.RecommendationText] = true
		}
	}

	for _, rec := range result.Recommendations {
		if known[rec.Action] {
			slog.Debug("skipping already-learned pattern", "action", rec.Action)
			continue
		}
		if _, err := o.store.Record(signature, rec.Action); err != nil {
			result.AddWarning(fmt.Sprintf("pattern recording failed: %v", err))
			return
		}
	}
}

// report writes the markdown report and optionally posts a tracker
// comment. Both are best-effort: failures degrade, never fail.
func (o *Orchestrator) report(ctx context.Context, issue *tracker.IssueRecord, result *types.InvestigationResult) {
	if o.cfg.ReportDir != "" {
		path, err := WriteReport(o.cfg.ReportDir, issue, result)
		if err != nil {
			result.AddWarning(fmt.Sprintf("report writing failed: %v", err))
		} else {
			slog.Info("report written", "path", path)
		}
	}

	if !o.cfg.EnableWriteBack {
		slog.Info("write-back disabled, skipping tracker comment", "issue", issue.ID)
		return
	}
	if err := o.tracker.Comment(ctx, issue.ID, BuildComment(result)); err != nil {
		result.AddWarning(fmt.Sprintf("tracker comment failed: %v", err))
	}
}
