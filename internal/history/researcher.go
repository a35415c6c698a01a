// Package history finds related historical issues in the tracker and
// turns their resolution evidence into citation candidates.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sleuthdev/sleuth/internal/lexical"
	"github.com/sleuthdev/sleuth/internal/tracker"
	"github.com/sleuthdev/sleuth/internal/types"
)

// DefaultMinSimilarity is the floor below which candidates are discarded
const DefaultMinSimilarity = 0.2

// labelBonusWeight is the score added per shared label/component,
// capped by maxLabelBonus. The bonus rewards coarse-filter agreement
// without letting labels outvote text similarity.
const (
	labelBonusWeight = 0.05
	maxLabelBonus    = 0.15
)

// ResearchFailure indicates the tracker query itself failed. It is not
// swallowed here: an investigation must not silently proceed as if no
// history existed. The orchestrator decides whether to degrade.
type ResearchFailure struct {
	Detail string
	Err    error
}

func (e *ResearchFailure) Error() string {
	return fmt.Sprintf("history research failed: %s", e.Detail)
}

func (e *ResearchFailure) Unwrap() error {
	return e.Err
}

// RelatedIssue is one ranked research result with the citation built from
// the specific evidence text that drove the match
type RelatedIssue struct {
	Issue    *tracker.IssueRecord
	Score    float64
	Citation types.Citation
}

// Researcher queries the tracker for issues similar to the one under
// investigation. It only reads tracker data.
type Researcher struct {
	client        tracker.Client
	minSimilarity float64
}

// NewResearcher creates a researcher with the default similarity floor
func NewResearcher(client tracker.Client) *Researcher {
	return &Researcher{client: client, minSimilarity: DefaultMinSimilarity}
}

// FindRelated returns up to maxResults issues related to the given one,
// ranked by similarity descending with ties broken by most recent
// activity. The ranking is deterministic: the same tracker dataset
// produces the identical sequence.
func (r *Researcher) FindRelated(ctx context.Context, issue *tracker.IssueRecord, maxResults int) ([]RelatedIssue, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	// Coarse filter: label/component overlap, delegated to the tracker's
	// query capability. Fetch more than we return so the similarity
	// ranking has something to cut.
	candidateLimit := maxResults * 4
	if candidateLimit > 100 {
		candidateLimit = 100
	}
	candidates, err := r.client.Query(ctx, tracker.Filter{
		Labels:     issue.Labels,
		Components: issue.Components,
		Limit:      candidateLimit,
	})
	if err != nil {
		return nil, &ResearchFailure{Detail: err.Error(), Err: err}
	}

	issueTokens := lexical.TokenSet(issue.Title + " " + issue.Description)

	var related []RelatedIssue
	for _, candidate := range candidates {
		if candidate.ID == issue.ID {
			continue
		}

		score := r.score(issueTokens, issue, candidate)
		if score < r.minSimilarity {
			continue
		}

		related = append(related, RelatedIssue{
			Issue:    candidate,
			Score:    score,
			Citation: buildCitation(candidate),
		})
	}

	sort.SliceStable(related, func(i, j int) bool {
		if related[i].Score != related[j].Score {
			return related[i].Score > related[j].Score
		}
		if !related[i].Issue.UpdatedAt.Equal(related[j].Issue.UpdatedAt) {
			return related[i].Issue.UpdatedAt.After(related[j].Issue.UpdatedAt)
		}
		return related[i].Issue.ID < related[j].Issue.ID
	})

	if len(related) > maxResults {
		related = related[:maxResults]
	}

	slog.Debug("history research complete",
		"issue", issue.ID,
		"candidates", len(candidates),
		"related", len(related))
	return related, nil
}

// score combines lexical similarity over title+description with a bonus
// for shared labels/components, clamped to 1.0
func (r *Researcher) score(issueTokens map[string]bool, issue, candidate *tracker.IssueRecord) float64 {
	candidateTokens := lexical.TokenSet(candidate.Title + " " + candidate.Description)
	score := lexical.Jaccard(issueTokens, candidateTokens)

	bonus := labelBonusWeight * float64(sharedCount(issue.Labels, candidate.Labels)+
		sharedCount(issue.Components, candidate.Components))
	if bonus > maxLabelBonus {
		bonus = maxLabelBonus
	}
	score += bonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// buildCitation picks the most specific evidence text available:
// resolution text, then the latest comment, then a description excerpt.
// The cited excerpt is always verbatim source content.
func buildCitation(candidate *tracker.IssueRecord) types.Citation {
	excerpt := strings.TrimSpace(candidate.Resolution)
	if excerpt == "" && len(candidate.Comments) > 0 {
		excerpt = strings.TrimSpace(candidate.Comments[len(candidate.Comments)-1].Body)
	}
	if excerpt == "" {
		excerpt = strings.TrimSpace(candidate.Description)
	}
	if excerpt == "" {
		excerpt = strings.TrimSpace(candidate.Title)
	}
	excerpt = types.TruncateExcerpt(excerpt)

	return types.Citation{
		SourceType:  types.SourceTrackerIssue,
		SourceID:    candidate.ID,
		SourceURL:   candidate.URL,
		Excerpt:     excerpt,
		RetrievedAt: time.Now().UTC(),
	}
}

func sharedCount(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[strings.ToLower(s)] = true
	}
	n := 0
	for _, s := range b {
		if set[strings.ToLower(s)] {
			n++
		}
	}
	return n
}
