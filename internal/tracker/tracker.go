// Package tracker defines the issue-tracker client boundary.
//
// The investigation core only reads tracker data; the single write
// operation (Comment) is used for optional result write-back and is
// gated by configuration at the orchestrator level.
package tracker

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Fetch when the issue does not exist
var ErrNotFound = errors.New("issue not found")

// IssueRecord is the tracker-neutral view of an issue
type IssueRecord struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	State       string    `json:"state"`
	URL         string    `json:"url"`
	Labels      []string  `json:"labels,omitempty"`
	Components  []string  `json:"components,omitempty"`
	Comments    []Comment `json:"comments,omitempty"`
	// Resolution holds the closing/resolution text when the tracker
	// records one separately from comments.
	Resolution string    `json:"resolution,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Resolved reports whether the issue reached a terminal resolved state
func (r *IssueRecord) Resolved() bool {
	switch r.State {
	case "completed", "done", "closed":
		return true
	}
	return false
}

// Comment is a single comment on a tracker issue
type Comment struct {
	Author    string    `json:"author,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows a Query to a bounded candidate set. Label and component
// matching is the coarse filter; text matching is best-effort and
// tracker-dependent.
type Filter struct {
	Labels     []string
	Components []string
	Text       string
	Limit      int
}

// Client is the minimal tracker surface the investigation core consumes
type Client interface {
	// Fetch returns the issue or ErrNotFound
	Fetch(ctx context.Context, issueID string) (*IssueRecord, error)

	// Query returns issues matching the filter, at most Filter.Limit
	Query(ctx context.Context, filter Filter) ([]*IssueRecord, error)

	// Comment appends a comment to the issue
	Comment(ctx context.Context, issueID, text string) error
}
