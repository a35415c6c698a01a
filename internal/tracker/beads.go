package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	beadsLib "github.com/steveyegge/beads"
)

// BeadsClient serves tracker operations from a local beads SQLite database.
// Useful for teams that track issues with beads instead of a hosted
// tracker, and for offline investigation runs.
//
// Beads provides issue CRUD, labels, and an event log; candidate queries
// go through direct SQL on the shared database, the same pattern the
// beads tooling itself uses for extension queries.
type BeadsClient struct {
	store beadsLib.Storage
	db    *sql.DB
	actor string
}

// NewBeadsClient opens the beads database at dbPath
func NewBeadsClient(ctx context.Context, dbPath, actor string) (*BeadsClient, error) {
	store, err := beadsLib.NewSQLiteStorage(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open beads storage: %w", err)
	}
	db := store.UnderlyingDB()
	if db == nil {
		store.Close()
		return nil, fmt.Errorf("beads storage did not provide underlying DB")
	}
	if actor == "" {
		actor = "sleuth"
	}
	return &BeadsClient{store: store, db: db, actor: actor}, nil
}

// Close releases the underlying beads storage
func (c *BeadsClient) Close() error {
	return c.store.Close()
}

// Fetch retrieves an issue with labels and comment history
func (c *BeadsClient) Fetch(ctx context.Context, issueID string) (*IssueRecord, error) {
	issue, err := c.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", issueID, err)
	}
	if issue == nil {
		return nil, fmt.Errorf("fetch %s: %w", issueID, ErrNotFound)
	}

	rec := beadsIssueToRecord(issue)

	labels, err := c.store.GetLabels(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get labels for %s: %w", issueID, err)
	}
	rec.Labels = labels

	comments, err := c.fetchComments(ctx, issueID)
	if err != nil {
		return nil, err
	}
	rec.Comments = comments
	if rec.Resolved() && len(comments) > 0 {
		rec.Resolution = comments[len(comments)-1].Body
	}
	return rec, nil
}

// Query returns issues carrying any of the filter's labels or components.
// Beads does not distinguish components from labels, so both filter
// dimensions match against the labels table.
func (c *BeadsClient) Query(ctx context.Context, filter Filter) ([]*IssueRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	labels := append(append([]string{}, filter.Labels...), filter.Components...)
	if len(labels) == 0 {
		// No coarse filter; fall back to a bounded recent-issues scan.
		return c.queryRecent(ctx, filter.Text, limit)
	}

	placeholders := strings.Repeat("?,", len(labels))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(labels)+1)
	for _, l := range labels {
		args = append(args, l)
	}
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT i.id, i.title, i.description, i.status, i.updated_at
		FROM issues i
		JOIN labels l ON i.id = l.issue_id
		WHERE l.label IN (`+placeholders+`)
		ORDER BY i.updated_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("beads label query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return c.scanCandidates(ctx, rows)
}

// Comment appends a comment to the issue's event log
func (c *BeadsClient) Comment(ctx context.Context, issueID, text string) error {
	if err := c.store.AddComment(ctx, issueID, c.actor, text); err != nil {
		return fmt.Errorf("failed to add comment to %s: %w", issueID, err)
	}
	return nil
}

func (c *BeadsClient) queryRecent(ctx context.Context, text string, limit int) ([]*IssueRecord, error) {
	query := `
		SELECT id, title, description, status, updated_at
		FROM issues
	`
	args := []any{}
	if text != "" {
		query += ` WHERE title LIKE ? OR description LIKE ?`
		pattern := "%" + text + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("beads issue query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return c.scanCandidates(ctx, rows)
}

func (c *BeadsClient) scanCandidates(ctx context.Context, rows *sql.Rows) ([]*IssueRecord, error) {
	var records []*IssueRecord
	for rows.Next() {
		var rec IssueRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.State, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan beads issue: %w", err)
		}
		rec.URL = beadsIssueURL(rec.ID)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("beads issue scan failed: %w", err)
	}

	// Hydrate labels and comments after the scan completes; a second
	// query per row inside rows.Next() would deadlock a single
	// connection.
	for _, rec := range records {
		labels, err := c.store.GetLabels(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get labels for %s: %w", rec.ID, err)
		}
		rec.Labels = labels

		comments, err := c.fetchComments(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.Comments = comments
		if rec.Resolved() && len(comments) > 0 {
			rec.Resolution = comments[len(comments)-1].Body
		}
	}
	return records, nil
}

// fetchComments reads comment events from the beads audit log
func (c *BeadsClient) fetchComments(ctx context.Context, issueID string) ([]Comment, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT actor, comment, created_at
		FROM events
		WHERE issue_id = ? AND event_type = 'commented' AND comment IS NOT NULL
		ORDER BY created_at ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to read comments for %s: %w", issueID, err)
	}
	defer func() { _ = rows.Close() }()

	var comments []Comment
	for rows.Next() {
		var cm Comment
		var body sql.NullString
		if err := rows.Scan(&cm.Author, &body, &cm.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		if body.Valid && body.String != "" {
			cm.Body = body.String
			comments = append(comments, cm)
		}
	}
	return comments, rows.Err()
}

func beadsIssueToRecord(issue *beadsLib.Issue) *IssueRecord {
	rec := &IssueRecord{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		State:       string(issue.Status),
		URL:         beadsIssueURL(issue.ID),
		UpdatedAt:   issue.UpdatedAt,
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	return rec
}

// beadsIssueURL builds a stable absolute reference for citations.
// Beads has no web UI, so the bd:// scheme names the issue directly.
func beadsIssueURL(issueID string) string {
	return "bd://issues/" + issueID
}

// Compile-time check that BeadsClient implements Client
var _ Client = (*BeadsClient)(nil)
