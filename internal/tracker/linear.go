package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultLinearEndpoint is the Linear GraphQL API endpoint
const DefaultLinearEndpoint = "https://api.linear.app/graphql"

// LinearClient talks to the Linear GraphQL API.
// API keys come from LINEAR_API_KEY (see config package).
type LinearClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewLinearClient creates a Linear-backed tracker client
func NewLinearClient(apiKey string) (*LinearClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("linear API key is required (set LINEAR_API_KEY)")
	}
	return &LinearClient{
		endpoint: DefaultLinearEndpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// execute runs one GraphQL request and decodes the "data" payload into out
func (c *LinearClient) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode GraphQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("linear API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("failed to read linear response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("linear API returned HTTP %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode linear response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("linear API returned errors: %s", strings.Join(msgs, ", "))
	}
	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode linear data: %w", err)
		}
	}
	return nil
}

// linearIssue mirrors the subset of Linear's issue schema we request
type linearIssue struct {
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	State       struct {
		Name string `json:"name"`
	} `json:"state"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
	Comments struct {
		Nodes []struct {
			Body      string    `json:"body"`
			CreatedAt time.Time `json:"createdAt"`
			User      struct {
				Name string `json:"name"`
			} `json:"user"`
		} `json:"nodes"`
	} `json:"comments"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (li *linearIssue) toRecord() *IssueRecord {
	rec := &IssueRecord{
		ID:          li.Identifier,
		Title:       li.Title,
		Description: li.Description,
		State:       strings.ToLower(li.State.Name),
		URL:         li.URL,
		UpdatedAt:   li.UpdatedAt,
	}
	for _, l := range li.Labels.Nodes {
		rec.Labels = append(rec.Labels, l.Name)
	}
	for _, c := range li.Comments.Nodes {
		rec.Comments = append(rec.Comments, Comment{
			Author:    c.User.Name,
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
		})
	}
	// Linear records resolution discussion as comments; the last comment
	// on a resolved issue is the closest thing to resolution text.
	if rec.Resolved() && len(rec.Comments) > 0 {
		rec.Resolution = rec.Comments[len(rec.Comments)-1].Body
	}
	return rec
}

const issueFields = `
	identifier
	title
	description
	url
	state { name }
	labels { nodes { name } }
	comments { nodes { body createdAt user { name } } }
	updatedAt
`

// Fetch retrieves a single issue by identifier
func (c *LinearClient) Fetch(ctx context.Context, issueID string) (*IssueRecord, error) {
	query := `query GetIssue($id: String!) { issue(id: $id) {` + issueFields + `} }`

	var data struct {
		Issue *linearIssue `json:"issue"`
	}
	if err := c.execute(ctx, query, map[string]any{"id": issueID}, &data); err != nil {
		return nil, err
	}
	if data.Issue == nil {
		return nil, fmt.Errorf("fetch %s: %w", issueID, ErrNotFound)
	}
	return data.Issue.toRecord(), nil
}

// Query searches for issues by label overlap and optional text.
// Linear's filter syntax does label OR-matching; component filtering is
// approximated with labels since Linear models components as labels.
func (c *LinearClient) Query(ctx context.Context, filter Filter) ([]*IssueRecord, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	labels := append(append([]string{}, filter.Labels...), filter.Components...)
	issueFilter := map[string]any{}
	if len(labels) > 0 {
		issueFilter["labels"] = map[string]any{"name": map[string]any{"in": labels}}
	}
	if filter.Text != "" {
		issueFilter["searchableContent"] = map[string]any{"contains": filter.Text}
	}

	query := `query QueryIssues($filter: IssueFilter, $first: Int!) {
		issues(filter: $filter, first: $first) { nodes {` + issueFields + `} }
	}`

	var data struct {
		Issues struct {
			Nodes []linearIssue `json:"nodes"`
		} `json:"issues"`
	}
	err := c.execute(ctx, query, map[string]any{"filter": issueFilter, "first": limit}, &data)
	if err != nil {
		return nil, err
	}

	records := make([]*IssueRecord, 0, len(data.Issues.Nodes))
	for i := range data.Issues.Nodes {
		records = append(records, data.Issues.Nodes[i].toRecord())
	}
	slog.Debug("linear query complete", "labels", labels, "results", len(records))
	return records, nil
}

// Comment adds a markdown comment to the issue
func (c *LinearClient) Comment(ctx context.Context, issueID, text string) error {
	mutation := `mutation AddComment($issueId: String!, $body: String!) {
		commentCreate(input: { issueId: $issueId, body: $body }) { success }
	}`

	var data struct {
		CommentCreate struct {
			Success bool `json:"success"`
		} `json:"commentCreate"`
	}
	if err := c.execute(ctx, mutation, map[string]any{"issueId": issueID, "body": text}, &data); err != nil {
		return err
	}
	if !data.CommentCreate.Success {
		return fmt.Errorf("failed to add comment to issue %s", issueID)
	}
	return nil
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}

// Compile-time check that LinearClient implements Client
var _ Client = (*LinearClient)(nil)
