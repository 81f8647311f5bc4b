package gh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ticketmill/drover/internal/config"
	"github.com/ticketmill/drover/internal/types"
)

// Client wraps a Runner with drover's pacing and parsing.
type Client struct {
	run     Runner
	cfg     *config.Config
	limiter *rate.Limiter

	// sleep is context-aware and injectable for tests.
	sleep func(ctx context.Context, d time.Duration)

	// Logf receives progress and warning lines. Defaults to stderr.
	Logf func(format string, args ...interface{})
}

// NewClient builds a client around the given runner. The limiter paces
// primary search calls on top of the fixed pre/post delays: search endpoints
// tolerate roughly one call every couple of seconds before tripping
// secondary limits.
func NewClient(run Runner, cfg *config.Config) *Client {
	return &Client{
		run:     run,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		sleep:   sleepCtx,
		Logf: func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// searchIssue is the JSON shape of one `gh search issues` result.
type searchIssue struct {
	URL        string `json:"url"`
	Number     int    `json:"number"`
	Title      string `json:"title"`
	State      string `json:"state"`
	Repository struct {
		NameWithOwner string `json:"nameWithOwner"`
	} `json:"repository"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// listIssue is the JSON shape of one `gh issue list` result.
type listIssue struct {
	URL    string `json:"url"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// searchIssues runs one cross-repo search query with the given page ceiling.
func (c *Client) searchIssues(ctx context.Context, f types.Filter, pageSize int) ([]types.WorkItem, error) {
	args := []string{
		"search", "issues",
		"--state", "open",
		"--limit", strconv.Itoa(pageSize),
		"--json", "url,number,title,state,repository,labels,updatedAt",
	}
	if !f.Repo.IsZero() {
		args = append(args, "--repo", f.Repo.String())
	} else {
		args = append(args, "--owner", f.Scope)
	}
	if f.Mode == types.FilterLabel {
		args = append(args, "--label", f.Label)
	}

	out, err := c.run.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var raw []searchIssue
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing search results: %w", err)
	}

	items := make([]types.WorkItem, 0, len(raw))
	for _, r := range raw {
		repo, err := types.ParseRepoRef(r.Repository.NameWithOwner)
		if err != nil {
			continue
		}
		items = append(items, types.WorkItem{
			URL:       r.URL,
			Number:    r.Number,
			Title:     r.Title,
			Repo:      repo,
			State:     r.State,
			Labels:    labelNames(r.Labels),
			UpdatedAt: r.UpdatedAt,
		})
	}
	return items, nil
}

// listRepoIssues runs the narrower per-repository listing query.
func (c *Client) listRepoIssues(ctx context.Context, repo types.RepoRef, f types.Filter, pageSize int) ([]types.WorkItem, error) {
	args := []string{
		"issue", "list",
		"--repo", repo.String(),
		"--state", "open",
		"--limit", strconv.Itoa(pageSize),
		"--json", "url,number,title,state,labels,updatedAt",
	}
	if f.Mode == types.FilterLabel {
		args = append(args, "--label", f.Label)
	}

	out, err := c.run.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var raw []listIssue
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing issue list: %w", err)
	}

	items := make([]types.WorkItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, types.WorkItem{
			URL:       r.URL,
			Number:    r.Number,
			Title:     r.Title,
			Repo:      repo,
			State:     r.State,
			Labels:    labelNames(r.Labels),
			UpdatedAt: r.UpdatedAt,
		})
	}
	return items, nil
}

func labelNames(labels []struct {
	Name string `json:"name"`
}) []string {
	if len(labels) == 0 {
		return nil
	}
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
	}
	return names
}

// ListRepos enumerates repositories owned by the scope, for the fallback path.
func (c *Client) ListRepos(ctx context.Context, scope string) ([]types.RepoRef, error) {
	out, err := c.run.Run(ctx,
		"repo", "list", scope,
		"--limit", "500",
		"--no-archived",
		"--json", "nameWithOwner",
	)
	if err != nil {
		return nil, fmt.Errorf("listing repositories for %s: %w", scope, err)
	}
	var raw []struct {
		NameWithOwner string `json:"nameWithOwner"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing repository list: %w", err)
	}
	repos := make([]types.RepoRef, 0, len(raw))
	for _, r := range raw {
		ref, err := types.ParseRepoRef(r.NameWithOwner)
		if err != nil {
			continue
		}
		repos = append(repos, ref)
	}
	return repos, nil
}

// Comment is one issue comment or review, normalized.
type Comment struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// ListComments returns issue comments created at or after since.
func (c *Client) ListComments(ctx context.Context, repo types.RepoRef, number int, since time.Time) ([]Comment, error) {
	path := fmt.Sprintf("repos/%s/%s/issues/%d/comments", repo.Owner, repo.Name, number)
	if !since.IsZero() {
		// since goes in the path: a -f field parameter would flip gh api
		// from GET to POST.
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}
	out, err := c.run.Run(ctx, "api", path)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	var raw []struct {
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		Body      string    `json:"body"`
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing comments: %w", err)
	}
	comments := make([]Comment, 0, len(raw))
	for _, r := range raw {
		comments = append(comments, Comment{Author: r.User.Login, Body: r.Body, CreatedAt: r.CreatedAt})
	}
	return comments, nil
}

// ListReviews returns PR reviews submitted at or after since. The reviews
// endpoint has no since parameter, so filtering happens client-side.
func (c *Client) ListReviews(ctx context.Context, repo types.RepoRef, number int, since time.Time) ([]Comment, error) {
	path := fmt.Sprintf("repos/%s/%s/pulls/%d/reviews", repo.Owner, repo.Name, number)
	out, err := c.run.Run(ctx, "api", path)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	var raw []struct {
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		Body        string    `json:"body"`
		State       string    `json:"state"`
		SubmittedAt time.Time `json:"submitted_at"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing reviews: %w", err)
	}
	var reviews []Comment
	for _, r := range raw {
		if !since.IsZero() && r.SubmittedAt.Before(since) {
			continue
		}
		body := r.Body
		if body == "" {
			body = "(" + strings.ToLower(r.State) + ")"
		}
		reviews = append(reviews, Comment{Author: r.User.Login, Body: body, CreatedAt: r.SubmittedAt})
	}
	return reviews, nil
}

// PRState is the subset of pull-request state the watch machine needs.
type PRState struct {
	State     string `json:"state"`
	Merged    bool   `json:"merged"`
	Mergeable string `json:"mergeable"`
	IsDraft   bool   `json:"isDraft"`
}

// CheckPR fetches the current state of a pull request by URL.
func (c *Client) CheckPR(ctx context.Context, prURL string) (*PRState, error) {
	out, err := c.run.Run(ctx, "pr", "view", prURL, "--json", "state,mergedAt,mergeable,isDraft")
	if err != nil {
		return nil, fmt.Errorf("checking PR state: %w", err)
	}
	var raw struct {
		State     string     `json:"state"`
		MergedAt  *time.Time `json:"mergedAt"`
		Mergeable string     `json:"mergeable"`
		IsDraft   bool       `json:"isDraft"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing PR state: %w", err)
	}
	return &PRState{
		State:     raw.State,
		Merged:    raw.State == "MERGED" || raw.MergedAt != nil,
		Mergeable: raw.Mergeable,
		IsDraft:   raw.IsDraft,
	}, nil
}

// CreatePR opens a pull request for the current branch and returns its URL.
func (c *Client) CreatePR(ctx context.Context, repo types.RepoRef, title, body, head, base string) (string, error) {
	args := []string{
		"pr", "create",
		"--repo", repo.String(),
		"--title", title,
		"--body", body,
		"--head", head,
	}
	if base != "" {
		args = append(args, "--base", base)
	}
	out, err := c.run.Run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("creating PR: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// PRForBranch returns the URL of the open PR whose head is branch, or ""
// when none exists.
func (c *Client) PRForBranch(ctx context.Context, repo types.RepoRef, branch string) (string, error) {
	out, err := c.run.Run(ctx,
		"pr", "list",
		"--repo", repo.String(),
		"--head", branch,
		"--state", "open",
		"--limit", "1",
		"--json", "url",
	)
	if err != nil {
		return "", fmt.Errorf("finding PR for branch %s: %w", branch, err)
	}
	var raw []struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return "", fmt.Errorf("parsing PR list: %w", err)
	}
	if len(raw) == 0 {
		return "", nil
	}
	return raw[0].URL, nil
}

// CommentOnIssue posts a comment on an issue.
func (c *Client) CommentOnIssue(ctx context.Context, repo types.RepoRef, number int, body string) error {
	_, err := c.run.Run(ctx,
		"issue", "comment", strconv.Itoa(number),
		"--repo", repo.String(),
		"--body", body,
	)
	if err != nil {
		return fmt.Errorf("commenting on %s#%d: %w", repo, number, err)
	}
	return nil
}

// projectItems fetches board items and keeps open issues in the wanted column.
func (c *Client) projectItems(ctx context.Context, f types.Filter) ([]types.WorkItem, error) {
	out, err := c.run.Run(ctx,
		"project", "item-list", strconv.Itoa(f.ProjectNumber),
		"--owner", f.Scope,
		"--limit", strconv.Itoa(c.cfg.ListPageSize),
		"--format", "json",
	)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Items []struct {
			Status  string `json:"status"`
			Content struct {
				Type       string `json:"type"`
				URL        string `json:"url"`
				Number     int    `json:"number"`
				Title      string `json:"title"`
				Repository string `json:"repository"`
			} `json:"content"`
		} `json:"items"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing project items: %w", err)
	}

	var items []types.WorkItem
	for _, it := range raw.Items {
		if !strings.EqualFold(it.Status, f.ProjectStatus) || it.Content.Type != "Issue" {
			continue
		}
		repo, err := types.ParseRepoRef(it.Content.Repository)
		if err != nil {
			continue
		}
		items = append(items, types.WorkItem{
			URL:    it.Content.URL,
			Number: it.Content.Number,
			Title:  it.Content.Title,
			Repo:   repo,
		})
	}
	return items, nil
}
