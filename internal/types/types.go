// Package types defines the core data model shared across drover's
// discovery, queueing, and solving layers.
package types

import (
	"fmt"
	"strings"
	"time"
)

// WorkItem is one tracked ticket eligible for automated resolution.
// It is immutable once discovered within a cycle; re-discovery simply
// re-evaluates queue membership.
type WorkItem struct {
	// URL is the stable identifier, e.g. https://github.com/owner/repo/issues/42
	URL       string    `json:"url"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Repo      RepoRef   `json:"repo"`
	Labels    []string  `json:"labels,omitempty"`
	State     string    `json:"state,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ID returns the queue identity of the item. The URL is already unique;
// this exists so callers never key on anything else by accident.
func (w WorkItem) ID() string { return w.URL }

// RepoRef identifies a repository by owner and name.
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r RepoRef) String() string { return r.Owner + "/" + r.Name }

// IsZero reports whether the ref is unset.
func (r RepoRef) IsZero() bool { return r.Owner == "" && r.Name == "" }

// ParseRepoRef parses "owner/name" into a RepoRef.
func ParseRepoRef(s string) (RepoRef, error) {
	parts := strings.Split(strings.TrimSuffix(s, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, fmt.Errorf("invalid repository %q (want owner/name)", s)
	}
	return RepoRef{Owner: parts[0], Name: parts[1]}, nil
}

// FilterMode selects how the monitor discovers work. The three modes are
// mutually exclusive.
type FilterMode string

const (
	FilterLabel         FilterMode = "label"
	FilterAllOpen       FilterMode = "all-open"
	FilterProjectStatus FilterMode = "project-status"
)

// Filter describes one discovery query.
type Filter struct {
	Mode FilterMode

	// Label is the label name when Mode == FilterLabel.
	Label string

	// ProjectStatus is the board column name when Mode == FilterProjectStatus.
	ProjectStatus string

	// ProjectNumber is the project board number when Mode == FilterProjectStatus.
	ProjectNumber int

	// Scope is the org or user to search. At least one of Scope or Repo is set.
	Scope string

	// Repo narrows discovery to a single repository.
	Repo RepoRef
}

// Validate checks mode/argument consistency before any discovery begins.
func (f Filter) Validate() error {
	switch f.Mode {
	case FilterLabel:
		if f.Label == "" {
			return fmt.Errorf("label filter requires a label name")
		}
	case FilterAllOpen:
	case FilterProjectStatus:
		if f.ProjectStatus == "" {
			return fmt.Errorf("project-status filter requires a status name")
		}
		if f.ProjectNumber <= 0 {
			return fmt.Errorf("project-status filter requires a project number")
		}
		// Project boards hang off an org or user, not a repository.
		if f.Scope == "" {
			return fmt.Errorf("project-status filter requires an org or user scope")
		}
	default:
		return fmt.Errorf("unknown filter mode %q", f.Mode)
	}
	if f.Scope == "" && f.Repo.IsZero() {
		return fmt.Errorf("filter requires a scope or a repository")
	}
	return nil
}

// AttemptResult is the outcome of one Solver Adapter invocation. It is
// consumed immediately by the worker or the resume protocol, never persisted.
type AttemptResult struct {
	Success      bool
	LimitReached bool

	// SessionToken is the continuation token extracted from the solver's
	// output stream, if any. First occurrence wins.
	SessionToken string

	// ResetClock is the wall-clock reset time parsed from a limit message
	// ("resets at 3:30pm"), in "15:04" form. Empty when not present.
	ResetClock string

	ExitCode int
	Duration time.Duration
}

// Outcome labels an attempt for the history ledger.
type Outcome string

const (
	OutcomeDone   Outcome = "done"
	OutcomeFailed Outcome = "failed"
	OutcomeLimit  Outcome = "limit"
)

// OutcomeOf classifies an attempt result.
func OutcomeOf(r *AttemptResult) Outcome {
	switch {
	case r == nil:
		return OutcomeFailed
	case r.LimitReached:
		return OutcomeLimit
	case r.Success:
		return OutcomeDone
	default:
		return OutcomeFailed
	}
}

// IssueURL builds the canonical issue URL for a repo and number.
func IssueURL(repo RepoRef, number int) string {
	return fmt.Sprintf("https://github.com/%s/issues/%d", repo, number)
}

// ParseIssueURL extracts the repo and issue number from a GitHub issue URL.
func ParseIssueURL(url string) (RepoRef, int, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	trimmed = strings.TrimPrefix(trimmed, "github.com/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 4 || parts[2] != "issues" {
		return RepoRef{}, 0, fmt.Errorf("invalid issue URL %q", url)
	}
	var number int
	if _, err := fmt.Sscanf(parts[3], "%d", &number); err != nil || number <= 0 {
		return RepoRef{}, 0, fmt.Errorf("invalid issue number in %q", url)
	}
	return RepoRef{Owner: parts[0], Name: parts[1]}, number, nil
}
