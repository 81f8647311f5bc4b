package types

import "testing"

func TestParseRepoRef(t *testing.T) {
	ref, err := ParseRepoRef("octocat/hello-world")
	if err != nil {
		t.Fatalf("ParseRepoRef failed: %v", err)
	}
	if ref.Owner != "octocat" || ref.Name != "hello-world" {
		t.Errorf("got %+v", ref)
	}

	for _, bad := range []string{"", "octocat", "a/b/c", "/repo", "owner/"} {
		if _, err := ParseRepoRef(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestParseIssueURL(t *testing.T) {
	repo, num, err := ParseIssueURL("https://github.com/octocat/hello-world/issues/42")
	if err != nil {
		t.Fatalf("ParseIssueURL failed: %v", err)
	}
	if repo.String() != "octocat/hello-world" || num != 42 {
		t.Errorf("got %s #%d", repo, num)
	}

	for _, bad := range []string{
		"https://github.com/octocat/hello-world/pull/42",
		"https://github.com/octocat/issues/42",
		"not-a-url",
	} {
		if _, _, err := ParseIssueURL(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestFilterValidate(t *testing.T) {
	valid := Filter{Mode: FilterLabel, Label: "agent-ok", Scope: "octocat"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid filter rejected: %v", err)
	}

	cases := []Filter{
		{Mode: FilterLabel, Scope: "octocat"},         // missing label
		{Mode: FilterProjectStatus, Scope: "octocat"}, // missing status
		{Mode: "bogus", Scope: "octocat"},             // unknown mode
		{Mode: FilterAllOpen},                         // no scope or repo
		{Mode: FilterProjectStatus, ProjectStatus: "Ready", ProjectNumber: 3,
			Repo: RepoRef{Owner: "octocat", Name: "hello-world"}}, // board needs a scope, not a repo
	}
	for i, f := range cases {
		if err := f.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestOutcomeOf(t *testing.T) {
	if got := OutcomeOf(&AttemptResult{Success: true}); got != OutcomeDone {
		t.Errorf("success: got %s", got)
	}
	if got := OutcomeOf(&AttemptResult{LimitReached: true}); got != OutcomeLimit {
		t.Errorf("limit: got %s", got)
	}
	if got := OutcomeOf(&AttemptResult{}); got != OutcomeFailed {
		t.Errorf("failure: got %s", got)
	}
	if got := OutcomeOf(nil); got != OutcomeFailed {
		t.Errorf("nil: got %s", got)
	}
}
