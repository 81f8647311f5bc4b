package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ticketmill/drover/internal/config"
	"github.com/ticketmill/drover/internal/gh"
	"github.com/ticketmill/drover/internal/git"
	"github.com/ticketmill/drover/internal/history"
	"github.com/ticketmill/drover/internal/resume"
	"github.com/ticketmill/drover/internal/solver"
	"github.com/ticketmill/drover/internal/types"
	"github.com/ticketmill/drover/internal/watch"
)

var solveCmd = &cobra.Command{
	Use:   "solve <issue-url>",
	Short: "Run a coding agent against one issue",
	Long: `Dispatch a single issue to a coding agent and supervise the run.

With --watch, after the agent finishes, drover polls the pull request for
reviewer feedback and restarts the agent until the PR merges. When the
agent leaves uncommitted changes behind, drover enters a temporary watch
session that ends once the tree is clean.

A run that hits the agent's usage limit prints the resume command; with
--auto-continue drover instead sleeps until the limit resets and resumes
the session itself.`,
	Args: cobra.ExactArgs(1),
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().String("agent", "claude", "coding agent to run")
	solveCmd.Flags().String("branch", "", "branch to work on (default drover/issue-<n>)")
	solveCmd.Flags().String("dir", ".", "working directory for the agent")
	solveCmd.Flags().String("resume", "", "continuation token from a paused session")
	solveCmd.Flags().Bool("watch", false, "watch the PR for feedback after solving")
	solveCmd.Flags().Bool("no-temp-watch", false, "skip the temporary watch for uncommitted changes")
	solveCmd.Flags().Bool("auto-continue", false, "sleep out usage limits and resume automatically")
	solveCmd.Flags().Int("attempts", 1, "solve attempts; all must succeed")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	repo, number, err := types.ParseIssueURL(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	agentName, _ := cmd.Flags().GetString("agent")
	branch, _ := cmd.Flags().GetString("branch")
	dir, _ := cmd.Flags().GetString("dir")
	resumeToken, _ := cmd.Flags().GetString("resume")
	watchPR, _ := cmd.Flags().GetBool("watch")
	noTempWatch, _ := cmd.Flags().GetBool("no-temp-watch")
	autoContinue, _ := cmd.Flags().GetBool("auto-continue")
	attempts, _ := cmd.Flags().GetInt("attempts")

	sv, err := solver.Lookup(agentName)
	if err != nil {
		return err
	}
	if branch == "" {
		branch = fmt.Sprintf("drover/issue-%d", number)
	}

	ledger, err := history.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	item := types.WorkItem{URL: args[0], Number: number, Repo: repo}
	gitOps := git.New(dir)
	client := gh.NewClient(&gh.CLIRunner{Dir: dir}, cfg)

	if gitOps.IsRepo(ctx) {
		if err := gitOps.CreateBranch(ctx, branch); err != nil {
			return err
		}
	}

	req := solver.Request{
		Item:        item,
		Branch:      branch,
		Dir:         dir,
		ResumeToken: resumeToken,
		Timeout:     cfg.SolverTimeout,
		Output:      os.Stdout,
	}

	proto := resume.New(sv, autoContinue, cfg.ResumeCushion)

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s solving %s with %s\n", green("▶"), item.URL, agentName)

	var res *types.AttemptResult
	for attempt := 1; attempt <= max(attempts, 1); attempt++ {
		req.Attempt = attempt
		started := time.Now()
		res, err = sv.Execute(ctx, req)
		recordSolve(ctx, ledger, item, agentName, attempt, started, res)
		if err != nil {
			return err
		}

		res, err = proto.Handle(ctx, req, res)
		if err != nil {
			return err
		}
		if res.LimitReached {
			return fmt.Errorf("usage limit reached; resume with the command above")
		}
		if !res.Success {
			return fmt.Errorf("agent exited with code %d", res.ExitCode)
		}
		if attempt < attempts {
			time.Sleep(cfg.AttemptDelay)
		}
	}
	fmt.Fprintf(os.Stderr, "%s agent finished %s\n", green("✓"), item.URL)

	return postSolve(ctx, client, gitOps, sv, req, cfg, watchPR, noTempWatch)
}

// postSolve decides what supervision the finished run still needs: a full
// watch session on the PR, or a temporary one to settle uncommitted work.
func postSolve(ctx context.Context, client *gh.Client, gitOps *git.Ops, sv solver.Solver, req solver.Request, cfg *config.Config, watchPR, noTempWatch bool) error {
	prURL := ""
	if watchPR {
		url, err := ensurePR(ctx, client, gitOps, req)
		if err != nil {
			return fmt.Errorf("locating PR to watch: %w", err)
		}
		if url == "" {
			return fmt.Errorf("no open pull request for branch %s; nothing to watch", req.Branch)
		}
		prURL = url
	}

	temporary := false
	if !watchPR && !noTempWatch && gitOps.IsRepo(ctx) {
		changed, err := gitOps.HasChanges(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		if !changed {
			return nil
		}
		fmt.Fprintln(os.Stderr, "uncommitted changes detected; entering temporary watch")
		temporary = true
	}
	if !watchPR && !temporary {
		return nil
	}

	machine := watch.New(client, gitOps, sv, req, watch.Session{
		Item:      req.Item,
		PRURL:     prURL,
		Branch:    req.Branch,
		Temporary: temporary,
	}, watch.Config{Interval: cfg.WatchInterval})

	state, err := machine.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "watch finished: %s\n", state)
	return nil
}

// ensurePR locates the PR for the solve branch, opening one when the agent
// committed and pushed work without creating it. Watching without a PR is
// pointless: there is nothing to collect feedback from.
func ensurePR(ctx context.Context, client *gh.Client, gitOps *git.Ops, req solver.Request) (string, error) {
	url, err := client.PRForBranch(ctx, req.Item.Repo, req.Branch)
	if err != nil || url != "" {
		return url, err
	}
	if !gitOps.IsRepo(ctx) {
		return "", nil
	}
	current, err := gitOps.CurrentBranch(ctx)
	if err != nil {
		return "", err
	}
	if current != req.Branch {
		// The agent moved off the solve branch; opening a PR from here
		// would publish the wrong commits.
		return "", nil
	}
	if err := gitOps.Push(ctx, req.Branch); err != nil {
		return "", err
	}
	title := fmt.Sprintf("Fix #%d", req.Item.Number)
	if req.Item.Title != "" {
		title = fmt.Sprintf("Fix #%d: %s", req.Item.Number, req.Item.Title)
	}
	url, err = client.CreatePR(ctx, req.Item.Repo, title, "Closes "+req.Item.URL, req.Branch, "")
	if err != nil {
		return "", err
	}
	if err := client.CommentOnIssue(ctx, req.Item.Repo, req.Item.Number, "Opened "+url+" for this issue."); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return url, nil
}

func recordSolve(ctx context.Context, ledger *history.Store, item types.WorkItem, agent string, attempt int, started time.Time, res *types.AttemptResult) {
	entry := &history.Attempt{
		ID:        uuid.New().String(),
		ItemURL:   item.ID(),
		Agent:     agent,
		Attempt:   attempt,
		Outcome:   types.OutcomeOf(res),
		StartedAt: started,
	}
	if res != nil {
		entry.SessionToken = res.SessionToken
		entry.ExitCode = res.ExitCode
	}
	done := time.Now()
	entry.CompletedAt = &done
	if err := ledger.Record(ctx, entry); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}
