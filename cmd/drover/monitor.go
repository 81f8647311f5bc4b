package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ticketmill/drover/internal/config"
	"github.com/ticketmill/drover/internal/gh"
	"github.com/ticketmill/drover/internal/history"
	"github.com/ticketmill/drover/internal/metrics"
	"github.com/ticketmill/drover/internal/monitor"
	"github.com/ticketmill/drover/internal/pool"
	"github.com/ticketmill/drover/internal/queue"
	"github.com/ticketmill/drover/internal/resume"
	"github.com/ticketmill/drover/internal/solver"
	"github.com/ticketmill/drover/internal/types"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <owner | owner/repo>",
	Short: "Continuously discover and solve matching issues",
	Long: `Poll GitHub for open issues matching a filter and dispatch each to a
coding agent through a bounded worker pool.

Exactly one filter mode is required: --label, --all-open, or
--project-status (with --project). With --once the loop drains the queue
and exits; otherwise it ticks forever until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().String("label", "", "discover issues carrying this label")
	monitorCmd.Flags().Bool("all-open", false, "discover every open issue in scope")
	monitorCmd.Flags().String("project-status", "", "discover issues in this project board column")
	monitorCmd.Flags().Int("project", 0, "project board number (with --project-status)")
	monitorCmd.Flags().IntP("concurrency", "c", 2, "number of concurrent workers")
	monitorCmd.Flags().Int("attempts", 1, "solve attempts per issue; all must succeed")
	monitorCmd.Flags().Int("max-items", 0, "cap enqueued issues per cycle (0 = unlimited)")
	monitorCmd.Flags().Bool("skip-in-progress", false, "skip issues that already have an open PR")
	monitorCmd.Flags().Bool("once", false, "single pass: drain the queue and exit")
	monitorCmd.Flags().Duration("interval", 0, "polling interval (default from config)")
	monitorCmd.Flags().String("agent", "claude", "coding agent to dispatch")
	monitorCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	filter, err := buildFilter(cmd, args[0])
	if err != nil {
		return err
	}

	agentName, _ := cmd.Flags().GetString("agent")
	sv, err := solver.Lookup(agentName)
	if err != nil {
		return err
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	attempts, _ := cmd.Flags().GetInt("attempts")
	maxItems, _ := cmd.Flags().GetInt("max-items")
	skipInProgress, _ := cmd.Flags().GetBool("skip-in-progress")
	once, _ := cmd.Flags().GetBool("once")
	interval, _ := cmd.Flags().GetDuration("interval")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	if interval <= 0 {
		interval = cfg.MonitorInterval
	}

	ledger, err := history.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	client := gh.NewClient(&gh.CLIRunner{}, cfg)

	var met *metrics.Metrics
	if metricsAddr != "" {
		met = metrics.New()
		met.Serve(metricsAddr, func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		})
	}

	q := queue.New()
	exec := newMonitorExecutor(sv, ledger, met, cfg)
	p := pool.New(q, exec, pool.Config{
		Workers:      concurrency,
		Attempts:     attempts,
		PollInterval: cfg.WorkerPoll,
		AttemptDelay: cfg.AttemptDelay,
	})

	m := monitor.New(client, q, p, met, monitor.Config{
		Filter:         filter,
		Interval:       interval,
		Once:           once,
		MaxItems:       maxItems,
		SkipInProgress: skipInProgress,
		Grace:          cfg.ShutdownGrace,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s monitoring %s with %d workers (agent: %s)\n",
		green("▶"), args[0], concurrency, agentName)

	return m.Run(ctx)
}

// buildFilter resolves the mutually exclusive filter flags. Getting this
// wrong is fatal-configuration: nothing is discovered or dispatched.
func buildFilter(cmd *cobra.Command, scope string) (types.Filter, error) {
	label, _ := cmd.Flags().GetString("label")
	allOpen, _ := cmd.Flags().GetBool("all-open")
	projectStatus, _ := cmd.Flags().GetString("project-status")
	projectNumber, _ := cmd.Flags().GetInt("project")

	modes := 0
	if label != "" {
		modes++
	}
	if allOpen {
		modes++
	}
	if projectStatus != "" {
		modes++
	}
	if modes != 1 {
		return types.Filter{}, fmt.Errorf("exactly one of --label, --all-open, or --project-status is required")
	}

	f := types.Filter{Label: label, ProjectStatus: projectStatus, ProjectNumber: projectNumber}
	switch {
	case label != "":
		f.Mode = types.FilterLabel
	case allOpen:
		f.Mode = types.FilterAllOpen
	default:
		f.Mode = types.FilterProjectStatus
	}

	if strings.Contains(scope, "/") {
		repo, err := types.ParseRepoRef(scope)
		if err != nil {
			return types.Filter{}, err
		}
		f.Repo = repo
	} else {
		f.Scope = scope
	}
	return f, f.Validate()
}

// newMonitorExecutor wraps the solver for pool dispatch: run one attempt,
// record it in the ledger, and translate limit hits into failures with
// resume guidance (auto-continue is a solve-command feature; the monitor
// never sleeps a worker for hours).
func newMonitorExecutor(sv solver.Solver, ledger *history.Store, met *metrics.Metrics, cfg *config.Config) pool.Executor {
	return pool.ExecutorFunc(func(ctx context.Context, item types.WorkItem, attempt int) error {
		req := solver.Request{
			Item:    item,
			Branch:  fmt.Sprintf("drover/issue-%d", item.Number),
			Attempt: attempt,
			Timeout: cfg.SolverTimeout,
			Output:  os.Stderr,
		}

		started := time.Now()
		res, err := sv.Execute(ctx, req)
		recordAttempt(ctx, ledger, met, item, sv.Name(), attempt, started, res)
		if err != nil {
			return err
		}

		if res.LimitReached {
			if res.SessionToken != "" {
				fmt.Fprintf(os.Stderr, "%s hit its limit on %s; %s\n",
					sv.Name(), item.ID(), resume.ManualCommand(req, sv.Name(), res.SessionToken))
			}
			return fmt.Errorf("usage limit reached")
		}
		if !res.Success {
			return fmt.Errorf("agent exited with code %d", res.ExitCode)
		}
		return nil
	})
}

func recordAttempt(ctx context.Context, ledger *history.Store, met *metrics.Metrics, item types.WorkItem, agent string, attempt int, started time.Time, res *types.AttemptResult) {
	outcome := types.OutcomeOf(res)
	if met != nil {
		met.Solves.WithLabelValues(string(outcome)).Inc()
	}
	entry := &history.Attempt{
		ID:        uuid.New().String(),
		ItemURL:   item.ID(),
		Agent:     agent,
		Attempt:   attempt,
		Outcome:   outcome,
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
