package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ticketmill/drover/internal/config"
	"github.com/ticketmill/drover/internal/history"
	"github.com/ticketmill/drover/internal/types"
)

var historyCmd = &cobra.Command{
	Use:   "history [issue-url]",
	Short: "Show recorded solve attempts",
	Long: `List solve attempts from the local ledger, newest first. With an issue
URL, show only that issue's attempts, including any paused session that
can still be resumed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 50, "maximum attempts to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	itemURL := ""
	if len(args) == 1 {
		if _, _, err := types.ParseIssueURL(args[0]); err != nil {
			return err
		}
		itemURL = args[0]
	}

	ledger, err := history.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	attempts, err := ledger.List(cmd.Context(), itemURL, limit)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Println("no attempts recorded")
		return nil
	}

	for _, a := range attempts {
		fmt.Printf("%s  %-7s  %s  %s (attempt %d)\n",
			a.StartedAt.Format(time.DateTime),
			outcomeColor(a.Outcome), a.Agent, a.ItemURL, a.Attempt)
	}

	if itemURL != "" {
		resumable, err := ledger.Resumable(cmd.Context(), itemURL)
		if err != nil {
			return err
		}
		if resumable != nil {
			fmt.Fprintf(os.Stderr, "\npaused session found; resume with:\n  drover solve %s --agent %s --resume %s\n",
				itemURL, resumable.Agent, resumable.SessionToken)
		}
	}
	return nil
}

func outcomeColor(o types.Outcome) string {
	switch o {
	case types.OutcomeDone:
		return color.GreenString(string(o))
	case types.OutcomeLimit:
		return color.YellowString(string(o))
	default:
		return color.RedString(string(o))
	}
}
