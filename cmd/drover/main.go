package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set via -ldflags at release time.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Herd GitHub issues through coding agents",
	Long: `drover watches a GitHub org, user, or repository for issues matching a
filter, hands each one to a coding agent (Claude Code, Codex, Gemini,
aider, amp, or a custom CLI), and supervises the run until the fix is
merged, abandoned, or out of retries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
