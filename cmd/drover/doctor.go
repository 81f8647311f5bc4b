package main

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/ticketmill/drover/internal/config"
	"github.com/ticketmill/drover/internal/history"
	"github.com/ticketmill/drover/internal/solver"
)

// minGhVersion is the oldest gh release carrying `gh search issues` and
// project item listing, both of which discovery depends on.
const minGhVersion = "v2.21.0"

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that drover's external tools are ready",
	Long: `Verify the environment: git and gh on PATH, gh new enough and
authenticated, the history ledger writable, and which coding agents are
installed. Missing agents are informational; everything else is fatal.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ok := color.GreenString("ok")
	bad := color.RedString("FAIL")
	warn := color.YellowString("--")
	failures := 0

	check := func(name string, err error) {
		if err != nil {
			failures++
			fmt.Printf("  %s  %-20s %v\n", bad, name, err)
			return
		}
		fmt.Printf("  %s    %-20s\n", ok, name)
	}

	fmt.Println("required:")
	check("git", checkOnPath("git"))
	check("gh", checkGhVersion(ctx))
	check("gh auth", checkGhAuth(ctx))
	check("history ledger", checkLedger())

	fmt.Println("agents:")
	for _, name := range solver.Names() {
		sv, err := solver.Lookup(name)
		if err != nil {
			continue
		}
		if err := checkOnPath(sv.Command()); err != nil {
			fmt.Printf("  %s    %-20s not installed\n", warn, name)
			continue
		}
		fmt.Printf("  %s    %-20s\n", ok, name)
	}

	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	return nil
}

func checkOnPath(bin string) error {
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("%s not found on PATH", bin)
	}
	return nil
}

// checkGhVersion parses `gh --version` ("gh version 2.40.1 (...)") and
// enforces the floor.
func checkGhVersion(ctx context.Context) error {
	if err := checkOnPath("gh"); err != nil {
		return err
	}
	out, err := exec.CommandContext(ctx, "gh", "--version").Output()
	if err != nil {
		return fmt.Errorf("gh --version: %w", err)
	}
	fields := strings.Fields(strings.SplitN(string(out), "\n", 2)[0])
	if len(fields) < 3 {
		return fmt.Errorf("unrecognized gh version output %q", strings.TrimSpace(string(out)))
	}
	got := "v" + strings.TrimPrefix(fields[2], "v")
	if !semver.IsValid(got) {
		return fmt.Errorf("unrecognized gh version %q", fields[2])
	}
	if semver.Compare(got, minGhVersion) < 0 {
		return fmt.Errorf("gh %s is older than required %s", got, minGhVersion)
	}
	return nil
}

func checkGhAuth(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "gh", "auth", "status")
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("not authenticated (run `gh auth login`)")
	}
	return nil
}

func checkLedger() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ledger, err := history.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()
	if _, err := ledger.List(context.Background(), "", 1); err != nil {
		return err
	}
	return nil
}
