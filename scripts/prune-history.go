// scripts/prune-history.go - Manual ledger pruning tool
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ticketmill/drover/internal/history"
)

func main() {
	days := flag.Int("days", 90, "delete attempts older than this many days")
	flag.Parse()

	ctx := context.Background()

	path := ".drover/history.db"
	if p := os.Getenv("DROVER_DB_PATH"); p != "" {
		path = p
	}

	fmt.Printf("Opening ledger: %s\n", path)
	ledger, err := history.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		os.Exit(1)
	}
	defer ledger.Close()

	cutoff := time.Now().AddDate(0, 0, -*days)
	removed, err := ledger.Prune(ctx, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error pruning: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed %d attempt(s) started before %s\n", removed, cutoff.Format(time.DateOnly))
}
