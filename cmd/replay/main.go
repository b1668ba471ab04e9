package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/persona-controller/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	workDir := flag.String("workdir", "", "directory for the run's scratch databases (default: temp dir)")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--workdir dir]")
		os.Exit(2)
	}

	os.Exit(run(*fixturePath, *workDir))
}

func run(fixturePath, workDir string) int {
	f, err := replay.LoadFixture(fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	if workDir == "" {
		dir, err := os.MkdirTemp("", "persona-replay-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "workdir: %v\n", err)
			return 2
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}

	h, err := replay.NewHarness(f, workDir, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "harness: %v\n", err)
		return 2
	}
	defer h.Close()

	results, summary, err := h.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	return printComparison(results, summary, f.ExpectedResults)
}

// #endregion main

// #region output

// printComparison outputs a comparison table against the fixture expectations
// and returns the exit code.
func printComparison(results []replay.Result, summary replay.Summary, expected []replay.FixtureExpectedResult) int {
	fmt.Printf("%-12s| %-22s| %-22s| %s\n", "Turn", "Expected", "Replayed", "Match")
	fmt.Printf("%-12s+%-23s+%-23s+%s\n",
		"------------", "-----------------------", "-----------------------", "------")

	matches := 0
	total := len(results)
	if len(expected) < total {
		total = len(expected)
	}

	for i := 0; i < total; i++ {
		exp := expected[i].Action + "/" + expected[i].Writeback
		got := results[i].Action + "/" + results[i].Writeback
		match := "DIFF"
		if exp == got {
			match = "OK"
			matches++
		}
		fmt.Printf("%-12s| %-22s| %-22s| %s\n", results[i].TurnID, exp, got, match)
	}

	diverge := total - matches
	fmt.Printf("\nSummary: %d turns, %d answered, %d escalated, %d committed, %d rejected, %d diverge\n",
		summary.TotalTurns, summary.Answered, summary.Escalated, summary.Committed, summary.Rejected, diverge)

	if diverge > 0 {
		return 1
	}
	return 0
}

// #endregion output
