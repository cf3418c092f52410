package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hierarch-rl/hac-controller/internal/trainstore"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the training database")
	runID := flag.String("run", "", "run to inspect (default: most recent)")
	last := flag.Int("last", 20, "show N most recent episodes")
	jsonOut := flag.Bool("json", false, "output as JSON instead of a table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/hac_runs.db [--run id] [--last N] [--json]")
		os.Exit(2)
	}

	store, err := trainstore.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := run(store, *runID, *last, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(store *trainstore.Store, runID string, last int, jsonOut bool) error {
	if runID == "" {
		runs, err := store.ListRuns(1)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "no runs found")
			return nil
		}
		runID = runs[0]
	}

	episodes, err := store.ListEpisodes(runID, last)
	if err != nil {
		return err
	}
	progress, err := store.Progress(runID)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(runID, progress, episodes)
	}
	printTable(runID, progress, episodes)
	return nil
}

// #endregion main

// #region output

type inspectOutput struct {
	RunID    string                     `json:"run_id"`
	Progress trainstore.Progress        `json:"progress"`
	Episodes []trainstore.EpisodeOutcome `json:"episodes"`
}

func printJSON(runID string, progress trainstore.Progress, episodes []trainstore.EpisodeOutcome) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(inspectOutput{RunID: runID, Progress: progress, Episodes: episodes})
}

func printTable(runID string, progress trainstore.Progress, episodes []trainstore.EpisodeOutcome) {
	fmt.Printf("Run %s: %d episodes (%d train / %d eval), %d steps, %d successes\n\n",
		runID, progress.Episodes, progress.TrainEpisodes, progress.EvalEpisodes,
		progress.Steps, progress.Successes)

	fmt.Printf("%-10s  %-5s  %5s  %5s  %7s  %9s  %7s  %s\n",
		"Episode", "Mode", "Steps", "Tests", "Reached", "Relabeled", "Success", "Time")
	for _, e := range episodes {
		fmt.Printf("%-10s  %-5s  %5d  %5d  %7d  %9d  %7t  %s\n",
			shortID(e.EpisodeID), e.Mode, e.Steps, e.SubgoalTests, e.SubgoalsReached,
			e.RelabeledAdded, e.Success, e.CreatedAt.Format(time.RFC3339))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
