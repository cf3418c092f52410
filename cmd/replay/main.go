package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/hierarch-rl/hac-controller/internal/goalspace"
	"github.com/hierarch-rl/hac-controller/internal/level"
	"github.com/hierarch-rl/hac-controller/internal/replay"
)

// rewardTolerance absorbs float32 serialization noise in fixture files.
const rewardTolerance = 1e-5

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to episode fixture JSON")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/episode.json")
		os.Exit(2)
	}
	os.Exit(runFixture(*fixturePath))
}

// #endregion main

// #region replay-fixture

// stepResult is one replayed step next to its recorded expectation.
type stepResult struct {
	Step             int
	ExpectedReward   float32
	ReplayedReward   float32
	ExpectedTerminal bool
	ReplayedTerminal bool
}

func (r stepResult) match() bool {
	return math.Abs(float64(r.ExpectedReward-r.ReplayedReward)) <= rewardTolerance &&
		r.ExpectedTerminal == r.ReplayedTerminal
}

// runFixture replays a recorded episode through shaping and hindsight
// relabeling and compares against the fixture's expectations. Exit code 1 on
// divergence, 2 on load or replay errors.
func runFixture(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	if f.Description != "" {
		fmt.Printf("Fixture: %s\n\n", f.Description)
	}

	space := goalspace.New(f.Config.SpaceConfig())
	buffer, err := replay.NewBuffer(f.Config.ToBufferConfig(), space)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build buffer: %v\n", err)
		return 2
	}

	ctx := level.StepContext{
		ShouldTestSubgoal: f.Config.TestingPhase,
		LevelIndex:        f.Config.LevelIndex,
		TotalLevels:       f.Config.TotalLevels,
	}
	// Non-bottom levels shape their goal proposals against the same space
	// the fixture episode was recorded in.
	var delegate *goalspace.Space
	if !ctx.IsBottom() {
		delegate = space
	}

	results := make([]stepResult, 0, len(f.Steps))
	for i := range f.Steps {
		shaped, _, serr := level.Shape(space, delegate, f.Steps[i].ToTransition(), f.Goal, ctx, f.Config.SubgoalPenalty)
		if serr != nil {
			fmt.Fprintf(os.Stderr, "shape step %d: %v\n", i, serr)
			return 2
		}
		buffer.Add(shaped)
		results = append(results, stepResult{
			Step:             i,
			ExpectedReward:   f.Expected[i].Reward,
			ReplayedReward:   shaped.Reward,
			ExpectedTerminal: f.Expected[i].Terminal,
			ReplayedTerminal: shaped.Terminal,
		})
	}

	relabeled, err := buffer.EndEpisode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relabel: %v\n", err)
		return 2
	}

	return printComparison(results, relabeled, f.ExpectedRelabeled)
}

// #endregion replay-fixture

// #region output

// printComparison outputs the expected-vs-replayed table and returns the
// process exit code.
func printComparison(results []stepResult, relabeled, expectedRelabeled int) int {
	fmt.Printf("%-6s| %-26s| %-26s| %s\n", "Step", "Expected", "Replayed", "Match")
	fmt.Printf("%-6s+%-27s+%-27s+%s\n", "------", "---------------------------", "---------------------------", "------")

	diverge := 0
	for _, r := range results {
		match := "OK"
		if !r.match() {
			match = "DIFF"
			diverge++
		}
		fmt.Printf("%-6d| %-26s| %-26s| %s\n",
			r.Step,
			formatOutcome(r.ExpectedReward, r.ExpectedTerminal),
			formatOutcome(r.ReplayedReward, r.ReplayedTerminal),
			match)
	}

	relabelMatch := "OK"
	if relabeled != expectedRelabeled {
		relabelMatch = "DIFF"
		diverge++
	}
	fmt.Printf("\nRelabeled: expected %d, replayed %d [%s]\n", expectedRelabeled, relabeled, relabelMatch)
	fmt.Printf("Summary: %d steps, %d diverge\n", len(results), diverge)

	if diverge > 0 {
		return 1
	}
	return 0
}

func formatOutcome(reward float32, terminal bool) string {
	return fmt.Sprintf("reward=%g terminal=%t", reward, terminal)
}

// #endregion output
