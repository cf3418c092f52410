package level

import "github.com/hierarch-rl/hac-controller/internal/trace"

// #region run-phase

// RunPhase is an agent's exploration mode. TRAIN lets the policy explore;
// TEST forces deterministic, greedy behavior.
type RunPhase string

const (
	PhaseTrain RunPhase = "train"
	PhaseTest  RunPhase = "test"
)

// #endregion run-phase

// #region policy

// Policy is the consumed exploration/decision boundary: the external
// actor-critic (or any stand-in) behind it is not this package's concern.
type Policy interface {
	// ChooseAction produces an action for the state under the given phase.
	// For a non-bottom level the action is a goal proposal.
	ChooseAction(st trace.State, phase RunPhase) trace.Action
}

// #endregion policy

// #region step-context

// StepContext is the immutable per-decision context passed top-down through
// the hierarchy. It is written once when the top level acts and read by
// every nested lower-level step of that decision; no level holds a reference
// back up the tree.
type StepContext struct {
	// ShouldTestSubgoal is the subgoal-testing flag drawn by the top level,
	// constant for the entire nested run it triggers.
	ShouldTestSubgoal bool
	// LevelIndex identifies the acting level, 0 being the top.
	LevelIndex int
	// TotalLevels is the height of the hierarchy.
	TotalLevels int
}

// IsTop reports whether the context describes the top level.
func (c StepContext) IsTop() bool { return c.LevelIndex == 0 }

// IsBottom reports whether the context describes the bottom level.
func (c StepContext) IsBottom() bool { return c.LevelIndex == c.TotalLevels-1 }

// Below returns the context for the level beneath, carrying the same
// testing flag.
func (c StepContext) Below() StepContext {
	return StepContext{
		ShouldTestSubgoal: c.ShouldTestSubgoal,
		LevelIndex:        c.LevelIndex + 1,
		TotalLevels:       c.TotalLevels,
	}
}

// #endregion step-context

// #region config

// Config identifies a level's position and its subgoal-miss penalty.
type Config struct {
	Index int // 0 = top, Total-1 = bottom
	Total int
	// SubgoalPenalty is the fixed penalty magnitude applied (negated) when a
	// delegated subgoal is missed during a testing phase. Conventionally
	// equal to the environment step budget, but configurable independently.
	SubgoalPenalty float32
}

// #endregion config

// #region shape-metrics

// ShapeMetrics captures what reward shaping did to one transition.
type ShapeMetrics struct {
	DistanceFromGoal []float32
	SubgoalReached   bool // the goal this level was given was reached
	DelegatedTested  bool // step 2 ran: this level's proposed goal was tested
	DelegatedReached bool
	PenaltyApplied   bool
}

// #endregion shape-metrics
