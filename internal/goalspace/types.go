package goalspace

import "fmt"

// #region config

// Config describes how goals are represented and scored.
//
// Threshold controls the reach test: a vector matching the goal dimension is
// applied per-dimension, a single-element vector is an aggregate L2 cutoff.
type Config struct {
	// RepresentationKey names the state entry that carries the achieved
	// value compared against goals (usually trace.AchievedGoalKey).
	RepresentationKey string
	Threshold         []float32
	DefaultReward     float32 // reward when the goal was not reached
	SuccessReward     float32 // reward when the goal was reached
	Shaped            bool    // replace DefaultReward with -distance
}

// DefaultConfig returns the sparse goal space used by the demo tasks:
// -1 per missed step, 0 on success.
func DefaultConfig(threshold []float32) Config {
	return Config{
		RepresentationKey: "achieved_goal",
		Threshold:         threshold,
		DefaultReward:     -1,
		SuccessReward:     0,
	}
}

// #endregion config

// #region mismatch-error

// MismatchError reports a goal/state pair of incompatible shape. It signals
// a configuration bug, not a transient failure, and is never retried.
type MismatchError struct {
	Key       string
	GoalDim   int
	StateDim  int
	Threshold int
}

func (e *MismatchError) Error() string {
	if e.StateDim < 0 {
		return fmt.Sprintf("goalspace: state has no %q entry", e.Key)
	}
	if e.Threshold > 0 {
		return fmt.Sprintf("goalspace: threshold dim %d incompatible with goal dim %d", e.Threshold, e.GoalDim)
	}
	return fmt.Sprintf("goalspace: goal dim %d vs achieved %q dim %d", e.GoalDim, e.Key, e.StateDim)
}

// #endregion mismatch-error
