package level

import (
	"fmt"

	"github.com/hierarch-rl/hac-controller/internal/goalspace"
	"github.com/hierarch-rl/hac-controller/internal/trace"
)

// #region shape

// Shape rewrites a raw transition into the goal-conditioned form stored in a
// level's replay buffer. It is pure: the input transition is never mutated
// and identical inputs always produce identical outputs.
//
// own is the space of the goal this level receives (nil at the top);
// delegate is the space of the goals this level hands down (nil at the
// bottom). Two adjustments apply, in order:
//
//  1. Non-top: attach the desired goal to both states, replace the raw
//     environment reward with goal-conditioned reward, and mark the
//     transition terminal if the goal was reached — reaching an assigned
//     goal ends this level's episode even when the environment continues.
//  2. Non-bottom, testing phase: rescore this level's emitted action (a goal
//     for the level below) against the next state; if the subordinate missed
//     it, override the reward with -penalty. The override teaches a level
//     not to propose goals its subordinate cannot reach within the step
//     budget, and deliberately wins over the distance reward of step 1.
func Shape(own, delegate *goalspace.Space, t trace.Transition, desired trace.Goal, ctx StepContext, penalty float32) (trace.Transition, ShapeMetrics, error) {
	out := t.Clone()
	var m ShapeMetrics

	if !ctx.IsTop() {
		if own == nil {
			return trace.Transition{}, m, fmt.Errorf("shape: level %d has no goal space", ctx.LevelIndex)
		}
		out.Goal = desired.Clone()
		out.State = out.State.WithDesiredGoal(desired)
		out.NextState = out.NextState.WithDesiredGoal(desired)

		dist, err := own.Distance(desired, out.NextState)
		if err != nil {
			return trace.Transition{}, m, fmt.Errorf("shape level %d: %w", ctx.LevelIndex, err)
		}
		m.DistanceFromGoal = dist

		reward, reached, err := own.RewardFor(desired, out.NextState)
		if err != nil {
			return trace.Transition{}, m, fmt.Errorf("shape level %d: %w", ctx.LevelIndex, err)
		}
		out.Reward = reward
		out.Terminal = out.Terminal || reached
		m.SubgoalReached = reached
	}

	if !ctx.IsBottom() && ctx.ShouldTestSubgoal {
		if delegate == nil {
			return trace.Transition{}, m, fmt.Errorf("shape: level %d has no delegate goal space", ctx.LevelIndex)
		}
		m.DelegatedTested = true

		_, reached, err := delegate.RewardFor(trace.Goal(out.Action), out.NextState)
		if err != nil {
			return trace.Transition{}, m, fmt.Errorf("shape level %d subgoal test: %w", ctx.LevelIndex, err)
		}
		m.DelegatedReached = reached
		if !reached {
			out.Reward = -penalty
			m.PenaltyApplied = true
		}
	}

	return out, m, nil
}

// #endregion shape
