package toyenv

import (
	"math/rand"

	"github.com/hierarch-rl/hac-controller/internal/level"
	"github.com/hierarch-rl/hac-controller/internal/trace"
)

// The two scripted policies below stand in for the external actor/critic:
// a proportional controller at the bottom and a waypoint proposer above it.
// TRAIN phase adds Gaussian exploration noise; TEST is deterministic.

// #region proportional

// ProportionalPolicy moves straight toward the desired goal at bounded
// speed.
type ProportionalPolicy struct {
	rng      *rand.Rand
	stepSize float32
	noiseStd float32
}

// NewProportionalPolicy creates the bottom-level controller.
func NewProportionalPolicy(seed int64, stepSize, noiseStd float32) *ProportionalPolicy {
	return &ProportionalPolicy{
		rng:      rand.New(rand.NewSource(seed)),
		stepSize: stepSize,
		noiseStd: noiseStd,
	}
}

// ChooseAction returns the clamped displacement toward the desired goal.
func (p *ProportionalPolicy) ChooseAction(st trace.State, phase level.RunPhase) trace.Action {
	desired := st[trace.DesiredGoalKey]
	achieved := st[trace.AchievedGoalKey]

	out := make(trace.Action, len(achieved))
	for i := range out {
		var target float32
		if i < len(desired) {
			target = desired[i]
		}
		delta := target - achieved[i]
		if phase == level.PhaseTrain {
			delta += float32(p.rng.NormFloat64()) * p.noiseStd
		}
		out[i] = clamp(delta, p.stepSize)
	}
	return out
}

// #endregion proportional

// #region proposal

// GoalProposalPolicy emits waypoints: positions a bounded distance from the
// current one, toward the goal it is itself pursuing. The top level pursues
// the task goal carried in the state; any mid level pursues the goal
// attached from above.
type GoalProposalPolicy struct {
	rng      *rand.Rand
	reach    float32 // max waypoint distance per dimension
	noiseStd float32
}

// NewGoalProposalPolicy creates an upper-level policy. reach should cover
// what the level below can travel within its step allowance.
func NewGoalProposalPolicy(seed int64, reach, noiseStd float32) *GoalProposalPolicy {
	return &GoalProposalPolicy{
		rng:      rand.New(rand.NewSource(seed)),
		reach:    reach,
		noiseStd: noiseStd,
	}
}

// ChooseAction proposes the next waypoint.
func (p *GoalProposalPolicy) ChooseAction(st trace.State, phase level.RunPhase) trace.Action {
	target := st[trace.DesiredGoalKey]
	if len(target) == 0 {
		target = st[TaskGoalKey]
	}
	achieved := st[trace.AchievedGoalKey]

	out := make(trace.Action, len(achieved))
	for i := range out {
		var t float32
		if i < len(target) {
			t = target[i]
		}
		waypoint := achieved[i] + clamp(t-achieved[i], p.reach)
		if phase == level.PhaseTrain {
			waypoint += float32(p.rng.NormFloat64()) * p.noiseStd
		}
		out[i] = waypoint
	}
	return out
}

// #endregion proposal
