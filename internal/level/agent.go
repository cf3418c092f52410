// Package level implements one tier of the control hierarchy: phase
// selection under subgoal testing, reward shaping before storage, and the
// level's hindsight replay buffer. Specialization is by composition — a
// Policy strategy plus the pure Shape function — not subclassing.
package level

import (
	"fmt"

	"github.com/hierarch-rl/hac-controller/internal/goalspace"
	"github.com/hierarch-rl/hac-controller/internal/replay"
	"github.com/hierarch-rl/hac-controller/internal/trace"
)

// #region agent

// Agent owns one level's policy, run phase, goal spaces, and replay buffer.
type Agent struct {
	config   Config
	policy   Policy
	own      *goalspace.Space // goal space of the goals this level receives; nil iff top
	delegate *goalspace.Space // goal space of the goals this level emits; nil iff bottom
	buffer   *replay.Buffer
	runPhase RunPhase
}

// NewAgent builds a level agent and validates the goal-space symmetry: a
// non-top level must have an own space, the top level must not, and every
// non-bottom level needs the space its goal proposals live in. Both
// misconfigurations are fatal at build time.
func NewAgent(config Config, policy Policy, own, delegate *goalspace.Space, buffer *replay.Buffer) (*Agent, error) {
	if config.Total < 1 || config.Index < 0 || config.Index >= config.Total {
		return nil, fmt.Errorf("level: index %d out of range for %d levels", config.Index, config.Total)
	}
	isTop := config.Index == 0
	isBottom := config.Index == config.Total-1
	if isTop && own != nil {
		return nil, fmt.Errorf("level %d: top level must not have a goal space", config.Index)
	}
	if !isTop && own == nil {
		return nil, fmt.Errorf("level %d: non-top level requires a goal space", config.Index)
	}
	if !isBottom && delegate == nil {
		return nil, fmt.Errorf("level %d: non-bottom level requires the subordinate goal space", config.Index)
	}
	if isBottom && delegate != nil {
		return nil, fmt.Errorf("level %d: bottom level has no subordinate goal space", config.Index)
	}
	if policy == nil {
		return nil, fmt.Errorf("level %d: nil policy", config.Index)
	}
	return &Agent{
		config:   config,
		policy:   policy,
		own:      own,
		delegate: delegate,
		buffer:   buffer,
		runPhase: PhaseTrain,
	}, nil
}

// Index returns the level's position, 0 being the top.
func (a *Agent) Index() int { return a.config.Index }

// IsTop reports whether this is the top level.
func (a *Agent) IsTop() bool { return a.config.Index == 0 }

// IsBottom reports whether this is the bottom level.
func (a *Agent) IsBottom() bool { return a.config.Index == a.config.Total-1 }

// Space returns the goal space of the goals this level receives.
func (a *Agent) Space() *goalspace.Space { return a.own }

// Buffer returns the level's replay buffer (nil when the agent runs without
// storage, e.g. during evaluation-only use).
func (a *Agent) Buffer() *replay.Buffer { return a.buffer }

// #endregion agent

// #region run-phase

// SetRunPhase switches the agent between training and evaluation.
func (a *Agent) SetRunPhase(p RunPhase) { a.runPhase = p }

// RunPhase returns the agent's current run phase.
func (a *Agent) RunPhase() RunPhase { return a.runPhase }

// SelectPhase resolves the exploration phase for one step. During a TRAIN
// run a set testing flag forces TEST for this step only: subgoal testing
// must observe the exploited policy, not an exploratory one, or exploration
// failure would be indistinguishable from goal infeasibility.
func (a *Agent) SelectPhase(ctx StepContext) RunPhase {
	if a.runPhase == PhaseTrain && ctx.ShouldTestSubgoal {
		return PhaseTest
	}
	return a.runPhase
}

// #endregion run-phase

// #region choose-action

// ChooseAction queries the policy for the next action. For a non-top level
// the desired goal is attached to the state first; the caller's state is
// never mutated.
func (a *Agent) ChooseAction(st trace.State, desired trace.Goal, ctx StepContext) trace.Action {
	if !a.IsTop() {
		st = st.WithDesiredGoal(desired)
	}
	return a.policy.ChooseAction(st, a.SelectPhase(ctx))
}

// #endregion choose-action

// #region observe

// ShapeTransition applies goal-conditioned reward shaping for this level.
func (a *Agent) ShapeTransition(t trace.Transition, desired trace.Goal, ctx StepContext) (trace.Transition, ShapeMetrics, error) {
	return Shape(a.own, a.delegate, t, desired, ctx, a.config.SubgoalPenalty)
}

// RecordTransition stores a shaped transition in the level's buffer. No-op
// without a buffer.
func (a *Agent) RecordTransition(t trace.Transition) {
	if a.buffer != nil {
		a.buffer.Add(t)
	}
}

// EndEpisode closes the buffer's open episode, triggering hindsight
// relabeling. Returns the number of relabeled transitions added.
func (a *Agent) EndEpisode() (int, error) {
	if a.buffer == nil {
		return 0, nil
	}
	return a.buffer.EndEpisode()
}

// #endregion observe
