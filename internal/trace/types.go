// Package trace holds the value types shared by every level of the control
// hierarchy: states, actions, goals, and the transitions built from them.
package trace

// #region keys

// Well-known state keys. A State is a keyed bundle of float vectors; the
// environment must populate at least ObservationKey and AchievedGoalKey.
const (
	ObservationKey  = "observation"
	AchievedGoalKey = "achieved_goal"
	DesiredGoalKey  = "desired_goal"
)

// #endregion keys

// #region state

// State is the keyed observation bundle handed between levels and the
// environment.
type State map[string][]float32

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		vc := make([]float32, len(v))
		copy(vc, v)
		out[k] = vc
	}
	return out
}

// WithDesiredGoal returns a copy of the state with the desired goal attached.
// The receiver is never mutated.
func (s State) WithDesiredGoal(goal Goal) State {
	out := s.Clone()
	if out == nil {
		out = make(State, 1)
	}
	gc := make([]float32, len(goal))
	copy(gc, goal)
	out[DesiredGoalKey] = gc
	return out
}

// #endregion state

// #region action-goal

// Action is a level's output: an environment command at the bottom level,
// a goal proposal everywhere else.
type Action []float32

// Goal is a target value in a goal space's representation.
type Goal []float32

// Clone returns a copy of the action.
func (a Action) Clone() Action {
	out := make(Action, len(a))
	copy(out, a)
	return out
}

// Clone returns a copy of the goal.
func (g Goal) Clone() Goal {
	out := make(Goal, len(g))
	copy(out, g)
	return out
}

// #endregion action-goal

// #region transition

// Transition is one stored step of experience. Goal is nil only at the top
// level; once a transition has been shaped, Reward carries goal-conditioned
// feedback rather than the raw environment reward.
type Transition struct {
	State     State
	Action    Action
	Reward    float32
	NextState State
	Terminal  bool
	Goal      Goal
}

// Clone returns a deep copy of the transition.
func (t Transition) Clone() Transition {
	out := Transition{
		State:     t.State.Clone(),
		Action:    t.Action.Clone(),
		Reward:    t.Reward,
		NextState: t.NextState.Clone(),
		Terminal:  t.Terminal,
	}
	if t.Goal != nil {
		out.Goal = t.Goal.Clone()
	}
	return out
}

// #endregion transition
