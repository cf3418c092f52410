package level

import (
	"testing"

	"github.com/hierarch-rl/hac-controller/internal/trace"
)

// recordingPolicy captures the phases it was queried with.
type recordingPolicy struct {
	phases []RunPhase
	states []trace.State
}

func (p *recordingPolicy) ChooseAction(st trace.State, phase RunPhase) trace.Action {
	p.phases = append(p.phases, phase)
	p.states = append(p.states, st)
	return trace.Action{0}
}

func TestSelectPhase_TestingForcesDeterministic(t *testing.T) {
	sp := space1D(t)
	pol := &recordingPolicy{}
	a, err := NewAgent(Config{Index: 1, Total: 2, SubgoalPenalty: 40}, pol, sp, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := a.SelectPhase(StepContext{LevelIndex: 1, TotalLevels: 2, ShouldTestSubgoal: true}); got != PhaseTest {
		t.Errorf("TRAIN run + testing flag: expected TEST phase, got %s", got)
	}
	if got := a.SelectPhase(StepContext{LevelIndex: 1, TotalLevels: 2}); got != PhaseTrain {
		t.Errorf("TRAIN run, no testing: expected TRAIN phase, got %s", got)
	}

	a.SetRunPhase(PhaseTest)
	if got := a.SelectPhase(StepContext{LevelIndex: 1, TotalLevels: 2}); got != PhaseTest {
		t.Errorf("TEST run: expected TEST phase, got %s", got)
	}
}

func TestChooseAction_AttachesGoalWithoutMutating(t *testing.T) {
	sp := space1D(t)
	pol := &recordingPolicy{}
	a, err := NewAgent(Config{Index: 1, Total: 2, SubgoalPenalty: 40}, pol, sp, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	st := trace.State{trace.ObservationKey: {1}, trace.AchievedGoalKey: {1}}
	a.ChooseAction(st, trace.Goal{3}, StepContext{LevelIndex: 1, TotalLevels: 2})

	if _, ok := st[trace.DesiredGoalKey]; ok {
		t.Error("caller's state was mutated")
	}
	seen := pol.states[0]
	if got := seen[trace.DesiredGoalKey][0]; got != 3 {
		t.Errorf("policy should see the desired goal, got %v", got)
	}
}

func TestNewAgent_GoalSpaceSymmetry(t *testing.T) {
	sp := space1D(t)
	pol := &recordingPolicy{}

	// Top level with a goal space: symmetric misconfiguration.
	if _, err := NewAgent(Config{Index: 0, Total: 2}, pol, sp, sp, nil); err == nil {
		t.Error("expected error: top level with a goal space")
	}
	// Non-top level without a goal space.
	if _, err := NewAgent(Config{Index: 1, Total: 2}, pol, nil, nil, nil); err == nil {
		t.Error("expected error: non-top level without a goal space")
	}
	// Non-bottom level without the subordinate space.
	if _, err := NewAgent(Config{Index: 0, Total: 2}, pol, nil, nil, nil); err == nil {
		t.Error("expected error: non-bottom level without subordinate space")
	}
	// Bottom level with a subordinate space.
	if _, err := NewAgent(Config{Index: 1, Total: 2}, pol, sp, sp, nil); err == nil {
		t.Error("expected error: bottom level with a subordinate space")
	}
	// Valid top and bottom.
	if _, err := NewAgent(Config{Index: 0, Total: 2}, pol, nil, sp, nil); err != nil {
		t.Errorf("valid top level rejected: %v", err)
	}
	if _, err := NewAgent(Config{Index: 1, Total: 2}, pol, sp, nil, nil); err != nil {
		t.Errorf("valid bottom level rejected: %v", err)
	}
}
