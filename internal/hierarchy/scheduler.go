package hierarchy

// #region states

// SchedulerState is the nested-stepping state between two adjacent levels.
type SchedulerState int

const (
	// AwaitingUpperAction: the upper level has not yet emitted a goal.
	AwaitingUpperAction SchedulerState = iota
	// RunningLowerSteps: the lower level is consuming its step allowance.
	RunningLowerSteps
)

// #endregion states

// #region scheduler

// Scheduler meters the cadence between two adjacent levels: one upper
// decision buys the lower level exactly stepsPerLevel decision steps, cut
// short when the lower level signals terminal. Early termination returns
// control upward; it does not end the upper episode.
type Scheduler struct {
	stepsPerLevel int
	state         SchedulerState
	remaining     int
}

// NewScheduler creates a scheduler with the given per-decision allowance.
func NewScheduler(stepsPerLevel int) *Scheduler {
	return &Scheduler{stepsPerLevel: stepsPerLevel}
}

// State returns the current scheduler state.
func (s *Scheduler) State() SchedulerState { return s.state }

// Remaining returns the lower-level steps left in the current allowance.
func (s *Scheduler) Remaining() int { return s.remaining }

// Begin consumes an upper-level action: the lower level receives a fresh
// step allowance.
func (s *Scheduler) Begin() {
	s.state = RunningLowerSteps
	s.remaining = s.stepsPerLevel
}

// Tick records one lower-level step. It returns true when control returns
// to the upper level: allowance exhausted or lower-level terminal,
// regardless of whether the allowance was fully consumed.
func (s *Scheduler) Tick(lowerTerminal bool) bool {
	if s.state != RunningLowerSteps {
		return true
	}
	s.remaining--
	if s.remaining <= 0 || lowerTerminal {
		s.state = AwaitingUpperAction
		s.remaining = 0
		return true
	}
	return false
}

// #endregion scheduler
