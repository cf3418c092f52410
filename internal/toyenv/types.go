package toyenv

// TaskGoalKey carries the episode goal inside every state, so the top level
// can read the task target without a goal being attached from above.
const TaskGoalKey = "task_goal"

// Config holds the toy-world parameters.
type Config struct {
	Seed      int64   // noise and spawn seed
	TimeLimit int     // environment step budget per episode
	Extent    float32 // positions live in [-Extent, Extent]^2
	StepSize  float32 // max displacement per step, per dimension
	Threshold float32 // per-dimension task-goal reach radius
	// CostScale controls how much terrain height inflates the unit step
	// cost: cost = -(1 + CostScale*height).
	CostScale float32
}

// DefaultConfig returns the world used by the demo trainer.
func DefaultConfig() Config {
	return Config{
		Seed:      1,
		TimeLimit: 40,
		Extent:    10,
		StepSize:  1,
		Threshold: 0.5,
		CostScale: 1,
	}
}
