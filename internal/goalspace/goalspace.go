// Package goalspace measures distance between goals and achieved states and
// turns that distance into goal-conditioned reward. Every function here is
// pure: the same inputs always produce the same outputs, which the hindsight
// relabeling path depends on when it rescores historical transitions.
package goalspace

import (
	"math"

	"github.com/hierarch-rl/hac-controller/internal/trace"
)

// #region space

// Space scores (goal, achieved-state) pairs against a fixed configuration.
type Space struct {
	config Config
}

// New creates a goal space. The configuration is copied and never mutated.
func New(config Config) *Space {
	cfg := config
	cfg.Threshold = append([]float32(nil), config.Threshold...)
	if cfg.RepresentationKey == "" {
		cfg.RepresentationKey = trace.AchievedGoalKey
	}
	return &Space{config: cfg}
}

// Config returns a copy of the space's configuration.
func (s *Space) Config() Config {
	cfg := s.config
	cfg.Threshold = append([]float32(nil), s.config.Threshold...)
	return cfg
}

// #endregion space

// #region distance

// Distance returns the per-dimension absolute distance between the goal and
// the achieved value in the state.
func (s *Space) Distance(goal trace.Goal, st trace.State) ([]float32, error) {
	achieved, ok := st[s.config.RepresentationKey]
	if !ok {
		return nil, &MismatchError{Key: s.config.RepresentationKey, GoalDim: len(goal), StateDim: -1}
	}
	if len(achieved) != len(goal) {
		return nil, &MismatchError{Key: s.config.RepresentationKey, GoalDim: len(goal), StateDim: len(achieved)}
	}

	dist := make([]float32, len(goal))
	for i := range goal {
		d := goal[i] - achieved[i]
		if d < 0 {
			d = -d
		}
		dist[i] = d
	}
	return dist, nil
}

// #endregion distance

// #region reward-for

// RewardFor scores an achieved state against a goal. reached is true when
// the distance falls within the configured threshold: per-dimension when the
// threshold matches the goal dimension, aggregate L2 when it has a single
// element. The reward is SuccessReward on reach, otherwise DefaultReward
// (or -distance for shaped spaces).
func (s *Space) RewardFor(goal trace.Goal, st trace.State) (float32, bool, error) {
	dist, err := s.Distance(goal, st)
	if err != nil {
		return 0, false, err
	}

	reached := false
	switch len(s.config.Threshold) {
	case len(goal):
		reached = true
		for i, d := range dist {
			if d > s.config.Threshold[i] {
				reached = false
				break
			}
		}
	case 1:
		reached = l2(dist) <= s.config.Threshold[0]
	default:
		return 0, false, &MismatchError{Key: s.config.RepresentationKey, GoalDim: len(goal), Threshold: len(s.config.Threshold)}
	}

	if reached {
		return s.config.SuccessReward, true, nil
	}
	if s.config.Shaped {
		return -l2(dist), false, nil
	}
	return s.config.DefaultReward, false, nil
}

// #endregion reward-for

// #region helpers

// l2 computes the L2 norm of a distance vector.
func l2(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// #endregion helpers
