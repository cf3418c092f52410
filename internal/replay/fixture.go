package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hierarch-rl/hac-controller/internal/goalspace"
	"github.com/hierarch-rl/hac-controller/internal/trace"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a recorded-episode fixture:
// one level's raw transitions plus the shaped rewards and relabel count a
// deterministic re-run must reproduce.
type Fixture struct {
	Description       string            `json:"description"`
	Config            FixtureConfig     `json:"config"`
	Goal              []float32         `json:"goal"`
	Steps             []FixtureStep     `json:"steps"`
	Expected          []FixtureExpected `json:"expected"`
	ExpectedRelabeled int               `json:"expected_relabeled"`
}

// FixtureConfig pins down everything the replay needs to be deterministic.
type FixtureConfig struct {
	GoalThreshold  []float32 `json:"goal_threshold"`
	LevelIndex     int       `json:"level_index"`
	TotalLevels    int       `json:"total_levels"`
	SubgoalPenalty float32   `json:"subgoal_penalty"`
	TestingPhase   bool      `json:"testing_phase"`
	RelabelRatio   int       `json:"relabel_ratio"`
	Strategy       string    `json:"strategy"`
	Seed           int64     `json:"seed"`
}

// FixtureStep is one raw environment-facing transition before shaping.
type FixtureStep struct {
	State     map[string][]float32 `json:"state"`
	Action    []float32            `json:"action"`
	RawReward float32              `json:"raw_reward"`
	NextState map[string][]float32 `json:"next_state"`
	Terminal  bool                 `json:"terminal"`
}

// FixtureExpected is the shaped outcome the re-run must produce for a step.
type FixtureExpected struct {
	Reward   float32 `json:"reward"`
	Terminal bool    `json:"terminal"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON episode fixture.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.Expected) != len(f.Steps) {
		return nil, fmt.Errorf("fixture %s: %d steps but %d expected results", path, len(f.Steps), len(f.Expected))
	}
	return &f, nil
}

// ToTransition converts a fixture step to a domain transition.
func (s *FixtureStep) ToTransition() trace.Transition {
	return trace.Transition{
		State:     trace.State(s.State).Clone(),
		Action:    trace.Action(s.Action).Clone(),
		Reward:    s.RawReward,
		NextState: trace.State(s.NextState).Clone(),
		Terminal:  s.Terminal,
	}
}

// SpaceConfig derives the goal-space configuration the episode was shaped
// under.
func (c *FixtureConfig) SpaceConfig() goalspace.Config {
	return goalspace.DefaultConfig(c.GoalThreshold)
}

// ToBufferConfig derives the replay-buffer configuration for the relabel
// re-run. MinSampleSize is irrelevant to replay and pinned at 1.
func (c *FixtureConfig) ToBufferConfig() Config {
	return Config{
		Capacity:      100000,
		RelabelRatio:  c.RelabelRatio,
		Strategy:      Strategy(c.Strategy),
		MinSampleSize: 1,
		Seed:          c.Seed,
	}
}

// #endregion fixture-loader
