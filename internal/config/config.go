// Package config defines the fully-enumerated run configuration. Every
// recognized option is an explicit field; YAML files with unknown fields are
// rejected at load time, and validation failures are fatal at build time.
package config

import (
	"fmt"
	"os"

	"github.com/hierarch-rl/hac-controller/internal/replay"
	"gopkg.in/yaml.v3"
)

// #region configuration-error

// ConfigurationError reports an invalid run configuration. It is fatal,
// surfaced at build time, and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// #endregion configuration-error

// #region run-config

// RunConfig is the complete configuration surface of a training run.
type RunConfig struct {
	// Levels is the height of the hierarchy. The goal-propagation
	// controller requires at least 2.
	Levels int `yaml:"levels"`
	// StepsPerLevel is the nested-stepping cadence: how many decision steps
	// a level runs per single decision of the level above.
	StepsPerLevel int `yaml:"steps_per_level"`
	// TimeLimit is the environment step budget per episode.
	TimeLimit int `yaml:"time_limit"`
	// SubgoalTestingRate is the probability the top level enters a
	// subgoal-testing epoch for one decision.
	SubgoalTestingRate float32 `yaml:"sub_goal_testing_rate"`
	// SubgoalPenalty is the fixed penalty magnitude for a missed tested
	// subgoal. Zero means "use TimeLimit": the two are conventionally equal
	// but remain independently configurable.
	SubgoalPenalty float32 `yaml:"subgoal_penalty"`

	HindsightRatio    int       `yaml:"hindsight_transitions_per_regular_transition"`
	HindsightStrategy string    `yaml:"hindsight_goal_selection_method"`
	GoalThreshold     []float32 `yaml:"goal_reaching_threshold"`
	BufferCapacity    int       `yaml:"buffer_capacity"`
	MinSampleSize     int       `yaml:"min_sample_size"`

	// EpisodesPerCycle and EvalEpisodesPerCycle drive the improve/evaluate
	// schedule: each cycle runs the former in TRAIN phase, then the latter
	// in TEST phase without buffer writes.
	EpisodesPerCycle     int `yaml:"episodes_per_cycle"`
	EvalEpisodesPerCycle int `yaml:"eval_episodes_per_cycle"`

	Seed      int64  `yaml:"seed"`
	StorePath string `yaml:"store_path"`
}

// Default returns the run configuration used by the demo tasks.
func Default() RunConfig {
	return RunConfig{
		Levels:               2,
		StepsPerLevel:        10,
		TimeLimit:            40,
		SubgoalTestingRate:   0.3,
		HindsightRatio:       4,
		HindsightStrategy:    string(replay.StrategyFuture),
		GoalThreshold:        []float32{0.1, 0.1},
		BufferCapacity:       100000,
		MinSampleSize:        256,
		EpisodesPerCycle:     100,
		EvalEpisodesPerCycle: 10,
		Seed:                 1,
		StorePath:            "hac_runs.db",
	}
}

// #endregion run-config

// #region load

// Load reads a YAML run configuration. Fields start from Default, the file
// may not contain unknown keys, and the result is validated.
func Load(path string) (RunConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return RunConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// #endregion load

// #region validate

// Validate checks every field. The first violation is returned as a
// ConfigurationError.
func (c RunConfig) Validate() error {
	if c.Levels < 2 {
		return &ConfigurationError{"levels", fmt.Sprintf("hierarchy needs at least 2 levels for goal propagation, got %d", c.Levels)}
	}
	if c.StepsPerLevel < 1 {
		return &ConfigurationError{"steps_per_level", fmt.Sprintf("must be positive, got %d", c.StepsPerLevel)}
	}
	if c.TimeLimit < 1 {
		return &ConfigurationError{"time_limit", fmt.Sprintf("must be positive, got %d", c.TimeLimit)}
	}
	if c.SubgoalTestingRate < 0 || c.SubgoalTestingRate > 1 {
		return &ConfigurationError{"sub_goal_testing_rate", fmt.Sprintf("must be in [0,1], got %v", c.SubgoalTestingRate)}
	}
	if c.SubgoalPenalty < 0 {
		return &ConfigurationError{"subgoal_penalty", fmt.Sprintf("must be non-negative, got %v", c.SubgoalPenalty)}
	}
	if c.HindsightRatio < 0 {
		return &ConfigurationError{"hindsight_transitions_per_regular_transition", fmt.Sprintf("must be non-negative, got %d", c.HindsightRatio)}
	}
	if !replay.Strategy(c.HindsightStrategy).Valid() {
		return &ConfigurationError{"hindsight_goal_selection_method", fmt.Sprintf("unknown method %q", c.HindsightStrategy)}
	}
	if len(c.GoalThreshold) == 0 {
		return &ConfigurationError{"goal_reaching_threshold", "must not be empty"}
	}
	for i, v := range c.GoalThreshold {
		if v <= 0 {
			return &ConfigurationError{"goal_reaching_threshold", fmt.Sprintf("dimension %d must be positive, got %v", i, v)}
		}
	}
	if c.BufferCapacity < 1 {
		return &ConfigurationError{"buffer_capacity", fmt.Sprintf("must be positive, got %d", c.BufferCapacity)}
	}
	if c.MinSampleSize < 1 {
		return &ConfigurationError{"min_sample_size", fmt.Sprintf("must be positive, got %d", c.MinSampleSize)}
	}
	if c.EpisodesPerCycle < 1 {
		return &ConfigurationError{"episodes_per_cycle", fmt.Sprintf("must be positive, got %d", c.EpisodesPerCycle)}
	}
	if c.EvalEpisodesPerCycle < 0 {
		return &ConfigurationError{"eval_episodes_per_cycle", fmt.Sprintf("must be non-negative, got %d", c.EvalEpisodesPerCycle)}
	}
	return nil
}

// EffectivePenalty resolves the subgoal-miss penalty magnitude: the explicit
// value when set, otherwise the environment step budget.
func (c RunConfig) EffectivePenalty() float32 {
	if c.SubgoalPenalty > 0 {
		return c.SubgoalPenalty
	}
	return float32(c.TimeLimit)
}

// #endregion validate
