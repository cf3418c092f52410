// Package hierarchy walks the level stack: it decides subgoal-testing
// phases, propagates goals top-down through the nested stepping cadence,
// routes shaped transitions into each level's replay buffer, and drives the
// improve/evaluate schedule. The hierarchy is stepped on a single logical
// thread; asynchronous trainers read buffers only through snapshots.
package hierarchy

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/google/uuid"
	"github.com/hierarch-rl/hac-controller/internal/config"
	"github.com/hierarch-rl/hac-controller/internal/level"
	"github.com/hierarch-rl/hac-controller/internal/metrics"
	"github.com/hierarch-rl/hac-controller/internal/trace"
	"github.com/hierarch-rl/hac-controller/internal/trainstore"
)

// #region controller

// Controller owns the ordered level stack, top first.
type Controller struct {
	cfg      config.RunConfig
	levels   []*level.Agent
	env      Environment
	rng      *rand.Rand
	counters Counters
	recorder Recorder
	metrics  *metrics.Collector
	runID    string
}

// NewController builds the orchestrator. The level slice is ordered top
// first; its height must match the configuration and be at least 2 — goal
// propagation and subgoal testing are undefined on a single level.
// recorder and collector may be nil.
func NewController(cfg config.RunConfig, levels []*level.Agent, env Environment, recorder Recorder, collector *metrics.Collector) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(levels) < 2 {
		return nil, &config.ConfigurationError{
			Field:  "levels",
			Reason: fmt.Sprintf("goal propagation requires at least 2 levels, got %d", len(levels)),
		}
	}
	if len(levels) != cfg.Levels {
		return nil, &config.ConfigurationError{
			Field:  "levels",
			Reason: fmt.Sprintf("configured %d levels but %d agents supplied", cfg.Levels, len(levels)),
		}
	}
	for i, ag := range levels {
		if ag == nil {
			return nil, &config.ConfigurationError{Field: "levels", Reason: fmt.Sprintf("level %d is nil", i)}
		}
		if ag.Index() != i {
			return nil, &config.ConfigurationError{
				Field:  "levels",
				Reason: fmt.Sprintf("agent at position %d reports index %d", i, ag.Index()),
			}
		}
	}
	if env == nil {
		return nil, &config.ConfigurationError{Field: "environment", Reason: "nil environment"}
	}
	return &Controller{
		cfg:      cfg,
		levels:   levels,
		env:      env,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		recorder: recorder,
		metrics:  collector,
	}, nil
}

// SetRunID tags persisted outcomes with a run identifier.
func (c *Controller) SetRunID(runID string) { c.runID = runID }

// Progress returns a copy of the schedule counters.
func (c *Controller) Progress() Counters { return c.counters }

// #endregion controller

// #region decide-test-phase

// DecideTestPhase draws the subgoal-testing flag for one top-level decision:
// a Bernoulli trial with probability SubgoalTestingRate. The result is
// carried down the call chain in an immutable StepContext and stays fixed
// until the next top-level decision.
func (c *Controller) DecideTestPhase() bool {
	return c.rng.Float64() < float64(c.cfg.SubgoalTestingRate)
}

// #endregion decide-test-phase

// #region run-episode

// RunEpisode plays one full episode in the given mode. "train" runs the
// levels in their TRAIN phase and stores shaped transitions; "eval" forces
// TEST everywhere and writes nothing.
func (c *Controller) RunEpisode(mode string) (EpisodeResult, error) {
	if mode != "train" && mode != "eval" {
		return EpisodeResult{}, fmt.Errorf("hierarchy: unknown episode mode %q", mode)
	}

	phase := level.PhaseTrain
	if mode == "eval" {
		phase = level.PhaseTest
	}
	for _, ag := range c.levels {
		ag.SetRunPhase(phase)
	}

	initial, taskGoal := c.env.Reset()
	e := &episodeRun{
		c:         c,
		episodeID: uuid.New().String(),
		mode:      mode,
		store:     mode == "train",
		taskGoal:  taskGoal,
	}

	final, err := e.runTop(initial)
	if err != nil {
		return EpisodeResult{}, err
	}

	// Task success: the episode goal reached by the final achieved state,
	// measured in the subgoal space shared by the stack.
	bottomSpace := c.levels[len(c.levels)-1].Space()
	if _, reached, serr := bottomSpace.RewardFor(taskGoal, final); serr == nil {
		e.success = reached
	}

	if e.store {
		for _, ag := range c.levels {
			added, rerr := ag.EndEpisode()
			if rerr != nil {
				return EpisodeResult{}, fmt.Errorf("episode %s: %w", e.episodeID, rerr)
			}
			e.relabeled += added
			c.metrics.AddRelabeled(added)
			if buf := ag.Buffer(); buf != nil {
				c.metrics.SetBufferSize(ag.Index(), buf.Len())
			}
		}
	}

	result := EpisodeResult{
		EpisodeID:       e.episodeID,
		Mode:            mode,
		Steps:           e.envSteps,
		TotalReward:     e.rawTotal,
		Success:         e.success,
		SubgoalTests:    e.subgoalTests,
		SubgoalsReached: e.subgoalsReached,
		Relabeled:       e.relabeled,
	}

	c.counters.EpisodesPlayed++
	c.counters.StepsPlayed += e.envSteps
	if mode == "train" {
		c.counters.TrainEpisodes++
	} else {
		c.counters.EvalEpisodes++
	}
	c.counters.SubgoalTests += e.subgoalTests
	c.metrics.IncEpisode(mode)
	c.metrics.AddEnvSteps(e.envSteps)

	if c.recorder != nil {
		rerr := c.recorder.RecordEpisode(trainstore.EpisodeOutcome{
			RunID:           c.runID,
			EpisodeID:       e.episodeID,
			Mode:            mode,
			Steps:           e.envSteps,
			SubgoalTests:    e.subgoalTests,
			SubgoalsReached: e.subgoalsReached,
			RelabeledAdded:  e.relabeled,
			FinalReward:     e.rawTotal,
			Success:         e.success,
		})
		if rerr != nil {
			log.Printf("[HIER] failed to record episode %s: %v", e.episodeID, rerr)
		}
	}

	return result, nil
}

// #endregion run-episode

// #region episode-run

// episodeRun is the per-episode scratch state of the nested walk.
type episodeRun struct {
	c         *Controller
	episodeID string
	mode      string
	store     bool
	taskGoal  trace.Goal

	envSteps        int
	envTerminal     bool
	rawTotal        float32
	subgoalTests    int
	subgoalsReached int
	relabeled       int
	success         bool
}

// runTop drives top-level decisions until the environment terminates or the
// episode step budget runs out. Each decision draws the testing flag once,
// freezes it into a StepContext, and hands the chosen goal to the nested
// run beneath.
func (e *episodeRun) runTop(st trace.State) (trace.State, error) {
	c := e.c
	top := c.levels[0]

	for !e.envTerminal && e.envSteps < c.cfg.TimeLimit {
		shouldTest := false
		if e.mode == "train" {
			shouldTest = c.DecideTestPhase()
		}
		ctx := level.StepContext{
			ShouldTestSubgoal: shouldTest,
			LevelIndex:        0,
			TotalLevels:       len(c.levels),
		}
		if shouldTest {
			e.subgoalTests++
			c.metrics.IncSubgoalTest()
			e.logDecision(0, "test_phase", "bernoulli draw under configured testing rate")
		}

		action := top.ChooseAction(st, nil, ctx)

		rawBefore := e.rawTotal
		next, err := e.runLower(1, st, trace.Goal(action), ctx.Below())
		if err != nil {
			return nil, err
		}

		t := trace.Transition{
			State:     st,
			Action:    action,
			Reward:    e.rawTotal - rawBefore,
			NextState: next,
			Terminal:  e.envTerminal,
		}
		shaped, _, err := top.ShapeTransition(t, nil, ctx)
		if err != nil {
			return nil, err
		}
		if e.store {
			top.RecordTransition(shaped)
		}
		st = next
	}
	return st, nil
}

// runLower runs one level's allowance of decision steps under the goal the
// level above delegated. Bottom-level actions hit the environment; any
// other level recurses, its action becoming the goal beneath it.
func (e *episodeRun) runLower(idx int, st trace.State, desired trace.Goal, ctx level.StepContext) (trace.State, error) {
	c := e.c
	ag := c.levels[idx]

	sched := NewScheduler(c.cfg.StepsPerLevel)
	sched.Begin()

	for {
		action := ag.ChooseAction(st, desired, ctx)

		var next trace.State
		var rawReward float32
		rawBefore := e.rawTotal
		if ag.IsBottom() {
			var terminal bool
			next, rawReward, terminal = c.env.Step(action)
			e.envSteps++
			e.rawTotal += rawReward
			e.envTerminal = e.envTerminal || terminal
		} else {
			var err error
			next, err = e.runLower(idx+1, st, trace.Goal(action), ctx.Below())
			if err != nil {
				return nil, err
			}
			rawReward = e.rawTotal - rawBefore
		}

		t := trace.Transition{
			State:     st,
			Action:    action,
			Reward:    rawReward,
			NextState: next,
			Terminal:  e.envTerminal,
		}
		shaped, m, err := ag.ShapeTransition(t, desired, ctx)
		if err != nil {
			return nil, err
		}
		if m.SubgoalReached {
			e.subgoalsReached++
			c.metrics.IncSubgoalReached()
		}
		if e.store {
			ag.RecordTransition(shaped)
		}

		st = next
		// This level's cycle ends on its own terminal: environment done or
		// assigned goal reached. Budget exhaustion also returns upward; an
		// environment terminal is the only signal that ends the episode.
		if sched.Tick(shaped.Terminal) || e.envTerminal || e.envSteps >= c.cfg.TimeLimit {
			return st, nil
		}
	}
}

// logDecision writes scheduling provenance, best-effort.
func (e *episodeRun) logDecision(levelIdx int, decision, reason string) {
	if e.c.recorder == nil {
		return
	}
	err := e.c.recorder.LogDecision(trainstore.ProvenanceEntry{
		RunID:     e.c.runID,
		EpisodeID: e.episodeID,
		Level:     levelIdx,
		Decision:  decision,
		Reason:    reason,
	})
	if err != nil {
		log.Printf("[HIER] failed to log decision: %v", err)
	}
}

// #endregion episode-run

// #region run-cycles

// Run drives the improve/evaluate schedule: each cycle plays
// EpisodesPerCycle training episodes followed by EvalEpisodesPerCycle
// evaluation episodes, and logs the cycle's success rates.
func (c *Controller) Run(cycles int) ([]CycleSummary, error) {
	summaries := make([]CycleSummary, 0, cycles)

	for cycle := 0; cycle < cycles; cycle++ {
		var trainSuccess, evalSuccess int

		for i := 0; i < c.cfg.EpisodesPerCycle; i++ {
			res, err := c.RunEpisode("train")
			if err != nil {
				return summaries, fmt.Errorf("cycle %d train episode %d: %w", cycle, i, err)
			}
			if res.Success {
				trainSuccess++
			}
		}
		for i := 0; i < c.cfg.EvalEpisodesPerCycle; i++ {
			res, err := c.RunEpisode("eval")
			if err != nil {
				return summaries, fmt.Errorf("cycle %d eval episode %d: %w", cycle, i, err)
			}
			if res.Success {
				evalSuccess++
			}
		}

		s := CycleSummary{
			Cycle:            cycle,
			TrainEpisodes:    c.cfg.EpisodesPerCycle,
			EvalEpisodes:     c.cfg.EvalEpisodesPerCycle,
			TrainSuccessRate: float32(trainSuccess) / float32(c.cfg.EpisodesPerCycle),
		}
		if c.cfg.EvalEpisodesPerCycle > 0 {
			s.EvalSuccessRate = float32(evalSuccess) / float32(c.cfg.EvalEpisodesPerCycle)
		}
		summaries = append(summaries, s)

		log.Printf("[HIER] cycle %d: train_success=%.2f eval_success=%.2f steps=%d",
			cycle, s.TrainSuccessRate, s.EvalSuccessRate, c.counters.StepsPlayed)
	}
	return summaries, nil
}

// #endregion run-cycles
