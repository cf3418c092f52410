package hierarchy

import (
	"errors"
	"math"
	"testing"

	"github.com/hierarch-rl/hac-controller/internal/config"
	"github.com/hierarch-rl/hac-controller/internal/goalspace"
	"github.com/hierarch-rl/hac-controller/internal/level"
	"github.com/hierarch-rl/hac-controller/internal/replay"
	"github.com/hierarch-rl/hac-controller/internal/trace"
)

// lineEnv is a 1-D line world: the position moves by the bottom-level action,
// every step costs -1, and the environment signals terminal after terminalAt
// steps (0 = never).
type lineEnv struct {
	pos        float32
	steps      int
	terminalAt int
	taskGoal   trace.Goal
}

func (e *lineEnv) Reset() (trace.State, trace.Goal) {
	e.pos, e.steps = 0, 0
	return e.state(), e.taskGoal.Clone()
}

func (e *lineEnv) state() trace.State {
	return trace.State{
		trace.ObservationKey:  {e.pos},
		trace.AchievedGoalKey: {e.pos},
	}
}

func (e *lineEnv) Step(a trace.Action) (trace.State, float32, bool) {
	e.pos += a[0]
	e.steps++
	terminal := e.terminalAt > 0 && e.steps >= e.terminalAt
	return e.state(), -1, terminal
}

// scriptedPolicy always emits the same action and records the phase of every
// query.
type scriptedPolicy struct {
	action trace.Action
	phases []level.RunPhase
}

func (p *scriptedPolicy) ChooseAction(_ trace.State, phase level.RunPhase) trace.Action {
	p.phases = append(p.phases, phase)
	return p.action.Clone()
}

// chasePolicy proposes the current achieved position plus a fixed delta, so a
// unit-step bottom level reaches the proposal in one step.
type chasePolicy struct {
	delta float32
	calls int
}

func (p *chasePolicy) ChooseAction(st trace.State, _ level.RunPhase) trace.Action {
	p.calls++
	return trace.Action{st[trace.AchievedGoalKey][0] + p.delta}
}

func testConfig() config.RunConfig {
	cfg := config.Default()
	cfg.Levels = 2
	cfg.StepsPerLevel = 10
	cfg.TimeLimit = 40
	cfg.SubgoalTestingRate = 0
	cfg.HindsightRatio = 0
	cfg.GoalThreshold = []float32{0.5}
	cfg.BufferCapacity = 10000
	cfg.MinSampleSize = 1
	cfg.EpisodesPerCycle = 2
	cfg.EvalEpisodesPerCycle = 1
	cfg.Seed = 42
	return cfg
}

func newTestStack(t *testing.T, cfg config.RunConfig, topPol, bottomPol level.Policy) []*level.Agent {
	t.Helper()
	space := goalspace.New(goalspace.DefaultConfig(cfg.GoalThreshold))

	bufCfg := replay.Config{
		Capacity:      cfg.BufferCapacity,
		RelabelRatio:  cfg.HindsightRatio,
		Strategy:      replay.Strategy(cfg.HindsightStrategy),
		MinSampleSize: cfg.MinSampleSize,
		Seed:          cfg.Seed,
	}
	topBuf, err := replay.NewBuffer(bufCfg, space)
	if err != nil {
		t.Fatalf("top buffer: %v", err)
	}
	bottomBuf, err := replay.NewBuffer(bufCfg, space)
	if err != nil {
		t.Fatalf("bottom buffer: %v", err)
	}

	penalty := cfg.EffectivePenalty()
	top, err := level.NewAgent(level.Config{Index: 0, Total: 2, SubgoalPenalty: penalty}, topPol, nil, space, topBuf)
	if err != nil {
		t.Fatalf("top agent: %v", err)
	}
	bottom, err := level.NewAgent(level.Config{Index: 1, Total: 2, SubgoalPenalty: penalty}, bottomPol, space, nil, bottomBuf)
	if err != nil {
		t.Fatalf("bottom agent: %v", err)
	}
	return []*level.Agent{top, bottom}
}

func TestNewController_RejectsSingleLevel(t *testing.T) {
	cfg := testConfig()
	stack := newTestStack(t, cfg, &scriptedPolicy{action: trace.Action{1000}}, &scriptedPolicy{action: trace.Action{1}})

	_, err := NewController(cfg, stack[1:], &lineEnv{taskGoal: trace.Goal{100}}, nil, nil)
	if err == nil {
		t.Fatal("expected a single-level hierarchy to be rejected")
	}
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
	}

	cfg.Levels = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected levels=1 to fail validation")
	}
}

func TestNewController_RejectsHeightMismatch(t *testing.T) {
	cfg := testConfig()
	cfg.Levels = 3
	stack := newTestStack(t, testConfig(), &scriptedPolicy{action: trace.Action{1000}}, &scriptedPolicy{action: trace.Action{1}})

	if _, err := NewController(cfg, stack, &lineEnv{taskGoal: trace.Goal{100}}, nil, nil); err == nil {
		t.Fatal("expected 3-level config with 2 agents to be rejected")
	}
}

func TestDecideTestPhase_BernoulliFraction(t *testing.T) {
	cfg := testConfig()
	cfg.SubgoalTestingRate = 0.5
	stack := newTestStack(t, cfg, &scriptedPolicy{action: trace.Action{1000}}, &scriptedPolicy{action: trace.Action{1}})
	c, err := NewController(cfg, stack, &lineEnv{taskGoal: trace.Goal{100}}, nil, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	const draws = 100000
	hits := 0
	for i := 0; i < draws; i++ {
		if c.DecideTestPhase() {
			hits++
		}
	}
	fraction := float64(hits) / float64(draws)
	if math.Abs(fraction-0.5) > 0.01 {
		t.Errorf("expected testing fraction near 0.5, got %v", fraction)
	}
}

func TestRunEpisode_TestingFlagUniformPerTopDecision(t *testing.T) {
	cfg := testConfig()
	cfg.SubgoalTestingRate = 0.5
	bottomPol := &scriptedPolicy{action: trace.Action{1}}
	// Goal proposal far beyond reach: every lower run spends its full
	// allowance, so bottom phases arrive in blocks of StepsPerLevel.
	stack := newTestStack(t, cfg, &scriptedPolicy{action: trace.Action{1000}}, bottomPol)
	c, err := NewController(cfg, stack, &lineEnv{taskGoal: trace.Goal{1000}}, nil, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	if _, err := c.RunEpisode("train"); err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}

	if len(bottomPol.phases) != cfg.TimeLimit {
		t.Fatalf("expected %d bottom decisions, got %d", cfg.TimeLimit, len(bottomPol.phases))
	}
	for block := 0; block < len(bottomPol.phases); block += cfg.StepsPerLevel {
		first := bottomPol.phases[block]
		for i := block; i < block+cfg.StepsPerLevel; i++ {
			if bottomPol.phases[i] != first {
				t.Fatalf("phase changed mid-decision at step %d: %v vs %v", i, bottomPol.phases[i], first)
			}
		}
	}
}

func TestRunEpisode_ForcedTestingAppliesPenalty(t *testing.T) {
	cfg := testConfig()
	cfg.SubgoalTestingRate = 1
	stack := newTestStack(t, cfg, &scriptedPolicy{action: trace.Action{1000}}, &scriptedPolicy{action: trace.Action{1}})
	c, err := NewController(cfg, stack, &lineEnv{taskGoal: trace.Goal{1000}}, nil, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	res, err := c.RunEpisode("train")
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	wantDecisions := cfg.TimeLimit / cfg.StepsPerLevel
	if res.SubgoalTests != wantDecisions {
		t.Fatalf("expected %d tested decisions, got %d", wantDecisions, res.SubgoalTests)
	}

	// Every top-level proposal missed under testing: each stored top
	// transition carries exactly the negated step-budget penalty.
	snapshot := stack[0].Buffer().Snapshot()
	if len(snapshot) != wantDecisions {
		t.Fatalf("expected %d top transitions, got %d", wantDecisions, len(snapshot))
	}
	for i, tr := range snapshot {
		if tr.Reward != -40 {
			t.Errorf("top transition %d: expected reward -40, got %v", i, tr.Reward)
		}
	}
}

func TestRunEpisode_SubgoalReachReturnsControlEarly(t *testing.T) {
	cfg := testConfig()
	topPol := &chasePolicy{delta: 1}
	stack := newTestStack(t, cfg, topPol, &scriptedPolicy{action: trace.Action{1}})
	c, err := NewController(cfg, stack, &lineEnv{taskGoal: trace.Goal{1000}}, nil, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	res, err := c.RunEpisode("train")
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	// Each proposal is one unit ahead, reached after a single bottom step:
	// control returns to the top every environment step.
	if topPol.calls != cfg.TimeLimit {
		t.Errorf("expected %d top decisions, got %d", cfg.TimeLimit, topPol.calls)
	}
	if res.SubgoalsReached != cfg.TimeLimit {
		t.Errorf("expected %d reached subgoals, got %d", cfg.TimeLimit, res.SubgoalsReached)
	}
	if res.Steps != cfg.TimeLimit {
		t.Errorf("expected %d environment steps, got %d", cfg.TimeLimit, res.Steps)
	}
}

func TestRunEpisode_EnvTerminalEndsEpisode(t *testing.T) {
	cfg := testConfig()
	stack := newTestStack(t, cfg, &scriptedPolicy{action: trace.Action{1000}}, &scriptedPolicy{action: trace.Action{1}})
	c, err := NewController(cfg, stack, &lineEnv{terminalAt: 5, taskGoal: trace.Goal{5}}, nil, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	res, err := c.RunEpisode("train")
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if res.Steps != 5 {
		t.Fatalf("expected episode to stop at environment terminal after 5 steps, got %d", res.Steps)
	}
	if !res.Success {
		t.Error("final position 5 is within threshold of task goal 5, expected success")
	}
}

func TestRunEpisode_EvalWritesNothingAndNeverTests(t *testing.T) {
	cfg := testConfig()
	cfg.SubgoalTestingRate = 1
	bottomPol := &scriptedPolicy{action: trace.Action{1}}
	stack := newTestStack(t, cfg, &scriptedPolicy{action: trace.Action{1000}}, bottomPol)
	c, err := NewController(cfg, stack, &lineEnv{taskGoal: trace.Goal{1000}}, nil, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	res, err := c.RunEpisode("eval")
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if res.SubgoalTests != 0 {
		t.Errorf("eval must not draw testing phases, got %d", res.SubgoalTests)
	}
	if got := stack[0].Buffer().Len() + stack[1].Buffer().Len(); got != 0 {
		t.Errorf("eval must not write buffers, got %d stored transitions", got)
	}
	for i, p := range bottomPol.phases {
		if p != level.PhaseTest {
			t.Fatalf("eval decision %d ran in phase %v, want test", i, p)
		}
	}
	if res.Relabeled != 0 {
		t.Errorf("eval must not relabel, got %d", res.Relabeled)
	}
}

func TestRunEpisode_TrainStoresAndRelabels(t *testing.T) {
	cfg := testConfig()
	cfg.HindsightRatio = 2
	stack := newTestStack(t, cfg, &scriptedPolicy{action: trace.Action{1000}}, &scriptedPolicy{action: trace.Action{1}})
	c, err := NewController(cfg, stack, &lineEnv{taskGoal: trace.Goal{1000}}, nil, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	res, err := c.RunEpisode("train")
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	// 40 bottom transitions plus 4 top transitions, each relabeled twice.
	if got := stack[1].Buffer().Len(); got != cfg.TimeLimit*(1+cfg.HindsightRatio) {
		t.Errorf("expected %d bottom transitions, got %d", cfg.TimeLimit*(1+cfg.HindsightRatio), got)
	}
	topDecisions := cfg.TimeLimit / cfg.StepsPerLevel
	wantRelabeled := (cfg.TimeLimit + topDecisions) * cfg.HindsightRatio
	if res.Relabeled != wantRelabeled {
		t.Errorf("expected %d relabeled transitions, got %d", wantRelabeled, res.Relabeled)
	}
}

func TestRun_ImproveEvaluateSchedule(t *testing.T) {
	cfg := testConfig()
	stack := newTestStack(t, cfg, &scriptedPolicy{action: trace.Action{1000}}, &scriptedPolicy{action: trace.Action{1}})
	c, err := NewController(cfg, stack, &lineEnv{terminalAt: 3, taskGoal: trace.Goal{3}}, nil, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	summaries, err := c.Run(2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 cycle summaries, got %d", len(summaries))
	}
	for _, s := range summaries {
		if s.TrainSuccessRate != 1 || s.EvalSuccessRate != 1 {
			t.Errorf("cycle %d: env terminates on the goal, expected success rates 1, got train=%v eval=%v",
				s.Cycle, s.TrainSuccessRate, s.EvalSuccessRate)
		}
	}

	got := c.Progress()
	if got.TrainEpisodes != 2*cfg.EpisodesPerCycle {
		t.Errorf("expected %d train episodes, got %d", 2*cfg.EpisodesPerCycle, got.TrainEpisodes)
	}
	if got.EvalEpisodes != 2*cfg.EvalEpisodesPerCycle {
		t.Errorf("expected %d eval episodes, got %d", 2*cfg.EvalEpisodesPerCycle, got.EvalEpisodes)
	}
	if got.EpisodesPlayed != got.TrainEpisodes+got.EvalEpisodes {
		t.Errorf("episode counters disagree: %+v", got)
	}
}

func TestRunEpisode_RejectsUnknownMode(t *testing.T) {
	cfg := testConfig()
	stack := newTestStack(t, cfg, &scriptedPolicy{action: trace.Action{1000}}, &scriptedPolicy{action: trace.Action{1}})
	c, err := NewController(cfg, stack, &lineEnv{taskGoal: trace.Goal{100}}, nil, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	if _, err := c.RunEpisode("replay"); err == nil {
		t.Fatal("expected unknown mode to be rejected")
	}
}
