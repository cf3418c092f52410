// Package toyenv is a deterministic 2-D point-navigation world over rolling
// hills: simplex-noise terrain whose height scales the step cost. It is the
// demo environment collaborator — small enough to reason about, rich enough
// that goal decomposition pays off.
package toyenv

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/hierarch-rl/hac-controller/internal/trace"
)

// #region env

// Env is the toy world. Not safe for concurrent use; the control loop steps
// one episode at a time.
type Env struct {
	config Config
	noise  opensimplex.Noise
	rng    *rand.Rand

	pos   [2]float32
	goal  trace.Goal
	steps int
}

// New creates the world. The same seed always yields the same terrain and
// the same spawn/goal sequence.
func New(config Config) *Env {
	return &Env{
		config: config,
		noise:  opensimplex.NewNormalized(config.Seed),
		rng:    rand.New(rand.NewSource(config.Seed + 1)),
	}
}

// Reset starts a new episode: agent and goal are drawn uniformly over the
// world, at least one step apart.
func (e *Env) Reset() (trace.State, trace.Goal) {
	e.steps = 0
	e.pos = [2]float32{e.sample(), e.sample()}
	for {
		g := trace.Goal{e.sample(), e.sample()}
		if abs32(g[0]-e.pos[0]) > e.config.StepSize || abs32(g[1]-e.pos[1]) > e.config.StepSize {
			e.goal = g
			break
		}
	}
	return e.state(), e.goal.Clone()
}

// Step applies a bounded displacement. Each step costs one unit, inflated by
// the terrain height at the new position. The episode terminates when the
// agent is within the threshold of the task goal on every dimension, or when
// the step budget is spent.
func (e *Env) Step(a trace.Action) (trace.State, float32, bool) {
	for i := 0; i < 2 && i < len(a); i++ {
		e.pos[i] = clamp(e.pos[i]+clamp(a[i], e.config.StepSize), e.config.Extent)
	}
	e.steps++

	reward := -(1 + e.config.CostScale*e.Height(e.pos[0], e.pos[1]))
	reached := abs32(e.pos[0]-e.goal[0]) <= e.config.Threshold &&
		abs32(e.pos[1]-e.goal[1]) <= e.config.Threshold
	terminal := reached || e.steps >= e.config.TimeLimit

	return e.state(), reward, terminal
}

// Height returns the terrain height at a position, in [0, 1]. Three noise
// octaves, following the usual fractal layering.
func (e *Env) Height(x, y float32) float32 {
	total, amplitude, maxVal := 0.0, 1.0, 0.0
	frequency := 0.15
	for i := 0; i < 3; i++ {
		total += e.noise.Eval2(float64(x)*frequency, float64(y)*frequency) * amplitude
		maxVal += amplitude
		amplitude *= 0.5
		frequency *= 2
	}
	return float32(total / maxVal)
}

// Steps returns the steps consumed in the current episode.
func (e *Env) Steps() int { return e.steps }

func (e *Env) state() trace.State {
	return trace.State{
		trace.ObservationKey:  {e.pos[0], e.pos[1], e.Height(e.pos[0], e.pos[1])},
		trace.AchievedGoalKey: {e.pos[0], e.pos[1]},
		TaskGoalKey:           append([]float32(nil), e.goal...),
	}
}

func (e *Env) sample() float32 {
	return (e.rng.Float32()*2 - 1) * e.config.Extent
}

// #endregion env

// #region helpers

// clamp limits v to [-bound, bound].
func clamp(v, bound float32) float32 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// #endregion helpers
