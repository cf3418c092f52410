// Package metrics collects training-progress metrics. A nil *Collector is a
// valid no-op recorder, so callers never branch on whether metrics are
// enabled.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// #region collector

// Collector owns the Prometheus instruments of one training run.
type Collector struct {
	episodesTotal       *prometheus.CounterVec
	envStepsTotal       prometheus.Counter
	subgoalTestsTotal   prometheus.Counter
	subgoalReachedTotal prometheus.Counter
	relabeledTotal      prometheus.Counter
	bufferSize          *prometheus.GaugeVec
}

// NewCollector registers the instruments on reg under the given namespace.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		episodesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_total",
			Help:      "Episodes played, by run mode",
		}, []string{"mode"}),
		envStepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "env_steps_total",
			Help:      "Environment steps consumed",
		}),
		subgoalTestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subgoal_tests_total",
			Help:      "Top-level decisions made under a subgoal-testing phase",
		}),
		subgoalReachedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subgoal_reached_total",
			Help:      "Assigned subgoals reached by subordinate levels",
		}),
		relabeledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relabeled_transitions_total",
			Help:      "Hindsight transitions synthesized at episode end",
		}),
		bufferSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replay_buffer_size",
			Help:      "Stored transitions per level's replay buffer",
		}, []string{"level"}),
	}
}

// #endregion collector

// #region recorders

// IncEpisode counts one finished episode in the given mode.
func (c *Collector) IncEpisode(mode string) {
	if c == nil {
		return
	}
	c.episodesTotal.WithLabelValues(mode).Inc()
}

// AddEnvSteps counts environment steps.
func (c *Collector) AddEnvSteps(n int) {
	if c == nil {
		return
	}
	c.envStepsTotal.Add(float64(n))
}

// IncSubgoalTest counts one testing-phase top-level decision.
func (c *Collector) IncSubgoalTest() {
	if c == nil {
		return
	}
	c.subgoalTestsTotal.Inc()
}

// IncSubgoalReached counts one reached subgoal.
func (c *Collector) IncSubgoalReached() {
	if c == nil {
		return
	}
	c.subgoalReachedTotal.Inc()
}

// AddRelabeled counts hindsight transitions added by relabeling.
func (c *Collector) AddRelabeled(n int) {
	if c == nil {
		return
	}
	c.relabeledTotal.Add(float64(n))
}

// SetBufferSize records the current size of a level's replay buffer.
func (c *Collector) SetBufferSize(levelIndex, size int) {
	if c == nil {
		return
	}
	c.bufferSize.WithLabelValues(strconv.Itoa(levelIndex)).Set(float64(size))
}

// #endregion recorders
