package replay

import "errors"

// #region strategy

// Strategy selects the substitute goal for a hindsight relabel. Substitute
// goals are always achieved states of the same episode, never another one.
type Strategy string

const (
	// StrategyFuture draws from achieved states at or after the transition.
	StrategyFuture Strategy = "future"
	// StrategyFinal always uses the episode's last achieved state.
	StrategyFinal Strategy = "final"
	// StrategyEpisode draws uniformly over the whole episode.
	StrategyEpisode Strategy = "episode"
	// StrategyRandom draws uniformly over the episode's achieved states,
	// re-drawn independently per relabeled copy.
	StrategyRandom Strategy = "random"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyFuture, StrategyFinal, StrategyEpisode, StrategyRandom:
		return true
	}
	return false
}

// #endregion strategy

// #region config

// Config holds buffer sizing and relabeling parameters.
type Config struct {
	Capacity      int      // max stored transitions, oldest evicted first
	RelabelRatio  int      // hindsight transitions per regular transition
	Strategy      Strategy // substitute-goal selection method
	MinSampleSize int      // Sample returns ErrNotReady below this
	Seed          int64    // RNG seed for substitute-goal draws and sampling
}

// DefaultConfig returns the buffer parameters used by the demo tasks.
func DefaultConfig() Config {
	return Config{
		Capacity:      100000,
		RelabelRatio:  4,
		Strategy:      StrategyFuture,
		MinSampleSize: 256,
		Seed:          1,
	}
}

// #endregion config

// #region errors

// ErrNotReady reports that sampling was requested before enough transitions
// exist. Callers treat it as "not ready yet" and retry later; it is never a
// hard failure and the buffer never fabricates data to satisfy a sample.
var ErrNotReady = errors.New("replay: not enough transitions to sample")

// #endregion errors
