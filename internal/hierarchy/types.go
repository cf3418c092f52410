package hierarchy

import (
	"github.com/hierarch-rl/hac-controller/internal/trace"
	"github.com/hierarch-rl/hac-controller/internal/trainstore"
)

// #region environment

// Environment is the consumed simulator boundary. Reset starts an episode
// and returns the initial state plus the task goal; Step applies a bottom-
// level command. The environment owns its own step budget and signals it
// through the terminal flag.
type Environment interface {
	Reset() (trace.State, trace.Goal)
	Step(action trace.Action) (next trace.State, rawReward float32, terminal bool)
}

// #endregion environment

// #region recorder

// Recorder persists episode outcomes and scheduling decisions. A nil
// Recorder disables persistence; recording failures are logged, never fatal
// to the control loop.
type Recorder interface {
	RecordEpisode(trainstore.EpisodeOutcome) error
	LogDecision(trainstore.ProvenanceEntry) error
}

// #endregion recorder

// #region counters

// Counters is the read-only progress state exposed to logging collaborators
// and used to gate the improve/evaluate schedule.
type Counters struct {
	EpisodesPlayed int
	TrainEpisodes  int
	EvalEpisodes   int
	StepsPlayed    int
	SubgoalTests   int
}

// #endregion counters

// #region results

// EpisodeResult summarizes one finished episode.
type EpisodeResult struct {
	EpisodeID       string
	Mode            string // "train" | "eval"
	Steps           int
	TotalReward     float32 // sum of raw environment rewards
	Success         bool    // task goal reached by the final state
	SubgoalTests    int     // top-level decisions under a testing phase
	SubgoalsReached int
	Relabeled       int // hindsight transitions added at episode end
}

// CycleSummary aggregates one improve/evaluate cycle.
type CycleSummary struct {
	Cycle            int
	TrainEpisodes    int
	EvalEpisodes     int
	EvalSuccessRate  float32
	TrainSuccessRate float32
}

// #endregion results
