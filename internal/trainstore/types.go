package trainstore

import "time"

// #region episode-outcome

// EpisodeOutcome is one persisted row of episode-level results.
type EpisodeOutcome struct {
	RunID           string
	EpisodeID       string
	Mode            string // "train" | "eval"
	Steps           int    // environment steps consumed
	SubgoalTests    int    // top-level decisions made under a testing phase
	SubgoalsReached int
	RelabeledAdded  int // hindsight transitions synthesized at episode end
	FinalReward     float32
	Success         bool
	CreatedAt       time.Time
}

// #endregion episode-outcome

// #region progress

// Progress is the read-only counter surface exposed to logging and the
// training schedule.
type Progress struct {
	Episodes      int
	TrainEpisodes int
	EvalEpisodes  int
	Steps         int
	Successes     int
}

// #endregion progress

// #region provenance

// ProvenanceEntry records one scheduling decision for later audit: which
// episode, which level, what was decided and why.
type ProvenanceEntry struct {
	RunID     string
	EpisodeID string
	Level     int
	Decision  string
	Reason    string
	CreatedAt time.Time
}

// #endregion provenance
