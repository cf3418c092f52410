// Package replay stores goal-conditioned transitions and synthesizes
// hindsight-relabeled copies of them: failed attempts rescored against goals
// the episode actually achieved, so sparse goal spaces still yield positive
// training signal.
package replay

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/hierarch-rl/hac-controller/internal/goalspace"
	"github.com/hierarch-rl/hac-controller/internal/trace"
)

// #region buffer

// Buffer is one level's hindsight replay buffer. All methods are safe for
// concurrent use; Sample and Snapshot never expose torn transitions.
type Buffer struct {
	mu     sync.Mutex
	config Config
	space  *goalspace.Space
	rng    *rand.Rand

	transitions []trace.Transition // consumable set: originals ∪ relabeled
	episode     []trace.Transition // originals of the open episode
}

// NewBuffer creates a buffer backed by the given goal space. The space is
// used to rescore relabeled transitions and must be the same space that
// shaped the originals.
func NewBuffer(config Config, space *goalspace.Space) (*Buffer, error) {
	if config.Capacity <= 0 {
		return nil, fmt.Errorf("replay: capacity must be positive, got %d", config.Capacity)
	}
	if config.RelabelRatio < 0 {
		return nil, fmt.Errorf("replay: relabel ratio must be non-negative, got %d", config.RelabelRatio)
	}
	if !config.Strategy.Valid() {
		return nil, fmt.Errorf("replay: unknown hindsight strategy %q", config.Strategy)
	}
	if space == nil {
		return nil, fmt.Errorf("replay: nil goal space")
	}
	return &Buffer{
		config: config,
		space:  space,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}, nil
}

// #endregion buffer

// #region add

// Add appends a shaped transition in episode order, evicting the oldest
// stored entries beyond capacity. The transition is copied; the caller's
// value is never aliased.
func (b *Buffer) Add(t trace.Transition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := t.Clone()
	b.episode = append(b.episode, c)
	b.append(c.Clone())
}

// append stores one transition under the capacity bound. Caller holds b.mu.
func (b *Buffer) append(t trace.Transition) {
	b.transitions = append(b.transitions, t)
	if over := len(b.transitions) - b.config.Capacity; over > 0 {
		b.transitions = b.transitions[over:]
	}
}

// #endregion add

// #region end-episode

// EndEpisode closes the open episode and synthesizes exactly RelabelRatio
// hindsight transitions per original: the goal replaced by an achieved state
// drawn from the same episode, reward and terminal recomputed against the
// substitute via the goal space. Originals are never mutated. Returns the
// number of relabeled transitions added.
func (b *Buffer) EndEpisode() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	episode := b.episode
	b.episode = nil
	if len(episode) == 0 || b.config.RelabelRatio == 0 {
		return 0, nil
	}

	key := b.space.Config().RepresentationKey
	added := 0
	for i, orig := range episode {
		for n := 0; n < b.config.RelabelRatio; n++ {
			j := b.substituteIndex(i, len(episode))
			achieved, ok := episode[j].NextState[key]
			if !ok {
				return added, fmt.Errorf("relabel: episode transition %d missing %q", j, key)
			}
			substitute := trace.Goal(achieved).Clone()

			relabeled, err := b.relabel(orig, substitute)
			if err != nil {
				return added, err
			}
			b.append(relabeled)
			added++
		}
	}
	return added, nil
}

// substituteIndex picks the episode index whose achieved outcome becomes the
// substitute goal for a relabel of transition i. Caller holds b.mu.
func (b *Buffer) substituteIndex(i, episodeLen int) int {
	switch b.config.Strategy {
	case StrategyFinal:
		return episodeLen - 1
	case StrategyFuture:
		return i + b.rng.Intn(episodeLen-i)
	default: // StrategyEpisode, StrategyRandom
		return b.rng.Intn(episodeLen)
	}
}

// relabel builds the hindsight copy of orig against the substitute goal.
func (b *Buffer) relabel(orig trace.Transition, substitute trace.Goal) (trace.Transition, error) {
	t := orig.Clone()
	t.Goal = substitute

	reward, reached, err := b.space.RewardFor(substitute, t.NextState)
	if err != nil {
		return trace.Transition{}, fmt.Errorf("relabel: %w", err)
	}
	t.Reward = reward
	// Terminal reflects the substitute goal, not the original one.
	t.Terminal = reached

	if _, ok := t.State[trace.DesiredGoalKey]; ok {
		t.State = t.State.WithDesiredGoal(substitute)
	}
	if _, ok := t.NextState[trace.DesiredGoalKey]; ok {
		t.NextState = t.NextState.WithDesiredGoal(substitute)
	}
	return t, nil
}

// #endregion end-episode

// #region sample

// Sample draws batch transitions uniformly at random (with replacement) from
// the union of original and relabeled transitions. Returns ErrNotReady when
// the buffer holds fewer than MinSampleSize (or fewer than batch) entries.
func (b *Buffer) Sample(batch int) ([]trace.Transition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.transitions) < b.config.MinSampleSize || len(b.transitions) < batch {
		return nil, ErrNotReady
	}

	out := make([]trace.Transition, batch)
	for i := range out {
		out[i] = b.transitions[b.rng.Intn(len(b.transitions))].Clone()
	}
	return out, nil
}

// #endregion sample

// #region snapshot

// Snapshot returns a deep copy of the consumable set, in storage order. An
// asynchronous trainer reading the snapshot never observes later mutation.
func (b *Buffer) Snapshot() []trace.Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]trace.Transition, len(b.transitions))
	for i, t := range b.transitions {
		out[i] = t.Clone()
	}
	return out
}

// Len returns the number of stored transitions (originals ∪ relabeled).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.transitions)
}

// EpisodeLen returns the number of originals in the open episode.
func (b *Buffer) EpisodeLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.episode)
}

// #endregion snapshot
