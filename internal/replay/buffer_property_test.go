package replay

import (
	"testing"

	"pgregory.net/rapid"
)

// Property: for every episode of n originals and relabel ratio r, EndEpisode
// adds exactly n*r transitions, the buffer never exceeds capacity, and every
// substitute goal is an achieved outcome of the same episode.
func TestBuffer_RelabelInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "episodeLen")
		ratio := rapid.IntRange(0, 6).Draw(t, "ratio")
		capacity := rapid.IntRange(1, 200).Draw(t, "capacity")
		strategy := rapid.SampledFrom([]Strategy{
			StrategyFuture, StrategyFinal, StrategyEpisode, StrategyRandom,
		}).Draw(t, "strategy")

		b, err := NewBuffer(Config{
			Capacity:      capacity,
			RelabelRatio:  ratio,
			Strategy:      strategy,
			MinSampleSize: 1,
			Seed:          rapid.Int64().Draw(t, "seed"),
		}, testSpace())
		if err != nil {
			t.Fatal(err)
		}

		for pos := 1; pos <= n; pos++ {
			b.Add(stepTransition(float32(pos)))
		}
		added, err := b.EndEpisode()
		if err != nil {
			t.Fatal(err)
		}

		if added != n*ratio {
			t.Fatalf("expected %d relabeled, got %d", n*ratio, added)
		}
		if b.Len() > capacity {
			t.Fatalf("buffer length %d exceeds capacity %d", b.Len(), capacity)
		}

		for _, tr := range b.Snapshot() {
			g := tr.Goal[0]
			if g == 1000 { // original, unreachable task goal
				continue
			}
			if g < 1 || g > float32(n) {
				t.Fatalf("substitute goal %v drawn outside the episode's achieved outcomes", g)
			}
		}
	})
}
