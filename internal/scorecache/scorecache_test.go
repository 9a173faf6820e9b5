package scorecache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyIsNormalizedAndEnvironmentNamespaced(t *testing.T) {
	require.Equal(t, Key("dev", "Hello World"), Key("dev", "  hello world  "))
	require.NotEqual(t, Key("dev", "hello"), Key("prod", "hello"))
}

func TestRecomputeFormula(t *testing.T) {
	e := Entry{PersonalStory: 1, Reasoning: 1, Curiosity: 1, Toxicity: 0}
	require.Equal(t, float64(3), e.Recompute())

	e = Entry{PersonalStory: 0.9, Reasoning: 0.8, Curiosity: 0.7, Toxicity: 1.0}
	require.Equal(t, float64(0), e.Recompute())
}

func TestSetGetRoundTripRecomputesStaleComposite(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	// S6: stored entry carries a stale formula output; read must recompute.
	c.Set(ctx, "dev", "some comment text", Entry{
		PersonalStory: 0.5, Reasoning: 0.5, Curiosity: 0.5, Toxicity: 0.5,
		BridgingScore: 1.5,
	})

	got, ok := c.Get(ctx, "dev", "some comment text")
	require.True(t, ok)
	require.InDelta(t, 0.75, got.BridgingScore, 1e-9)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := NewMemoryCache()
	_, ok := c.Get(context.Background(), "dev", "never cached")
	require.False(t, ok)
}

func TestCacheAvoidsSecondClassifierCall(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	calls := 0

	classify := func(text string) Entry {
		calls++
		return Entry{PersonalStory: 0.6, Reasoning: 0.6, Curiosity: 0.6, Toxicity: 0.1}
	}

	scoreWithCache := func(text string) float64 {
		if cached, ok := c.Get(ctx, "dev", text); ok {
			return cached.BridgingScore
		}
		e := classify(text)
		c.Set(ctx, "dev", text, e)
		return e.Recompute()
	}

	first := scoreWithCache("repeat me")
	second := scoreWithCache("repeat me")
	require.Equal(t, first, second)
	require.Equal(t, 1, calls, "second lookup must be served from cache without a new classifier call")
}
