package stages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconcileSpeakersScenarioS2(t *testing.T) {
	agree, disagree, noClear := ReconcileSpeakers(
		[]string{"1:Alice", "2:Bob", "2:Bob", "3:Charlie"},
		[]string{"1:Alice", "4:Diana"},
		[]string{"3:Charlie", "5:Eve"},
	)
	require.Equal(t, []string{"2:Bob", "3:Charlie"}, agree)
	require.Equal(t, []string{"4:Diana"}, disagree)
	require.Equal(t, []string{"5:Eve", "1:Alice"}, noClear)
}

func TestReconcileSpeakersDropsEntriesWithoutID(t *testing.T) {
	agree, disagree, noClear := ReconcileSpeakers(
		[]string{"no-id-here", "1:Alice"},
		nil,
		nil,
	)
	require.Equal(t, []string{"1:Alice"}, agree)
	require.Empty(t, disagree)
	require.Empty(t, noClear)
}

func TestReconcileSpeakersListsArePairwiseDisjointByID(t *testing.T) {
	agree, disagree, noClear := ReconcileSpeakers(
		[]string{"1:Alice", "2:Bob"},
		[]string{"2:Bob", "3:Charlie"},
		[]string{"3:Charlie", "4:Diana"},
	)
	ids := func(list []string) map[string]bool {
		m := make(map[string]bool)
		for _, e := range list {
			id, _ := speakerID(e)
			m[id] = true
		}
		return m
	}
	a, d, n := ids(agree), ids(disagree), ids(noClear)
	for id := range a {
		require.False(t, d[id], "id %s must not be in both agree and disagree", id)
		require.False(t, n[id], "id %s must not be in both agree and noClearPosition", id)
	}
	for id := range d {
		require.False(t, n[id], "id %s must not be in both disagree and noClearPosition", id)
	}
}

func TestReconcileSpeakersNoDuplicateIDsWithinAList(t *testing.T) {
	agree, _, _ := ReconcileSpeakers(
		[]string{"1:Alice", "1:Alice Updated", "2:Bob"},
		nil,
		nil,
	)
	require.Equal(t, []string{"1:Alice", "2:Bob"}, agree, "first occurrence wins")
}

func TestReconcileSpeakersIsIdempotent(t *testing.T) {
	agree, disagree, noClear := ReconcileSpeakers(
		[]string{"1:Alice", "2:Bob"},
		[]string{"3:Charlie"},
		[]string{"4:Diana"},
	)
	agree2, disagree2, noClear2 := ReconcileSpeakers(agree, disagree, noClear)
	require.Equal(t, agree, agree2)
	require.Equal(t, disagree, disagree2)
	require.Equal(t, noClear, noClear2)
}

func TestReconcileSpeakersEmptyInputs(t *testing.T) {
	agree, disagree, noClear := ReconcileSpeakers(nil, nil, nil)
	require.Empty(t, agree)
	require.Empty(t, disagree)
	require.Empty(t, noClear)
}
