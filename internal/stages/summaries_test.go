package stages

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClampWordsLeavesShortTextUntouched(t *testing.T) {
	s := "a short summary"
	require.Equal(t, s, clampWords(s, maxSummaryWords))
}

func TestClampWordsTruncatesAtWordBoundary(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	s := strings.Join(words, " ")
	clamped := clampWords(s, maxSummaryWords)
	require.Len(t, strings.Fields(clamped), maxSummaryWords)
}
