package bridging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/bridgelab/reportpipeline/internal/classifier"
	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/opsapi"
	"github.com/bridgelab/reportpipeline/internal/ratelimit"
	"github.com/bridgelab/reportpipeline/internal/resilience"
	"github.com/bridgelab/reportpipeline/internal/scorecache"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func newTestLimiter() *ratelimit.Limiter {
	return ratelimit.New(nil, ratelimit.Config{FallbackDelay: time.Millisecond}, nil)
}

func TestItemsExtractsClaimsAndQuotesIncludingDuplicates(t *testing.T) {
	topics := []report.Topic{
		{Name: "Pets", Subtopics: []report.Subtopic{
			{Name: "Cats", Claims: []report.Claim{
				{Text: "cats are great", Quote: "I love cats", SourceCommentID: "c1", Duplicates: []report.Claim{
					{Text: "cats rule", Quote: "cats are the best", SourceCommentID: "c2"},
				}},
			}},
		}},
	}
	items := Items(topics)
	require.Len(t, items, 4, "primary claim+quote plus duplicate claim+quote")
}

func TestItemsSkipsEmptyTextAndQuote(t *testing.T) {
	topics := []report.Topic{
		{Name: "T", Subtopics: []report.Subtopic{
			{Name: "S", Claims: []report.Claim{{Text: "only text", Quote: "  "}}},
		}},
	}
	items := Items(topics)
	require.Len(t, items, 1)
}

func TestScoreItemS5ToxicityZeroesScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"attributeScores":{"PERSONAL_STORY_EXPERIMENTAL":{"summaryScore":{"value":0.9}},"REASONING_EXPERIMENTAL":{"summaryScore":{"value":0.8}},"CURIOSITY_EXPERIMENTAL":{"summaryScore":{"value":0.7}},"TOXICITY":{"summaryScore":{"value":1.0}}}}`))
	}))
	defer srv.Close()

	scorer := New(
		scorecache.NewMemoryCache(),
		newTestLimiter(),
		classifier.NewClientWithEndpoint(srv.Client(), srv.URL, nil),
		resilience.New(resilience.DefaultConfig()),
		"dev",
		nil,
	)

	score, err := scorer.scoreItem(context.Background(), Item{ID: "i1", Text: "some comment"})
	require.NoError(t, err)
	require.Equal(t, float64(0), score.BridgingScore)
}

func TestWalkCachesSecondLookupWithoutNewClassifierCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"attributeScores":{"PERSONAL_STORY_EXPERIMENTAL":{"summaryScore":{"value":0.5}},"REASONING_EXPERIMENTAL":{"summaryScore":{"value":0.5}},"CURIOSITY_EXPERIMENTAL":{"summaryScore":{"value":0.5}},"TOXICITY":{"summaryScore":{"value":0}}}}`))
	}))
	defer srv.Close()

	cache := scorecache.NewMemoryCache()
	scorer := New(cache, newTestLimiter(), classifier.NewClientWithEndpoint(srv.Client(), srv.URL, nil), nil, "dev", nil)

	topics := []report.Topic{
		{Name: "T", Subtopics: []report.Subtopic{
			{Name: "S", Claims: []report.Claim{{Text: "repeat me", SourceCommentID: "c1"}}},
		}},
	}
	r1 := scorer.Walk(context.Background(), topics)
	r2 := scorer.Walk(context.Background(), topics)
	require.Equal(t, 1, calls, "second walk must be served entirely from cache")
	require.Equal(t, r1.Scores[0].BridgingScore, r2.Scores[0].BridgingScore)
}

func TestWalkTripsCircuitAfterErrorRateExceedsThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var subtopicClaims []report.Claim
	for i := 0; i < 15; i++ {
		subtopicClaims = append(subtopicClaims, report.Claim{Text: "distinct claim text", SourceCommentID: "c"})
	}
	// Give each claim unique text so none are served by cache.
	for i := range subtopicClaims {
		subtopicClaims[i].Text = subtopicClaims[i].Text + string(rune('a'+i))
	}
	topics := []report.Topic{{Name: "T", Subtopics: []report.Subtopic{{Name: "S", Claims: subtopicClaims}}}}

	scorer := New(
		scorecache.NewMemoryCache(),
		newTestLimiter(),
		classifier.NewClientWithEndpoint(srv.Client(), srv.URL, nil),
		resilience.New(resilience.Config{MaxFailures: 1000, Timeout: time.Minute}),
		"dev",
		nil,
	)

	result := scorer.Walk(context.Background(), topics)
	require.True(t, result.CircuitOpen)
	require.Less(t, result.Processed, 15, "walk must abort before scoring every item")
}

func TestScoreItemRecordsCacheMissThenHitMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"attributeScores":{"PERSONAL_STORY_EXPERIMENTAL":{"summaryScore":{"value":0.5}},"REASONING_EXPERIMENTAL":{"summaryScore":{"value":0.5}},"CURIOSITY_EXPERIMENTAL":{"summaryScore":{"value":0.5}},"TOXICITY":{"summaryScore":{"value":0}}}}`))
	}))
	defer srv.Close()

	metrics := opsapi.NewMetrics(prometheus.NewRegistry())
	cache := scorecache.NewMemoryCache()
	scorer := New(cache, newTestLimiter(), classifier.NewClientWithEndpoint(srv.Client(), srv.URL, nil), nil, "dev", nil).
		WithMetrics(metrics)

	item := Item{ID: "i1", Text: "repeat me"}
	_, err := scorer.scoreItem(context.Background(), item)
	require.NoError(t, err)
	require.Equal(t, float64(0), counterValue(t, metrics.CacheHitsTotal))
	require.Equal(t, float64(1), counterValue(t, metrics.CacheMissesTotal))

	_, err = scorer.scoreItem(context.Background(), item)
	require.NoError(t, err)
	require.Equal(t, float64(1), counterValue(t, metrics.CacheHitsTotal))
	require.Equal(t, float64(1), counterValue(t, metrics.CacheMissesTotal), "second lookup is a hit, not another miss")
}

func TestScoreItemRecordsCircuitBreakerState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	metrics := opsapi.NewMetrics(prometheus.NewRegistry())
	scorer := New(
		scorecache.NewMemoryCache(),
		newTestLimiter(),
		classifier.NewClientWithEndpoint(srv.Client(), srv.URL, nil),
		resilience.New(resilience.Config{MaxFailures: 1, Timeout: time.Minute}),
		"dev",
		nil,
	).WithMetrics(metrics)

	_, err := scorer.scoreItem(context.Background(), Item{ID: "i1", Text: "some comment"})
	require.Error(t, err)

	var m dto.Metric
	require.NoError(t, metrics.CircuitBreakerState.WithLabelValues(BreakerName).Write(&m))
	require.Equal(t, float64(resilience.StateOpen), m.GetGauge().GetValue())
}

func TestScoreItemRejectsEmptyText(t *testing.T) {
	scorer := New(scorecache.NewMemoryCache(), newTestLimiter(), classifier.NewClient(nil, "", nil), nil, "dev", nil)
	_, err := scorer.scoreItem(context.Background(), Item{ID: "i1", Text: "   "})
	require.Error(t, err)
}
