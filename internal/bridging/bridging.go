// Package bridging implements the Bridging Scorer (spec.md §4.G): walks a
// finished, sorted topic tree and emits a bridging score for every claim
// and every quote (including those attached to merged duplicates), backed
// by the Score Cache, the global Rate Limiter, and the external
// classifier, with a circuit breaker bounding wasted quota on a
// misconfigured deployment.
//
// Grounded on the teacher's oracle dispatcher tick loop
// (internal/app/services/oracle/dispatcher.go): iterate a collection,
// perform bounded work per item, track per-item success/failure without
// letting one item's failure abort the whole pass.
package bridging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bridgelab/reportpipeline/internal/classifier"
	core "github.com/bridgelab/reportpipeline/internal/core/service"
	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/opsapi"
	"github.com/bridgelab/reportpipeline/internal/pipelineerr"
	"github.com/bridgelab/reportpipeline/internal/ratelimit"
	"github.com/bridgelab/reportpipeline/internal/resilience"
	"github.com/bridgelab/reportpipeline/internal/scorecache"
	"github.com/bridgelab/reportpipeline/pkg/logger"
)

// BreakerName identifies this scorer's circuit breaker on the
// pipeline_circuit_breaker_state gauge; the Bridging Scorer is the only
// component in the worker that wraps a classifier call in a breaker.
const BreakerName = "bridging-scorer-classifier"

// circuitErrorThreshold is the error-rate trip point of spec.md §4.G.
const circuitErrorThreshold = 0.10

// minProcessedBeforeTrip is how many items must be processed before the
// error-rate breaker is even considered, to avoid tripping on a handful of
// early failures (spec.md §4.G: "processed >= 10").
const minProcessedBeforeTrip = 10

// Item is one scorable unit: a claim's text, or a quote's text, tagged
// with the topic/subtopic/speaker it belongs to for the emitted record.
type Item struct {
	ID           string
	TopicName    string
	SubtopicName string
	SpeakerID    string
	Text         string
}

// Score is the emitted bridging score record (spec.md §3).
type Score struct {
	ItemID       string  `json:"itemId"`
	TopicName    string  `json:"topicName"`
	SubtopicName string  `json:"subtopicName"`
	SpeakerID    string  `json:"speakerId,omitempty"`
	PersonalStory float64 `json:"personalStory"`
	Reasoning     float64 `json:"reasoning"`
	Curiosity     float64 `json:"curiosity"`
	Toxicity      float64 `json:"toxicity"`
	BridgingScore float64 `json:"bridgingScore"`
}

// Result is the outcome of one full tree walk.
type Result struct {
	Scores       []Score
	ItemErrors   []error
	CircuitOpen  bool
	Processed    int
	ErrorCount   int
}

// Scorer is the Bridging Scorer.
type Scorer struct {
	cache      scorecache.Cache
	limiter    *ratelimit.Limiter
	classifier *classifier.Client
	breaker    *resilience.CircuitBreaker
	envPrefix  string
	log        *logger.Logger
	metrics    *opsapi.Metrics
}

// New builds a Scorer. breaker may be nil to use resilience.DefaultConfig.
func New(cache scorecache.Cache, limiter *ratelimit.Limiter, cl *classifier.Client, breaker *resilience.CircuitBreaker, envPrefix string, log *logger.Logger) *Scorer {
	if breaker == nil {
		breaker = resilience.New(resilience.DefaultConfig())
	}
	if log == nil {
		log = logger.NewDefault("bridging-scorer")
	}
	return &Scorer{cache: cache, limiter: limiter, classifier: cl, breaker: breaker, envPrefix: envPrefix, log: log}
}

// WithMetrics attaches the ops surface's Prometheus collectors: the Score
// Cache's hit ratio, the Rate Limiter's wait time, and the circuit
// breaker's state all surface through the Scorer, the one place that calls
// all three. A nil Scorer metrics field is a safe no-op.
func (s *Scorer) WithMetrics(m *opsapi.Metrics) *Scorer {
	s.metrics = m
	return s
}

// Descriptor advertises the Scorer for the worker's /healthz component
// list (internal/lifecycle).
func (s *Scorer) Descriptor() core.Descriptor {
	d := core.Descriptor{Name: "bridging-scorer", Domain: "report-pipeline", Layer: core.LayerExternal, Capabilities: []string{"classifier", "score-cache", "rate-limit", "circuit-breaker"}}
	if s.metrics != nil {
		d = d.WithCapabilities("metrics")
	}
	return d
}

// Items extracts one Item per claim and per quote (including duplicates'
// own quotes) from a finished, sorted topic tree, in tree order.
func Items(topics []report.Topic) []Item {
	var items []Item
	for _, topic := range topics {
		for _, sub := range topic.Subtopics {
			for _, claim := range sub.Claims {
				items = append(items, claimItems(topic.Name, sub.Name, claim)...)
				for _, dup := range claim.Duplicates {
					items = append(items, claimItems(topic.Name, sub.Name, dup)...)
				}
			}
		}
	}
	return items
}

func claimItems(topicName, subtopicName string, c report.Claim) []Item {
	var items []Item
	if strings.TrimSpace(c.Text) != "" {
		items = append(items, Item{ID: "claim:" + c.SourceCommentID + ":" + c.Text, TopicName: topicName, SubtopicName: subtopicName, SpeakerID: c.Speaker, Text: c.Text})
	}
	if strings.TrimSpace(c.Quote) != "" {
		items = append(items, Item{ID: "quote:" + c.SourceCommentID + ":" + c.Quote, TopicName: topicName, SubtopicName: subtopicName, SpeakerID: c.Speaker, Text: c.Quote})
	}
	return items
}

// Walk scores every item from Items(topics), stopping early if the circuit
// breaker trips (spec.md §4.G).
func (s *Scorer) Walk(ctx context.Context, topics []report.Topic) Result {
	items := Items(topics)
	result := Result{Scores: make([]Score, 0, len(items))}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		score, err := s.scoreItem(ctx, item)
		result.Processed++
		if err != nil {
			result.ErrorCount++
			result.ItemErrors = append(result.ItemErrors, pipelineerr.ScoringItem(item.ID, err))
			if errIsCircuitOpen(err) {
				result.CircuitOpen = true
				break
			}
			if result.Processed >= minProcessedBeforeTrip {
				rate := float64(result.ErrorCount) / float64(result.Processed)
				if rate > circuitErrorThreshold {
					result.CircuitOpen = true
					break
				}
			}
			continue
		}
		result.Scores = append(result.Scores, score)
	}
	return result
}

func (s *Scorer) scoreItem(ctx context.Context, item Item) (Score, error) {
	text := strings.TrimSpace(item.Text)
	if text == "" {
		return Score{}, fmt.Errorf("empty item text")
	}

	if cached, ok := s.cache.Get(ctx, s.envPrefix, text); ok {
		if s.metrics != nil {
			s.metrics.CacheHitsTotal.Inc()
		}
		return toScore(item, cached), nil
	}
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.Inc()
	}

	waitStart := time.Now()
	err := s.limiter.Wait(ctx)
	if s.metrics != nil {
		s.metrics.RateLimiterWaitSeconds.Observe(time.Since(waitStart).Seconds())
	}
	if err != nil {
		return Score{}, err
	}

	var attrs classifier.Attributes
	execErr := s.breaker.Execute(ctx, func() error {
		var innerErr error
		attrs, innerErr = s.classifier.Analyze(ctx, text)
		return innerErr
	})
	if s.metrics != nil {
		s.metrics.CircuitBreakerState.WithLabelValues(BreakerName).Set(float64(s.breaker.State()))
	}
	if execErr != nil {
		if execErr == resilience.ErrCircuitOpen {
			return Score{}, pipelineerr.CircuitOpen("classifier circuit breaker open")
		}
		return Score{}, execErr
	}

	entry := scorecache.Entry{
		PersonalStory: attrs.PersonalStory,
		Reasoning:     attrs.Reasoning,
		Curiosity:     attrs.Curiosity,
		Toxicity:      attrs.Toxicity,
	}
	s.cache.Set(ctx, s.envPrefix, text, entry)

	return toScore(item, entry), nil
}

func toScore(item Item, e scorecache.Entry) Score {
	return Score{
		ItemID:        item.ID,
		TopicName:     item.TopicName,
		SubtopicName:  item.SubtopicName,
		SpeakerID:     item.SpeakerID,
		PersonalStory: e.PersonalStory,
		Reasoning:     e.Reasoning,
		Curiosity:     e.Curiosity,
		Toxicity:      e.Toxicity,
		BridgingScore: e.Recompute(),
	}
}

func errIsCircuitOpen(err error) bool {
	kind, ok := pipelineerr.KindOf(err)
	return ok && kind == pipelineerr.KindCircuitOpen
}
