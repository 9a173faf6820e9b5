// Package scorecache implements the Score Cache (spec.md §4.D):
// content-addressed storage of classifier responses, keyed by
// environment-prefixed SHA-256 of normalized text, with the bridging score
// always recomputed from the four raw attributes on read rather than
// trusted from the stored composite.
//
// Adapted from the teacher's infrastructure/cache.Cache (Get/Set/Invalidate
// over a TTL map), moved from an in-process map to a shared Redis backend
// since the spec requires the cache to be shared across workers.
package scorecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/bridgelab/reportpipeline/pkg/logger"
)

// TTL is the fixed retention window for cached entries (spec.md §4.D).
const TTL = 30 * 24 * time.Hour

// Entry is the stored classifier response for one piece of text.
type Entry struct {
	PersonalStory float64 `json:"personalStory"`
	Reasoning     float64 `json:"reasoning"`
	Curiosity     float64 `json:"curiosity"`
	Toxicity      float64 `json:"toxicity"`
	// BridgingScore is stored for observability but never trusted on read;
	// Recompute always derives it fresh from the four fields above.
	BridgingScore float64 `json:"bridgingScore"`
}

// Recompute derives the bridging score from e's raw attributes, formula:
// (personalStory + reasoning + curiosity) * (1 - toxicity), clamped to
// [0, 3] against floating point drift at the boundaries.
func (e Entry) Recompute() float64 {
	score := (e.PersonalStory + e.Reasoning + e.Curiosity) * (1 - e.Toxicity)
	if score < 0 {
		return 0
	}
	if score > 3 {
		return 3
	}
	return score
}

// Key derives the cache key for a piece of text within an environment
// namespace (spec.md §4.D: "prefixed with an environment token so that
// development traffic cannot poison production").
func Key(envPrefix, text string) string {
	normalized := strings.TrimSpace(strings.ToLower(text))
	sum := sha256.Sum256([]byte(normalized))
	return envPrefix + "-perspective:" + hex.EncodeToString(sum[:])
}

// Cache is the Score Cache contract.
type Cache interface {
	// Get returns the cached entry with BridgingScore recomputed, and
	// whether an entry was present.
	Get(ctx context.Context, envPrefix, text string) (Entry, bool)
	// Set stores an entry with the fixed TTL. Failures are logged and
	// swallowed; caching is best-effort (spec.md §4.D).
	Set(ctx context.Context, envPrefix, text string, entry Entry)
}

type redisClient interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache is the production Score Cache backend.
type RedisCache struct {
	client redisClient
	log    *logger.Logger
}

// NewRedisCache constructs a Redis-backed Score Cache.
func NewRedisCache(client redisClient, log *logger.Logger) *RedisCache {
	if log == nil {
		log = logger.NewDefault("score-cache")
	}
	return &RedisCache{client: client, log: log}
}

func (c *RedisCache) Get(ctx context.Context, envPrefix, text string) (Entry, bool) {
	data, err := c.client.Get(ctx, Key(envPrefix, text))
	if err != nil || data == nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		logger.FromContext(ctx).WithField("error", err).Warn("score cache entry malformed, treating as miss")
		return Entry{}, false
	}
	e.BridgingScore = e.Recompute()
	return e, true
}

func (c *RedisCache) Set(ctx context.Context, envPrefix, text string, entry Entry) {
	entry.BridgingScore = entry.Recompute()
	data, err := json.Marshal(entry)
	if err != nil {
		logger.FromContext(ctx).WithField("error", err).Warn("score cache encode failed, dropping write")
		return
	}
	if err := c.client.Set(ctx, Key(envPrefix, text), data, TTL); err != nil {
		logger.FromContext(ctx).WithField("error", err).Warn("score cache write failed, dropping")
	}
}
