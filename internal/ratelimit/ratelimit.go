// Package ratelimit implements the global Rate Limiter (spec.md §4.C): a
// single 1-request-per-second admission gate against the external
// classifier, shared by all concurrent Runners via a well-known store key,
// with a per-worker fixed-delay fallback when the store is unreachable.
//
// Adapted from the teacher's infrastructure/ratelimit.RateLimiter, which
// wraps golang.org/x/time/rate for a per-process token bucket; this keeps
// that fallback path verbatim in spirit but replaces the primary admission
// path with the spec's required shared-store script, since a per-process
// limiter cannot enforce a bound shared across workers.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/bridgelab/reportpipeline/pkg/logger"
)

const (
	// minInterval is the minimum spacing between admitted classifier calls.
	minInterval = 1000 * time.Millisecond
	// pollGranularity bounds how long a blocked caller sleeps between
	// retries of the admission script (spec.md §4.C).
	pollGranularity = 50 * time.Millisecond
	// keyTTL is the idle-cleanup TTL on the shared admission key.
	keyTTL = 60 * time.Second
)

// Config controls the limiter's fallback behavior.
type Config struct {
	FallbackDelay time.Duration
}

// DefaultConfig matches spec.md §4.C's documented fallback of 1100ms.
func DefaultConfig() Config {
	return Config{FallbackDelay: 1100 * time.Millisecond}
}

// Gate is a shared admission store: a single key holding the last
// admission's epoch milliseconds, mutated atomically. A Redis-backed
// implementation lives in redis_gate.go; nil is a valid Gate meaning "no
// shared store configured", in which case Limiter always falls back.
type Gate interface {
	// TryAdmit attempts to claim the next admission slot. If admitted, it
	// returns (true, 0). If not, it returns (false, waitMs) — the caller
	// should sleep at least waitMs before retrying.
	TryAdmit(ctx context.Context) (admitted bool, waitMs int64, err error)
}

// Limiter is the Rate Limiter of spec.md §4.C.
type Limiter struct {
	gate     Gate
	fallback *rate.Limiter
	cfg      Config
	log      *logger.Logger
}

// New builds a Limiter. gate may be nil to force fallback-only operation
// (e.g. a single local worker with no Redis configured).
func New(gate Gate, cfg Config, log *logger.Logger) *Limiter {
	if cfg.FallbackDelay <= 0 {
		cfg.FallbackDelay = DefaultConfig().FallbackDelay
	}
	if log == nil {
		log = logger.NewDefault("rate-limiter")
	}
	// One token every FallbackDelay, burst 1: enforces the same fixed
	// per-worker spacing the spec describes for the degraded path.
	fb := rate.NewLimiter(rate.Every(cfg.FallbackDelay), 1)
	return &Limiter{gate: gate, fallback: fb, cfg: cfg, log: log}
}

// Wait blocks until the caller is admitted to make one classifier call.
// It prefers the shared Gate; on any Gate error (store unreachable) it
// permanently falls back to the fixed per-worker delay for this call.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.gate == nil {
		return l.fallback.Wait(ctx)
	}
	for {
		admitted, waitMs, err := l.gate.TryAdmit(ctx)
		if err != nil {
			logger.FromContext(ctx).WithField("error", err).Warn("rate limit gate unreachable, falling back to fixed delay")
			return l.fallback.Wait(ctx)
		}
		if admitted {
			return nil
		}
		sleep := time.Duration(waitMs) * time.Millisecond
		if sleep > pollGranularity {
			sleep = pollGranularity
		}
		if sleep <= 0 {
			sleep = pollGranularity
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}
