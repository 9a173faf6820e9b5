// Package lock implements the Lock Manager (spec.md §4.B): acquire / verify
// / extend / release over an opaque per-acquisition owner token, all atomic
// w.r.t. the backing store via server-side Lua scripts.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Manager is the Lock Manager contract.
type Manager interface {
	Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Verify(ctx context.Context, key, value string) (bool, error)
	Extend(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, value string) (bool, error)
	// CurrentValue satisfies internal/state.LockReader for memory-backed
	// stores exercising SaveWithLockGuard in tests.
	CurrentValue(ctx context.Context, key string) (string, bool)
}

// NewOwnerToken mints an opaque per-acquisition value. A stale worker
// holding an old token can never match a newer one's value.
func NewOwnerToken() string {
	return uuid.NewString()
}

const keyPrefix = "pipeline_lock:"

// Key builds the canonical lock key for a reportId (spec.md §6.2).
func Key(reportID string) string {
	return keyPrefix + reportID
}
