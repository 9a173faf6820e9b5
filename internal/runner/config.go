package runner

import "time"

// LockConfig governs the admission lock's TTL and refresh cadence (spec.md
// §4.F "heartbeat task").
type LockConfig struct {
	// TTL is the lock's lease duration; the heartbeat task must extend it
	// well before it expires.
	TTL time.Duration
	// RefreshInterval is how often the heartbeat task calls Extend.
	RefreshInterval time.Duration
	// PostCompletionExtension is how long the lock is held after a
	// successful run, covering the caller's publication window.
	PostCompletionExtension time.Duration
}

// DefaultLockConfig mirrors spec.md §6.2's suggested defaults: a TTL several
// multiples of the refresh interval, so a single missed tick never loses
// the lock outright.
func DefaultLockConfig() LockConfig {
	return LockConfig{
		TTL:                     45 * time.Minute,
		RefreshInterval:         5 * time.Minute,
		PostCompletionExtension: 10 * time.Minute,
	}
}
