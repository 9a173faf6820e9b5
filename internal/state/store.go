// Package state implements the per-run durable State Store (spec.md §4.A):
// get/save/delete/update plus the lock-guarded atomic compare-and-set write
// that closes the time-of-check/time-of-use race between verifying lock
// ownership and persisting state.
//
// Shape grounded on the teacher's infrastructure/state.PersistenceBackend
// (Save/Load/Delete/List/Close over a []byte blob, with both a Redis-style
// and an in-memory backend), extended with the typed report.State schema
// and the CAS write the spec requires.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/pipelineerr"
)

// ErrNotFound is returned by Get/Update when no record exists for a reportID.
var ErrNotFound = errors.New("state: not found")

const (
	keyPrefix          = "pipeline_state:"
	defaultTTL         = 24 * time.Hour
	failedTTL          = 1 * time.Hour
	maxValidationFails = 3
)

// SaveResult discriminates the outcome of a lock-guarded write.
type SaveResult string

const (
	SaveOK       SaveResult = "ok"
	SaveLockLost SaveResult = "lockLost"
)

// Store is the State Store contract of spec.md §4.A.
type Store interface {
	Get(ctx context.Context, reportID string) (*report.State, error)
	Save(ctx context.Context, s *report.State) error
	Delete(ctx context.Context, reportID string) error
	Update(ctx context.Context, reportID string, mutate func(*report.State) error) (*report.State, error)
	SaveWithLockGuard(ctx context.Context, s *report.State, lockKey, lockValue string) (SaveResult, error)
	// ListReportIDs enumerates every reportId with a stored state record,
	// for the reaper's stale-run sweep.
	ListReportIDs(ctx context.Context) ([]string, error)
}

// timeNow is overridden in tests for deterministic timestamps.
var timeNow = time.Now

func stateKey(reportID string) string { return keyPrefix + reportID }

// ttlFor returns the TTL a state record should carry: shorter for failed
// runs so outages don't build up memory (spec.md §3 "Lifecycle").
func ttlFor(s *report.State) time.Duration {
	if s.Status == report.StatusFailed {
		return failedTTL
	}
	return defaultTTL
}

// MaxValidationFailures is the corrupted-state retry bound of spec.md §4.F.
const MaxValidationFailures = maxValidationFails

func encode(s *report.State) ([]byte, error) {
	return json.Marshal(s)
}

func decode(data []byte) (*report.State, error) {
	var s report.State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, pipelineerr.StateCorrupt("", err, "malformed state payload: %v", err)
	}
	if s.Version == "" || s.ReportID == "" {
		return nil, pipelineerr.StateCorrupt("", nil, "state payload missing required fields")
	}
	return &s, nil
}
