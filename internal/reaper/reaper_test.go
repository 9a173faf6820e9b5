package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/lock"
	"github.com/bridgelab/reportpipeline/internal/state"
)

func TestSweepOnceReclaimsRunningReportWithNoLock(t *testing.T) {
	lockMgr := lock.NewMemoryManager()
	store := state.NewMemoryStore(lockMgr)
	r := New(store, lockMgr, nil)

	st := report.NewInitialState("r1", "u1", time.Now)
	st.Status = report.StatusRunning
	require.NoError(t, store.Save(context.Background(), st))

	n, err := r.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, report.StatusFailed, got.Status)
}

func TestSweepOnceLeavesRunningReportWithLiveLockAlone(t *testing.T) {
	lockMgr := lock.NewMemoryManager()
	store := state.NewMemoryStore(lockMgr)
	r := New(store, lockMgr, nil)

	st := report.NewInitialState("r2", "u1", time.Now)
	st.Status = report.StatusRunning
	require.NoError(t, store.Save(context.Background(), st))
	_, err := lockMgr.Acquire(context.Background(), lock.Key("r2"), "owner-1", time.Minute)
	require.NoError(t, err)

	n, err := r.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)

	got, err := store.Get(context.Background(), "r2")
	require.NoError(t, err)
	require.Equal(t, report.StatusRunning, got.Status)
}

func TestSweepOnceIgnoresNonRunningReports(t *testing.T) {
	lockMgr := lock.NewMemoryManager()
	store := state.NewMemoryStore(lockMgr)
	r := New(store, lockMgr, nil)

	st := report.NewInitialState("r3", "u1", time.Now)
	st.Status = report.StatusCompleted
	require.NoError(t, store.Save(context.Background(), st))

	n, err := r.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
