package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestMemoryStoreGetSaveDelete(t *testing.T) {
	restore := timeNow
	timeNow = fixedNow
	defer func() { timeNow = restore }()

	store := NewMemoryStore(nil)
	ctx := context.Background()

	_, err := store.Get(ctx, "report-1")
	require.ErrorIs(t, err, ErrNotFound)

	s := report.NewInitialState("report-1", "user-1", fixedNow)
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, "report-1")
	require.NoError(t, err)
	require.Equal(t, "report-1", got.ReportID)
	require.Equal(t, report.StatusPending, got.Status)

	require.NoError(t, store.Delete(ctx, "report-1"))
	_, err = store.Get(ctx, "report-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdate(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	s := report.NewInitialState("report-2", "user-1", fixedNow)
	require.NoError(t, store.Save(ctx, s))

	updated, err := store.Update(ctx, "report-2", func(st *report.State) error {
		st.Status = report.StatusRunning
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, report.StatusRunning, updated.Status)

	got, err := store.Get(ctx, "report-2")
	require.NoError(t, err)
	require.Equal(t, report.StatusRunning, got.Status)
}

func TestMemoryStoreUpdateMissingReturnsNil(t *testing.T) {
	store := NewMemoryStore(nil)
	got, err := store.Update(context.Background(), "missing", func(*report.State) error { return nil })
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSaveWithLockGuardSucceedsWhenLockCurrent(t *testing.T) {
	locks := NewStaticLockReader()
	locks.Set("lock:report-3", "owner-a")
	store := NewMemoryStore(locks)
	ctx := context.Background()

	s := report.NewInitialState("report-3", "user-1", fixedNow)
	res, err := store.SaveWithLockGuard(ctx, s, "lock:report-3", "owner-a")
	require.NoError(t, err)
	require.Equal(t, SaveOK, res)

	got, err := store.Get(ctx, "report-3")
	require.NoError(t, err)
	require.Equal(t, "report-3", got.ReportID)
}

func TestSaveWithLockGuardFailsWhenLockStolen(t *testing.T) {
	locks := NewStaticLockReader()
	locks.Set("lock:report-4", "owner-b")
	store := NewMemoryStore(locks)
	ctx := context.Background()

	s := report.NewInitialState("report-4", "user-1", fixedNow)
	res, err := store.SaveWithLockGuard(ctx, s, "lock:report-4", "owner-a")
	require.NoError(t, err)
	require.Equal(t, SaveLockLost, res)

	_, err = store.Get(ctx, "report-4")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveWithLockGuardFailsWhenLockAbsent(t *testing.T) {
	locks := NewStaticLockReader()
	store := NewMemoryStore(locks)

	s := report.NewInitialState("report-5", "user-1", fixedNow)
	res, err := store.SaveWithLockGuard(context.Background(), s, "lock:report-5", "owner-a")
	require.NoError(t, err)
	require.Equal(t, SaveLockLost, res)
}

func TestTTLForVariesByStatus(t *testing.T) {
	s := report.NewInitialState("report-6", "user-1", fixedNow)
	require.Equal(t, defaultTTL, ttlFor(s))

	s.Status = report.StatusFailed
	require.Equal(t, failedTTL, ttlFor(s))
}

func TestDecodeRejectsCorruptPayload(t *testing.T) {
	_, err := decode([]byte("not json"))
	require.Error(t, err)

	_, err = decode([]byte(`{"version":"","reportId":""}`))
	require.Error(t, err)
}
