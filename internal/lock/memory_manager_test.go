package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireExclusivity(t *testing.T) {
	m := NewMemoryManager()
	ctx := context.Background()
	key := Key("report-S4")

	ownerW1 := NewOwnerToken()
	ok, err := m.Acquire(ctx, key, ownerW1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ownerW2 := NewOwnerToken()
	ok, err = m.Acquire(ctx, key, ownerW2, time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second acquire by a different owner must fail while W1 holds the lock")

	verifiedW1, err := m.Verify(ctx, key, ownerW1)
	require.NoError(t, err)
	require.True(t, verifiedW1)

	verifiedW2, err := m.Verify(ctx, key, ownerW2)
	require.NoError(t, err)
	require.False(t, verifiedW2, "at most one owner value verifies true at any instant")
}

func TestExtendOnlySucceedsForCurrentHolder(t *testing.T) {
	m := NewMemoryManager()
	ctx := context.Background()
	key := Key("report-extend")

	owner := NewOwnerToken()
	ok, err := m.Acquire(ctx, key, owner, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	extended, err := m.Extend(ctx, key, NewOwnerToken(), 10*time.Minute)
	require.NoError(t, err)
	require.False(t, extended, "extend with a stale token must fail")

	extended, err = m.Extend(ctx, key, owner, 10*time.Minute)
	require.NoError(t, err)
	require.True(t, extended)
}

func TestReleaseOnlySucceedsForCurrentHolder(t *testing.T) {
	m := NewMemoryManager()
	ctx := context.Background()
	key := Key("report-release")

	owner := NewOwnerToken()
	_, err := m.Acquire(ctx, key, owner, time.Minute)
	require.NoError(t, err)

	released, err := m.Release(ctx, key, NewOwnerToken())
	require.NoError(t, err)
	require.False(t, released)

	released, err = m.Release(ctx, key, owner)
	require.NoError(t, err)
	require.True(t, released)

	ok, err := m.Acquire(ctx, key, NewOwnerToken(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "lock must be acquirable again once released")
}

func TestAcquireExpiresAfterTTL(t *testing.T) {
	m := NewMemoryManager()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	ctx := context.Background()
	key := Key("report-ttl")

	_, err := m.Acquire(ctx, key, NewOwnerToken(), time.Second)
	require.NoError(t, err)

	m.now = func() time.Time { return fixed.Add(2 * time.Second) }
	ok, err := m.Acquire(ctx, key, NewOwnerToken(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lock must be acquirable")
}

func TestCurrentValueReflectsHolder(t *testing.T) {
	m := NewMemoryManager()
	ctx := context.Background()
	key := Key("report-current")

	_, ok := m.CurrentValue(ctx, key)
	require.False(t, ok)

	owner := NewOwnerToken()
	_, err := m.Acquire(ctx, key, owner, time.Minute)
	require.NoError(t, err)

	v, ok := m.CurrentValue(ctx, key)
	require.True(t, ok)
	require.Equal(t, owner, v)
}
