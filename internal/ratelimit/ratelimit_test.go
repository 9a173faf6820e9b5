package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeGate emulates the shared admission key in-process: at most one
// TryAdmit call per window succeeds, matching the Redis script's contract.
type fakeGate struct {
	mu       sync.Mutex
	lastMs   int64
	hasLast  bool
	fail     bool
	admitted int64
}

func (g *fakeGate) TryAdmit(ctx context.Context) (bool, int64, error) {
	if g.fail {
		return false, 0, errors.New("gate unreachable")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now().UnixMilli()
	if !g.hasLast || now-g.lastMs >= int64(minInterval/time.Millisecond) {
		g.lastMs = now
		g.hasLast = true
		atomic.AddInt64(&g.admitted, 1)
		return true, 0, nil
	}
	return false, int64(minInterval/time.Millisecond) - (now - g.lastMs), nil
}

func TestWaitAdmitsImmediatelyWhenGateClear(t *testing.T) {
	g := &fakeGate{}
	l := New(g, DefaultConfig(), nil)
	err := l.Wait(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt64(&g.admitted))
}

func TestWaitFallsBackOnGateError(t *testing.T) {
	g := &fakeGate{fail: true}
	l := New(g, Config{FallbackDelay: 10 * time.Millisecond}, nil)
	start := time.Now()
	err := l.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, time.Since(start) < time.Second)
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	g := &fakeGate{}
	// Pre-claim the slot so the next Wait call must poll.
	_, _, _ = g.TryAdmit(context.Background())

	l := New(g, DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitWithNilGateUsesFallbackOnly(t *testing.T) {
	l := New(nil, Config{FallbackDelay: 10 * time.Millisecond}, nil)
	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))
}

func TestAtMostOneAdmissionPerWindow(t *testing.T) {
	g := &fakeGate{}
	var admittedCount int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, err := g.TryAdmit(context.Background()); err == nil && ok {
				atomic.AddInt64(&admittedCount, 1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, admittedCount, "at most one admission succeeds within the same instant")
}
