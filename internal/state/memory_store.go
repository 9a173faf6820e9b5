package state

import (
	"context"
	"sync"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
)

// LockReader is the minimal view onto the Lock Manager a memory store needs
// to emulate the Redis Lua guard: the current value held for a lock key, or
// ok=false if nothing holds it. internal/lock.Manager satisfies this.
type LockReader interface {
	CurrentValue(ctx context.Context, lockKey string) (value string, ok bool)
}

// staticLockReader is a LockReader over a fixed, test-supplied map, used by
// store tests that want to exercise SaveWithLockGuard without a real Lock
// Manager.
type staticLockReader struct {
	mu     sync.Mutex
	values map[string]string
}

// NewStaticLockReader builds a LockReader whose held values can be mutated
// directly by tests via Set.
func NewStaticLockReader() *staticLockReader {
	return &staticLockReader{values: make(map[string]string)}
}

func (r *staticLockReader) Set(lockKey, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[lockKey] = value
}

func (r *staticLockReader) Clear(lockKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, lockKey)
}

func (r *staticLockReader) CurrentValue(_ context.Context, lockKey string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[lockKey]
	return v, ok
}

// MemoryStore is an in-process Store used by tests; the worker binary
// always wires the Redis-backed store. SaveWithLockGuard re-checks the supplied
// LockReader under the store's own mutex, which is sufficient to emulate
// the Lua script's atomicity within a single process.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
	locks   LockReader
}

// NewMemoryStore builds a MemoryStore. locks may be nil if the caller never
// calls SaveWithLockGuard.
func NewMemoryStore(locks LockReader) *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte), locks: locks}
}

func (m *MemoryStore) Get(_ context.Context, reportID string) (*report.State, error) {
	m.mu.Lock()
	data, ok := m.records[stateKey(reportID)]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (m *MemoryStore) Save(_ context.Context, s *report.State) error {
	s.UpdatedAt = timeNow()
	data, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.records[stateKey(s.ReportID)] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, reportID string) error {
	m.mu.Lock()
	delete(m.records, stateKey(reportID))
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, reportID string, mutate func(*report.State) error) (*report.State, error) {
	s, err := m.Get(ctx, reportID)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if err := mutate(s); err != nil {
		return nil, err
	}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *MemoryStore) ListReportIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for k := range m.records {
		ids = append(ids, k[len(keyPrefix):])
	}
	return ids, nil
}

func (m *MemoryStore) SaveWithLockGuard(ctx context.Context, s *report.State, lockKey, lockValue string) (SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks == nil {
		return SaveLockLost, nil
	}
	current, ok := m.locks.CurrentValue(ctx, lockKey)
	if !ok || current != lockValue {
		return SaveLockLost, nil
	}
	s.UpdatedAt = timeNow()
	data, err := encode(s)
	if err != nil {
		return SaveLockLost, err
	}
	m.records[stateKey(s.ReportID)] = data
	return SaveOK, nil
}
