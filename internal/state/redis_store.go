package state

import (
	"context"
	"errors"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/pkg/logger"
)

// redisClient is the narrow subset of *redis.Client this package depends
// on, satisfied structurally by *redis.Client itself; a fake implementing
// just these methods stands in for tests, matching the teacher's own habit
// of depending on small, hand-rolled interfaces rather than a mock library.
type redisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
}

// saveWithLockGuardScript atomically checks the lock key's current value
// against the expected owner token and, only if it still matches, writes
// the new state payload with its TTL. KEYS[1]=lock key, KEYS[2]=state key.
// ARGV[1]=expected lock value, ARGV[2]=state payload, ARGV[3]=ttl seconds.
const saveWithLockGuardScript = `
local current = redis.call("GET", KEYS[1])
if current == false or current ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[2], ARGV[2], "EX", ARGV[3])
return 1
`

// RedisStore is the production State Store backend.
type RedisStore struct {
	client redisClient
	log    *logger.Logger
}

// NewRedisStore constructs a Redis-backed State Store.
func NewRedisStore(client *goredis.Client, log *logger.Logger) *RedisStore {
	if log == nil {
		log = logger.NewDefault("state-store")
	}
	return &RedisStore{client: client, log: log}
}

func (r *RedisStore) Get(ctx context.Context, reportID string) (*report.State, error) {
	data, err := r.client.Get(ctx, stateKey(reportID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

func (r *RedisStore) Save(ctx context.Context, s *report.State) error {
	s.UpdatedAt = timeNow()
	data, err := encode(s)
	if err != nil {
		return err
	}
	ttl := ttlFor(s)
	return r.client.Set(ctx, stateKey(s.ReportID), data, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, reportID string) error {
	return r.client.Del(ctx, stateKey(reportID)).Err()
}

func (r *RedisStore) Update(ctx context.Context, reportID string, mutate func(*report.State) error) (*report.State, error) {
	s, err := r.Get(ctx, reportID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := mutate(s); err != nil {
		return nil, err
	}
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ListReportIDs scans every key under the state prefix, for the reaper's
// stale-run sweep (spec.md §4.F supplemental). Grounded on the teacher's
// infrastructure/state.PersistenceBackend.List, generalized from its
// in-memory map walk to a Redis SCAN cursor loop (Redis has no List
// primitive; KEYS is unsafe to run against a production-sized keyspace).
func (r *RedisStore) ListReportIDs(ctx context.Context) ([]string, error) {
	var ids []string
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			ids = append(ids, k[len(keyPrefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

func (r *RedisStore) SaveWithLockGuard(ctx context.Context, s *report.State, lockKey, lockValue string) (SaveResult, error) {
	s.UpdatedAt = timeNow()
	data, err := encode(s)
	if err != nil {
		return SaveLockLost, err
	}
	ttl := ttlFor(s)
	res, err := r.client.Eval(ctx, saveWithLockGuardScript, []string{lockKey, stateKey(s.ReportID)}, lockValue, data, int64(ttl.Seconds())).Result()
	if err != nil {
		return SaveLockLost, err
	}
	ok, _ := res.(int64)
	if ok == 1 {
		return SaveOK, nil
	}
	return SaveLockLost, nil
}
