package lock

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/bridgelab/reportpipeline/pkg/logger"
)

type redisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd
}

// acquireScript sets KEYS[1]=ARGV[1] with expiry ARGV[2] (seconds) only if
// absent. Returns 1 on success, 0 if already held.
const acquireScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
return 1
`

// verifyScript returns 1 iff the key's current value equals ARGV[1].
const verifyScript = `
local current = redis.call("GET", KEYS[1])
if current == ARGV[1] then
  return 1
end
return 0
`

// extendScript resets the TTL only if the current value still matches.
const extendScript = `
local current = redis.call("GET", KEYS[1])
if current == false or current ~= ARGV[1] then
  return 0
end
redis.call("EXPIRE", KEYS[1], ARGV[2])
return 1
`

// releaseScript deletes the key only if the current value still matches.
const releaseScript = `
local current = redis.call("GET", KEYS[1])
if current == false or current ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`

// RedisManager is the production Lock Manager backend.
type RedisManager struct {
	client redisClient
	log    *logger.Logger
}

// NewRedisManager constructs a Redis-backed Lock Manager.
func NewRedisManager(client *goredis.Client, log *logger.Logger) *RedisManager {
	if log == nil {
		log = logger.NewDefault("lock-manager")
	}
	return &RedisManager{client: client, log: log}
}

func (m *RedisManager) Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	res, err := m.client.Eval(ctx, acquireScript, []string{key}, value, int64(ttl.Seconds())).Result()
	if err != nil {
		return false, err
	}
	return toBool(res), nil
}

func (m *RedisManager) Verify(ctx context.Context, key, value string) (bool, error) {
	res, err := m.client.Eval(ctx, verifyScript, []string{key}, value).Result()
	if err != nil {
		return false, err
	}
	return toBool(res), nil
}

func (m *RedisManager) Extend(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	res, err := m.client.Eval(ctx, extendScript, []string{key}, value, int64(ttl.Seconds())).Result()
	if err != nil {
		return false, err
	}
	return toBool(res), nil
}

func (m *RedisManager) Release(ctx context.Context, key, value string) (bool, error) {
	res, err := m.client.Eval(ctx, releaseScript, []string{key}, value).Result()
	if err != nil {
		return false, err
	}
	return toBool(res), nil
}

func (m *RedisManager) CurrentValue(ctx context.Context, key string) (string, bool) {
	v, err := m.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func toBool(res interface{}) bool {
	n, _ := res.(int64)
	return n == 1
}
