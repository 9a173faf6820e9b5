package ratelimit

import (
	"context"

	goredis "github.com/go-redis/redis/v8"
)

type redisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *goredis.Cmd
}

// admitScript implements the atomic admission check of spec.md §4.C: read
// the last-admission epoch ms; if now-last >= 1000ms, write now and admit;
// else return the remaining wait. KEYS[1]=gate key. ARGV[1]=now epoch ms,
// ARGV[2]=min interval ms, ARGV[3]=key TTL seconds.
const admitScript = `
local last = redis.call("GET", KEYS[1])
local now = tonumber(ARGV[1])
local minInterval = tonumber(ARGV[2])
if last == false then
  redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[3])
  return 0
end
local elapsed = now - tonumber(last)
if elapsed >= minInterval then
  redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[3])
  return 0
end
return minInterval - elapsed
`

const gateKey = "perspective:global-rate-limit"

// RedisGate is the production shared admission Gate.
type RedisGate struct {
	client redisClient
	nowMs  func() int64
}

// NewRedisGate constructs a Gate backed by a shared Redis instance.
func NewRedisGate(client *goredis.Client, nowMs func() int64) *RedisGate {
	return &RedisGate{client: client, nowMs: nowMs}
}

func (g *RedisGate) TryAdmit(ctx context.Context) (bool, int64, error) {
	res, err := g.client.Eval(ctx, admitScript, []string{gateKey}, g.nowMs(), int64(minInterval/1_000_000), int64(keyTTL.Seconds())).Result()
	if err != nil {
		return false, 0, err
	}
	wait, _ := res.(int64)
	if wait == 0 {
		return true, 0, nil
	}
	return false, wait, nil
}
