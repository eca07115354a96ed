package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisEvaler abstracts the minimal surface needed from a Redis client.
// Implementations may wrap github.com/redis/go-redis/v9 (Cmdable.Eval) or
// any equivalent scripting-capable client.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisArchiver archives samples idempotently using a Lua script:
//  1. SETNX marker:<station>:<name>:<commit_id> 1
//  2. if set -> RPUSH series:<station>:<name> "<ts>:<value>"
//  3. EXPIRE the marker (TTL) for leak protection
//
// If SETNX fails (already applied), the write is a no-op.
type RedisArchiver struct {
	client    RedisEvaler
	markerTTL time.Duration
}

// NewRedisArchiver returns an archiver with the given client and marker TTL.
// markerTTL guards against unbounded growth of commit markers; choose a
// duration comfortably larger than the archival retry window.
func NewRedisArchiver(client RedisEvaler, markerTTL time.Duration) *RedisArchiver {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisArchiver{client: client, markerTTL: markerTTL}
}

const redisArchiveScript = `
local seriesKey = KEYS[1]
local markerKey = KEYS[2]
local point = ARGV[1]
local ttlSeconds = tonumber(ARGV[2])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('RPUSH', seriesKey, point)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

func redisSeriesKey(station, name string) string {
	if station == "" {
		return fmt.Sprintf("series:%s", name)
	}
	return fmt.Sprintf("series:%s:%s", station, name)
}

func redisMarkerKey(station, name, commitID string) string {
	return fmt.Sprintf("marker:%s:%s:%s", station, name, commitID)
}

// ArchiveBatch applies samples one EVAL at a time to keep the idempotency
// guarantee per key; callers needing higher throughput should pipeline
// externally.
func (r *RedisArchiver) ArchiveBatch(ctx context.Context, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, s := range samples {
		if s.CommitID == "" {
			return errors.New("persist: Sample.CommitID must be set")
		}
		keys := []string{redisSeriesKey(s.Station, s.Name), redisMarkerKey(s.Station, s.Name, s.CommitID)}
		point := fmt.Sprintf("%d:%f", s.TimeNano, s.Value)
		args := []interface{}{point, int(r.markerTTL.Seconds())}
		if _, err := r.client.Eval(ctx, redisArchiveScript, keys, args...); err != nil {
			return fmt.Errorf("persist: redis eval station=%s name=%s commit=%s: %w", s.Station, s.Name, s.CommitID, err)
		}
	}
	return nil
}

// GoRedisEvaler wraps github.com/redis/go-redis/v9 as a RedisEvaler.
type GoRedisEvaler struct{ c *redis.Client }

// NewGoRedisEvaler constructs a client wrapper for an address like
// "127.0.0.1:6379".
func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	return &GoRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// LoggingRedisEvaler logs the evaluation instead of touching a real Redis
// instance. Useful for running demos without infrastructure.
type LoggingRedisEvaler struct{}

func (LoggingRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	fmt.Printf("[redis-demo] EVAL script(len=%d) KEYS=%v ARGS=%v\n", len(script), keys, args)
	return int64(1), nil
}
