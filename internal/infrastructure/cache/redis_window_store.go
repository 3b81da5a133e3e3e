package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is prepended to every window key in Redis.
const DefaultKeyPrefix = "admission:window:"

// slidingWindowScript prunes, counts and optionally records in one step.
// KEYS[1] window key; ARGV: now_ms, window_ms, limit, member, record.
// Returns {allowed, count, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count < limit then
  if ARGV[5] == '1' then
    redis.call('ZADD', key, now, ARGV[4])
    redis.call('PEXPIRE', key, window)
    count = count + 1
  end
  return {1, count, 0}
end

local retry = 0
if limit > 0 then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
end
return {0, count, retry}
`)

// RedisWindowStore keeps usage windows in Redis sorted sets scored by
// millisecond timestamps.
type RedisWindowStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisWindowStore connects to Redis and verifies the connection.
func NewRedisWindowStore(ctx context.Context, opts *redis.Options, keyPrefix string) (*RedisWindowStore, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisWindowStoreWithClient(client, keyPrefix), nil
}

// NewRedisWindowStoreWithClient creates a store on an existing client.
func NewRedisWindowStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisWindowStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisWindowStore{client: client, keyPrefix: keyPrefix}
}

// Acquire implements admission.WindowStore
func (s *RedisWindowStore) Acquire(ctx context.Context, key admission.Key, limit int, window time.Duration, now time.Time) (admission.Decision, error) {
	return s.run(ctx, key, limit, window, now, true)
}

// Peek implements admission.WindowStore
func (s *RedisWindowStore) Peek(ctx context.Context, key admission.Key, limit int, window time.Duration, now time.Time) (admission.Decision, error) {
	return s.run(ctx, key, limit, window, now, false)
}

func (s *RedisWindowStore) run(ctx context.Context, key admission.Key, limit int, window time.Duration, now time.Time, record bool) (admission.Decision, error) {
	if err := validateWindow(limit, window); err != nil {
		return admission.Decision{}, err
	}

	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()
	flag := "0"
	if record {
		flag = "1"
	}

	res, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.keyPrefix + key.String()},
		nowMs, window.Milliseconds(), limit, member, flag,
	).Int64Slice()
	if err != nil {
		return admission.Decision{}, fmt.Errorf("sliding window script for %s: %w", key, err)
	}
	if len(res) != 3 {
		return admission.Decision{}, fmt.Errorf("sliding window script for %s: unexpected reply %v", key, res)
	}

	count := int(res[1])
	d := admission.Decision{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: max(limit-count, 0),
	}
	if !d.Allowed {
		d.Remaining = 0
		d.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return d, nil
}

// Ping checks that Redis answers.
func (s *RedisWindowStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisWindowStore) Close() error {
	return s.client.Close()
}

var _ WindowStore = (*RedisWindowStore)(nil)
