package locks

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisStore implements the lease table on Redis so multiple coordinator
// instances can share one lock table. The holder value is stored as the key
// value and expiry is delegated to Redis PX deadlines, so Sweep is a no-op.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
}

// claimScript performs the compare-and-set: claim when the key is absent
// (free or expired) or already held by the same holder value. Returns
// {1, holder} on success and {0, current} on conflict.
const claimScript = `
local cur = redis.call("get", KEYS[1])
if not cur or cur == ARGV[1] then
	redis.call("set", KEYS[1], ARGV[1], "px", ARGV[2])
	return {1, tonumber(ARGV[1])}
end
return {0, tonumber(cur)}
`

// releaseScript deletes the key only when the stored holder value matches.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// NewRedisStore creates a Redis-backed lease store.
func NewRedisStore(redisAddr, redisPassword, keyPrefix string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     redisPassword,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if keyPrefix == "" {
		keyPrefix = "recordlock:"
	}

	return &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: keyPrefix,
	}, nil
}

// NewRedisStoreWithClient wraps an existing client, which lets tests supply
// a miniredis-backed connection.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "recordlock:"
	}
	return &RedisStore{client: client, logger: logger, keyPrefix: keyPrefix}
}

func (s *RedisStore) leaseKey(key string) string {
	return s.keyPrefix + "lease:" + key
}

// TryClaim runs the claim script against the lease key.
func (s *RedisStore) TryClaim(ctx context.Context, key string, holder int, ttl time.Duration) (bool, int, error) {
	if holder <= 0 {
		return false, 0, ErrInvalidHolder
	}

	result := s.client.Eval(ctx, claimScript,
		[]string{s.leaseKey(key)},
		strconv.Itoa(holder), strconv.FormatInt(ttl.Milliseconds(), 10))
	if err := result.Err(); err != nil {
		return false, 0, fmt.Errorf("failed to claim lease for key %s: %w", key, err)
	}

	reply, ok := result.Val().([]interface{})
	if !ok || len(reply) != 2 {
		return false, 0, fmt.Errorf("unexpected claim script reply for key %s: %v", key, result.Val())
	}

	claimed := reply[0].(int64) == 1
	current := int(reply[1].(int64))

	if claimed {
		s.logger.Debug("Lease claimed",
			zap.String("key", key),
			zap.Int("holder", holder),
			zap.Duration("ttl", ttl))
	} else {
		s.logger.Debug("Lease held by another holder",
			zap.String("key", key),
			zap.Int("current", current))
	}

	return claimed, current, nil
}

// Release deletes the lease only when the holder value matches.
func (s *RedisStore) Release(ctx context.Context, key string, holder int) error {
	if holder <= 0 {
		return ErrInvalidHolder
	}

	result := s.client.Eval(ctx, releaseScript,
		[]string{s.leaseKey(key)}, strconv.Itoa(holder))
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to release lease for key %s: %w", key, err)
	}

	if deleted, _ := result.Val().(int64); deleted == 1 {
		s.logger.Debug("Lease released",
			zap.String("key", key),
			zap.Int("holder", holder))
	} else {
		s.logger.Debug("Lease not owned or already released",
			zap.String("key", key),
			zap.Int("holder", holder))
	}
	return nil
}

// Status reads the stored holder values in one MGET; absent keys are free.
func (s *RedisStore) Status(ctx context.Context, keys []string) (map[string]int, error) {
	states := make(map[string]int, len(keys))
	if len(keys) == 0 {
		return states, nil
	}

	leaseKeys := make([]string, len(keys))
	for i, key := range keys {
		leaseKeys[i] = s.leaseKey(key)
	}

	values, err := s.client.MGet(ctx, leaseKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read lease states: %w", err)
	}

	for i, key := range keys {
		states[key] = 0
		if raw, ok := values[i].(string); ok {
			if holder, err := strconv.Atoi(raw); err == nil {
				states[key] = holder
			}
		}
	}
	return states, nil
}

// Count reports the number of live lease keys under the store's prefix.
// Redis drops expired keys itself, so a SCAN over the prefix counts only
// live leases.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	pattern := s.keyPrefix + "lease:*"
	count := 0
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count leases: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// Sweep is a no-op; Redis removes expired lease keys itself.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
