package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// setIfCurrentScript caches a value unless an invalidation with a newer version has been seen.
// KEYS[1]=value KEYS[2]=floor ARGV[1]=value ARGV[2]=version us ARGV[3]=ttl ms.
var setIfCurrentScript = redis.NewScript(`
local floor = redis.call("GET", KEYS[2])
if floor and tonumber(ARGV[2]) < tonumber(floor) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// invalidateScript drops the cached value and raises the floor. KEYS[1]=value KEYS[2]=floor
// ARGV[1]=version us ARGV[2]=floor ttl ms.
var invalidateScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
local floor = redis.call("GET", KEYS[2])
if not floor or tonumber(ARGV[1]) > tonumber(floor) then
  redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
end
return 1
`)

// floorTTL bounds how long an invalidation floor is kept.
const floorTTL = 24 * time.Hour

// RedisCache shares cached PUBLIC settings between instances. Redis failures degrade to cache
// misses.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "backoffice"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) key(key string) string {
	return fmt.Sprintf("%s:settings:public:%s", c.prefix, key)
}

func (c *RedisCache) floorKey(key string) string {
	return fmt.Sprintf("%s:settings:floor:%s", c.prefix, key)
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("settings cache read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string, version time.Time) {
	keys := []string{c.key(key), c.floorKey(key)}
	if err := setIfCurrentScript.Run(ctx, c.client, keys, value, version.UnixMicro(), c.ttl.Milliseconds()).Err(); err != nil {
		c.logger.Warn("settings cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, key string, version time.Time) {
	keys := []string{c.key(key), c.floorKey(key)}
	if err := invalidateScript.Run(ctx, c.client, keys, version.UnixMicro(), floorTTL.Milliseconds()).Err(); err != nil {
		c.logger.Warn("settings cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
