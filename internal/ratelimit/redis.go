package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// recordFailureScript increments the failure counter and, once the threshold is reached,
// sets the lock key and clears the counter. KEYS[1]=failures KEYS[2]=lock ARGV[1]=max ARGV[2]=lockout ms.
var recordFailureScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
  return -1
end
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current >= tonumber(ARGV[1]) then
  redis.call("SET", KEYS[2], current, "PX", ARGV[2])
  redis.call("DEL", KEYS[1])
end
return current
`)

// RedisLimiter shares attempt state between processes. Failure counters expire after the lockout
// window of inactivity; locks expire on their own via PX.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	policy Policy
	logger *zap.Logger
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, policy Policy, logger *zap.Logger) *RedisLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "backoffice"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		client: client,
		prefix: trimmedPrefix,
		policy: policy.normalized(),
		logger: logger,
	}
}

func (r *RedisLimiter) failuresKey(candidateID string) string {
	return fmt.Sprintf("%s:pin_attempts:%s:failures", r.prefix, candidateID)
}

func (r *RedisLimiter) lockKey(candidateID string) string {
	return fmt.Sprintf("%s:pin_attempts:%s:lock", r.prefix, candidateID)
}

func (r *RedisLimiter) CheckRateLimit(ctx context.Context, candidateID string) bool {
	locked, err := r.client.Exists(ctx, r.lockKey(candidateID)).Result()
	if err != nil {
		r.logger.Error("attempt lock lookup failed; denying", zap.String("candidate_id", candidateID), zap.Error(err))
		return false
	}
	return locked == 0
}

func (r *RedisLimiter) RecordFailedAttempt(ctx context.Context, candidateID string) {
	policy := r.policy.effective(ctx)
	keys := []string{r.failuresKey(candidateID), r.lockKey(candidateID)}
	count, err := recordFailureScript.Run(ctx, r.client, keys, policy.MaxAttempts, policy.LockoutDuration.Milliseconds()).Int64()
	if err != nil {
		r.logger.Error("failed attempt not recorded", zap.String("candidate_id", candidateID), zap.Error(err))
		return
	}
	if count >= int64(policy.MaxAttempts) {
		r.logger.Warn("candidate locked out",
			zap.String("candidate_id", candidateID),
			zap.Int64("failures", count),
			zap.Duration("lockout", policy.LockoutDuration),
		)
	}
}

func (r *RedisLimiter) ResetAttempts(ctx context.Context, candidateID string) {
	if err := r.client.Del(ctx, r.failuresKey(candidateID), r.lockKey(candidateID)).Err(); err != nil {
		r.logger.Error("attempt reset failed", zap.String("candidate_id", candidateID), zap.Error(err))
	}
}
