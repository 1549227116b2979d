package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(maxAttempts int, lockout time.Duration) (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	return NewMemoryLimiter(Policy{MaxAttempts: maxAttempts, LockoutDuration: lockout}, WithClock(clock.Now)), clock
}

func TestMemoryLimiter_LocksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 2; i++ {
		limiter.RecordFailedAttempt(ctx, "u1")
		require.True(t, limiter.CheckRateLimit(ctx, "u1"), "attempt %d should not lock yet", i+1)
	}

	limiter.RecordFailedAttempt(ctx, "u1")
	assert.False(t, limiter.CheckRateLimit(ctx, "u1"))
	assert.True(t, limiter.CheckRateLimit(ctx, "u2"), "other candidates are unaffected")

	state := limiter.State("u1")
	require.NotNil(t, state)
	assert.Equal(t, 3, state.FailureCount)
	require.NotNil(t, state.LockedUntil)
}

func TestMemoryLimiter_LockExpires(t *testing.T) {
	ctx := context.Background()
	limiter, clock := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		limiter.RecordFailedAttempt(ctx, "u1")
	}
	require.False(t, limiter.CheckRateLimit(ctx, "u1"))

	clock.Advance(59 * time.Second)
	require.False(t, limiter.CheckRateLimit(ctx, "u1"))

	clock.Advance(time.Second)
	require.True(t, limiter.CheckRateLimit(ctx, "u1"))

	// A new series starts from zero after expiry.
	limiter.RecordFailedAttempt(ctx, "u1")
	assert.True(t, limiter.CheckRateLimit(ctx, "u1"))
	assert.Equal(t, 1, limiter.State("u1").FailureCount)
}

func TestMemoryLimiter_ResetClearsState(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(3, time.Minute)

	limiter.RecordFailedAttempt(ctx, "u1")
	limiter.RecordFailedAttempt(ctx, "u1")
	limiter.ResetAttempts(ctx, "u1")

	assert.Nil(t, limiter.State("u1"))
	limiter.RecordFailedAttempt(ctx, "u1")
	limiter.RecordFailedAttempt(ctx, "u1")
	assert.True(t, limiter.CheckRateLimit(ctx, "u1"), "reset must restart the consecutive count")
}

func TestMemoryLimiter_FailuresWhileLockedDoNotExtendLock(t *testing.T) {
	ctx := context.Background()
	limiter, clock := newTestLimiter(2, time.Minute)

	limiter.RecordFailedAttempt(ctx, "u1")
	limiter.RecordFailedAttempt(ctx, "u1")
	lockedUntil := *limiter.State("u1").LockedUntil

	clock.Advance(30 * time.Second)
	limiter.RecordFailedAttempt(ctx, "u1")
	assert.Equal(t, lockedUntil, *limiter.State("u1").LockedUntil)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	ctx := context.Background()
	limiter, clock := newTestLimiter(1, time.Minute)

	limiter.RecordFailedAttempt(ctx, "locked")
	clock.Advance(2 * time.Minute)
	limiter.RecordFailedAttempt(ctx, "fresh")

	removed := limiter.Sweep()
	assert.Equal(t, 1, removed)
	assert.Nil(t, limiter.State("locked"))
	assert.NotNil(t, limiter.State("fresh"))
}

func TestMemoryLimiter_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				limiter.CheckRateLimit(ctx, "shared")
				limiter.RecordFailedAttempt(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, limiter.State("shared").FailureCount)
}

func TestPolicyNormalizesNonPositiveValues(t *testing.T) {
	p := Policy{}.normalized()
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultLockoutDuration, p.LockoutDuration)
}

func TestMemoryLimiter_ContextPolicyOverridesConfigured(t *testing.T) {
	limiter, clock := newTestLimiter(3, 15*time.Minute)
	ctx := WithPolicy(context.Background(), Policy{MaxAttempts: 1, LockoutDuration: time.Hour})

	limiter.RecordFailedAttempt(ctx, "u1")
	assert.False(t, limiter.CheckRateLimit(ctx, "u1"))

	clock.Advance(16 * time.Minute)
	assert.False(t, limiter.CheckRateLimit(ctx, "u1"))
	clock.Advance(45 * time.Minute)
	assert.True(t, limiter.CheckRateLimit(ctx, "u1"))

	// Zero fields fall back to the configured policy.
	partial := WithPolicy(context.Background(), Policy{LockoutDuration: time.Minute})
	limiter.RecordFailedAttempt(partial, "u2")
	limiter.RecordFailedAttempt(partial, "u2")
	assert.True(t, limiter.CheckRateLimit(partial, "u2"))
	limiter.RecordFailedAttempt(partial, "u2")
	state := limiter.State("u2")
	require.NotNil(t, state)
	require.NotNil(t, state.LockedUntil)
	assert.Equal(t, clock.Now().Add(time.Minute), *state.LockedUntil)
}
