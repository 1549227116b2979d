package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"go.uber.org/zap"
)

// MemoryLimiter keeps attempt state in a process-local map guarded by a single mutex.
// State is not shared between replicas; use RedisLimiter when running more than one process.
type MemoryLimiter struct {
	mu       sync.Mutex
	attempts map[string]*domain.AttemptState
	policy   Policy
	now      func() time.Time
	logger   *zap.Logger
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger attaches a logger for lockout events.
func WithLogger(logger *zap.Logger) MemoryOption {
	return func(l *MemoryLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewMemoryLimiter(policy Policy, opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		attempts: make(map[string]*domain.AttemptState),
		policy:   policy.normalized(),
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLimiter) CheckRateLimit(_ context.Context, candidateID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.attempts[candidateID]
	if !ok || state.LockedUntil == nil {
		return true
	}
	if l.now().Before(*state.LockedUntil) {
		return false
	}
	// Lock elapsed: the next failure starts a fresh series.
	state.FailureCount = 0
	state.LockedUntil = nil
	return true
}

func (l *MemoryLimiter) RecordFailedAttempt(ctx context.Context, candidateID string) {
	policy := l.policy.effective(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state, ok := l.attempts[candidateID]
	if !ok {
		state = &domain.AttemptState{}
		l.attempts[candidateID] = state
	}
	if state.LockedUntil != nil && !now.Before(*state.LockedUntil) {
		state.FailureCount = 0
		state.LockedUntil = nil
	}

	state.FailureCount++
	if state.FailureCount >= policy.MaxAttempts && state.LockedUntil == nil {
		until := now.Add(policy.LockoutDuration)
		state.LockedUntil = &until
		l.logger.Warn("candidate locked out",
			zap.String("candidate_id", candidateID),
			zap.Int("failures", state.FailureCount),
			zap.Time("locked_until", until),
		)
	}
}

func (l *MemoryLimiter) ResetAttempts(_ context.Context, candidateID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, candidateID)
}

// State returns a copy of the attempt state for candidateID, or nil if none is tracked.
func (l *MemoryLimiter) State(candidateID string) *domain.AttemptState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.attempts[candidateID]
	if !ok {
		return nil
	}
	copied := *state
	if state.LockedUntil != nil {
		until := *state.LockedUntil
		copied.LockedUntil = &until
	}
	return &copied
}

// Sweep drops entries whose lock has elapsed. Such entries would be reset on their next check anyway.
// It returns the number of entries removed.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, state := range l.attempts {
		if state.LockedUntil != nil && !now.Before(*state.LockedUntil) {
			delete(l.attempts, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked candidates.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}
