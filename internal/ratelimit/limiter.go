// Package ratelimit throttles repeated failed PIN attempts per candidate and locks candidates out for a window.
package ratelimit

import (
	"context"
	"time"
)

const (
	// DefaultMaxAttempts is the number of consecutive failures that triggers a lockout.
	DefaultMaxAttempts = 3
	// DefaultLockoutDuration is how long a lockout lasts.
	DefaultLockoutDuration = 15 * time.Minute
)

// Limiter tracks failed attempts per candidate id. Implementations never return errors to callers:
// an unavailable backend denies (fails closed) on check and logs on record/reset.
//
// CheckRateLimit followed later by RecordFailedAttempt is not atomic; two concurrent failing attempts
// may both pass the check, so a candidate can overshoot the limit by the number of in-flight attempts.
type Limiter interface {
	CheckRateLimit(ctx context.Context, candidateID string) bool
	RecordFailedAttempt(ctx context.Context, candidateID string)
	ResetAttempts(ctx context.Context, candidateID string)
}

// Policy is the lockout threshold and window shared by all implementations.
type Policy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.LockoutDuration <= 0 {
		p.LockoutDuration = DefaultLockoutDuration
	}
	return p
}

type policyKey struct{}

// WithPolicy returns a context under which failed attempts are judged against p. Zero fields keep
// the limiter's configured value.
func WithPolicy(ctx context.Context, p Policy) context.Context {
	return context.WithValue(ctx, policyKey{}, p)
}

// effective overlays the positive fields of the context policy, if any, on p.
func (p Policy) effective(ctx context.Context) Policy {
	override, ok := ctx.Value(policyKey{}).(Policy)
	if !ok {
		return p
	}
	if override.MaxAttempts > 0 {
		p.MaxAttempts = override.MaxAttempts
	}
	if override.LockoutDuration > 0 {
		p.LockoutDuration = override.LockoutDuration
	}
	return p
}
