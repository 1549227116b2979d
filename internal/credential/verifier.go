// Package credential re-authenticates the acting identity of a privileged operation by PIN.
//
// The PIN is not bound to a claimed username. It is checked against every active user whose role
// qualifies for the operation, in store order, and the first candidate whose credential matches
// becomes the acting user. Store order therefore decides which actor is audited when two
// candidates share a PIN.
package credential

import (
	"context"
	"crypto/subtle"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/ratelimit"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"go.uber.org/zap"
)

// CandidateSource lists active users holding one of roles, in a stable order.
type CandidateSource interface {
	ListActiveCandidates(ctx context.Context, q store.DBTX, roles domain.RoleSet) ([]domain.PrivilegedCandidate, error)
}

// VerifyResult is the outcome of one verification. User is set only when Valid.
type VerifyResult struct {
	Valid bool
	User  *domain.PrivilegedCandidate
}

type Verifier struct {
	source            CandidateSource
	limiter           ratelimit.Limiter
	comparer          HashComparer
	policies          PolicySource
	throttlePlaintext bool
	logger            *zap.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithComparer replaces the hash comparer.
func WithComparer(c HashComparer) VerifierOption {
	return func(v *Verifier) {
		if c != nil {
			v.comparer = c
		}
	}
}

// WithPlaintextThrottling controls whether legacy plaintext mismatches count towards lockout.
func WithPlaintextThrottling(enabled bool) VerifierOption {
	return func(v *Verifier) {
		v.throttlePlaintext = enabled
	}
}

// WithPolicySource makes lockout thresholds follow the policy resolved for each verification.
func WithPolicySource(source PolicySource) VerifierOption {
	return func(v *Verifier) {
		v.policies = source
	}
}

// WithVerifierLogger attaches a logger.
func WithVerifierLogger(logger *zap.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func NewVerifier(source CandidateSource, limiter ratelimit.Limiter, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		source:            source,
		limiter:           limiter,
		comparer:          Comparer{},
		throttlePlaintext: true,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify never returns an error: store failures and malformed input resolve to Valid=false.
func (v *Verifier) Verify(ctx context.Context, q store.DBTX, pin string, roles domain.RoleSet) VerifyResult {
	if pin == "" || len(roles) == 0 {
		return VerifyResult{}
	}

	candidates, err := v.source.ListActiveCandidates(ctx, q, roles)
	if err != nil {
		v.logger.Error("candidate lookup failed", zap.Strings("roles", roles.Strings()), zap.Error(err))
		return VerifyResult{}
	}
	if v.policies != nil {
		ctx = ratelimit.WithPolicy(ctx, v.policies.ResolvePolicy(ctx, q))
	}

	for i := range candidates {
		candidate := candidates[i]
		if !candidate.IsActive || !roles.Contains(candidate.Role) {
			continue
		}
		if !v.limiter.CheckRateLimit(ctx, candidate.ID) {
			v.logger.Debug("candidate skipped; locked out", zap.String("candidate_id", candidate.ID))
			continue
		}

		matched, throttle, ok := v.compare(candidate, pin)
		if !ok {
			continue
		}
		if matched {
			v.limiter.ResetAttempts(ctx, candidate.ID)
			return VerifyResult{Valid: true, User: &candidate}
		}
		if throttle {
			v.limiter.RecordFailedAttempt(ctx, candidate.ID)
		}
	}
	return VerifyResult{}
}

// compare returns whether pin matches, whether a mismatch should be throttled, and whether the
// candidate had a usable credential at all.
func (v *Verifier) compare(candidate domain.PrivilegedCandidate, pin string) (matched bool, throttle bool, ok bool) {
	if candidate.CredentialHash != nil && *candidate.CredentialHash != "" {
		matched, err := v.comparer.Compare(*candidate.CredentialHash, pin)
		if err != nil {
			// A corrupt hash makes the candidate ineligible; it must not block the rest of the pool.
			v.logger.Error("stored credential hash unusable", zap.String("candidate_id", candidate.ID), zap.Error(err))
			return false, false, false
		}
		return matched, true, true
	}
	if candidate.CredentialPlaintext != nil && *candidate.CredentialPlaintext != "" {
		matched := subtle.ConstantTimeCompare([]byte(*candidate.CredentialPlaintext), []byte(pin)) == 1
		return matched, v.throttlePlaintext, true
	}
	return false, false, false
}
