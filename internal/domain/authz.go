package domain

import "time"

// Session is the identity claim resolved by the session layer. It is untrusted for PIN-gated
// operations and only consulted for role-claim gating.
type Session struct {
	UserID     string
	Role       Role
	LocationID string
}

// Present reports whether the session layer supplied an identity.
func (s *Session) Present() bool {
	return s != nil && s.UserID != ""
}

// PrivilegedCandidate is a user eligible to authenticate an elevated action.
// CredentialHash takes priority; CredentialPlaintext is a legacy fallback.
type PrivilegedCandidate struct {
	ID                  string
	Name                string
	Role                Role
	CredentialHash      *string
	CredentialPlaintext *string
	IsActive            bool
}

// AttemptState is the per-candidate failure record owned by a rate limiter.
type AttemptState struct {
	FailureCount int        `json:"failure_count"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
}

// Actor is the identity recorded on audit records.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AuthorizationResult is produced once per gate invocation and is the only way an actor reaches the audit trail.
type AuthorizationResult struct {
	Authorized bool
	ActingUser *Actor
	// Denial is set when Authorized is false.
	Denial ErrorKind
}

// Denied builds a negative result with the given kind.
func Denied(kind ErrorKind) AuthorizationResult {
	return AuthorizationResult{Denial: kind}
}

// Granted builds a positive result for actor.
func Granted(actor Actor) AuthorizationResult {
	return AuthorizationResult{Authorized: true, ActingUser: &actor}
}
