// Package authz decides whether a privileged operation may run and who performs it.
//
// Operations that require a PIN take their actor from the PIN owner found by the credential
// verifier; the session only has to be present. Operations gated on role claims alone use the
// session user as actor.
package authz

import (
	"context"

	"github.com/farmacias-vallenar/backoffice-service/internal/credential"
	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PINVerifier is implemented by *credential.Verifier.
type PINVerifier interface {
	Verify(ctx context.Context, q store.DBTX, pin string, roles domain.RoleSet) credential.VerifyResult
}

// NameResolver looks up display names for session users.
type NameResolver interface {
	FindUserName(ctx context.Context, q store.DBTX, userID string) (string, error)
}

// Access distinguishes reads from writes for settings.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
)

type Gate struct {
	verifier   PINVerifier
	names      NameResolver
	classifier *Classifier
	policies   map[Operation]Policy
	logger     *zap.Logger
}

func NewGate(verifier PINVerifier, names NameResolver, classifier *Classifier, logger *zap.Logger) *Gate {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		verifier:   verifier,
		names:      names,
		classifier: classifier,
		policies:   DefaultPolicies(),
		logger:     logger,
	}
}

// Classifier exposes the settings whitelist the gate enforces.
func (g *Gate) Classifier() *Classifier {
	return g.classifier
}

// Authorize applies the static policy of op.
func (g *Gate) Authorize(ctx context.Context, q store.DBTX, session *domain.Session, op Operation, pin string) domain.AuthorizationResult {
	policy, ok := g.policies[op]
	if !ok {
		g.logger.Warn("authorization requested for unknown operation", zap.String("operation", string(op)))
		return domain.Denied(domain.ErrKindForbidden)
	}
	if !session.Present() {
		return domain.Denied(domain.ErrKindUnauthenticated)
	}
	if policy.RequirePIN {
		return g.verifyPIN(ctx, q, pin, policy.Roles, op)
	}
	return g.checkRole(ctx, q, session, policy.Roles)
}

// AuthorizeSetting applies the category policy of key. It returns the category so callers can
// route PUBLIC reads to the cache and redact CRITICAL values.
func (g *Gate) AuthorizeSetting(ctx context.Context, q store.DBTX, session *domain.Session, key string, access Access, pin string) (domain.SettingCategory, domain.AuthorizationResult) {
	category, ok := g.classifier.Classify(key)
	if !ok {
		return "", domain.Denied(domain.ErrKindUnknownSetting)
	}

	switch category {
	case domain.SettingPublic:
		if access == AccessRead {
			return category, domain.AuthorizationResult{Authorized: true}
		}
		if !session.Present() {
			return category, domain.Denied(domain.ErrKindUnauthenticated)
		}
		return category, g.checkRole(ctx, q, session, domain.ManagerRoles)
	case domain.SettingPrivate:
		if !session.Present() {
			return category, domain.Denied(domain.ErrKindUnauthenticated)
		}
		return category, g.checkRole(ctx, q, session, domain.ManagerRoles)
	default:
		if !session.Present() {
			return category, domain.Denied(domain.ErrKindUnauthenticated)
		}
		if !domain.AdminRoles.Contains(session.Role) {
			return category, domain.Denied(domain.ErrKindForbidden)
		}
		return category, g.verifyPIN(ctx, q, pin, domain.AdminRoles, "setting.critical")
	}
}

func (g *Gate) verifyPIN(ctx context.Context, q store.DBTX, pin string, roles domain.RoleSet, op Operation) domain.AuthorizationResult {
	if pin == "" {
		return domain.Denied(domain.ErrKindInvalidPIN)
	}
	res := g.verifier.Verify(ctx, q, pin, roles)
	if !res.Valid || res.User == nil {
		g.logger.Info("privileged PIN rejected", zap.String("operation", string(op)))
		return domain.Denied(domain.ErrKindInvalidPIN)
	}
	return domain.Granted(domain.Actor{ID: res.User.ID, Name: res.User.Name})
}

func (g *Gate) checkRole(ctx context.Context, q store.DBTX, session *domain.Session, roles domain.RoleSet) domain.AuthorizationResult {
	if !roles.Contains(session.Role) {
		return domain.Denied(domain.ErrKindForbidden)
	}
	actor := domain.Actor{ID: session.UserID}
	// A malformed id would abort the surrounding transaction, so only well-formed ids are looked up.
	if _, err := uuid.Parse(session.UserID); err == nil && g.names != nil {
		if name, err := g.names.FindUserName(ctx, q, session.UserID); err == nil {
			actor.Name = name
		}
	}
	return domain.Granted(actor)
}
