package app

import (
	"context"
	"time"

	"github.com/farmacias-vallenar/backoffice-service/internal/authz"
	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// SettingView is what a read returns: the value plus the category that governed access.
type SettingView struct {
	Key      string                 `json:"key"`
	Value    string                 `json:"value"`
	Category domain.SettingCategory `json:"category"`
}

// GetSetting reads a whitelisted setting. PUBLIC values are served from the cache without a
// session; PRIVATE needs a manager-level session; CRITICAL needs an admin session and PIN.
func (s *Service) GetSetting(ctx context.Context, session *domain.Session, key, pin string) Result {
	key = domain.NormalizeSettingKey(key)
	category, auth := s.gate.AuthorizeSetting(ctx, s.db, session, key, authz.AccessRead, pin)
	if !auth.Authorized {
		return denied(auth.Denial)
	}

	if category == domain.SettingPublic {
		if value, hit := s.cache.Get(ctx, key); hit {
			return ok(SettingView{Key: key, Value: value, Category: category})
		}
	}

	setting, err := s.settings.GetSetting(ctx, s.db, key)
	if err != nil {
		if domain.KindOf(err) == domain.ErrKindInternal {
			s.logger.Error("setting read failed", zap.String("key", key), zap.Error(err))
		}
		return fail(err)
	}
	if category == domain.SettingPublic {
		s.cache.Set(ctx, key, setting.Value, setting.UpdatedAt)
	}
	return ok(SettingView{Key: key, Value: setting.Value, Category: category})
}

// UpdateSetting writes a whitelisted setting. CRITICAL values are redacted in the audit record.
func (s *Service) UpdateSetting(ctx context.Context, session *domain.Session, key string, req domain.UpdateSettingRequest) Result {
	key = domain.NormalizeSettingKey(key)
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	if err := domain.ValidateSettingValue(key, req.Value); err != nil {
		return fail(err)
	}

	var (
		category  domain.SettingCategory
		updatedAt time.Time
	)
	outcome := s.exec.Execute(ctx, pgx.ReadCommitted,
		func(ctx context.Context, q store.DBTX) domain.AuthorizationResult {
			var auth domain.AuthorizationResult
			category, auth = s.gate.AuthorizeSetting(ctx, q, session, key, authz.AccessWrite, req.PIN)
			return auth
		},
		func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
			before, err := s.settings.LockSetting(ctx, tx, key)
			if err != nil {
				return nil, err
			}
			after, err := s.settings.UpsertSetting(ctx, tx, key, req.Value)
			if err != nil {
				return nil, err
			}
			updatedAt = after.UpdatedAt
			var oldValues interface{}
			if before != nil {
				oldValues = map[string]string{"value": auditValue(category, before.Value)}
			}
			return &domain.Mutation{
				Data:       SettingView{Key: after.Key, Value: auditValue(category, after.Value), Category: category},
				OldValues:  oldValues,
				NewValues:  map[string]string{"value": auditValue(category, after.Value)},
				ActionCode: domain.ActionSettingUpdated,
				EntityType: domain.EntitySetting,
				EntityID:   key,
			}, nil
		})

	result := s.complete(ctx, "setting.update", outcome)
	if result.Success {
		s.cache.Invalidate(ctx, key, updatedAt)
	}
	return result
}

func auditValue(category domain.SettingCategory, value string) string {
	if category == domain.SettingCritical {
		return domain.RedactedValue
	}
	return value
}
