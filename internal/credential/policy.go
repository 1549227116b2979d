package credential

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/ratelimit"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"go.uber.org/zap"
)

// PolicySource resolves the lockout policy in force for a verification. Zero fields leave the
// limiter's configured value in place.
type PolicySource interface {
	ResolvePolicy(ctx context.Context, q store.DBTX) ratelimit.Policy
}

// SettingReader is implemented by *store.SettingRepository.
type SettingReader interface {
	GetSetting(ctx context.Context, q store.DBTX, key string) (*domain.Setting, error)
}

// SettingsPolicy reads MAX_LOGIN_ATTEMPTS and LOCKOUT_DURATION_MINUTES from the settings table.
type SettingsPolicy struct {
	settings SettingReader
	logger   *zap.Logger
}

func NewSettingsPolicy(settings SettingReader, logger *zap.Logger) *SettingsPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsPolicy{settings: settings, logger: logger}
}

func (p *SettingsPolicy) ResolvePolicy(ctx context.Context, q store.DBTX) ratelimit.Policy {
	var policy ratelimit.Policy
	if n, ok := p.positiveInt(ctx, q, domain.SettingMaxLoginAttempts); ok {
		policy.MaxAttempts = n
	}
	if n, ok := p.positiveInt(ctx, q, domain.SettingLockoutDurationMinutes); ok {
		policy.LockoutDuration = time.Duration(n) * time.Minute
	}
	return policy
}

func (p *SettingsPolicy) positiveInt(ctx context.Context, q store.DBTX, key string) (int, bool) {
	setting, err := p.settings.GetSetting(ctx, q, key)
	if err != nil {
		if domain.KindOf(err) != domain.ErrKindNotFound {
			p.logger.Warn("security policy setting unreadable; using configured default", zap.String("key", key), zap.Error(err))
		}
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(setting.Value))
	if err != nil || n < 1 {
		p.logger.Warn("security policy setting invalid; using configured default", zap.String("key", key))
		return 0, false
	}
	return n, true
}
