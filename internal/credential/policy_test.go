package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/ratelimit"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSettings struct {
	values map[string]string
	err    error
}

func (s *stubSettings) GetSetting(ctx context.Context, q store.DBTX, key string) (*domain.Setting, error) {
	if s.err != nil {
		return nil, s.err
	}
	value, ok := s.values[key]
	if !ok {
		return nil, store.ErrSettingNotSet
	}
	return &domain.Setting{Key: key, Value: value}, nil
}

func TestSettingsPolicy_ResolvePolicy(t *testing.T) {
	tests := []struct {
		name   string
		source *stubSettings
		want   ratelimit.Policy
	}{
		{"both set", &stubSettings{values: map[string]string{
			domain.SettingMaxLoginAttempts:       "5",
			domain.SettingLockoutDurationMinutes: "30",
		}}, ratelimit.Policy{MaxAttempts: 5, LockoutDuration: 30 * time.Minute}},
		{"unset keys fall back", &stubSettings{values: map[string]string{}}, ratelimit.Policy{}},
		{"invalid values fall back", &stubSettings{values: map[string]string{
			domain.SettingMaxLoginAttempts:       "many",
			domain.SettingLockoutDurationMinutes: "0",
		}}, ratelimit.Policy{}},
		{"store error falls back", &stubSettings{err: errors.New("connection reset")}, ratelimit.Policy{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NewSettingsPolicy(tc.source, nil).ResolvePolicy(context.Background(), nil)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestVerify_LockoutFollowsSecurityPolicySettings(t *testing.T) {
	source := &stubSource{candidates: []domain.PrivilegedCandidate{
		{ID: "admin-1", Role: domain.RoleAdmin, CredentialHash: bcryptHash(t, "1111"), IsActive: true},
	}}
	settings := &stubSettings{values: map[string]string{}}
	v, limiter, clock := newTestVerifier(source, WithPolicySource(NewSettingsPolicy(settings, nil)))
	ctx := context.Background()

	// Configured default of three attempts applies while the settings are unset.
	assert.False(t, v.Verify(ctx, nil, "0000", domain.AdminRoles).Valid)
	assert.True(t, limiter.CheckRateLimit(ctx, "admin-1"))
	require.True(t, v.Verify(ctx, nil, "1111", domain.AdminRoles).Valid)

	settings.values[domain.SettingMaxLoginAttempts] = "1"
	settings.values[domain.SettingLockoutDurationMinutes] = "60"

	assert.False(t, v.Verify(ctx, nil, "0000", domain.AdminRoles).Valid)
	assert.False(t, v.Verify(ctx, nil, "1111", domain.AdminRoles).Valid, "locked after a single failure")

	clock.Advance(16 * time.Minute)
	assert.False(t, v.Verify(ctx, nil, "1111", domain.AdminRoles).Valid, "lock lasts the configured sixty minutes")

	clock.Advance(45 * time.Minute)
	assert.True(t, v.Verify(ctx, nil, "1111", domain.AdminRoles).Valid)
}
