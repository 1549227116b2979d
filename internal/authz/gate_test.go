package authz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/farmacias-vallenar/backoffice-service/internal/credential"
	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/ratelimit"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubVerifier struct {
	result credential.VerifyResult
	calls  int
	roles  domain.RoleSet
}

func (s *stubVerifier) Verify(ctx context.Context, q store.DBTX, pin string, roles domain.RoleSet) credential.VerifyResult {
	s.calls++
	s.roles = roles
	return s.result
}

type stubNames map[string]string

func (n stubNames) FindUserName(ctx context.Context, q store.DBTX, userID string) (string, error) {
	if name, ok := n[userID]; ok {
		return name, nil
	}
	return "", store.ErrUserNotFound
}

const sessionUserID = "6f1c2d1e-3b4a-4c5d-8e9f-0a1b2c3d4e5f"

func session(role domain.Role) *domain.Session {
	return &domain.Session{UserID: sessionUserID, Role: role}
}

func TestClassify(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		key  string
		want domain.SettingCategory
		ok   bool
	}{
		{"STORE_NAME", domain.SettingPublic, true},
		{"ADMIN_EMAIL", domain.SettingPrivate, true},
		{"SII_CERT_PASSWORD", domain.SettingCritical, true},
		{"UNKNOWN_KEY", "", false},
		{" store_name ", domain.SettingPublic, true},
	}
	for _, tc := range tests {
		for i := 0; i < 3; i++ {
			got, ok := c.Classify(tc.key)
			assert.Equal(t, tc.ok, ok, tc.key)
			assert.Equal(t, tc.want, got, tc.key)
		}
	}
}

func TestNewClassifierRejectsOverlap(t *testing.T) {
	_, err := NewClassifier([]string{"STORE_NAME"}, []string{"store_name"}, nil)
	assert.Error(t, err)

	c, err := NewClassifier([]string{"A"}, []string{"B"}, []string{"C", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, c.Keys(domain.SettingCritical))
}

func TestAuthorize_PINOperations(t *testing.T) {
	admin := &domain.PrivilegedCandidate{ID: "admin-1", Name: "Ana", Role: domain.RoleAdmin, IsActive: true}

	tests := []struct {
		name     string
		session  *domain.Session
		pin      string
		result   credential.VerifyResult
		wantKind domain.ErrorKind
		wantCall bool
	}{
		{name: "no session", session: nil, pin: "1234", wantKind: domain.ErrKindUnauthenticated},
		{name: "missing pin", session: session(domain.RoleCashier), pin: "", wantKind: domain.ErrKindInvalidPIN},
		{name: "wrong pin", session: session(domain.RoleAdmin), pin: "9999", wantKind: domain.ErrKindInvalidPIN, wantCall: true},
		{name: "cashier session with admin pin", session: session(domain.RoleCashier), pin: "1234", result: credential.VerifyResult{Valid: true, User: admin}, wantCall: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &stubVerifier{result: tc.result}
			gate := NewGate(verifier, stubNames{}, nil, nil)

			res := gate.Authorize(context.Background(), nil, tc.session, OpAccountCreate, tc.pin)

			assert.Equal(t, tc.wantKind == "", res.Authorized)
			assert.Equal(t, tc.wantKind, res.Denial)
			assert.Equal(t, tc.wantCall, verifier.calls == 1)
			if res.Authorized {
				require.NotNil(t, res.ActingUser)
				assert.Equal(t, "admin-1", res.ActingUser.ID)
				assert.Equal(t, domain.AdminRoles, verifier.roles)
			}
		})
	}
}

func TestAuthorize_RoleSetsPerOperation(t *testing.T) {
	verifier := &stubVerifier{}
	gate := NewGate(verifier, stubNames{}, nil, nil)

	for op, want := range map[Operation]domain.RoleSet{
		OpAccountCreate:        domain.AdminRoles,
		OpAccountUpdate:        domain.ManagerRoles,
		OpAccountDeactivate:    domain.AdminRoles,
		OpTerminalCreate:       domain.ManagerRoles,
		OpLocationConfigUpdate: domain.AdminRoles,
		OpStaffAssign:          domain.ManagerRoles,
	} {
		gate.Authorize(context.Background(), nil, session(domain.RoleCashier), op, "1234")
		assert.Equal(t, want, verifier.roles, string(op))
	}

	res := gate.Authorize(context.Background(), nil, session(domain.RoleAdmin), Operation("inventory.purge"), "1234")
	assert.Equal(t, domain.ErrKindForbidden, res.Denial)
}

func TestAuthorize_RoleClaimOperation(t *testing.T) {
	gate := NewGate(&stubVerifier{}, stubNames{sessionUserID: "Gabriela"}, nil, nil)

	res := gate.Authorize(context.Background(), nil, session(domain.RoleManager), OpAuditQuery, "")
	assert.Equal(t, domain.ErrKindForbidden, res.Denial)

	res = gate.Authorize(context.Background(), nil, session(domain.RoleGeneralManager), OpAuditQuery, "")
	require.True(t, res.Authorized)
	assert.Equal(t, domain.Actor{ID: sessionUserID, Name: "Gabriela"}, *res.ActingUser)
}

func TestAuthorizeSetting(t *testing.T) {
	admin := &domain.PrivilegedCandidate{ID: "admin-1", Role: domain.RoleAdmin, IsActive: true}

	tests := []struct {
		name         string
		key          string
		access       Access
		session      *domain.Session
		pin          string
		verify       credential.VerifyResult
		wantCategory domain.SettingCategory
		wantKind     domain.ErrorKind
	}{
		{name: "unknown key", key: "UNKNOWN_KEY", session: session(domain.RoleAdmin), wantKind: domain.ErrKindUnknownSetting},
		{name: "public read anonymous", key: "STORE_NAME", wantCategory: domain.SettingPublic},
		{name: "public write anonymous", key: "STORE_NAME", access: AccessWrite, wantCategory: domain.SettingPublic, wantKind: domain.ErrKindUnauthenticated},
		{name: "public write cashier", key: "STORE_NAME", access: AccessWrite, session: session(domain.RoleCashier), wantCategory: domain.SettingPublic, wantKind: domain.ErrKindForbidden},
		{name: "public write manager", key: "STORE_NAME", access: AccessWrite, session: session(domain.RoleManager), wantCategory: domain.SettingPublic},
		{name: "private anonymous", key: "ADMIN_EMAIL", wantCategory: domain.SettingPrivate, wantKind: domain.ErrKindUnauthenticated},
		{name: "private cashier", key: "ADMIN_EMAIL", session: session(domain.RoleCashier), wantCategory: domain.SettingPrivate, wantKind: domain.ErrKindForbidden},
		{name: "private manager", key: "ADMIN_EMAIL", session: session(domain.RoleManager), wantCategory: domain.SettingPrivate},
		{name: "critical manager", key: "SII_CERT_PASSWORD", session: session(domain.RoleManager), pin: "1234", wantCategory: domain.SettingCritical, wantKind: domain.ErrKindForbidden},
		{name: "critical admin without pin", key: "SII_CERT_PASSWORD", session: session(domain.RoleAdmin), wantCategory: domain.SettingCritical, wantKind: domain.ErrKindInvalidPIN},
		{name: "critical admin wrong pin", key: "SII_CERT_PASSWORD", session: session(domain.RoleAdmin), pin: "0000", wantCategory: domain.SettingCritical, wantKind: domain.ErrKindInvalidPIN},
		{name: "critical admin with pin", key: "SII_CERT_PASSWORD", session: session(domain.RoleAdmin), pin: "1234", verify: credential.VerifyResult{Valid: true, User: admin}, wantCategory: domain.SettingCritical},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gate := NewGate(&stubVerifier{result: tc.verify}, stubNames{}, nil, nil)

			category, res := gate.AuthorizeSetting(context.Background(), nil, tc.session, tc.key, tc.access, tc.pin)

			assert.Equal(t, tc.wantCategory, category)
			assert.Equal(t, tc.wantKind, res.Denial)
			assert.Equal(t, tc.wantKind == "", res.Authorized)
		})
	}
}

type candidateList []domain.PrivilegedCandidate

func (c candidateList) ListActiveCandidates(ctx context.Context, q store.DBTX, roles domain.RoleSet) ([]domain.PrivilegedCandidate, error) {
	out := make([]domain.PrivilegedCandidate, 0)
	for _, candidate := range c {
		if candidate.IsActive && roles.Contains(candidate.Role) {
			out = append(out, candidate)
		}
	}
	return out, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func TestAuthorize_LockoutScenario(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	require.NoError(t, err)
	h := string(hash)
	source := candidateList{{ID: "U1", Name: "Ana", Role: domain.RoleAdmin, CredentialHash: &h, IsActive: true}}

	clock := &manualClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	limiter := ratelimit.NewMemoryLimiter(
		ratelimit.Policy{MaxAttempts: 3, LockoutDuration: 15 * time.Minute},
		ratelimit.WithClock(clock.Now),
	)
	gate := NewGate(credential.NewVerifier(source, limiter), stubNames{}, nil, nil)
	ctx := context.Background()
	sess := session(domain.RoleCashier)

	for i := 0; i < 3; i++ {
		res := gate.Authorize(ctx, nil, sess, OpAccountCreate, "9999")
		assert.Equal(t, domain.ErrKindInvalidPIN, res.Denial)
	}
	res := gate.Authorize(ctx, nil, sess, OpAccountCreate, "1234")
	assert.Equal(t, domain.ErrKindInvalidPIN, res.Denial, "locked candidate rejects the correct PIN")

	clock.mu.Lock()
	clock.now = clock.now.Add(15*time.Minute + time.Second)
	clock.mu.Unlock()

	res = gate.Authorize(ctx, nil, sess, OpAccountCreate, "1234")
	require.True(t, res.Authorized)
	assert.Equal(t, "U1", res.ActingUser.ID)
	assert.Nil(t, limiter.State("U1"))
}
