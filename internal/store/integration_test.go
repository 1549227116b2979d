package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/testsupport"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dbURL := testsupport.Postgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := NewPool(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func insertUser(t *testing.T, pool *pgxpool.Pool, name string, role domain.Role, active bool, hash, plaintext *string, createdAt time.Time) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, name, role, is_active, credential_hash, credential_plaintext, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, name, string(role), active, hash, plaintext, createdAt)
	require.NoError(t, err)
	return id
}

func strPtr(s string) *string { return &s }

func TestPostgresRepositories(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	users := NewUserRepository()
	locations := NewLocationRepository()
	accounts := NewAccountRepository()
	settings := NewSettingRepository()

	t.Run("candidates are active, role-filtered and oldest first", func(t *testing.T) {
		second := insertUser(t, pool, "Second Admin", domain.RoleAdmin, true, strPtr("$2a$10$x"), nil, base.Add(time.Hour))
		first := insertUser(t, pool, "First GM", domain.RoleGeneralManager, true, nil, strPtr("5678"), base)
		insertUser(t, pool, "Retired Admin", domain.RoleAdmin, false, nil, strPtr("1111"), base)
		insertUser(t, pool, "Cashier", domain.RoleCashier, true, nil, strPtr("2222"), base)

		candidates, err := users.ListActiveCandidates(ctx, pool, domain.AdminRoles)
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		assert.Equal(t, first, candidates[0].ID)
		assert.Equal(t, second, candidates[1].ID)
		assert.Nil(t, candidates[0].CredentialHash)
		require.NotNil(t, candidates[0].CredentialPlaintext)
		assert.Equal(t, "5678", *candidates[0].CredentialPlaintext)

		name, err := users.FindUserName(ctx, pool, first)
		require.NoError(t, err)
		assert.Equal(t, "First GM", name)

		_, err = users.FindUserName(ctx, pool, uuid.NewString())
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("setting a credential hash clears the plaintext", func(t *testing.T) {
		id := insertUser(t, pool, "Legacy", domain.RoleManager, true, nil, strPtr("4444"), base)
		require.NoError(t, users.SetCredentialHash(ctx, pool, id, "$2a$10$new"))

		var hash, plaintext *string
		require.NoError(t, pool.QueryRow(ctx, `SELECT credential_hash, credential_plaintext FROM users WHERE id = $1`, id).Scan(&hash, &plaintext))
		require.NotNil(t, hash)
		assert.Equal(t, "$2a$10$new", *hash)
		assert.Nil(t, plaintext)

		assert.ErrorIs(t, users.SetCredentialHash(ctx, pool, uuid.NewString(), "h"), ErrUserNotFound)
	})

	t.Run("locations, terminals and staff assignment", func(t *testing.T) {
		loc, err := locations.CreateLocation(ctx, pool, domain.CreateLocationRequest{
			Code: "STG-01", Name: "Sucursal Centro", LocationType: "STORE", Address: "Calle 1",
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(loc.Config))
		assert.True(t, loc.IsActive)

		_, err = locations.CreateLocation(ctx, pool, domain.CreateLocationRequest{Code: "STG-01", Name: "Dup", LocationType: "STORE"})
		var pgErr *pgconn.PgError
		require.True(t, errors.As(err, &pgErr))
		assert.Equal(t, "23505", pgErr.Code)

		updated, err := locations.UpdateConfig(ctx, pool, loc.ID, json.RawMessage(`{"opening_hour":"08:00"}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"opening_hour":"08:00"}`, string(updated.Config))

		terminal, err := locations.CreateTerminal(ctx, pool, loc.ID, domain.CreateTerminalRequest{Code: "POS-1", Name: "Caja 1"})
		require.NoError(t, err)
		assert.Equal(t, loc.ID, terminal.LocationID)

		staff := insertUser(t, pool, "Cajera", domain.RoleCashier, true, nil, nil, base)
		require.NoError(t, users.AssignLocation(ctx, pool, staff, loc.ID))
		member, err := users.LockStaffMember(ctx, pool, staff)
		require.NoError(t, err)
		require.NotNil(t, member.LocationID)
		assert.Equal(t, loc.ID, *member.LocationID)

		deactivated, err := locations.Deactivate(ctx, pool, loc.ID, "cierre definitivo")
		require.NoError(t, err)
		assert.False(t, deactivated.IsActive)
		require.NotNil(t, deactivated.DeactivationReason)
		assert.Equal(t, "cierre definitivo", *deactivated.DeactivationReason)

		_, err = locations.GetLocation(ctx, pool, uuid.NewString())
		assert.ErrorIs(t, err, ErrLocationNotFound)
	})

	t.Run("financial accounts", func(t *testing.T) {
		acc, err := accounts.CreateAccount(ctx, pool, domain.CreateAccountRequest{
			Name: "Banco Estado", AccountType: "BANK", BankName: "BancoEstado", AccountNumber: "123", Currency: "CLP",
		})
		require.NoError(t, err)
		assert.True(t, acc.IsActive)

		acc.Name = "Banco Estado Principal"
		updated, err := accounts.UpdateAccount(ctx, pool, *acc)
		require.NoError(t, err)
		assert.Equal(t, "Banco Estado Principal", updated.Name)

		closed, err := accounts.Deactivate(ctx, pool, acc.ID)
		require.NoError(t, err)
		assert.False(t, closed.IsActive)

		_, err = accounts.LockAccount(ctx, pool, uuid.NewString())
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("settings", func(t *testing.T) {
		missing, err := settings.LockSetting(ctx, pool, "tax_rate")
		require.NoError(t, err)
		assert.Nil(t, missing)

		_, err = settings.GetSetting(ctx, pool, "tax_rate")
		assert.ErrorIs(t, err, ErrSettingNotSet)

		_, err = settings.UpsertSetting(ctx, pool, "tax_rate", "0.19")
		require.NoError(t, err)
		saved, err := settings.UpsertSetting(ctx, pool, "tax_rate", "0.20")
		require.NoError(t, err)
		assert.Equal(t, "0.20", saved.Value)

		got, err := settings.GetSetting(ctx, pool, "tax_rate")
		require.NoError(t, err)
		assert.Equal(t, "0.20", got.Value)
	})
}
