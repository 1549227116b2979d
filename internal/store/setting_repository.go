package store

import (
	"context"
	"errors"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ErrSettingNotSet is returned for whitelisted keys that have no stored value yet.
var ErrSettingNotSet = domain.NotFoundf("setting has no value")

type SettingRepository struct{}

func NewSettingRepository() *SettingRepository {
	return &SettingRepository{}
}

func (r *SettingRepository) GetSetting(ctx context.Context, q DBTX, key string) (*domain.Setting, error) {
	var s domain.Setting
	err := q.QueryRow(ctx, `SELECT key, value, updated_at FROM settings WHERE key = $1`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingNotSet
		}
		return nil, err
	}
	return &s, nil
}

// LockSetting returns the current value under a row lock, or nil if the key was never stored.
func (r *SettingRepository) LockSetting(ctx context.Context, q DBTX, key string) (*domain.Setting, error) {
	var s domain.Setting
	err := q.QueryRow(ctx, `SELECT key, value, updated_at FROM settings WHERE key = $1 FOR UPDATE`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SettingRepository) UpsertSetting(ctx context.Context, q DBTX, key, value string) (*domain.Setting, error) {
	var s domain.Setting
	err := q.QueryRow(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		RETURNING key, value, updated_at
	`, key, value).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
