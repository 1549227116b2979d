package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrLocationNotFound = domain.NotFoundf("location not found")
	ErrLocationInactive = domain.Validationf("location is not active")
)

const locationColumns = `id::text, code, name, location_type, address, is_active, config, created_at, updated_at, deactivated_at, deactivation_reason`

type LocationRepository struct{}

func NewLocationRepository() *LocationRepository {
	return &LocationRepository{}
}

func scanLocation(row pgx.Row) (*domain.Location, error) {
	var loc domain.Location
	var config []byte
	err := row.Scan(
		&loc.ID,
		&loc.Code,
		&loc.Name,
		&loc.LocationType,
		&loc.Address,
		&loc.IsActive,
		&config,
		&loc.CreatedAt,
		&loc.UpdatedAt,
		&loc.DeactivatedAt,
		&loc.DeactivationReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}
	loc.Config = json.RawMessage(config)
	return &loc, nil
}

// CreateLocation inserts a location; a duplicate code surfaces as a unique violation.
func (r *LocationRepository) CreateLocation(ctx context.Context, q DBTX, req domain.CreateLocationRequest) (*domain.Location, error) {
	config := req.Config
	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}
	return scanLocation(q.QueryRow(ctx, `
		INSERT INTO locations (id, code, name, location_type, address, config)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+locationColumns,
		uuid.NewString(), req.Code, req.Name, req.LocationType, req.Address, []byte(config),
	))
}

// GetLocation reads a location without locking it.
func (r *LocationRepository) GetLocation(ctx context.Context, q DBTX, id string) (*domain.Location, error) {
	return scanLocation(q.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id))
}

// LockLocation row-locks a location, waiting for concurrent writers.
func (r *LocationRepository) LockLocation(ctx context.Context, q DBTX, id string) (*domain.Location, error) {
	return scanLocation(q.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1 FOR UPDATE`, id))
}

// LockLocationNoWait row-locks a location and fails with lock_not_available if another
// transaction already holds it.
func (r *LocationRepository) LockLocationNoWait(ctx context.Context, q DBTX, id string) (*domain.Location, error) {
	return scanLocation(q.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1 FOR UPDATE NOWAIT`, id))
}

func (r *LocationRepository) Deactivate(ctx context.Context, q DBTX, id, reason string) (*domain.Location, error) {
	return scanLocation(q.QueryRow(ctx, `
		UPDATE locations
		SET is_active = FALSE, deactivated_at = NOW(), deactivation_reason = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+locationColumns,
		id, reason,
	))
}

func (r *LocationRepository) UpdateConfig(ctx context.Context, q DBTX, id string, config json.RawMessage) (*domain.Location, error) {
	return scanLocation(q.QueryRow(ctx, `
		UPDATE locations
		SET config = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+locationColumns,
		id, []byte(config),
	))
}

func (r *LocationRepository) CreateTerminal(ctx context.Context, q DBTX, locationID string, req domain.CreateTerminalRequest) (*domain.Terminal, error) {
	var term domain.Terminal
	err := q.QueryRow(ctx, `
		INSERT INTO terminals (id, location_id, code, name)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, location_id::text, code, name, is_active, created_at
	`, uuid.NewString(), locationID, req.Code, req.Name).Scan(
		&term.ID, &term.LocationID, &term.Code, &term.Name, &term.IsActive, &term.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &term, nil
}
