package app

import (
	"context"
	"encoding/json"

	"github.com/farmacias-vallenar/backoffice-service/internal/authz"
	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// requireID rejects ids that cannot exist, before they reach a query inside a transaction.
func requireID(id string, notFound error) error {
	if _, err := uuid.Parse(id); err != nil {
		return notFound
	}
	return nil
}

// CreateLocation adds a store, warehouse or head office. New topology runs SERIALIZABLE.
func (s *Service) CreateLocation(ctx context.Context, session *domain.Session, req domain.CreateLocationRequest) Result {
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	return s.runPrivileged(ctx, session, authz.OpLocationCreate, req.PIN, pgx.Serializable,
		func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
			loc, err := s.locations.CreateLocation(ctx, tx, req)
			if err != nil {
				return nil, err
			}
			return &domain.Mutation{
				Data:       loc,
				NewValues:  loc,
				ActionCode: domain.ActionLocationCreated,
				EntityType: domain.EntityLocation,
				EntityID:   loc.ID,
			}, nil
		})
}

// DeactivateLocation closes a location. Deactivating twice is rejected.
func (s *Service) DeactivateLocation(ctx context.Context, session *domain.Session, locationID string, req domain.DeactivateLocationRequest) Result {
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	if err := requireID(locationID, store.ErrLocationNotFound); err != nil {
		return fail(err)
	}
	return s.runPrivileged(ctx, session, authz.OpLocationDeactivate, req.PIN, pgx.ReadCommitted,
		func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
			before, err := s.locations.LockLocation(ctx, tx, locationID)
			if err != nil {
				return nil, err
			}
			if !before.IsActive {
				return nil, domain.Validationf("location %s is already inactive", before.Code)
			}
			after, err := s.locations.Deactivate(ctx, tx, locationID, req.Reason)
			if err != nil {
				return nil, err
			}
			return &domain.Mutation{
				Data:       after,
				OldValues:  map[string]interface{}{"is_active": true},
				NewValues:  map[string]interface{}{"is_active": false, "reason": req.Reason},
				ActionCode: domain.ActionLocationDeactivated,
				EntityType: domain.EntityLocation,
				EntityID:   locationID,
			}, nil
		})
}

// UpdateLocationConfig merges changes into the location's JSON config. The row is locked with
// NOWAIT under SERIALIZABLE, so a concurrent editor fails fast with CONCURRENT_MODIFICATION
// instead of silently overwriting.
func (s *Service) UpdateLocationConfig(ctx context.Context, session *domain.Session, locationID string, req domain.UpdateLocationConfigRequest) Result {
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	if err := requireID(locationID, store.ErrLocationNotFound); err != nil {
		return fail(err)
	}
	return s.runPrivileged(ctx, session, authz.OpLocationConfigUpdate, req.PIN, pgx.Serializable,
		func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
			before, err := s.locations.LockLocationNoWait(ctx, tx, locationID)
			if err != nil {
				return nil, err
			}
			merged, err := domain.MergeConfig(before.Config, req.Changes)
			if err != nil {
				return nil, err
			}
			after, err := s.locations.UpdateConfig(ctx, tx, locationID, merged)
			if err != nil {
				return nil, err
			}
			return &domain.Mutation{
				Data:       after,
				OldValues:  rawOrEmpty(before.Config),
				NewValues:  rawOrEmpty(after.Config),
				ActionCode: domain.ActionLocationConfigUpdated,
				EntityType: domain.EntityLocation,
				EntityID:   locationID,
			}, nil
		})
}

// CreateTerminal registers a point-of-sale terminal at an active location.
func (s *Service) CreateTerminal(ctx context.Context, session *domain.Session, locationID string, req domain.CreateTerminalRequest) Result {
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	if err := requireID(locationID, store.ErrLocationNotFound); err != nil {
		return fail(err)
	}
	return s.runPrivileged(ctx, session, authz.OpTerminalCreate, req.PIN, pgx.ReadCommitted,
		func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
			loc, err := s.locations.GetLocation(ctx, tx, locationID)
			if err != nil {
				return nil, err
			}
			if !loc.IsActive {
				return nil, store.ErrLocationInactive
			}
			term, err := s.locations.CreateTerminal(ctx, tx, locationID, req)
			if err != nil {
				return nil, err
			}
			return &domain.Mutation{
				Data:       term,
				NewValues:  term,
				ActionCode: domain.ActionTerminalCreated,
				EntityType: domain.EntityTerminal,
				EntityID:   term.ID,
			}, nil
		})
}

func rawOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
