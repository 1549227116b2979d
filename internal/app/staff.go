package app

import (
	"context"

	"github.com/farmacias-vallenar/backoffice-service/internal/authz"
	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/jackc/pgx/v5"
)

// AssignStaff moves a staff member to another active location.
func (s *Service) AssignStaff(ctx context.Context, session *domain.Session, userID string, req domain.AssignStaffRequest) Result {
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	if err := requireID(userID, store.ErrUserNotFound); err != nil {
		return fail(err)
	}
	if err := requireID(req.LocationID, store.ErrLocationNotFound); err != nil {
		return fail(err)
	}
	return s.runPrivileged(ctx, session, authz.OpStaffAssign, req.PIN, pgx.ReadCommitted,
		func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
			member, err := s.staff.LockStaffMember(ctx, tx, userID)
			if err != nil {
				return nil, err
			}
			loc, err := s.locations.GetLocation(ctx, tx, req.LocationID)
			if err != nil {
				return nil, err
			}
			if !loc.IsActive {
				return nil, store.ErrLocationInactive
			}
			if err := s.staff.AssignLocation(ctx, tx, userID, req.LocationID); err != nil {
				return nil, err
			}
			previous := member.LocationID
			member.LocationID = &req.LocationID
			return &domain.Mutation{
				Data:       member,
				OldValues:  map[string]interface{}{"location_id": previous},
				NewValues:  map[string]interface{}{"location_id": req.LocationID},
				ActionCode: domain.ActionStaffAssigned,
				EntityType: domain.EntityUser,
				EntityID:   userID,
			}, nil
		})
}

// SetStaffPIN stores a bcrypt hash of the new PIN and clears any legacy plaintext credential.
// Neither PIN appears in the audit record.
func (s *Service) SetStaffPIN(ctx context.Context, session *domain.Session, userID string, req domain.SetStaffPINRequest) Result {
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	if err := requireID(userID, store.ErrUserNotFound); err != nil {
		return fail(err)
	}
	return s.runPrivileged(ctx, session, authz.OpStaffPINSet, req.PIN, pgx.ReadCommitted,
		func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
			member, err := s.staff.LockStaffMember(ctx, tx, userID)
			if err != nil {
				return nil, err
			}
			if !member.IsActive {
				return nil, domain.Validationf("staff member is inactive")
			}
			hash, err := s.hashPIN(req.NewPIN)
			if err != nil {
				return nil, err
			}
			if err := s.staff.SetCredentialHash(ctx, tx, userID, hash); err != nil {
				return nil, err
			}
			return &domain.Mutation{
				Data:       member,
				NewValues:  map[string]interface{}{"credential": "updated"},
				ActionCode: domain.ActionStaffPINChanged,
				EntityType: domain.EntityUser,
				EntityID:   userID,
			}, nil
		})
}
