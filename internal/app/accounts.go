package app

import (
	"context"

	"github.com/farmacias-vallenar/backoffice-service/internal/authz"
	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/jackc/pgx/v5"
)

func (s *Service) CreateAccount(ctx context.Context, session *domain.Session, req domain.CreateAccountRequest) Result {
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	if req.LocationID != nil {
		if err := requireID(*req.LocationID, store.ErrLocationNotFound); err != nil {
			return fail(err)
		}
	}
	return s.runPrivileged(ctx, session, authz.OpAccountCreate, req.PIN, pgx.ReadCommitted,
		func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
			acc, err := s.accounts.CreateAccount(ctx, tx, req)
			if err != nil {
				return nil, err
			}
			return &domain.Mutation{
				Data:       acc,
				NewValues:  acc,
				ActionCode: domain.ActionAccountCreated,
				EntityType: domain.EntityFinancialAccount,
				EntityID:   acc.ID,
			}, nil
		})
}

func (s *Service) UpdateAccount(ctx context.Context, session *domain.Session, accountID string, req domain.UpdateAccountRequest) Result {
	if err := req.Validate(); err != nil {
		return fail(err)
	}
	if err := requireID(accountID, store.ErrAccountNotFound); err != nil {
		return fail(err)
	}
	return s.runPrivileged(ctx, session, authz.OpAccountUpdate, req.PIN, pgx.ReadCommitted,
		func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
			before, err := s.accounts.LockAccount(ctx, tx, accountID)
			if err != nil {
				return nil, err
			}
			if !before.IsActive {
				return nil, domain.Validationf("financial account is inactive")
			}
			after, err := s.accounts.UpdateAccount(ctx, tx, req.Apply(*before))
			if err != nil {
				return nil, err
			}
			return &domain.Mutation{
				Data:       after,
				OldValues:  before,
				NewValues:  after,
				ActionCode: domain.ActionAccountUpdated,
				EntityType: domain.EntityFinancialAccount,
				EntityID:   accountID,
			}, nil
		})
}

func (s *Service) DeactivateAccount(ctx context.Context, session *domain.Session, accountID string, req domain.DeactivateAccountRequest) Result {
	if err := requireID(accountID, store.ErrAccountNotFound); err != nil {
		return fail(err)
	}
	return s.runPrivileged(ctx, session, authz.OpAccountDeactivate, req.PIN, pgx.ReadCommitted,
		func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
			before, err := s.accounts.LockAccount(ctx, tx, accountID)
			if err != nil {
				return nil, err
			}
			if !before.IsActive {
				return nil, domain.Validationf("financial account is already inactive")
			}
			after, err := s.accounts.Deactivate(ctx, tx, accountID)
			if err != nil {
				return nil, err
			}
			return &domain.Mutation{
				Data:       after,
				OldValues:  map[string]interface{}{"is_active": true},
				NewValues:  map[string]interface{}{"is_active": false},
				ActionCode: domain.ActionAccountDeactivated,
				EntityType: domain.EntityFinancialAccount,
				EntityID:   accountID,
			}, nil
		})
}
