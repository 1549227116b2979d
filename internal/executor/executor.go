// Package executor runs privileged mutations as one unit: authorization, the mutation and its
// audit record share a single database transaction, and nothing commits unless all three succeed.
//
// Operations never open, commit or roll back transactions themselves. They hand the executor an
// authorize step and a mutate step, and the executor owns the boundary.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmacias-vallenar/backoffice-service/internal/audit"
	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const DefaultTimeout = 10 * time.Second

// Beginner opens transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Appender writes an audit record inside the caller's transaction.
type Appender interface {
	Append(ctx context.Context, q store.DBTX, rec *domain.AuditRecord) error
}

// AuthorizeFunc decides whether the operation may proceed and who the acting user is.
// It runs inside the transaction so candidate reads see the same snapshot as the mutation.
type AuthorizeFunc func(ctx context.Context, q store.DBTX) domain.AuthorizationResult

// MutateFunc performs the write and describes it for the audit trail.
type MutateFunc func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error)

type Executor struct {
	db      Beginner
	audit   Appender
	timeout time.Duration
	logger  *zap.Logger
}

func New(db Beginner, appender Appender, timeout time.Duration, logger *zap.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{db: db, audit: appender, timeout: timeout, logger: logger}
}

// Execute runs BEGIN, authorize, mutate, audit append and COMMIT at the given isolation level.
// Any failure rolls everything back. A denied authorization writes no audit record.
func (e *Executor) Execute(ctx context.Context, iso pgx.TxIsoLevel, authorize AuthorizeFunc, mutate MutateFunc) domain.MutationOutcome {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return e.fail("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				e.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	auth := authorize(ctx, tx)
	if !auth.Authorized || auth.ActingUser == nil {
		kind := auth.Denial
		if kind == "" {
			kind = domain.ErrKindForbidden
		}
		return domain.MutationOutcome{ErrorKind: kind, Err: &domain.Error{Kind: kind}}
	}

	mutation, err := mutate(ctx, tx)
	if err != nil {
		return e.fail("mutate", err)
	}
	if mutation == nil {
		return e.fail("mutate", errors.New("mutation returned no audit description"))
	}

	record, err := buildRecord(auth.ActingUser, mutation)
	if err != nil {
		return e.fail("audit", err)
	}
	if err := e.audit.Append(ctx, tx, record); err != nil {
		return e.fail("audit", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return e.fail("commit", err)
	}
	committed = true

	return domain.MutationOutcome{Success: true, Data: mutation.Data, Record: record}
}

func buildRecord(actor *domain.Actor, m *domain.Mutation) (*domain.AuditRecord, error) {
	if m.ActionCode == "" || m.EntityType == "" || m.EntityID == "" {
		return nil, fmt.Errorf("incomplete audit description %q/%q/%q", m.ActionCode, m.EntityType, m.EntityID)
	}
	oldValues, err := audit.Snapshot(m.OldValues)
	if err != nil {
		return nil, err
	}
	newValues, err := audit.Snapshot(m.NewValues)
	if err != nil {
		return nil, err
	}
	return &domain.AuditRecord{
		ActorID:    actor.ID,
		ActionCode: m.ActionCode,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}, nil
}

func (e *Executor) fail(stage string, err error) domain.MutationOutcome {
	mapped := MapError(err)
	kind := domain.KindOf(mapped)
	if kind == domain.ErrKindInternal {
		e.logger.Error("privileged mutation failed", zap.String("stage", stage), zap.Error(err))
		mapped = &domain.Error{Kind: domain.ErrKindInternal}
	}
	return domain.MutationOutcome{ErrorKind: kind, Err: mapped}
}
