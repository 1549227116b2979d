/**
 * @description
 * The back-office operation layer. Each privileged operation is a thin declaration: which
 * policy guards it, which isolation level it runs at, and what it writes. The executor owns
 * the transaction, the gate owns authorization, and the audit record is written by the
 * executor from the authorized actor.
 *
 * After a successful commit the service publishes an audit event and invalidates cached
 * settings. Both are best-effort and never change the operation's result.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: Isolation levels and pgx.Tx for mutate steps.
 * - internal/authz, internal/executor, internal/store: Core collaborators.
 * - pkg/rabbitmq: Audit event publishing.
 */

package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/farmacias-vallenar/backoffice-service/internal/authz"
	"github.com/farmacias-vallenar/backoffice-service/internal/credential"
	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/executor"
	"github.com/farmacias-vallenar/backoffice-service/internal/settings"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/farmacias-vallenar/backoffice-service/pkg/rabbitmq"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const publishTimeout = 3 * time.Second

// Executor runs a privileged mutation as one transaction.
type Executor interface {
	Execute(ctx context.Context, iso pgx.TxIsoLevel, authorize executor.AuthorizeFunc, mutate executor.MutateFunc) domain.MutationOutcome
}

// Gate authorizes operations and setting access.
type Gate interface {
	Authorize(ctx context.Context, q store.DBTX, session *domain.Session, op authz.Operation, pin string) domain.AuthorizationResult
	AuthorizeSetting(ctx context.Context, q store.DBTX, session *domain.Session, key string, access authz.Access, pin string) (domain.SettingCategory, domain.AuthorizationResult)
}

type LocationStore interface {
	CreateLocation(ctx context.Context, q store.DBTX, req domain.CreateLocationRequest) (*domain.Location, error)
	GetLocation(ctx context.Context, q store.DBTX, id string) (*domain.Location, error)
	LockLocation(ctx context.Context, q store.DBTX, id string) (*domain.Location, error)
	LockLocationNoWait(ctx context.Context, q store.DBTX, id string) (*domain.Location, error)
	Deactivate(ctx context.Context, q store.DBTX, id, reason string) (*domain.Location, error)
	UpdateConfig(ctx context.Context, q store.DBTX, id string, config json.RawMessage) (*domain.Location, error)
	CreateTerminal(ctx context.Context, q store.DBTX, locationID string, req domain.CreateTerminalRequest) (*domain.Terminal, error)
}

type AccountStore interface {
	CreateAccount(ctx context.Context, q store.DBTX, req domain.CreateAccountRequest) (*domain.FinancialAccount, error)
	LockAccount(ctx context.Context, q store.DBTX, id string) (*domain.FinancialAccount, error)
	UpdateAccount(ctx context.Context, q store.DBTX, acc domain.FinancialAccount) (*domain.FinancialAccount, error)
	Deactivate(ctx context.Context, q store.DBTX, id string) (*domain.FinancialAccount, error)
}

type StaffStore interface {
	LockStaffMember(ctx context.Context, q store.DBTX, userID string) (*domain.StaffMember, error)
	AssignLocation(ctx context.Context, q store.DBTX, userID, locationID string) error
	SetCredentialHash(ctx context.Context, q store.DBTX, userID, hash string) error
}

type SettingStore interface {
	GetSetting(ctx context.Context, q store.DBTX, key string) (*domain.Setting, error)
	LockSetting(ctx context.Context, q store.DBTX, key string) (*domain.Setting, error)
	UpsertSetting(ctx context.Context, q store.DBTX, key, value string) (*domain.Setting, error)
}

type AuditReader interface {
	Query(ctx context.Context, q store.DBTX, entityType, entityID string, limit int) ([]domain.AuditRecord, error)
}

// Dependencies groups the collaborators of a Service.
type Dependencies struct {
	DB            store.DBTX
	Executor      Executor
	Gate          Gate
	Locations     LocationStore
	Accounts      AccountStore
	Staff         StaffStore
	Settings      SettingStore
	Audit         AuditReader
	Cache         settings.Cache
	Publisher     rabbitmq.Publisher
	EventExchange string
	HashPIN       func(pin string) (string, error)
	Logger        *zap.Logger
}

// Service exposes the privileged back-office operations.
type Service struct {
	db            store.DBTX
	exec          Executor
	gate          Gate
	locations     LocationStore
	accounts      AccountStore
	staff         StaffStore
	settings      SettingStore
	audit         AuditReader
	cache         settings.Cache
	publisher     rabbitmq.Publisher
	eventExchange string
	hashPIN       func(pin string) (string, error)
	logger        *zap.Logger
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		db:            deps.DB,
		exec:          deps.Executor,
		gate:          deps.Gate,
		locations:     deps.Locations,
		accounts:      deps.Accounts,
		staff:         deps.Staff,
		settings:      deps.Settings,
		audit:         deps.Audit,
		cache:         deps.Cache,
		publisher:     deps.Publisher,
		eventExchange: deps.EventExchange,
		hashPIN:       deps.HashPIN,
		logger:        deps.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.cache == nil {
		s.cache = settings.NewMemoryCache(settings.DefaultTTL)
	}
	if s.publisher == nil {
		s.publisher = &rabbitmq.EventProducerFallback{Logger: s.logger}
	}
	if s.hashPIN == nil {
		s.hashPIN = credential.HashPIN
	}
	if s.eventExchange == "" {
		s.eventExchange = "backoffice.events"
	}
	return s
}

// runPrivileged executes mutate under the static policy of op.
func (s *Service) runPrivileged(ctx context.Context, session *domain.Session, op authz.Operation, pin string, iso pgx.TxIsoLevel, mutate executor.MutateFunc) Result {
	outcome := s.exec.Execute(ctx, iso, func(ctx context.Context, q store.DBTX) domain.AuthorizationResult {
		return s.gate.Authorize(ctx, q, session, op, pin)
	}, mutate)
	return s.complete(ctx, string(op), outcome)
}

func (s *Service) complete(ctx context.Context, op string, outcome domain.MutationOutcome) Result {
	if !outcome.Success {
		if outcome.ErrorKind == domain.ErrKindConcurrentModification {
			s.logger.Info("privileged operation conflicted", zap.String("operation", op))
		}
		return fromOutcome(outcome)
	}
	if outcome.Record != nil {
		s.publishAudit(ctx, *outcome.Record)
	}
	return fromOutcome(outcome)
}

func (s *Service) publishAudit(ctx context.Context, rec domain.AuditRecord) {
	event := rabbitmq.AuditEvent{
		Event:      rabbitmq.EventAuditRecorded,
		RecordID:   rec.ID,
		ActorID:    rec.ActorID,
		ActionCode: rec.ActionCode,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		NewValues:  rec.NewValues,
		OccurredAt: rec.OccurredAt,
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, s.eventExchange, event.RoutingKey(), event); err != nil {
		s.logger.Warn("audit event publish failed",
			zap.String("action_code", rec.ActionCode),
			zap.String("entity_id", rec.EntityID),
			zap.Error(err),
		)
	}
}
