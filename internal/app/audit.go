package app

import (
	"context"
	"strings"

	"github.com/farmacias-vallenar/backoffice-service/internal/authz"
	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"go.uber.org/zap"
)

// QueryAudit lists the most recent audit records of an entity for admin-level sessions.
func (s *Service) QueryAudit(ctx context.Context, session *domain.Session, entityType, entityID string, limit int) Result {
	auth := s.gate.Authorize(ctx, s.db, session, authz.OpAuditQuery, "")
	if !auth.Authorized {
		return denied(auth.Denial)
	}
	entityType = strings.ToUpper(strings.TrimSpace(entityType))
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return fail(domain.Validationf("entity type and id are required"))
	}

	records, err := s.audit.Query(ctx, s.db, entityType, entityID, limit)
	if err != nil {
		s.logger.Error("audit query failed", zap.String("entity_type", entityType), zap.String("entity_id", entityID), zap.Error(err))
		return fail(err)
	}
	return ok(records)
}
