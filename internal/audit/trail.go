// Package audit persists the append-only trail of privileged mutations.
//
// Records are only ever inserted inside the executor's transaction, so a record exists exactly
// when its mutation committed. There is no update or delete path.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/google/uuid"
)

const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
)

type Trail struct {
	now func() time.Time
}

func NewTrail() *Trail {
	return &Trail{now: func() time.Time { return time.Now().UTC() }}
}

// Append writes rec within q, filling in ID and OccurredAt when unset.
func (t *Trail) Append(ctx context.Context, q store.DBTX, rec *domain.AuditRecord) error {
	if rec.ActorID == "" {
		return fmt.Errorf("audit record for %s has no actor", rec.ActionCode)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = t.now()
	}

	_, err := q.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_id, action_code, entity_type, entity_id, old_values, new_values, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.ActorID, rec.ActionCode, rec.EntityType, rec.EntityID,
		nullableJSON(rec.OldValues), nullableJSON(rec.NewValues), rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Query returns the most recent records for an entity, newest first.
func (t *Trail) Query(ctx context.Context, q store.DBTX, entityType, entityID string, limit int) ([]domain.AuditRecord, error) {
	limit = ClampLimit(limit)

	rows, err := q.Query(ctx, `
		SELECT id::text, actor_id, action_code, entity_type, entity_id, old_values, new_values, occurred_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at DESC, id DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AuditRecord, 0, limit)
	for rows.Next() {
		var rec domain.AuditRecord
		var oldValues, newValues []byte
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.ActionCode, &rec.EntityType, &rec.EntityID, &oldValues, &newValues, &rec.OccurredAt); err != nil {
			return nil, err
		}
		rec.OldValues = json.RawMessage(oldValues)
		rec.NewValues = json.RawMessage(newValues)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ClampLimit bounds a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// Snapshot marshals a value for the old/new columns. A nil value stays SQL NULL.
func Snapshot(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit snapshot: %w", err)
	}
	return data, nil
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
