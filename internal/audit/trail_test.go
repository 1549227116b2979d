package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/farmacias-vallenar/backoffice-service/internal/testsupport"
)

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultQueryLimit, ClampLimit(0))
	assert.Equal(t, DefaultQueryLimit, ClampLimit(-3))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxQueryLimit, ClampLimit(MaxQueryLimit+1))
}

func TestSnapshot(t *testing.T) {
	raw, err := Snapshot(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = Snapshot(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw))

	raw, err = Snapshot(map[string]string{"name": "Caja"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Caja"}`, string(raw))

	_, err = Snapshot(func() {})
	assert.Error(t, err)
}

func TestAppendRequiresActor(t *testing.T) {
	err := NewTrail().Append(context.Background(), nil, &domain.AuditRecord{ActionCode: domain.ActionAccountCreated})
	assert.Error(t, err)
}

func TestTrailAgainstPostgres(t *testing.T) {
	dbURL := testsupport.Postgres(t)
	ctx := context.Background()
	pool, err := store.NewPool(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trail := NewTrail()
	for i := 0; i < 3; i++ {
		rec := &domain.AuditRecord{
			ActorID:    "actor-1",
			ActionCode: domain.ActionAccountUpdated,
			EntityType: domain.EntityFinancialAccount,
			EntityID:   "acc-1",
			NewValues:  json.RawMessage(`{"step":` + string(rune('0'+i)) + `}`),
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, trail.Append(ctx, pool, rec))
		assert.NotEmpty(t, rec.ID)
	}
	require.NoError(t, trail.Append(ctx, pool, &domain.AuditRecord{
		ActorID: "actor-1", ActionCode: domain.ActionAccountCreated, EntityType: domain.EntityFinancialAccount, EntityID: "acc-2",
	}))

	records, err := trail.Query(ctx, pool, domain.EntityFinancialAccount, "acc-1", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"step":2}`, string(records[0].NewValues))
	assert.JSONEq(t, `{"step":1}`, string(records[1].NewValues))
	assert.Empty(t, records[0].OldValues)
	assert.True(t, records[0].OccurredAt.After(records[1].OccurredAt))
}
