package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
	"github.com/farmacias-vallenar/backoffice-service/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB records committed statements. Writes made through a fakeTx are buffered until Commit.
type fakeDB struct {
	mu        sync.Mutex
	committed []string
	begins    []pgx.TxIsoLevel
	beginErr  error
	commitErr error
	rollbacks int
}

func (db *fakeDB) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.begins = append(db.begins, opts.IsoLevel)
	if db.beginErr != nil {
		return nil, db.beginErr
	}
	return &fakeTx{db: db}, nil
}

func (db *fakeDB) statements() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]string(nil), db.committed...)
}

type fakeTx struct {
	pgx.Tx
	db      *fakeDB
	pending []string
	closed  bool
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx.closed {
		return pgconn.CommandTag{}, pgx.ErrTxClosed
	}
	tx.pending = append(tx.pending, sql)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	if tx.db.commitErr != nil {
		return tx.db.commitErr
	}
	tx.db.committed = append(tx.db.committed, tx.pending...)
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	tx.pending = nil
	tx.db.mu.Lock()
	tx.db.rollbacks++
	tx.db.mu.Unlock()
	return nil
}

type fakeAppender struct {
	err     error
	records []domain.AuditRecord
}

func (a *fakeAppender) Append(ctx context.Context, q store.DBTX, rec *domain.AuditRecord) error {
	if a.err != nil {
		return a.err
	}
	rec.ID = "audit-1"
	a.records = append(a.records, *rec)
	_, err := q.Exec(ctx, "INSERT audit")
	return err
}

func grant(id, name string) AuthorizeFunc {
	return func(ctx context.Context, q store.DBTX) domain.AuthorizationResult {
		return domain.Granted(domain.Actor{ID: id, Name: name})
	}
}

func deny(kind domain.ErrorKind) AuthorizeFunc {
	return func(ctx context.Context, q store.DBTX) domain.AuthorizationResult {
		return domain.Denied(kind)
	}
}

func writeEntity(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
	if _, err := tx.Exec(ctx, "INSERT entity"); err != nil {
		return nil, err
	}
	return &domain.Mutation{
		Data:       map[string]string{"id": "loc-1"},
		NewValues:  map[string]string{"code": "SUC01"},
		ActionCode: domain.ActionLocationCreated,
		EntityType: domain.EntityLocation,
		EntityID:   "loc-1",
	}, nil
}

func TestExecuteCommitsMutationAndAudit(t *testing.T) {
	db := &fakeDB{}
	appender := &fakeAppender{}
	exec := New(db, appender, 0, nil)

	outcome := exec.Execute(context.Background(), pgx.Serializable, grant("user-admin", "Ana"), writeEntity)

	require.True(t, outcome.Success)
	assert.Equal(t, []string{"INSERT entity", "INSERT audit"}, db.statements())
	assert.Equal(t, []pgx.TxIsoLevel{pgx.Serializable}, db.begins)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, "user-admin", outcome.Record.ActorID)
	assert.JSONEq(t, `{"code":"SUC01"}`, string(outcome.Record.NewValues))
	assert.Nil(t, outcome.Record.OldValues)
	assert.Equal(t, map[string]string{"id": "loc-1"}, outcome.Data)
}

func TestExecuteAtomicityUnderFaults(t *testing.T) {
	tests := []struct {
		name      string
		appendErr error
		commitErr error
		mutate    MutateFunc
		wantKind  domain.ErrorKind
	}{
		{
			name: "mutation fails after a partial write",
			mutate: func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
				_, _ = tx.Exec(ctx, "INSERT entity")
				return nil, errors.New("disk full")
			},
			wantKind: domain.ErrKindInternal,
		},
		{
			name: "mutation returns a domain error",
			mutate: func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
				_, _ = tx.Exec(ctx, "INSERT entity")
				return nil, domain.Validationf("bad input")
			},
			wantKind: domain.ErrKindValidation,
		},
		{
			name:      "audit append fails",
			appendErr: errors.New("audit table unavailable"),
			mutate:    writeEntity,
			wantKind:  domain.ErrKindInternal,
		},
		{
			name:      "commit hits a serialization failure",
			commitErr: &pgconn.PgError{Code: "40001"},
			mutate:    writeEntity,
			wantKind:  domain.ErrKindConcurrentModification,
		},
		{
			name: "mutation hits lock_not_available",
			mutate: func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
				return nil, &pgconn.PgError{Code: "55P03"}
			},
			wantKind: domain.ErrKindConcurrentModification,
		},
		{
			name: "mutation returns no description",
			mutate: func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
				_, _ = tx.Exec(ctx, "INSERT entity")
				return nil, nil
			},
			wantKind: domain.ErrKindInternal,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := &fakeDB{commitErr: tc.commitErr}
			exec := New(db, &fakeAppender{err: tc.appendErr}, 0, nil)

			outcome := exec.Execute(context.Background(), pgx.ReadCommitted, grant("user-admin", "Ana"), tc.mutate)

			assert.False(t, outcome.Success)
			assert.Equal(t, tc.wantKind, outcome.ErrorKind)
			assert.Empty(t, db.statements(), "no write may survive a failed execution")
			assert.Nil(t, outcome.Record)
		})
	}
}

func TestExecuteDeniedWritesNoAudit(t *testing.T) {
	for _, kind := range []domain.ErrorKind{
		domain.ErrKindUnauthenticated,
		domain.ErrKindForbidden,
		domain.ErrKindInvalidPIN,
	} {
		t.Run(string(kind), func(t *testing.T) {
			db := &fakeDB{}
			appender := &fakeAppender{}
			mutated := false
			exec := New(db, appender, 0, nil)

			outcome := exec.Execute(context.Background(), pgx.ReadCommitted, deny(kind), func(ctx context.Context, tx pgx.Tx) (*domain.Mutation, error) {
				mutated = true
				return writeEntity(ctx, tx)
			})

			assert.False(t, outcome.Success)
			assert.Equal(t, kind, outcome.ErrorKind)
			assert.True(t, errors.Is(outcome.Err, domainSentinel(kind)))
			assert.False(t, mutated)
			assert.Empty(t, appender.records)
			assert.Empty(t, db.statements())
			assert.Equal(t, 1, db.rollbacks)
		})
	}
}

func TestExecuteActorComesFromAuthorization(t *testing.T) {
	db := &fakeDB{}
	appender := &fakeAppender{}
	exec := New(db, appender, 0, nil)

	// The session belongs to someone else; only the verified PIN holder is audited.
	outcome := exec.Execute(context.Background(), pgx.ReadCommitted, grant("gm-verified", "Gabriela"), writeEntity)

	require.True(t, outcome.Success)
	require.Len(t, appender.records, 1)
	assert.Equal(t, "gm-verified", appender.records[0].ActorID)
}

func TestExecuteBeginFailure(t *testing.T) {
	db := &fakeDB{beginErr: errors.New("pool exhausted")}
	exec := New(db, &fakeAppender{}, 0, nil)

	outcome := exec.Execute(context.Background(), pgx.ReadCommitted, grant("u", "n"), writeEntity)

	assert.False(t, outcome.Success)
	assert.Equal(t, domain.ErrKindInternal, outcome.ErrorKind)
	assert.Equal(t, "internal error", outcome.Err.Error())
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		want domain.ErrorKind
	}{
		{&pgconn.PgError{Code: "40001"}, domain.ErrKindConcurrentModification},
		{&pgconn.PgError{Code: "40P01"}, domain.ErrKindConcurrentModification},
		{&pgconn.PgError{Code: "55P03"}, domain.ErrKindConcurrentModification},
		{&pgconn.PgError{Code: "23505"}, domain.ErrKindValidation},
		{&pgconn.PgError{Code: "23503"}, domain.ErrKindValidation},
		{&pgconn.PgError{Code: "XX000"}, domain.ErrKindInternal},
		{pgx.ErrNoRows, domain.ErrKindNotFound},
		{domain.NotFoundf("location not found"), domain.ErrKindNotFound},
		{errors.New("boom"), domain.ErrKindInternal},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, domain.KindOf(MapError(tc.err)), "%v", tc.err)
	}
	assert.True(t, IsConcurrentModification(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsConcurrentModification(errors.New("boom")))
}

func domainSentinel(kind domain.ErrorKind) error {
	switch kind {
	case domain.ErrKindUnauthenticated:
		return domain.ErrUnauthenticated
	case domain.ErrKindInvalidPIN:
		return domain.ErrInvalidPIN
	default:
		return domain.ErrForbidden
	}
}
