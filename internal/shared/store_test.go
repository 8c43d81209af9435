package shared

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	tag   pgconn.CommandTag
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return f.tag, f.err
}

func TestIdempotencyCheckAndInsert(t *testing.T) {
	db := &fakeExecer{}
	store := NewIdempotencyStore(db)
	store.now = func() time.Time { return time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "pay-1", IdempotencyModulePayment))
	require.Len(t, db.calls, 1)
	assert.Equal(t, []any{"pay-1", IdempotencyModulePayment, store.now()}, db.calls[0].args)

	assert.ErrorIs(t, store.CheckAndInsert(ctx, "", IdempotencyModulePayment), ErrValidation)
	long := make([]byte, maxIdempotencyKey+1)
	for i := range long {
		long[i] = 'k'
	}
	assert.ErrorIs(t, store.CheckAndInsert(ctx, string(long), IdempotencyModulePayment), ErrValidation)

	db.err = &pgconn.PgError{Code: "23505"}
	assert.ErrorIs(t, store.CheckAndInsert(ctx, "pay-1", IdempotencyModulePayment), ErrIdempotencyConflict)

	db.err = errors.New("connection reset")
	err := store.CheckAndInsert(ctx, "pay-2", IdempotencyModulePayment)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIdempotencyConflict)
}

func TestIdempotencyCleanupCutoff(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("DELETE 4")}
	store := NewIdempotencyStore(db)
	now := time.Date(2024, 5, 9, 3, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	n, err := store.Cleanup(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.Equal(t, now.Add(-7*24*time.Hour), db.calls[0].args[0])

	_, err = store.Cleanup(context.Background(), 0)
	assert.Error(t, err)

	var nilStore *IdempotencyStore
	n, err = nilStore.Cleanup(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &fakeExecer{}
	logger := NewAuditLogger(db)
	at := time.Date(2024, 5, 2, 10, 0, 0, 0, time.FixedZone("EST", -5*3600))

	require.NoError(t, logger.Record(context.Background(), AuditLog{
		ActorID:  7,
		Action:   "invoice.payment",
		Entity:   "invoice",
		EntityID: "12",
		Meta:     map[string]any{"amount": "40.00"},
		At:       at,
	}))
	args := db.calls[0].args
	require.Len(t, args, 6)
	assert.Equal(t, int64(7), *args[0].(*int64))
	var meta map[string]string
	require.NoError(t, json.Unmarshal(args[4].([]byte), &meta))
	assert.Equal(t, "40.00", meta["amount"])
	assert.Equal(t, at.UTC(), *args[5].(*time.Time))

	require.NoError(t, logger.Record(context.Background(), AuditLog{Action: "invoice.overdue", Entity: "invoice", EntityID: "12"}))
	assert.Nil(t, db.calls[1].args[0].(*int64))
	assert.Nil(t, db.calls[1].args[4].([]byte))

	assert.Error(t, logger.Record(context.Background(), AuditLog{Action: "x"}))
}
