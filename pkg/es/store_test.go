package es

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/dbtx"
)

type recordingPublisher struct {
	published []StoredEvent[testEvent]
}

func (p *recordingPublisher) Publish(_ context.Context, _ dbtx.Executor, _, _ string, event StoredEvent[testEvent]) error {
	p.published = append(p.published, event)
	return nil
}

func newMockStore(t *testing.T, publisher Publisher[testEvent]) (*EventStore[testEvent], sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	store := NewEventStore[testEvent](db, "credit_facility_proposal_events", "CreditFacilityProposal", publisher)
	restore := func() { now = time.Now }

	return store, mock, func() { db.Close(); restore() }
}

func TestEventStoreAppendPersistsPendingEvents(t *testing.T) {
	store, mock, cleanup := newMockStore(t, nil)
	defer cleanup()

	fixedTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixedTime }

	events := NewEntityEvents[testEvent]("proposal-1", testEvent{Type: "initialized", Amount: 1000})

	mock.ExpectExec(`INSERT INTO credit_facility_proposal_events`).
		WithArgs("proposal-1", 1, "initialized", sqlmock.AnyArg(), fixedTime).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Append(context.Background(), events)
	require.NoError(t, err)

	assert.Empty(t, events.Pending())
	assert.Equal(t, 1, events.LastSequence())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreAppendNoPendingIsNoop(t *testing.T) {
	store, mock, cleanup := newMockStore(t, nil)
	defer cleanup()

	events := LoadEntityEvents[testEvent]("proposal-1", []StoredEvent[testEvent]{
		{Sequence: 1, Payload: testEvent{Type: "initialized"}, RecordedAt: time.Now()},
	})

	err := store.Append(context.Background(), events)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreAppendCallsPublisher(t *testing.T) {
	publisher := &recordingPublisher{}
	store, mock, cleanup := newMockStore(t, publisher)
	defer cleanup()

	events := NewEntityEvents[testEvent]("proposal-1", testEvent{Type: "initialized"})

	mock.ExpectExec(`INSERT INTO credit_facility_proposal_events`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Append(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, 1, publisher.published[0].Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreAppendConcurrencyConflict(t *testing.T) {
	store, mock, cleanup := newMockStore(t, nil)
	defer cleanup()

	events := NewEntityEvents[testEvent]("proposal-1", testEvent{Type: "initialized"})

	mock.ExpectExec(`INSERT INTO credit_facility_proposal_events`).
		WillReturnError(&mockPgError{code: "23505"})

	err := store.Append(context.Background(), events)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConcurrencyConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreLoadRehydratesInSequenceOrder(t *testing.T) {
	store, mock, cleanup := newMockStore(t, nil)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"}).
		AddRow(1, []byte(`{"type":"initialized","amount":1000}`), time.Now()).
		AddRow(2, []byte(`{"type":"updated","amount":500}`), time.Now())

	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM credit_facility_proposal_events`).
		WithArgs("proposal-1").
		WillReturnRows(rows)

	stored, err := store.Load(context.Background(), "proposal-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "initialized", stored[0].Payload.Type)
	assert.Equal(t, "updated", stored[1].Payload.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStoreLoadNotFound(t *testing.T) {
	store, mock, cleanup := newMockStore(t, nil)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"sequence", "data", "recorded_at"})

	mock.ExpectQuery(`SELECT sequence, data, recorded_at FROM credit_facility_proposal_events`).
		WithArgs("missing").
		WillReturnRows(rows)

	_, err := store.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

// mockPgError is a plain error, not a *pgconn.PgError, so errors.As does
// not match it and its code field is not read; isUniqueViolation
// recognises it through the "duplicate key value" string fallback.
type mockPgError struct {
	code string
}

func (e *mockPgError) Error() string {
	return "duplicate key value violates unique constraint"
}
