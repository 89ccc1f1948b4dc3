package es

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/apptrace"
	"github.com/northstarcredit/core/pkg/dbtx"
)

// Publisher is the hook an EventStore calls, inside the same transaction
// that persisted an event, so it can be relayed downstream (the outbox
// package is the production implementation; tests pass a no-op or a
// recording fake).
type Publisher[E EventPayload] interface {
	Publish(ctx context.Context, exec dbtx.Executor, entityType, entityID string, event StoredEvent[E]) error
}

// NoopPublisher discards every event. Used by entities that have no
// external consumers yet.
type NoopPublisher[E EventPayload] struct{}

func (NoopPublisher[E]) Publish(context.Context, dbtx.Executor, string, string, StoredEvent[E]) error {
	return nil
}

// EventStore is the append-only, per-entity-type event log: every row is
// (entity_id, sequence, type, data, recorded_at), with a unique index on
// (entity_id, sequence) enforcing that Append can never silently clobber a
// concurrent writer. Domain packages compose one EventStore per aggregate
// with their own projection-table repository, which holds the fast-path
// "current state" columns a list query actually needs.
type EventStore[E EventPayload] struct {
	db         *sql.DB
	tableName  string
	entityType string
	publisher  Publisher[E]
	tracerName string
}

// NewEventStore builds an EventStore backed by tableName, a table with
// columns (entity_id text, sequence int, type text, data jsonb,
// recorded_at timestamptz). entityType is used both for apperr.EntityType
// and as the OTel tracer name.
func NewEventStore[E EventPayload](db *sql.DB, tableName, entityType string, publisher Publisher[E]) *EventStore[E] {
	if publisher == nil {
		publisher = NoopPublisher[E]{}
	}

	return &EventStore[E]{
		db:         db,
		tableName:  tableName,
		entityType: entityType,
		publisher:  publisher,
		tracerName: "es." + entityType,
	}
}

// Append persists the entity's pending events, starting at
// events.LastSequence()+1, inside the transaction already on ctx (see
// pkg/dbtx.RunInTransaction). A concurrent writer that already advanced
// the sequence is reported as apperr.ConcurrencyConflict so the caller can
// reload and retry; an empty Pending() is a no-op.
func (s *EventStore[E]) Append(ctx context.Context, events *EntityEvents[E]) error {
	ctx, span := apptrace.Start(ctx, s.tracerName, "Append")
	defer span.End()

	pending := events.Pending()
	if len(pending) == 0 {
		return nil
	}

	exec := dbtx.GetExecutor(ctx, s.db)
	recordedAt := now()
	seq := events.LastSequence()

	for _, payload := range pending {
		seq++

		data, err := json.Marshal(payload)
		if err != nil {
			apptrace.HandleSpanError(span, "marshal event", err)
			return apperr.InvariantViolation(s.entityType, "marshal event: %v", err)
		}

		insert, args, err := squirrel.Insert(s.tableName).
			Columns("entity_id", "sequence", "type", "data", "recorded_at").
			Values(events.EntityID, seq, payload.Kind(), data, recordedAt).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		if _, err := exec.ExecContext(ctx, insert, args...); err != nil {
			if isUniqueViolation(err) {
				return apperr.ConcurrencyConflict(s.entityType, "entity %s: sequence %d already written", events.EntityID, seq)
			}

			apptrace.HandleSpanError(span, "insert event", err)
			return err
		}

		stored := StoredEvent[E]{Sequence: seq, Payload: payload, RecordedAt: recordedAt}
		if err := s.publisher.Publish(ctx, exec, s.entityType, events.EntityID, stored); err != nil {
			apptrace.HandleSpanError(span, "publish event", err)
			return err
		}
	}

	events.MarkPersisted(recordedAt)

	return nil
}

// Load reads every event recorded for entityID, in sequence order. It
// returns apperr.NotFound if the entity has no events at all.
func (s *EventStore[E]) Load(ctx context.Context, entityID string) ([]StoredEvent[E], error) {
	ctx, span := apptrace.Start(ctx, s.tracerName, "Load")
	defer span.End()

	exec := dbtx.GetExecutor(ctx, s.db)

	query, args, err := squirrel.Select("sequence", "data", "recorded_at").
		From(s.tableName).
		Where(squirrel.Eq{"entity_id": entityID}).
		OrderBy("sequence ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		apptrace.HandleSpanError(span, "query events", err)
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent[E]

	for rows.Next() {
		var (
			seq        int
			data       []byte
			recordedAt time.Time
		)

		if err := rows.Scan(&seq, &data, &recordedAt); err != nil {
			return nil, err
		}

		var payload E
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, apperr.InvariantViolation(s.entityType, "unmarshal event %d: %v", seq, err)
		}

		out = append(out, StoredEvent[E]{Sequence: seq, Payload: payload, RecordedAt: recordedAt})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return nil, apperr.NotFound(s.entityType, "entity %s", entityID)
	}

	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	return strings.Contains(err.Error(), "duplicate key value")
}

// now is a seam so tests can observe that Append stamps a timestamp
// without depending on wall-clock time.
var now = time.Now
