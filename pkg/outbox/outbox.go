// Package outbox implements the transactional outbox: every domain event
// an aggregate records is also inserted into a single append-only
// outbox_events table in the same database transaction that persisted it,
// under a global monotonic sequence. A Postgres NOTIFY fires on commit so
// consumers (the notification fan-out, read-model projections) wake up
// immediately instead of polling, while the sequence column lets a
// consumer resume a missed window after a restart.
package outbox

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/trace"

	"github.com/northstarcredit/core/pkg/dbtx"
	"github.com/northstarcredit/core/pkg/es"
)

// DefaultChannel is the Postgres NOTIFY channel outbox rows are announced
// on.
const DefaultChannel = "outbox_events"

// Envelope is one row of the outbox, as handed to a consumer.
type Envelope struct {
	Sequence   int64
	EntityType string
	EntityID   string
	EventType  string
	Payload    []byte
	TraceID    string
	SpanID     string
	RecordedAt time.Time
}

// Relay adapts an EventStore's Publisher hook to write into the shared
// outbox table. One Relay[E] is created per aggregate's event type, but
// all of them write into the same physical table and notify channel, so
// consumers see a single, globally ordered event stream across every
// aggregate in the system.
type Relay[E es.EventPayload] struct {
	table   string
	channel string
}

// NewRelay builds a Relay writing into table and notifying on channel.
func NewRelay[E es.EventPayload](table, channel string) *Relay[E] {
	if channel == "" {
		channel = DefaultChannel
	}

	return &Relay[E]{table: table, channel: channel}
}

// Publish satisfies es.Publisher[E]: it inserts one outbox row carrying
// the event's payload and the caller's trace context, then issues
// pg_notify so that insert becomes visible to listeners the instant this
// transaction commits.
func (r *Relay[E]) Publish(ctx context.Context, exec dbtx.Executor, entityType, entityID string, event es.StoredEvent[E]) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	traceID, spanID := traceIDsFromContext(ctx)

	insert, args, err := squirrel.Insert(r.table).
		Columns("entity_type", "entity_id", "event_type", "payload", "trace_id", "span_id", "recorded_at").
		Values(entityType, entityID, event.Payload.Kind(), payload, traceID, spanID, event.RecordedAt).
		Suffix("RETURNING sequence").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}

	var sequence int64
	if err := exec.QueryRowContext(ctx, insert, args...).Scan(&sequence); err != nil {
		return err
	}

	if _, err := exec.ExecContext(ctx, "SELECT pg_notify($1, $2)", r.channel, strconv.FormatInt(sequence, 10)); err != nil {
		return err
	}

	return nil
}

func traceIDsFromContext(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}

	return sc.TraceID().String(), sc.SpanID().String()
}
