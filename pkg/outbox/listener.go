package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/northstarcredit/core/pkg/applog"
)

// Listener streams outbox rows in sequence order, resuming from any point
// a consumer hands it. It uses a dedicated pgx connection for LISTEN/
// NOTIFY (database/sql's driver interface has no notification channel),
// and the shared *sql.DB for the catch-up query that drains everything
// NOTIFY woke it up for, so it never misses a row delivered while it
// wasn't actively waiting.
type Listener struct {
	dsn     string
	db      *sql.DB
	table   string
	channel string
}

// NewListener builds a Listener. dsn must point at the same database as
// db; it is used only to open the dedicated LISTEN connection.
func NewListener(dsn string, db *sql.DB, table, channel string) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}

	return &Listener{dsn: dsn, db: db, table: table, channel: channel}
}

// Listen returns a channel of Envelopes with Sequence > since, delivered
// in order, for as long as ctx is alive. The channel is closed when ctx is
// canceled. After a failed wait it pauses a second and waits again on the
// same connection; it does not reconnect.
func (l *Listener) Listen(ctx context.Context, since int64) (<-chan Envelope, error) {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(ctx, "LISTEN \""+l.channel+"\""); err != nil {
		conn.Close(ctx)
		return nil, err
	}

	out := make(chan Envelope, 256)
	log := applog.FromContext(ctx)

	go func() {
		defer close(out)
		defer conn.Close(context.Background())

		cursor := since

		if err := l.drain(ctx, &cursor, out); err != nil {
			log.Errorf("outbox: initial drain failed: %v", err)
		}

		for {
			if ctx.Err() != nil {
				return
			}

			_, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				log.Warnf("outbox: wait for notification failed: %v", err)
				time.Sleep(time.Second)

				continue
			}

			if err := l.drain(ctx, &cursor, out); err != nil {
				log.Errorf("outbox: drain failed: %v", err)
			}
		}
	}()

	return out, nil
}

func (l *Listener) drain(ctx context.Context, cursor *int64, out chan<- Envelope) error {
	for {
		envelopes, next, err := l.fetchSince(ctx, *cursor)
		if err != nil {
			return err
		}

		if len(envelopes) == 0 {
			return nil
		}

		for _, e := range envelopes {
			select {
			case out <- e:
			case <-ctx.Done():
				return nil
			}
		}

		*cursor = next
	}
}

func (l *Listener) fetchSince(ctx context.Context, since int64) ([]Envelope, int64, error) {
	const batchSize = 256

	rows, err := l.db.QueryContext(ctx,
		`SELECT sequence, entity_type, entity_id, event_type, payload, trace_id, span_id, recorded_at
		 FROM `+l.table+`
		 WHERE sequence > $1
		 ORDER BY sequence ASC
		 LIMIT $2`,
		since, batchSize)
	if err != nil {
		return nil, since, err
	}
	defer rows.Close()

	var out []Envelope

	cursor := since

	for rows.Next() {
		var e Envelope

		if err := rows.Scan(&e.Sequence, &e.EntityType, &e.EntityID, &e.EventType, &e.Payload, &e.TraceID, &e.SpanID, &e.RecordedAt); err != nil {
			return nil, since, err
		}

		out = append(out, e)
		cursor = e.Sequence
	}

	if err := rows.Err(); err != nil {
		return nil, since, err
	}

	return out, cursor, nil
}
