// Package es implements the event-sourced entity runtime shared by every
// aggregate in the credit, custody, deposit, and governance domains: an
// append-only per-entity event log, sequence-numbered rehydration via
// reducer dispatch, optimistic concurrency on update, and an idempotency
// guard so a domain method can be called twice for the same business
// reason (a duplicate webhook, a redelivered outbox row, a rescheduled
// job) without recording the event twice.
package es

import "time"

// EventPayload is implemented by every per-entity event type: a closed,
// serde-style enum of structs discriminated by Kind, the same shape as the
// teacher's own `type` column convention.
type EventPayload interface {
	Kind() string
}

// StoredEvent pairs a payload with the sequence number and timestamp it
// was persisted under. Sequence is 1-based and monotonic per entity.
type StoredEvent[E EventPayload] struct {
	Sequence   int
	Payload    E
	RecordedAt time.Time
}

// EntityEvents is the event log backing one entity instance: events
// already durable (Persisted) plus events recorded on the in-memory entity
// since it was loaded or created (Pending), not yet assigned a sequence
// number or written to storage.
type EntityEvents[E EventPayload] struct {
	EntityID  string
	persisted []StoredEvent[E]
	pending   []E
}

// NewEntityEvents starts the event log for an entity that does not yet
// exist in storage, seeding it with its Initialized-style event(s).
func NewEntityEvents[E EventPayload](entityID string, initial ...E) *EntityEvents[E] {
	return &EntityEvents[E]{EntityID: entityID, pending: append([]E(nil), initial...)}
}

// LoadEntityEvents reconstructs the event log for an entity already in
// storage, from the rows a repository scanned back in sequence order.
func LoadEntityEvents[E EventPayload](entityID string, stored []StoredEvent[E]) *EntityEvents[E] {
	return &EntityEvents[E]{EntityID: entityID, persisted: append([]StoredEvent[E](nil), stored...)}
}

// Append records a new event against the entity. It is not visible to
// storage until the repository persists the entity and calls
// MarkPersisted.
func (e *EntityEvents[E]) Append(events ...E) {
	e.pending = append(e.pending, events...)
}

// All returns every event recorded against the entity, persisted first,
// then pending, in the order a reducer must fold them.
func (e *EntityEvents[E]) All() []E {
	out := make([]E, 0, len(e.persisted)+len(e.pending))
	for _, s := range e.persisted {
		out = append(out, s.Payload)
	}

	return append(out, e.pending...)
}

// Pending returns the events recorded since the entity was loaded or
// created, not yet written to storage.
func (e *EntityEvents[E]) Pending() []E {
	return e.pending
}

// LastSequence returns the sequence number of the most recently persisted
// event, or 0 if the entity has never been persisted.
func (e *EntityEvents[E]) LastSequence() int {
	if len(e.persisted) == 0 {
		return 0
	}

	return e.persisted[len(e.persisted)-1].Sequence
}

// MarkPersisted moves every pending event into the persisted log,
// assigning each the next sequence number in order, and records them as
// having been written at recordedAt. A repository calls this once the
// events have actually been committed to storage.
func (e *EntityEvents[E]) MarkPersisted(recordedAt time.Time) {
	seq := e.LastSequence()

	for _, p := range e.pending {
		seq++
		e.persisted = append(e.persisted, StoredEvent[E]{Sequence: seq, Payload: p, RecordedAt: recordedAt})
	}

	e.pending = nil
}

// FirstPersistedAt returns the timestamp of the entity's Initialized
// event, used by entities that expose a CreatedAt() accessor.
func (e *EntityEvents[E]) FirstPersistedAt() (time.Time, bool) {
	if len(e.persisted) == 0 {
		return time.Time{}, false
	}

	return e.persisted[0].RecordedAt, true
}

// Idempotent is the result of a domain method that may or may not have
// recorded a new event: Executed carries the value produced when the
// event was recorded, Ignored means the call was a no-op repeat of
// something already reflected in the entity's state.
type Idempotent[T any] struct {
	value T
	ok    bool
}

// Executed wraps the value produced by a state change that was actually
// applied.
func Executed[T any](v T) Idempotent[T] {
	return Idempotent[T]{value: v, ok: true}
}

// Ignored reports that a domain method had nothing new to do.
func Ignored[T any]() Idempotent[T] {
	var zero T
	return Idempotent[T]{value: zero, ok: false}
}

// Unwrap returns the wrapped value and whether it was actually executed.
func (i Idempotent[T]) Unwrap() (T, bool) {
	return i.value, i.ok
}

// IsExecuted reports whether the call recorded a new event.
func (i Idempotent[T]) IsExecuted() bool {
	return i.ok
}
