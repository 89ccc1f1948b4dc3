package es

import "context"

// Reducer builds an entity's current state by folding its event log.
// Domain packages implement this once per aggregate; it plays the role of
// the teacher's row-scanning in operation.postgresql.go, except the
// "row" here is the full event history rather than a single projection
// row.
type Reducer[T any, E EventPayload] func(events *EntityEvents[E]) (T, error)

// EventAccessor extracts the mutable EntityEvents log embedded in an
// entity, so Repository can read Pending() after a domain method runs and
// persist whatever it appended.
type EventAccessor[T any, E EventPayload] func(entity *T) *EntityEvents[E]

// Repository composes an EventStore with the reducer and accessor needed
// to hand callers a fully rehydrated entity, and to persist whatever new
// events a domain method recorded against it. This is the Go analogue of
// the `Repo<T>` the original Rust domain code calls as
// `repo.find_by_id(id)` / `repo.create_in_op(op, new)` /
// `repo.update_in_op(op, &mut entity)`.
type Repository[T any, E EventPayload] struct {
	store    *EventStore[E]
	reduce   Reducer[T, E]
	accessor EventAccessor[T, E]
}

// NewRepository builds a Repository over an already-constructed
// EventStore.
func NewRepository[T any, E EventPayload](store *EventStore[E], reduce Reducer[T, E], accessor EventAccessor[T, E]) *Repository[T, E] {
	return &Repository[T, E]{store: store, reduce: reduce, accessor: accessor}
}

// Create persists a brand-new entity's Initialized event(s) and returns
// the rehydrated entity. The caller is expected to have already built
// entity via its New* constructor, which seeds EntityEvents with pending
// events but no sequence numbers yet.
func (r *Repository[T, E]) Create(ctx context.Context, entity *T) (T, error) {
	events := r.accessor(entity)

	if err := r.store.Append(ctx, events); err != nil {
		var zero T
		return zero, err
	}

	return r.reduce(events)
}

// Update persists whatever events a domain method appended to entity
// since it was loaded, under optimistic concurrency: if another writer
// advanced the entity's sequence first, Update returns
// apperr.ConcurrencyConflict and the caller must reload and retry.
func (r *Repository[T, E]) Update(ctx context.Context, entity *T) error {
	return r.store.Append(ctx, r.accessor(entity))
}

// Find loads an entity's full event history and rehydrates it via the
// repository's reducer.
func (r *Repository[T, E]) Find(ctx context.Context, entityID string) (T, error) {
	stored, err := r.store.Load(ctx, entityID)
	if err != nil {
		var zero T
		return zero, err
	}

	events := LoadEntityEvents(entityID, stored)

	return r.reduce(events)
}
