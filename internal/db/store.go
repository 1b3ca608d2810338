package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// RawDoc is a single record of a snapshot before entity decoding.
// Decoding into typed models is the caller's job; a record that fails
// to decode is skipped, never fatal for the whole snapshot.
type RawDoc struct {
	ID   string
	Data bson.Raw
}

// Snapshot is the full, ordered result set of a query at one instant.
type Snapshot []RawDoc

// DocRef addresses a single document inside a collection.
type DocRef struct {
	Collection string
	ID         string
}

// CancelFunc unregisters a listener. Calling it more than once is a no-op.
type CancelFunc func()

// ListenFunc receives every snapshot of a watched query, in emission
// order. A non-nil error is terminal: no further calls follow it.
type ListenFunc func(Snapshot, error)

// Store is the persistent change-notifying document store the sync core
// runs against. All components receive it through their constructors so
// tests can substitute a fake.
type Store interface {
	// Listen registers fn against a query. fn is invoked once with the
	// current result set immediately, then again after every mutation
	// that may affect the query. The returned CancelFunc tears the
	// watch down exactly once.
	Listen(ctx context.Context, q *Query, fn ListenFunc) (CancelFunc, error)

	// RunQuery executes a one-shot query.
	RunQuery(ctx context.Context, q *Query) (Snapshot, error)

	// WriteFields applies a partial, field-level update. Concurrent
	// writers touching different fields never lose each other's writes.
	WriteFields(ctx context.Context, ref DocRef, fields map[string]any) error

	// WriteDocument writes the full record, creating it if absent.
	WriteDocument(ctx context.Context, ref DocRef, doc any) error

	// CreateIfAbsent writes doc only when ref does not exist yet and
	// reports whether it created it. Safe under concurrent callers.
	CreateIfAbsent(ctx context.Context, ref DocRef, doc any) (bool, error)

	// TransactionalIncrement atomically adds delta to a numeric field.
	TransactionalIncrement(ctx context.Context, ref DocRef, field string, delta int64) error
}
