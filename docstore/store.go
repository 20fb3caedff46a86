// Package docstore is the narrow surface the client core consumes from the
// remote document backend: CRUD on named collections, one-shot queries, and
// live subscriptions that push full result-set snapshots on every change.
package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Filter is a simple equality or array-membership predicate.
type Filter struct {
	Field string
	Op    string // one of "==", "!=", "array-contains"
	Value interface{}
}

// Order names the server-side sort for queries and subscriptions. The core
// relies on server ordering and never re-sorts snapshots client-side.
type Order struct {
	Field string
	Desc  bool
}

// SnapshotFunc receives the full current result set of a subscription. The
// backend delivers complete state per snapshot; consumers rebuild their
// mirrors rather than diffing.
type SnapshotFunc func(docs []bson.Raw)

// ErrorFunc receives subscription stream errors. The subscription stays
// registered until cancelled; consumers decide whether to resubscribe.
type ErrorFunc func(err error)

// Store is the remote document client contract. Get returns
// apperrors.ErrNotFound when the document is absent; Query returns an empty
// list instead (absence is data for reads, an error for targeted writes).
type Store interface {
	Get(ctx context.Context, collection, id string, out interface{}) error
	Set(ctx context.Context, collection, id string, doc interface{}) error
	Update(ctx context.Context, collection, id string, patch map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filters []Filter, order *Order, out interface{}) error
	Subscribe(ctx context.Context, collection string, filters []Filter, order *Order, onSnapshot SnapshotFunc, onError ErrorFunc) (func(), error)
}

// Resetter is implemented by stores that can tear down and rebuild their
// backend connection, used by the breaker's one-shot automatic reset and the
// user-triggered refresh operation.
type Resetter interface {
	RefreshConnection(ctx context.Context) bool
}
