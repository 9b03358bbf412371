// Package store implements C2, the activity store: CRUD over
// activities, objects, and collection-membership metadata, per
// SPEC_FULL.md section 4.2.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/koshroy/outpost/models"
)

// ErrNotFound is returned by GetActivity/GetObject when the id is
// absent, distinguishing "not found" from a store failure.
var ErrNotFound = errors.New("not found")

// ErrStoreUnavailable wraps a backend-level failure (connection,
// marshaling, schema) from a durable ActivityStore implementation.
// Callers map this to apierr.ErrStoreFailure at the pipeline boundary.
var ErrStoreUnavailable = errors.New("activity store unavailable")

// StreamPage is one page of a collection stream, newest-first.
type StreamPage struct {
	ActivityIDs []string
	Next        string // cursor of the oldest item on this page; "" if no further page
}

// ActivityStore is the contract the outbox pipeline needs from the
// persistence collaborator (SPEC_FULL.md section 4.2 and section 6's
// "Store contract"). Two implementations exist: MemoryStore (tests,
// local dev) and the pgx-backed PostgresStore (deployment).
type ActivityStore interface {
	// SaveActivity persists a, assigning an id if a.ID is empty.
	// Idempotent on id: saving the same id twice overwrites in place.
	SaveActivity(ctx context.Context, a *models.Activity) error

	// SaveObject persists o, assigning an id if o.ID is empty.
	SaveObject(ctx context.Context, o *models.Object) error

	// GetActivity returns the canonical activity or ErrNotFound.
	GetActivity(ctx context.Context, id string) (*models.Activity, error)

	// GetObject returns the canonical object or ErrNotFound.
	GetObject(ctx context.Context, id string) (*models.Object, error)

	// UpdateObject merges partial into the stored object with the same
	// id, replacing only the fields partial sets. Used by Update.
	UpdateObject(ctx context.Context, partial *models.Object) error

	// UpdateObjectInActivities replaces every embedded copy of o
	// (matched by activity.Object[i].Embedded.ID) across every stored
	// activity with the current canonical copy of o.
	UpdateObjectInActivities(ctx context.Context, o *models.Object) error

	// InsertIntoCollection tags activityID with collectionIRI in
	// _meta.collection.
	InsertIntoCollection(ctx context.Context, activityID, collectionIRI string) error

	// RemoveFromCollection untags activityID from collectionIRI.
	RemoveFromCollection(ctx context.Context, activityID, collectionIRI string) error

	// DeleteActivity removes an activity outright and every collection
	// tag referencing it. Used only by Undo, which reverses the
	// original activity's side effect and then erases it (invariant 6).
	DeleteActivity(ctx context.Context, id string) error

	// GetStream returns a newest-first page of activity ids tagged with
	// collectionIRI. cursor is the opaque insertion key returned as
	// Next on a previous page; empty cursor starts from the newest.
	GetStream(ctx context.Context, collectionIRI string, cursor string, limit int) (StreamPage, error)

	// CollectionCount returns the number of activities tagged with
	// collectionIRI, used for OrderedCollection.totalItems.
	CollectionCount(ctx context.Context, collectionIRI string) (int, error)

	// DeliveryRequeue schedules a retry of delivering activityID to
	// recipient after the backoff appropriate for attempt (section
	// 4.8).
	DeliveryRequeue(ctx context.Context, recipient, activityID string, attempt int, notBefore time.Time) error
}
