// Package verbs implements C6, one handler per activity type,
// dispatched by C5 against a table mapping verb -> handler record, per
// the polymorphism design note in SPEC_FULL.md section 9.
package verbs

import (
	"context"

	"github.com/koshroy/outpost/collections"
	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/store"
)

// Context is what a verb handler needs from its caller: the sender
// identity and the collaborators it may read/write through.
type Context struct {
	ActorUsername string
	ActorIRI      string
	BaseURL       string
	Store         store.ActivityStore
	Collections   *collections.Service
}

// Handler is the four-stage record from SPEC_FULL.md section 9:
// validate, side effect, post-persist collection edits, and the
// resulting collection-update broadcast. Any stage may be nil.
//
// Validate runs before anything is persisted. SideEffect may mutate a
// in place (embedding/resolving objects, tombstoning, clearing fields)
// and may tag a's own pending collections via a.AddCollection, but
// must not assume a.ID is assigned yet. PostCollections runs after a
// is persisted (a.ID is now final) and performs collection edits that
// reference a's own id, or ownership-checked edits against some other
// already-persisted activity. PostPublishCollectionUpdate synthesizes
// whatever Update(collection) broadcast the edit requires.
type Handler struct {
	Validate                    func(ctx context.Context, hc *Context, a *models.Activity) error
	SideEffect                  func(ctx context.Context, hc *Context, a *models.Activity) error
	PostCollections             func(ctx context.Context, hc *Context, a *models.Activity) error
	PostPublishCollectionUpdate func(ctx context.Context, hc *Context, a *models.Activity) error
}

// table maps AS2 type string to its handler; registered by each verb's
// own init so each file stays self-contained.
var table = map[string]Handler{}

func register(verbType string, h Handler) {
	table[verbType] = h
}

// generic is the catch-all handler: persist and deliver unchanged, no
// side effect, matching the "Generic" entry in SPEC_FULL.md section
// 4.6.
var generic = Handler{}

// For returns the handler for verbType, or the generic handler if no
// specific one is registered.
func For(verbType string) Handler {
	if h, ok := table[verbType]; ok {
		return h
	}
	return generic
}
