package verbs

import (
	"context"
	"fmt"
	"strings"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/iri"
	"github.com/koshroy/outpost/models"
)

func init() {
	register("Add", Handler{
		Validate:        validateNamedCollectionEdit,
		PostCollections: addPostCollections,
	})
}

// validateNamedCollectionEdit is shared by Add and Remove: both
// require target (the collection) and object (the item), and require
// the sender own the named collection.
func validateNamedCollectionEdit(_ context.Context, hc *Context, a *models.Activity) error {
	if len(a.Target) == 0 {
		return fmt.Errorf("%w: requires a target collection", apierr.ErrMissingTarget)
	}
	if len(a.Object) == 0 {
		return fmt.Errorf("%w: requires an object", apierr.ErrMissingTarget)
	}
	if !ownsCollection(hc, a.Target[0]) {
		return fmt.Errorf("%w: sender does not own target collection", apierr.ErrOwnershipViolation)
	}
	return nil
}

func ownsCollection(hc *Context, collectionIRI string) bool {
	return strings.HasPrefix(collectionIRI, iri.Actor(hc.BaseURL, hc.ActorUsername)+"/")
}

func addPostCollections(ctx context.Context, hc *Context, a *models.Activity) error {
	if err := hc.Store.InsertIntoCollection(ctx, a.Object[0].ID(), a.Target[0]); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	return nil
}
