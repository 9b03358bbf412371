package verbs

import (
	"context"
	"fmt"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/iri"
	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/store"
)

func init() {
	register("Like", Handler{
		Validate:                    validateLike,
		SideEffect:                  likeSideEffect,
		PostPublishCollectionUpdate: publishLikedUpdate,
	})
}

func validateLike(_ context.Context, _ *Context, a *models.Activity) error {
	if len(a.Object) == 0 {
		return fmt.Errorf("%w: like requires an object", apierr.ErrMissingTarget)
	}
	return nil
}

// likeSideEffect resolves the liked object for embedding and tags the
// Like activity itself into the sender's liked collection. The tag is
// applied here (on the in-memory activity, not via a store call)
// because the Like's own id isn't assigned until the pipeline persists
// it after SideEffect runs; the pipeline's generic tagging step reads
// this back off a.Meta.Collection.
func likeSideEffect(ctx context.Context, hc *Context, a *models.Activity) error {
	targetIRI := a.Object[0].ID()

	obj, err := hc.Store.GetObject(ctx, targetIRI)
	switch {
	case err == nil:
		a.Object[0] = models.Value{Embedded: obj}
	case err == store.ErrNotFound:
		a.Object[0] = models.Value{IRI: targetIRI}
	default:
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}

	a.AddCollection(iri.Liked(hc.BaseURL, hc.ActorUsername))
	return nil
}

func publishLikedUpdate(ctx context.Context, hc *Context, _ *models.Activity) error {
	return hc.Collections.PublishUpdate(ctx, hc.ActorUsername, iri.Liked(hc.BaseURL, hc.ActorUsername), "OrderedCollection")
}
