package verbs

import (
	"context"
	"fmt"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/iri"
	"github.com/koshroy/outpost/models"
)

func init() {
	register("Reject", Handler{
		Validate:                    validateFollowReference,
		PostCollections:              rejectPostCollections,
		PostPublishCollectionUpdate: publishFollowersUpdate,
	})
}

// rejectPostCollections moves the referenced Follow out of followers
// (a no-op if it was never accepted) and into the per-actor rejected
// collection.
func rejectPostCollections(ctx context.Context, hc *Context, a *models.Activity) error {
	follow, err := hc.Store.GetActivity(ctx, a.Object[0].ID())
	if err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	if err := hc.Store.RemoveFromCollection(ctx, follow.ID, iri.Followers(hc.BaseURL, hc.ActorUsername)); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	if err := hc.Store.InsertIntoCollection(ctx, follow.ID, iri.Rejected(hc.BaseURL, hc.ActorUsername)); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	return nil
}
