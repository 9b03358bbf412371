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
	register("Accept", Handler{
		Validate:                    validateFollowReference,
		PostCollections:              acceptPostCollections,
		PostPublishCollectionUpdate: publishFollowersUpdate,
	})
}

// validateFollowReference is shared by Accept and Reject: both
// reference the original Follow activity via object.
func validateFollowReference(ctx context.Context, hc *Context, a *models.Activity) error {
	if len(a.Object) == 0 {
		return fmt.Errorf("%w: requires the original Follow activity", apierr.ErrMissingTarget)
	}
	_, err := hc.Store.GetActivity(ctx, a.Object[0].ID())
	if err == store.ErrNotFound {
		return fmt.Errorf("%w: unknown follow activity", apierr.ErrInvalidActivity)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	return nil
}

func acceptPostCollections(ctx context.Context, hc *Context, a *models.Activity) error {
	follow, err := hc.Store.GetActivity(ctx, a.Object[0].ID())
	if err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	if err := hc.Store.InsertIntoCollection(ctx, follow.ID, iri.Followers(hc.BaseURL, hc.ActorUsername)); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	return nil
}

func publishFollowersUpdate(ctx context.Context, hc *Context, _ *models.Activity) error {
	return hc.Collections.PublishUpdate(ctx, hc.ActorUsername, iri.Followers(hc.BaseURL, hc.ActorUsername), "OrderedCollection")
}
