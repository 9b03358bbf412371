package verbs

import (
	"context"
	"fmt"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/models"
)

func init() {
	register("Remove", Handler{
		Validate:        validateNamedCollectionEdit,
		PostCollections: removePostCollections,
	})
}

func removePostCollections(ctx context.Context, hc *Context, a *models.Activity) error {
	if err := hc.Store.RemoveFromCollection(ctx, a.Object[0].ID(), a.Target[0]); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	return nil
}
