package verbs

import (
	"context"
	"fmt"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/store"
)

func init() {
	register("Undo", Handler{
		Validate:   validateUndo,
		SideEffect: undoSideEffect,
	})
}

func validateUndo(ctx context.Context, hc *Context, a *models.Activity) error {
	if len(a.Object) == 0 {
		return fmt.Errorf("%w: undo requires the original activity", apierr.ErrMissingTarget)
	}

	original, err := hc.Store.GetActivity(ctx, a.Object[0].ID())
	if err == store.ErrNotFound {
		return fmt.Errorf("%w: unknown undo target", apierr.ErrInvalidActivity)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	if original.ActorSet() != a.ActorSet() {
		return fmt.Errorf("%w: sender did not post the undone activity", apierr.ErrOwnershipViolation)
	}
	return nil
}

// undoSideEffect reverses the original activity by untagging it from
// every collection it currently belongs to (invariant 3: _meta.
// collection is authoritative, so this reverses whatever side effect
// put it there) and then deletes it outright.
func undoSideEffect(ctx context.Context, hc *Context, a *models.Activity) error {
	original, err := hc.Store.GetActivity(ctx, a.Object[0].ID())
	if err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}

	for _, collIRI := range append([]string(nil), original.Meta.Collection...) {
		if isBroadcastCollection(collIRI) {
			if err := hc.Collections.Remove(ctx, hc.ActorUsername, original.ID, collIRI, "OrderedCollection"); err != nil {
				return err
			}
			continue
		}
		if err := hc.Store.RemoveFromCollection(ctx, original.ID, collIRI); err != nil {
			return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
		}
	}

	if err := hc.Store.DeleteActivity(ctx, original.ID); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	return nil
}
