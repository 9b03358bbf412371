package verbs

import (
	"context"
	"fmt"
	"time"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/store"
)

func init() {
	register("Delete", Handler{
		Validate:   validateDelete,
		SideEffect: deleteSideEffect,
	})
}

func validateDelete(ctx context.Context, hc *Context, a *models.Activity) error {
	if len(a.Object) == 0 {
		return fmt.Errorf("%w: delete requires an object", apierr.ErrMissingTarget)
	}

	target, err := hc.Store.GetObject(ctx, a.Object[0].ID())
	if err == store.ErrNotFound {
		return fmt.Errorf("%w: unknown delete target", apierr.ErrInvalidActivity)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	if target.IsTombstone() {
		// tombstone idempotence: an already-deleted object accepts a
		// second Delete as a no-op.
		return nil
	}
	if !ownsAttribution(target.AttributedTo, hc.ActorIRI) {
		return fmt.Errorf("%w: sender does not own delete target", apierr.ErrOwnershipViolation)
	}
	return nil
}

func deleteSideEffect(ctx context.Context, hc *Context, a *models.Activity) error {
	target, err := hc.Store.GetObject(ctx, a.Object[0].ID())
	if err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	if target.IsTombstone() {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	target.Tombstone(now, now)

	if err := hc.Store.SaveObject(ctx, target); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	if err := hc.Store.UpdateObjectInActivities(ctx, target); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}

	a.Object[0] = models.Value{Embedded: target}
	return nil
}

func ownsAttribution(attributedTo []string, actorIRI string) bool {
	for _, a := range attributedTo {
		if a == actorIRI {
			return true
		}
	}
	return false
}
