package verbs

import (
	"context"
	"errors"
	"fmt"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/iri"
	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/store"
)

func init() {
	register("Update", Handler{
		Validate:   validateUpdate,
		SideEffect: updateSideEffect,
	})
}

func validateUpdate(_ context.Context, _ *Context, a *models.Activity) error {
	if len(a.Object) == 0 || a.Object[0].Embedded == nil || a.Object[0].Embedded.ID == "" {
		return fmt.Errorf("%w: update requires an embedded object with an id", apierr.ErrInvalidActivity)
	}
	return nil
}

// updateSideEffect merges the partial object into the canonical copy,
// patches every activity that embeds it, and re-embeds the full
// post-merge object into the outgoing Update — stripped of
// process-internal fields if the target is a local actor (SPEC_FULL.md
// section 9's Open Question resolution).
//
// A target id with no tracked object (the collection service's
// synthesized Update(followers/liked/...) broadcast, whose object is a
// collection summary rather than a stored Note or actor) is not an
// error: there is nothing to merge, so the activity passes through
// with its embedded object unchanged.
func updateSideEffect(ctx context.Context, hc *Context, a *models.Activity) error {
	partial := a.Object[0].Embedded

	if err := hc.Store.UpdateObject(ctx, partial); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}

	fresh, err := hc.Store.GetObject(ctx, partial.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}

	if err := hc.Store.UpdateObjectInActivities(ctx, fresh); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}

	outgoing := fresh
	if iri.Username(hc.BaseURL, fresh.ID) != "" {
		outgoing = fresh.External()
	}
	a.Object[0] = models.Value{Embedded: outgoing}
	return nil
}
