package verbs

import (
	"context"
	"fmt"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/models"
)

func init() {
	register("Create", Handler{
		SideEffect: createSideEffect,
	})
}

// createSideEffect stores each embedded object carried in the
// activity's object list, assigning it an id and attributedTo if the
// poster left them off, and re-embeds the saved copy.
func createSideEffect(ctx context.Context, hc *Context, a *models.Activity) error {
	for i, v := range a.Object {
		if v.Embedded == nil {
			continue
		}
		obj := v.Embedded
		if len(obj.AttributedTo) == 0 {
			obj.AttributedTo = []string{hc.ActorIRI}
		}
		if err := hc.Store.SaveObject(ctx, obj); err != nil {
			return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
		}
		a.Object[i] = models.Value{Embedded: obj}
	}
	return nil
}
