package verbs

import (
	"context"

	"github.com/koshroy/outpost/models"
)

func init() {
	register("Announce", Handler{
		SideEffect: announceSideEffect,
	})
}

// announceSideEffect enforces the carve-out from SPEC_FULL.md section
// 9: an Announce's object stays a bare IRI list, never denormalized,
// since embedding here would defeat the reference semantics of a
// boost/repost.
func announceSideEffect(_ context.Context, _ *Context, a *models.Activity) error {
	for i, v := range a.Object {
		if v.Embedded != nil {
			a.Object[i] = models.Value{IRI: v.Embedded.ID}
		}
	}
	return nil
}
