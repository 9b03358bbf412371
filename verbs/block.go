package verbs

import (
	"context"
	"fmt"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/iri"
	"github.com/koshroy/outpost/models"
)

func init() {
	register("Block", Handler{
		Validate:   validateBlock,
		SideEffect: blockSideEffect,
	})
}

func validateBlock(_ context.Context, _ *Context, a *models.Activity) error {
	if len(a.Target) == 0 {
		return fmt.Errorf("%w: block requires a target actor", apierr.ErrMissingTarget)
	}
	return nil
}

// blockSideEffect tags the Block itself into the sender's blocked
// collection (picked up by the pipeline's generic persist-time tagging
// step, same as Like) and suppresses to/cc/audience so the block is
// never federated to the blocked party.
func blockSideEffect(_ context.Context, hc *Context, a *models.Activity) error {
	a.AddCollection(iri.Blocked(hc.BaseURL, hc.ActorUsername))
	a.To = nil
	a.Cc = nil
	a.Audience = nil
	return nil
}
