// Package audience implements C4, the audience resolver: turns an
// activity's recipient fields into a deduplicated set of inbox URLs to
// deliver to, per SPEC_FULL.md section 4.4.
package audience

import (
	"context"
	"fmt"
	"strings"

	"github.com/koshroy/outpost/actorresolver"
	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/collections"
	"github.com/koshroy/outpost/iri"
	"github.com/koshroy/outpost/models"
)

// Resolver expands an activity's recipient fields into inbox URLs.
type Resolver struct {
	actors      *actorresolver.Resolver
	collections *collections.Service
	baseURL     string
}

// New builds a Resolver over the shared actor resolver and collection
// service instances the pipeline already wires.
func New(actors *actorresolver.Resolver, coll *collections.Service, baseURL string) *Resolver {
	return &Resolver{actors: actors, collections: coll, baseURL: baseURL}
}

// Expand implements the five-step algorithm from SPEC_FULL.md section
// 4.4. senderUsername is the local actor that posted the activity.
// Upstream fetch failures for individual recipients are swallowed (the
// affected recipient is skipped, per SPEC_FULL.md section 7's
// UpstreamFetchFailure policy) rather than failing the whole expansion.
func (r *Resolver) Expand(ctx context.Context, senderUsername string, a *models.Activity) ([]string, error) {
	senderIRI := iri.Actor(r.baseURL, senderUsername)

	union := unionRecipients(a)

	actorIRIs, err := r.expandCollections(ctx, union)
	if err != nil {
		return nil, err
	}

	actorIRIs = dedupe(actorIRIs)

	inboxes := make(map[string]struct{})
	for _, candidate := range actorIRIs {
		if candidate == senderIRI {
			continue
		}

		blocked, err := r.collections.IsBlocked(ctx, senderUsername, candidate)
		if err != nil {
			return nil, fmt.Errorf("%w: checking block list: %v", apierr.ErrStoreFailure, err)
		}
		if blocked {
			continue
		}

		obj, kind, err := r.actors.Resolve(ctx, candidate)
		if err != nil {
			// upstream fetch failed: skip this recipient, keep going.
			continue
		}
		if kind == actorresolver.KindNotFound || kind == actorresolver.KindTombstone {
			continue
		}

		inbox := preferredInbox(obj)
		if inbox == "" {
			continue
		}
		inboxes[inbox] = struct{}{}
	}

	out := make([]string, 0, len(inboxes))
	for inbox := range inboxes {
		out = append(out, inbox)
	}
	return out, nil
}

func unionRecipients(a *models.Activity) []string {
	var out []string
	out = append(out, a.To...)
	out = append(out, a.Cc...)
	out = append(out, a.Bto...)
	out = append(out, a.Bcc...)
	out = append(out, a.Audience...)
	return dedupe(out)
}

func (r *Resolver) expandCollections(ctx context.Context, candidates []string) ([]string, error) {
	var out []string
	for _, c := range candidates {
		if isFollowersCollection(c) {
			members, err := r.collections.Members(ctx, c, collections.KindActor)
			if err != nil {
				return nil, err
			}
			out = append(out, members...)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func isFollowersCollection(candidate string) bool {
	return strings.HasSuffix(candidate, "/followers")
}

func preferredInbox(obj *models.Object) string {
	if len(obj.SharedInbox) > 0 {
		return obj.SharedInbox[0]
	}
	if len(obj.Inbox) > 0 {
		return obj.Inbox[0]
	}
	return ""
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
