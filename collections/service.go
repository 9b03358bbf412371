// Package collections implements C7, the collection service: derived
// per-actor collections (outbox, followers, following, liked, blocked,
// and custom-named collections), their OrderedCollection/
// OrderedCollectionPage read views, and the synthetic Update broadcast
// a membership change must feed back into C5 (SPEC_FULL.md section 4.7).
//
// The underlying store only tags *activities* into a collection IRI
// (SPEC_FULL.md section 4.2's InsertIntoCollection). Followers,
// following, liked, and blocked are therefore stored as the activity
// that caused the membership (an accepted Follow, a Like, a Block) and
// rendered by projecting the member IRI out of that activity, rather
// than storing actor IRIs directly. Kind selects the right projection.
package collections

import (
	"context"
	"fmt"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/iri"
	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/store"
)

// Kind selects how a collection's member IRI is projected out of the
// activity tagged into it.
type Kind int

const (
	// KindActivity renders the tagged activity's own id: the outbox and
	// any custom-named collection.
	KindActivity Kind = iota
	// KindActor renders the tagged activity's actor: followers.
	KindActor
	// KindObject renders the tagged activity's object: following, liked.
	KindObject
	// KindTarget renders the tagged activity's target: blocked.
	KindTarget
)

func project(kind Kind, activityID string, a *models.Activity) string {
	switch kind {
	case KindActor:
		if len(a.Actor) > 0 {
			return a.Actor[0]
		}
	case KindObject:
		if len(a.Object) > 0 {
			return a.Object[0].ID()
		}
	case KindTarget:
		if len(a.Target) > 0 {
			return a.Target[0]
		}
	}
	return activityID
}

// Reenter feeds a server-synthesized activity (raw, pre-normalization,
// in the same shape C1 accepts from a client) back into C5 as though
// actorUsername had posted it themselves. Supplied by whatever wires
// this service to the outbox pipeline, to avoid a collections<->outbox
// import cycle.
type Reenter func(ctx context.Context, actorUsername string, raw map[string]interface{}) error

const pageSize = 20

// Service implements C7 over an ActivityStore.
type Service struct {
	activityStore store.ActivityStore
	baseURL       string
	reenter       Reenter
}

// New builds a Service. reenter may be nil during tests that don't
// exercise update synthesis.
func New(activityStore store.ActivityStore, baseURL string, reenter Reenter) *Service {
	return &Service{activityStore: activityStore, baseURL: baseURL, reenter: reenter}
}

// Summary returns the OrderedCollection read view for collectionIRI.
func (s *Service) Summary(ctx context.Context, collectionIRI, collectionType string) (*models.CollectionSummary, error) {
	count, err := s.activityStore.CollectionCount(ctx, collectionIRI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	return &models.CollectionSummary{
		ID:         collectionIRI,
		Type:       collectionType,
		TotalItems: count,
		First:      collectionIRI + "?page=true",
	}, nil
}

// Page returns one newest-first OrderedCollectionPage, projecting each
// tagged activity's member IRI according to kind.
func (s *Service) Page(ctx context.Context, collectionIRI string, kind Kind, cursor string) (*models.CollectionPage, error) {
	stream, err := s.activityStore.GetStream(ctx, collectionIRI, cursor, pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}

	items := make([]string, 0, len(stream.ActivityIDs))
	for _, id := range stream.ActivityIDs {
		a, err := s.activityStore.GetActivity(ctx, id)
		if err != nil {
			continue
		}
		items = append(items, project(kind, id, a))
	}

	page := &models.CollectionPage{
		ID:           collectionIRI + "?page=" + cursorOrTrue(cursor),
		PartOf:       collectionIRI,
		OrderedItems: items,
	}
	if stream.Next != "" {
		page.Next = collectionIRI + "?page=" + stream.Next
	}
	return page, nil
}

func cursorOrTrue(cursor string) string {
	if cursor == "" {
		return "true"
	}
	return cursor
}

// Members collects every projected member IRI across the full
// collection, used internally by the audience resolver to expand a
// followers collection into its concrete recipients.
func (s *Service) Members(ctx context.Context, collectionIRI string, kind Kind) ([]string, error) {
	var out []string
	cursor := ""
	for {
		page, err := s.Page(ctx, collectionIRI, kind, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page.OrderedItems...)
		if page.Next == "" {
			break
		}
		cursor = page.Next[len(collectionIRI+"?page="):]
	}
	return out, nil
}

// IsBlocked reports whether candidateIRI appears as a block target in
// actorUsername's blocked collection.
func (s *Service) IsBlocked(ctx context.Context, actorUsername, candidateIRI string) (bool, error) {
	blockedIRI := iri.Blocked(s.baseURL, actorUsername)
	members, err := s.Members(ctx, blockedIRI, KindTarget)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m == candidateIRI {
			return true, nil
		}
	}
	return false, nil
}

// Add tags activityID into collectionIRI and synthesizes the
// Update(collection) broadcast described in SPEC_FULL.md section 4.7.
// Only valid for an activityID that is already persisted (the Follow
// being accepted, the Block being undone, and so on) — a verb tagging
// its own not-yet-persisted activity must use Activity.AddCollection
// and let the pipeline's generic persist step do the tagging, then
// call PublishUpdate on its own.
func (s *Service) Add(ctx context.Context, actorUsername, activityID, collectionIRI, collectionType string) error {
	if err := s.activityStore.InsertIntoCollection(ctx, activityID, collectionIRI); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	return s.PublishUpdate(ctx, actorUsername, collectionIRI, collectionType)
}

// Remove untags activityID from collectionIRI and synthesizes the same
// Update broadcast as Add.
func (s *Service) Remove(ctx context.Context, actorUsername, activityID, collectionIRI, collectionType string) error {
	if err := s.activityStore.RemoveFromCollection(ctx, activityID, collectionIRI); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	return s.PublishUpdate(ctx, actorUsername, collectionIRI, collectionType)
}

// PublishUpdate synthesizes the Update(collection) broadcast on its
// own, for callers that tagged the collection by some other path (the
// pipeline's generic outbox/liked tagging of the activity's own id,
// which must happen after that activity is persisted).
func (s *Service) PublishUpdate(ctx context.Context, actorUsername, collectionIRI, collectionType string) error {
	return s.synthesizeUpdate(ctx, actorUsername, collectionIRI, collectionType)
}

func (s *Service) synthesizeUpdate(ctx context.Context, actorUsername, collectionIRI, collectionType string) error {
	if s.reenter == nil {
		return nil
	}

	summary, err := s.Summary(ctx, collectionIRI, collectionType)
	if err != nil {
		return err
	}

	actorIRI := iri.Actor(s.baseURL, actorUsername)
	raw := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"type":     "Update",
		"actor":    actorIRI,
		"object": map[string]interface{}{
			"id":         summary.ID,
			"type":       summary.Type,
			"totalItems": summary.TotalItems,
			"first":      summary.First,
		},
		"to": []string{iri.Followers(s.baseURL, actorUsername)},
	}
	return s.reenter(ctx, actorUsername, raw)
}
