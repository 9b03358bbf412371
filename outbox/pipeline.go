// Package outbox implements C5, the pipeline that turns an HTTP POST
// to /outbox/:actor into a normalized, validated, persisted and
// delivered activity, per SPEC_FULL.md section 4.5.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/koshroy/outpost/actorresolver"
	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/audience"
	"github.com/koshroy/outpost/collections"
	"github.com/koshroy/outpost/delivery"
	"github.com/koshroy/outpost/iri"
	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/normalize"
	"github.com/koshroy/outpost/store"
	"github.com/koshroy/outpost/verbs"
)

// Pipeline wires C1 through C8 per the dispatch sequence in
// SPEC_FULL.md section 4.5. Delivery and Observers may be nil in
// tests that only care about persistence and side effects.
type Pipeline struct {
	Normalizer  *normalize.Normalizer
	Store       store.ActivityStore
	Actors      *actorresolver.Resolver
	Collections *collections.Service
	Audience    *audience.Resolver
	Delivery    *delivery.Engine
	Observers   *Observers
	BaseURL     string
}

// NewPipeline builds a Pipeline from its collaborators.
func NewPipeline(
	n *normalize.Normalizer,
	s store.ActivityStore,
	actors *actorresolver.Resolver,
	coll *collections.Service,
	aud *audience.Resolver,
	deliv *delivery.Engine,
	obs *Observers,
	baseURL string,
) *Pipeline {
	return &Pipeline{
		Normalizer:  n,
		Store:       s,
		Actors:      actors,
		Collections: coll,
		Audience:    aud,
		Delivery:    deliv,
		Observers:   obs,
		BaseURL:     baseURL,
	}
}

// Reenter adapts Post to collections.Reenter, letting the collection
// service feed a synthesized Update(collection) broadcast back into
// this same pipeline as though the actor had posted it themselves.
func (p *Pipeline) Reenter(ctx context.Context, actorUsername string, raw map[string]interface{}) error {
	_, err := p.Post(ctx, actorUsername, raw)
	return err
}

// Post runs steps 2 through 10 of the dispatch sequence: resolve the
// local actor, normalize, wrap a bare object, dispatch to the C6
// handler, persist, expand recipients, enqueue delivery, and emit the
// outbox event. The caller (the HTTP handler) is responsible for step
// 1, the content-type check, before raw is ever decoded.
func (p *Pipeline) Post(ctx context.Context, username string, raw map[string]interface{}) (*models.Activity, error) {
	if _, err := p.Actors.ResolveLocalByUsername(ctx, username); err != nil {
		return nil, err
	}
	actorIRI := iri.Actor(p.BaseURL, username)

	a, err := p.Normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}

	if normalize.IsBareObject(a) {
		obj, err := p.Normalizer.NormalizeObject(raw)
		if err != nil {
			return nil, err
		}
		a = &models.Activity{
			Type:      "Create",
			Actor:     []string{actorIRI},
			Object:    []models.Value{{Embedded: obj}},
			To:        obj.To,
			Cc:        obj.Cc,
			Audience:  obj.Audience,
			Published: time.Now().UTC(),
		}
	} else {
		if a.Published.IsZero() {
			a.Published = time.Now().UTC()
		}
	}

	hc := &verbs.Context{
		ActorUsername: username,
		ActorIRI:      actorIRI,
		BaseURL:       p.BaseURL,
		Store:         p.Store,
		Collections:   p.Collections,
	}
	handler := verbs.For(a.Type)

	if handler.Validate != nil {
		if err := handler.Validate(ctx, hc, a); err != nil {
			return nil, err
		}
	}
	if handler.SideEffect != nil {
		if err := handler.SideEffect(ctx, hc, a); err != nil {
			return nil, err
		}
	}

	a.AddCollection(iri.Outbox(p.BaseURL, username))
	pendingCollections := append([]string(nil), a.Meta.Collection...)

	if err := p.Store.SaveActivity(ctx, a); err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	for _, collectionIRI := range pendingCollections {
		if err := p.Store.InsertIntoCollection(ctx, a.ID, collectionIRI); err != nil {
			return nil, fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
		}
	}

	if handler.PostCollections != nil {
		if err := handler.PostCollections(ctx, hc, a); err != nil {
			return nil, err
		}
	}
	if handler.PostPublishCollectionUpdate != nil {
		if err := handler.PostPublishCollectionUpdate(ctx, hc, a); err != nil {
			return nil, err
		}
	}

	inboxes, err := p.Audience.Expand(ctx, username, a)
	if err != nil {
		return nil, err
	}

	// Announce's carve-out: the delivered and event-surfaced form must
	// never denormalize the referenced object into an embedded copy.
	embedObject := a.Type != "Announce"
	doc := normalize.ExternalActivity(a, embedObject)
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}

	if p.Delivery != nil {
		for _, inbox := range inboxes {
			p.Delivery.Enqueue(delivery.Job{
				Recipient:  inbox,
				ActivityID: a.ID,
				SenderIRI:  actorIRI,
				Body:       body,
			})
		}
	}

	if p.Observers != nil {
		p.Observers.Publish(Event{
			Actor:    actorIRI,
			Activity: doc,
			Object:   objectPayload(a),
		})
	}

	return a, nil
}

func objectPayload(a *models.Activity) map[string]interface{} {
	if len(a.Object) == 0 || a.Object[0].Embedded == nil {
		return nil
	}
	return normalize.ExternalObject(a.Object[0].Embedded)
}
