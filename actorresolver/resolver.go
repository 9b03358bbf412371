// Package actorresolver implements C3, the actor resolver: given an
// IRI, returns a local or remote actor record, caching remote lookups
// (SPEC_FULL.md section 4.3).
package actorresolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/store"
)

// Kind classifies the outcome of Resolve.
type Kind int

const (
	// KindLocal is an actor hosted on this instance.
	KindLocal Kind = iota
	// KindRemote is an actor fetched from a remote server.
	KindRemote
	// KindTombstone is a remote actor that answered 410 Gone.
	KindTombstone
	// KindNotFound is neither local nor fetchable.
	KindNotFound
)

// Resolver resolves actor IRIs to their canonical Object record.
type Resolver struct {
	activityStore store.ActivityStore
	httpClient    *http.Client
	cache         *Cache
	baseURL       string // scheme://host, used to decide local vs remote

	flightOnce sync.Once
	flight     *inFlightGroup
}

// New builds a Resolver. cache may be nil, in which case remote lookups
// are never cached (acceptable for tests, wasteful in production).
func New(activityStore store.ActivityStore, httpClient *http.Client, cache *Cache, baseURL string) *Resolver {
	return &Resolver{
		activityStore: activityStore,
		httpClient:    httpClient,
		cache:         cache,
		baseURL:       baseURL,
	}
}

func (r *Resolver) isLocal(iri string) bool {
	return iri == r.baseURL || strings.HasPrefix(iri, r.baseURL+"/")
}

// Resolve looks up iri, preferring the local store when the IRI belongs
// to this instance, otherwise fetching (and caching) the remote actor.
func (r *Resolver) Resolve(ctx context.Context, iri string) (*models.Object, Kind, error) {
	if r.isLocal(iri) {
		obj, err := r.activityStore.GetObject(ctx, iri)
		if err == store.ErrNotFound {
			return nil, KindNotFound, nil
		}
		if err != nil {
			return nil, KindNotFound, fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
		}
		return obj, KindLocal, nil
	}

	if r.cache != nil {
		if obj, ok := r.cache.Get(iri); ok {
			return obj, KindRemote, nil
		}
	}

	obj, kind, err := r.fetchSingleFlight(ctx, iri)
	if err != nil {
		return nil, KindNotFound, fmt.Errorf("%w: %v", apierr.ErrUpstreamFetchFailure, err)
	}

	if kind == KindRemote && r.cache != nil {
		r.cache.Set(iri, obj)
	}
	return obj, kind, nil
}

// ResolveLocalByUsername resolves the local actor named by a bare
// username (the ":actor" path segment on /outbox/:actor), rather than
// a full IRI. Returns apierr.ErrUnknownActor if not provisioned.
func (r *Resolver) ResolveLocalByUsername(ctx context.Context, username string) (*models.Object, error) {
	iri := r.baseURL + "/u/" + username
	obj, err := r.activityStore.GetObject(ctx, iri)
	if err == store.ErrNotFound {
		return nil, fmt.Errorf("%w: '%s' not found on this instance", apierr.ErrUnknownActor, username)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrStoreFailure, err)
	}
	return obj, nil
}

func (r *Resolver) fetch(ctx context.Context, iri string) (*models.Object, Kind, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iri, nil)
	if err != nil {
		return nil, KindNotFound, err
	}
	req.Header.Set("Accept", "application/activity+json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, KindNotFound, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		return nil, KindTombstone, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, KindNotFound, nil
	case resp.StatusCode >= 400:
		return nil, KindNotFound, fmt.Errorf("actor fetch %s: status %d", iri, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, KindNotFound, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, KindNotFound, fmt.Errorf("decoding remote actor %s: %v", iri, err)
	}

	obj := decodeRemoteActor(raw)
	return obj, KindRemote, nil
}

// decodeRemoteActor performs a light-touch decode of a compact AS2
// actor document (scalars, not full JSON-LD expansion): remote actor
// documents are consumed only for their inbox/sharedInbox/publicKey
// fields, so this mirrors normalize.Normalize's list-coercion without
// paying for a second expand pass over untrusted third-party JSON-LD
// contexts.
func decodeRemoteActor(raw map[string]interface{}) *models.Object {
	o := &models.Object{
		ID:                asString(raw["id"]),
		Type:              asStringList(raw["type"]),
		PreferredUsername: asStringList(raw["preferredUsername"]),
		Inbox:             asStringList(raw["inbox"]),
		Outbox:            asStringList(raw["outbox"]),
		Followers:         asStringList(raw["followers"]),
		Following:         asStringList(raw["following"]),
		Liked:             asStringList(raw["liked"]),
	}

	if endpoints, ok := raw["endpoints"].(map[string]interface{}); ok {
		o.SharedInbox = asStringList(endpoints["sharedInbox"])
	}

	if pk, ok := raw["publicKey"].(map[string]interface{}); ok {
		o.PublicKey = &models.PublicKey{
			ID:           asString(pk["id"]),
			Owner:        asString(pk["owner"]),
			PublicKeyPem: asString(pk["publicKeyPem"]),
		}
	}

	return o
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asStringList(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
