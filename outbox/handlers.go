package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/collections"
	"github.com/koshroy/outpost/iri"
	"github.com/koshroy/outpost/store"
)

const maxActivitySz = 16 * (1 << 20) // 16 MB, matching the teacher's inbox controller.

// acceptableContentType implements step 1 of the dispatch sequence:
// reject anything that isn't an activity media type before it is ever
// decoded, matching the teacher's historical 404-on-bad-media-type
// surface (SPEC_FULL.md section 9) rather than a 415.
func acceptableContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.Contains(ct, "application/activity+json") || strings.Contains(ct, "application/ld+json")
}

func errorResponse(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(apierr.StatusFor(err))
	w.Write([]byte(err.Error()))
}

func writeJSON(w http.ResponseWriter, status int, doc interface{}) {
	w.Header().Set("Content-Type", `application/activity+json`)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

// PostOutbox handles POST /outbox/:actor.
func (p *Pipeline) PostOutbox(w http.ResponseWriter, r *http.Request) {
	if !acceptableContentType(r) {
		errorResponse(w, apierr.ErrUnsupportedMediaType)
		return
	}

	username := chi.URLParam(r, "actor")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActivitySz))
	if err != nil {
		errorResponse(w, fmt.Errorf("%w: %v", apierr.ErrInvalidActivity, err))
		return
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		errorResponse(w, fmt.Errorf("%w: %v", apierr.ErrInvalidActivity, err))
		return
	}

	if _, err := p.Post(r.Context(), username, raw); err != nil {
		errorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetOutbox handles GET /outbox/:actor, the outbox OrderedCollection
// and its pages, per SPEC_FULL.md section 6.
func (p *Pipeline) GetOutbox(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "actor")
	collectionIRI := iri.Outbox(p.BaseURL, username)
	p.serveCollection(w, r, collectionIRI, "OrderedCollection", collections.KindActivity)
}

// GetFollowers, GetFollowing and GetLiked handle the remaining
// per-actor OrderedCollections named in SPEC_FULL.md section 6.
func (p *Pipeline) GetFollowers(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "actor")
	p.serveCollection(w, r, iri.Followers(p.BaseURL, username), "OrderedCollection", collections.KindActor)
}

func (p *Pipeline) GetFollowing(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "actor")
	p.serveCollection(w, r, iri.Following(p.BaseURL, username), "OrderedCollection", collections.KindObject)
}

func (p *Pipeline) GetLiked(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "actor")
	p.serveCollection(w, r, iri.Liked(p.BaseURL, username), "OrderedCollection", collections.KindObject)
}

func (p *Pipeline) serveCollection(w http.ResponseWriter, r *http.Request, collectionIRI, collectionType string, kind collections.Kind) {
	ctx := r.Context()
	query := r.URL.Query()

	if !query.Has("page") {
		summary, err := p.Collections.Summary(ctx, collectionIRI, collectionType)
		if err != nil {
			errorResponse(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"@context":   "https://www.w3.org/ns/activitystreams",
			"id":         summary.ID,
			"type":       summary.Type,
			"totalItems": summary.TotalItems,
			"first":      summary.First,
		})
		return
	}

	cursor := query.Get("page")
	if cursor == "true" {
		cursor = ""
	}

	page, err := p.Collections.Page(ctx, collectionIRI, kind, cursor)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			errorResponse(w, apierr.ErrUnknownActor)
			return
		}
		errorResponse(w, err)
		return
	}

	doc := map[string]interface{}{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           page.ID,
		"type":         "OrderedCollectionPage",
		"partOf":       page.PartOf,
		"orderedItems": page.OrderedItems,
	}
	if page.Next != "" {
		doc["next"] = page.Next
	}
	writeJSON(w, http.StatusOK, doc)
}

// Mount registers the outbox and per-actor collection routes on r.
func (p *Pipeline) Mount(r chi.Router) {
	r.Post("/outbox/{actor}", p.PostOutbox)
	r.Get("/outbox/{actor}", p.GetOutbox)
	r.Get("/u/{actor}/followers", p.GetFollowers)
	r.Get("/u/{actor}/following", p.GetFollowing)
	r.Get("/u/{actor}/liked", p.GetLiked)
}
