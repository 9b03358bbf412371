package outbox

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/koshroy/outpost/actorresolver"
	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/audience"
	"github.com/koshroy/outpost/collections"
	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/normalize"
	"github.com/koshroy/outpost/store"
	"github.com/koshroy/outpost/util"
)

const testBaseURL = "https://localhost"

func newTestPipeline(t *testing.T) (*Pipeline, store.ActivityStore) {
	t.Helper()

	s := store.NewMemoryStore()
	n := normalize.New(&http.Client{Transport: util.NewMockTransport("testdata/activitystreams.jsonld", nil)})
	actors := actorresolver.New(s, http.DefaultClient, nil, testBaseURL)

	p := &Pipeline{}
	coll := collections.New(s, testBaseURL, p.Reenter)
	aud := audience.New(actors, coll, testBaseURL)

	p.Normalizer = n
	p.Store = s
	p.Actors = actors
	p.Collections = coll
	p.Audience = aud
	p.BaseURL = testBaseURL

	return p, s
}

func mustProvisionActor(t *testing.T, s store.ActivityStore, username string) {
	t.Helper()
	actor := &models.Object{
		ID:    testBaseURL + "/u/" + username,
		Type:  []string{"Person"},
		Local: true,
	}
	if err := s.SaveObject(context.Background(), actor); err != nil {
		t.Fatalf("provision actor: %v", err)
	}
}

func TestPostCreatePersistsAndTagsOutbox(t *testing.T) {
	t.Parallel()

	p, s := newTestPipeline(t)
	mustProvisionActor(t, s, "alice")
	ctx := context.Background()

	raw := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"type":     "Create",
		"actor":    "https://localhost/u/alice",
		"object": map[string]interface{}{
			"type":    "Note",
			"content": "hello",
		},
	}

	a, err := p.Post(ctx, "alice", raw)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected activity id assigned")
	}

	count, err := s.CollectionCount(ctx, "https://localhost/outbox/alice")
	if err != nil {
		t.Fatalf("collection count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one activity tagged in outbox, got %d", count)
	}
}

func TestPostBareObjectWrapsInCreate(t *testing.T) {
	t.Parallel()

	p, s := newTestPipeline(t)
	mustProvisionActor(t, s, "alice")
	ctx := context.Background()

	raw := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"type":     "Note",
		"content":  "a bare note",
	}

	a, err := p.Post(ctx, "alice", raw)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if a.Type != "Create" {
		t.Errorf("expected bare object wrapped in Create, got %s", a.Type)
	}
	if len(a.Actor) != 1 || a.Actor[0] != "https://localhost/u/alice" {
		t.Errorf("expected synthetic Create actor to be the poster, got %v", a.Actor)
	}
	if len(a.Object) != 1 || a.Object[0].Embedded == nil || a.Object[0].Embedded.Content[0] != "a bare note" {
		t.Errorf("expected the bare note embedded as the Create's object, got %+v", a.Object)
	}
}

func TestPostUnknownActorFails(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Post(ctx, "nobody", map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"type":     "Create",
		"actor":    "https://localhost/u/nobody",
	})
	if !errors.Is(err, apierr.ErrUnknownActor) {
		t.Errorf("expected ErrUnknownActor, got %v", err)
	}
}

func TestPostLikeSynthesizesCollectionUpdate(t *testing.T) {
	t.Parallel()

	p, s := newTestPipeline(t)
	mustProvisionActor(t, s, "alice")
	ctx := context.Background()

	note := &models.Object{ID: "https://remote.example/notes/1", Content: []string{"hi"}}
	if err := s.SaveObject(ctx, note); err != nil {
		t.Fatalf("save note: %v", err)
	}

	raw := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"type":     "Like",
		"actor":    "https://localhost/u/alice",
		"object":   note.ID,
	}

	if _, err := p.Post(ctx, "alice", raw); err != nil {
		t.Fatalf("post: %v", err)
	}

	// the Like itself plus the synthesized Update(liked) broadcast both
	// land in alice's outbox.
	count, err := s.CollectionCount(ctx, "https://localhost/outbox/alice")
	if err != nil {
		t.Fatalf("collection count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected Like + synthesized Update in outbox, got %d", count)
	}

	likedCount, err := s.CollectionCount(ctx, "https://localhost/u/alice/liked")
	if err != nil {
		t.Fatalf("liked count: %v", err)
	}
	if likedCount != 1 {
		t.Errorf("expected one liked entry, got %d", likedCount)
	}
}
