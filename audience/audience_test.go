package audience

import (
	"context"
	"net/http"
	"testing"

	"github.com/koshroy/outpost/actorresolver"
	"github.com/koshroy/outpost/collections"
	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/store"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestExpandDropsSenderAndDedupes(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	ctx := context.Background()

	alice := &models.Object{ID: "https://localhost/u/alice", Type: []string{"Person"}}
	bob := &models.Object{ID: "https://localhost/u/bob", Type: []string{"Person"}, Inbox: []string{"https://localhost/inbox/bob"}}
	if err := s.SaveObject(ctx, alice); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveObject(ctx, bob); err != nil {
		t.Fatalf("save: %v", err)
	}

	actors := actorresolver.New(s, http.DefaultClient, nil, "https://localhost")
	coll := collections.New(s, "https://localhost", nil)
	r := New(actors, coll, "https://localhost")

	a := &models.Activity{
		Actor: []string{"https://localhost/u/alice"},
		To:    []string{"https://localhost/u/bob", "https://localhost/u/alice", "https://localhost/u/bob"},
	}

	inboxes, err := r.Expand(ctx, "alice", a)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(inboxes) != 1 || inboxes[0] != "https://localhost/inbox/bob" {
		t.Errorf("expected exactly bob's inbox, got %v", inboxes)
	}
}

func TestExpandPrefersSharedInbox(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	ctx := context.Background()

	remote := &models.Object{
		ID:          "https://remote.example/u/carol",
		Type:        []string{"Person"},
		Inbox:       []string{"https://remote.example/inbox/carol"},
		SharedInbox: []string{"https://remote.example/inbox/shared"},
	}
	if err := s.SaveObject(ctx, remote); err != nil {
		t.Fatalf("save: %v", err)
	}

	actors := actorresolver.New(s, http.DefaultClient, nil, "https://localhost")
	coll := collections.New(s, "https://localhost", nil)
	r := New(actors, coll, "https://localhost")

	a := &models.Activity{
		Actor: []string{"https://localhost/u/alice"},
		To:    []string{"https://remote.example/u/carol"},
	}

	inboxes, err := r.Expand(ctx, "alice", a)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(inboxes) != 1 || inboxes[0] != "https://remote.example/inbox/shared" {
		t.Errorf("expected shared inbox preferred, got %v", inboxes)
	}
}

func TestExpandSkipsBlockedRecipients(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	ctx := context.Background()

	troll := &models.Object{ID: "https://remote.example/u/troll", Type: []string{"Person"}, Inbox: []string{"https://remote.example/inbox/troll"}}
	if err := s.SaveObject(ctx, troll); err != nil {
		t.Fatalf("save: %v", err)
	}

	blockID := "urn:outpost:activity:block-1"
	if err := s.SaveActivity(ctx, &models.Activity{
		ID:     blockID,
		Type:   "Block",
		Actor:  []string{"https://localhost/u/alice"},
		Target: []string{"https://remote.example/u/troll"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.InsertIntoCollection(ctx, blockID, "https://localhost/u/alice/blocked"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	actors := actorresolver.New(s, http.DefaultClient, nil, "https://localhost")
	coll := collections.New(s, "https://localhost", nil)
	r := New(actors, coll, "https://localhost")

	a := &models.Activity{
		Actor: []string{"https://localhost/u/alice"},
		To:    []string{"https://remote.example/u/troll"},
	}

	inboxes, err := r.Expand(ctx, "alice", a)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(inboxes) != 0 {
		t.Errorf("expected blocked recipient dropped, got %v", inboxes)
	}
}

func TestExpandReplacesFollowersCollectionWithMembers(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	ctx := context.Background()

	followerObj := &models.Object{ID: "https://remote.example/u/dan", Type: []string{"Person"}, Inbox: []string{"https://remote.example/inbox/dan"}}
	if err := s.SaveObject(ctx, followerObj); err != nil {
		t.Fatalf("save: %v", err)
	}

	followID := "urn:outpost:activity:follow-1"
	if err := s.SaveActivity(ctx, &models.Activity{
		ID:    followID,
		Type:  "Follow",
		Actor: []string{"https://remote.example/u/dan"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.InsertIntoCollection(ctx, followID, "https://localhost/u/alice/followers"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	actors := actorresolver.New(s, http.DefaultClient, nil, "https://localhost")
	coll := collections.New(s, "https://localhost", nil)
	r := New(actors, coll, "https://localhost")

	a := &models.Activity{
		Actor: []string{"https://localhost/u/alice"},
		To:    []string{"https://localhost/u/alice/followers"},
	}

	inboxes, err := r.Expand(ctx, "alice", a)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(inboxes) != 1 || inboxes[0] != "https://remote.example/inbox/dan" {
		t.Errorf("expected follower's inbox, got %v", inboxes)
	}
}
