package store

import (
	"context"
	"testing"
	"time"

	"github.com/koshroy/outpost/models"
)

func TestSaveActivityAssignsID(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	a := &models.Activity{Type: "Create"}
	if err := s.SaveActivity(ctx, a); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if a.ID == "" {
		t.Error("expected SaveActivity to assign an id")
	}

	got, err := s.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Type != "Create" {
		t.Errorf("expected type Create, got %s", got.Type)
	}
}

func TestGetActivityNotFound(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	_, err := s.GetActivity(context.Background(), "missing")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertIntoCollectionAndStream(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	const outbox = "https://localhost/outbox/test"

	var ids []string
	for i := 0; i < 3; i++ {
		a := &models.Activity{Type: "Create"}
		if err := s.SaveActivity(ctx, a); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if err := s.InsertIntoCollection(ctx, a.ID, outbox); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		ids = append(ids, a.ID)
	}

	count, err := s.CollectionCount(ctx, outbox)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected totalItems 3, got %d", count)
	}

	page, err := s.GetStream(ctx, outbox, "", 10)
	if err != nil {
		t.Fatalf("get stream failed: %v", err)
	}
	if len(page.ActivityIDs) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page.ActivityIDs))
	}
	// newest-first: last inserted comes first.
	if page.ActivityIDs[0] != ids[2] {
		t.Errorf("expected newest-first order, got %v", page.ActivityIDs)
	}
	if page.Next != "" {
		t.Errorf("expected no next cursor when the page covers everything, got %q", page.Next)
	}
}

func TestGetStreamPagination(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	const outbox = "https://localhost/outbox/test"

	for i := 0; i < 3; i++ {
		a := &models.Activity{Type: "Create"}
		_ = s.SaveActivity(ctx, a)
		_ = s.InsertIntoCollection(ctx, a.ID, outbox)
	}

	first, err := s.GetStream(ctx, outbox, "", 2)
	if err != nil {
		t.Fatalf("get stream failed: %v", err)
	}
	if len(first.ActivityIDs) != 2 {
		t.Fatalf("expected a 2-item page, got %d", len(first.ActivityIDs))
	}
	if first.Next == "" {
		t.Fatal("expected a next cursor embedding the oldest item on this page")
	}

	second, err := s.GetStream(ctx, outbox, first.Next, 2)
	if err != nil {
		t.Fatalf("get stream failed: %v", err)
	}
	if len(second.ActivityIDs) != 1 {
		t.Fatalf("expected the final page to hold 1 item, got %d", len(second.ActivityIDs))
	}
	if second.Next != "" {
		t.Errorf("expected no further page, got cursor %q", second.Next)
	}
}

func TestUpdateObjectMergesPartial(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	o := &models.Object{
		Type:    []string{"Note"},
		Content: []string{"original"},
		Name:    []string{"keep me"},
	}
	if err := s.SaveObject(ctx, o); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	partial := &models.Object{ID: o.ID, Content: []string{"edited"}}
	if err := s.UpdateObject(ctx, partial); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := s.GetObject(ctx, o.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Content[0] != "edited" {
		t.Errorf("expected content to be edited, got %v", got.Content)
	}
	if got.Name[0] != "keep me" {
		t.Errorf("expected untouched field to survive merge, got %v", got.Name)
	}
}

func TestUpdateObjectInActivitiesPatchesEmbeddedCopies(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	note := &models.Object{Type: []string{"Note"}, Content: []string{"v1"}}
	_ = s.SaveObject(ctx, note)

	a := &models.Activity{
		Type:   "Create",
		Object: []models.Value{{Embedded: &models.Object{ID: note.ID, Content: []string{"v1"}}}},
	}
	_ = s.SaveActivity(ctx, a)

	note.Content = []string{"v2"}
	if err := s.UpdateObjectInActivities(ctx, note); err != nil {
		t.Fatalf("patch failed: %v", err)
	}

	got, _ := s.GetActivity(ctx, a.ID)
	if got.Object[0].Embedded.Content[0] != "v2" {
		t.Errorf("expected embedded copy to be patched, got %v", got.Object[0].Embedded.Content)
	}
}

func TestRemoveFromCollection(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	const liked = "https://localhost/liked/test"

	a := &models.Activity{Type: "Like"}
	_ = s.SaveActivity(ctx, a)
	_ = s.InsertIntoCollection(ctx, a.ID, liked)

	if err := s.RemoveFromCollection(ctx, a.ID, liked); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	count, _ := s.CollectionCount(ctx, liked)
	if count != 0 {
		t.Errorf("expected collection to be empty after removal, got %d", count)
	}

	got, _ := s.GetActivity(ctx, a.ID)
	if got.HasCollection(liked) {
		t.Error("expected activity's _meta.collection to no longer list the removed collection")
	}
}

func TestDeliveryRequeueRecordsAttempt(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.DeliveryRequeue(ctx, "https://mocked.com/inbox/mocked", "act-1", 1, time.Now()); err != nil {
		t.Fatalf("requeue failed: %v", err)
	}

	requeues := s.Requeues()
	if len(requeues) != 1 {
		t.Fatalf("expected 1 requeue entry, got %d", len(requeues))
	}
	if requeues[0].Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", requeues[0].Attempt)
	}
}

func TestDeleteActivityRemovesFromStoreAndCollections(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	const liked = "https://localhost/liked/test"

	a := &models.Activity{Type: "Like"}
	if err := s.SaveActivity(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.InsertIntoCollection(ctx, a.ID, liked); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.DeleteActivity(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.GetActivity(ctx, a.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	count, err := s.CollectionCount(ctx, liked)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected collection emptied after deleting its only member, got %d", count)
	}
}
