package store

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/koshroy/outpost/models"
)

// MemoryStore is an in-memory ActivityStore, the test/dev fixture
// behind the interface. It generalizes the teacher's sharded
// sync.RWMutex-over-maps idiom (tasks/mem.go, subscriptions/mem.go)
// from task bookkeeping to the full activity/object/collection graph.
//
// Collection-membership edits and activity persistence are serialized
// per activity id via idLocks, a lazily-populated map of per-id
// mutexes, rather than one global lock (SPEC_FULL.md section 5).
type MemoryStore struct {
	mu sync.RWMutex

	activities  map[string]*models.Activity
	objects     map[string]*models.Object
	insertOrder []string // activity ids, oldest first, across the whole store
	collection  map[string][]string // collection IRI -> activity ids, insertion order

	idLocksMu sync.Mutex
	idLocks   map[string]*sync.Mutex

	requeueMu sync.Mutex
	requeues  []RequeueEntry
}

// RequeueEntry records one deliveryRequeue call, inspectable by tests.
type RequeueEntry struct {
	Recipient  string
	ActivityID string
	Attempt    int
	NotBefore  time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		activities: make(map[string]*models.Activity),
		objects:    make(map[string]*models.Object),
		collection: make(map[string][]string),
		idLocks:    make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) lockFor(id string) *sync.Mutex {
	m.idLocksMu.Lock()
	defer m.idLocksMu.Unlock()

	l, ok := m.idLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.idLocks[id] = l
	}
	return l
}

func newID(prefix string) string {
	u, err := uuid.NewV4()
	if err != nil {
		// uuid generation over crypto/rand practically never fails;
		// fall back to a timestamp-based id rather than panic.
		return prefix + time.Now().UTC().Format(time.RFC3339Nano)
	}
	return prefix + u.String()
}

// SaveActivity implements ActivityStore.
func (m *MemoryStore) SaveActivity(_ context.Context, a *models.Activity) error {
	if a.ID == "" {
		a.ID = newID("urn:outpost:activity:")
	}

	lock := m.lockFor(a.ID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.activities[a.ID]; !exists {
		m.insertOrder = append(m.insertOrder, a.ID)
	}
	m.activities[a.ID] = a
	return nil
}

// SaveObject implements ActivityStore.
func (m *MemoryStore) SaveObject(_ context.Context, o *models.Object) error {
	if o.ID == "" {
		o.ID = newID("urn:outpost:object:")
	}

	lock := m.lockFor(o.ID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[o.ID] = o
	return nil
}

// GetActivity implements ActivityStore.
func (m *MemoryStore) GetActivity(_ context.Context, id string) (*models.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.activities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// GetObject implements ActivityStore.
func (m *MemoryStore) GetObject(_ context.Context, id string) (*models.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// UpdateObject implements ActivityStore.
func (m *MemoryStore) UpdateObject(_ context.Context, partial *models.Object) error {
	lock := m.lockFor(partial.ID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.objects[partial.ID]
	if !ok {
		return ErrNotFound
	}
	existing.MergeFrom(partial)
	return nil
}

// UpdateObjectInActivities implements ActivityStore.
func (m *MemoryStore) UpdateObjectInActivities(_ context.Context, o *models.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.activities {
		for i, v := range a.Object {
			if v.Embedded != nil && v.Embedded.ID == o.ID {
				cp := *o
				a.Object[i] = models.Value{Embedded: &cp}
			}
		}
	}
	return nil
}

// InsertIntoCollection implements ActivityStore.
func (m *MemoryStore) InsertIntoCollection(_ context.Context, activityID, collectionIRI string) error {
	lock := m.lockFor(activityID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.activities[activityID]
	if !ok {
		return ErrNotFound
	}
	a.AddCollection(collectionIRI)

	for _, id := range m.collection[collectionIRI] {
		if id == activityID {
			return nil
		}
	}
	m.collection[collectionIRI] = append(m.collection[collectionIRI], activityID)
	return nil
}

// RemoveFromCollection implements ActivityStore.
func (m *MemoryStore) RemoveFromCollection(_ context.Context, activityID, collectionIRI string) error {
	lock := m.lockFor(activityID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.activities[activityID]; ok {
		a.RemoveCollection(collectionIRI)
	}

	ids := m.collection[collectionIRI]
	out := ids[:0]
	for _, id := range ids {
		if id != activityID {
			out = append(out, id)
		}
	}
	m.collection[collectionIRI] = out
	return nil
}

// DeleteActivity implements ActivityStore.
func (m *MemoryStore) DeleteActivity(_ context.Context, id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.activities, id)

	out := m.insertOrder[:0]
	for _, existing := range m.insertOrder {
		if existing != id {
			out = append(out, existing)
		}
	}
	m.insertOrder = out

	for iriKey, ids := range m.collection {
		filtered := ids[:0]
		for _, existing := range ids {
			if existing != id {
				filtered = append(filtered, existing)
			}
		}
		m.collection[iriKey] = filtered
	}
	return nil
}

// GetStream implements ActivityStore. Pages are newest-first; cursor is
// the activity id marking the end of the previous page.
func (m *MemoryStore) GetStream(_ context.Context, collectionIRI string, cursor string, limit int) (StreamPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.collection[collectionIRI]
	// newest-first: reverse insertion order.
	newestFirst := make([]string, len(ids))
	for i, id := range ids {
		newestFirst[len(ids)-1-i] = id
	}

	start := 0
	if cursor != "" {
		for i, id := range newestFirst {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if limit <= 0 || end > len(newestFirst) {
		end = len(newestFirst)
	}
	if start > len(newestFirst) {
		start = len(newestFirst)
	}

	page := newestFirst[start:end]
	next := ""
	if end < len(newestFirst) && len(page) > 0 {
		next = page[len(page)-1]
	}

	return StreamPage{ActivityIDs: page, Next: next}, nil
}

// CollectionCount implements ActivityStore.
func (m *MemoryStore) CollectionCount(_ context.Context, collectionIRI string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.collection[collectionIRI]), nil
}

// DeliveryRequeue implements ActivityStore by recording the request;
// tests assert against Requeues().
func (m *MemoryStore) DeliveryRequeue(_ context.Context, recipient, activityID string, attempt int, notBefore time.Time) error {
	m.requeueMu.Lock()
	defer m.requeueMu.Unlock()

	m.requeues = append(m.requeues, RequeueEntry{
		Recipient:  recipient,
		ActivityID: activityID,
		Attempt:    attempt,
		NotBefore:  notBefore,
	})
	return nil
}

// Requeues returns a snapshot of every DeliveryRequeue call so far.
func (m *MemoryStore) Requeues() []RequeueEntry {
	m.requeueMu.Lock()
	defer m.requeueMu.Unlock()

	out := make([]RequeueEntry, len(m.requeues))
	copy(out, m.requeues)
	return out
}
