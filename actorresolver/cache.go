package actorresolver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/koshroy/outpost/models"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 15 * time.Minute

type cacheEntry struct {
	obj       *models.Object
	expiresAt time.Time
}

// Cache is the two-tier, read-mostly cache described in SPEC_FULL.md
// section 4.3: an in-process map first, an optional shared redis
// layer second. Both tiers are read-mostly; writes only happen on a
// cache miss.
type Cache struct {
	mu    sync.RWMutex
	local map[string]cacheEntry
	ttl   time.Duration

	redis *redis.Client
}

// NewCache builds a Cache. redisClient may be nil to run local-only,
// which is what tests and single-instance deployments use.
func NewCache(redisClient *redis.Client) *Cache {
	return &Cache{
		local: make(map[string]cacheEntry),
		ttl:   defaultTTL,
		redis: redisClient,
	}
}

// Get returns the cached actor for iri, checking the local tier first
// and falling back to redis (populating the local tier on a redis hit).
func (c *Cache) Get(iri string) (*models.Object, bool) {
	c.mu.RLock()
	entry, ok := c.local[iri]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.obj, true
	}

	if c.redis == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := c.redis.Get(ctx, cacheKey(iri)).Bytes()
	if err != nil {
		return nil, false
	}

	var obj models.Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}

	c.setLocal(iri, &obj)
	return &obj, true
}

// Set populates both cache tiers.
func (c *Cache) Set(iri string, obj *models.Object) {
	c.setLocal(iri, obj)

	if c.redis == nil {
		return
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.redis.Set(ctx, cacheKey(iri), raw, c.ttl)
}

func (c *Cache) setLocal(iri string, obj *models.Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[iri] = cacheEntry{obj: obj, expiresAt: time.Now().Add(c.ttl)}
}

func cacheKey(iri string) string {
	return "outpost:actor:" + iri
}

// inFlightGroup deduplicates concurrent fetches of the same IRI to a
// single request, hand-rolled over a mutex and map rather than
// importing golang.org/x/sync/singleflight (DESIGN.md explains why).
type inFlightGroup struct {
	mu    sync.Mutex
	calls map[string]*inFlightCall
}

type inFlightCall struct {
	wg  sync.WaitGroup
	obj *models.Object
	kd  Kind
	err error
}

func (r *Resolver) fetchSingleFlight(ctx context.Context, iri string) (*models.Object, Kind, error) {
	r.flightMu().mu.Lock()
	if call, ok := r.flightMu().calls[iri]; ok {
		r.flightMu().mu.Unlock()
		call.wg.Wait()
		return call.obj, call.kd, call.err
	}

	call := &inFlightCall{}
	call.wg.Add(1)
	r.flightMu().calls[iri] = call
	r.flightMu().mu.Unlock()

	call.obj, call.kd, call.err = r.fetch(ctx, iri)
	call.wg.Done()

	r.flightMu().mu.Lock()
	delete(r.flightMu().calls, iri)
	r.flightMu().mu.Unlock()

	return call.obj, call.kd, call.err
}

func (r *Resolver) flightMu() *inFlightGroup {
	r.flightOnce.Do(func() {
		r.flight = &inFlightGroup{calls: make(map[string]*inFlightCall)}
	})
	return r.flight
}
