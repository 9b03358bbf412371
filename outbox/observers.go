package outbox

import "sync"

// Event is published once per accepted outbox POST, after the activity
// and its side effects are visible in the store (SPEC_FULL.md section
// 4.9). Activity and Object are the external (de-normalized) JSON
// representations, ready to hand to a subscriber without further work.
type Event struct {
	Actor    string
	Activity map[string]interface{}
	Object   map[string]interface{}
}

// Observers is the process-local outbox event bus: the teacher's
// subscriptions.Manager pattern (subscriptions/mem.go's MemManager,
// a mutex-guarded slice of forwarding targets) generalized from a list
// of forwarding URLs to a list of in-process subscriber channels.
type Observers struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewObservers builds an empty observer registry.
func NewObservers() *Observers {
	return &Observers{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener and returns its channel along
// with an unsubscribe function. The channel is buffered so a slow
// subscriber (e.g. the optional websocket hub) never blocks a POST.
func (o *Observers) Subscribe() (<-chan Event, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.next
	o.next++
	ch := make(chan Event, 32)
	o.subs[id] = ch

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if existing, ok := o.subs[id]; ok {
			close(existing)
			delete(o.subs, id)
		}
	}
}

// Publish fans e out to every current subscriber. A subscriber whose
// buffer is full is skipped for this event rather than blocking the
// publisher.
func (o *Observers) Publish(e Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, ch := range o.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
