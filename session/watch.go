package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// EventKind identifies a store mutation.
type EventKind int

const (
	// EventSaved follows a successful Save.
	EventSaved EventKind = iota + 1
	// EventCleared follows a successful Clear.
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventSaved:
		return "saved"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after the underlying store has been updated.
type Event struct {
	Kind EventKind
	At   time.Time
	User *User
}

// Watched decorates a Store and fans mutation events out to subscribers. Delivery never
// blocks the writer: a subscriber whose buffer is full misses the event and the miss is
// counted in Dropped.
type Watched struct {
	Store

	mu      sync.Mutex
	nextID  int
	subs    map[int]chan Event
	dropped atomic.Uint64
	now     func() time.Time
}

// NewWatched wraps store.
func NewWatched(store Store) *Watched {
	return &Watched{
		Store: store,
		subs:  make(map[int]chan Event),
		now:   time.Now,
	}
}

// Subscribe registers a listener. The returned cancel func unregisters it and closes the
// channel; it is safe to call more than once.
func (w *Watched) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = ch
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
			close(ch)
		})
	}
}

// Save forwards to the wrapped store and publishes EventSaved on success.
func (w *Watched) Save(ctx context.Context, creds Credentials, user *User) error {
	if err := w.Store.Save(ctx, creds, user); err != nil {
		return err
	}
	w.publish(Event{Kind: EventSaved, At: w.now(), User: cloneUser(user)})
	return nil
}

// Clear forwards to the wrapped store and publishes EventCleared on success.
func (w *Watched) Clear(ctx context.Context) error {
	if err := w.Store.Clear(ctx); err != nil {
		return err
	}
	w.publish(Event{Kind: EventCleared, At: w.now()})
	return nil
}

// Dropped returns the number of events lost to full subscriber buffers.
func (w *Watched) Dropped() uint64 {
	return w.dropped.Load()
}

func (w *Watched) publish(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
			w.dropped.Add(1)
		}
	}
}
