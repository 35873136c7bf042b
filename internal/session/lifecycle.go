// Package session manages per-chat-session disposable resources. A session
// outlives any single request; resources registered against it (anchor
// resolution cancellation sources, completion caches) are disposed together
// when the session is released.
package session

import (
	"sync"

	"github.com/opencode-ai/chathost/internal/event"
	"github.com/opencode-ai/chathost/internal/logging"
)

// Disposable is anything that releases a resource exactly once.
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a function to the Disposable interface.
type DisposeFunc func()

// Dispose calls f.
func (f DisposeFunc) Dispose() { f() }

// Registry owns one disposable store per session id. Stores are created
// lazily on first use and destroyed by Release.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
	bus    *event.Bus
}

// NewRegistry creates a session registry. bus may be nil.
func NewRegistry(bus *event.Bus) *Registry {
	return &Registry{
		stores: make(map[string]*Store),
		bus:    bus,
	}
}

// Store returns the disposable store for a session, creating it on first use.
func (r *Registry) Store(sessionID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.stores[sessionID]
	if !ok {
		store = &Store{}
		r.stores[sessionID] = store
	}
	return store
}

// Has reports whether a store exists for the session.
func (r *Registry) Has(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stores[sessionID]
	return ok
}

// Release disposes and removes the session's store. Releasing an unknown or
// already-released session is a no-op.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	store, ok := r.stores[sessionID]
	delete(r.stores, sessionID)
	r.mu.Unlock()

	if !ok {
		return
	}

	store.dispose()
	logging.Debug().Str("sessionId", sessionID).Msg("session resources released")

	if r.bus != nil {
		r.bus.Publish(event.Event{
			Type: event.SessionReleased,
			Data: event.SessionReleasedData{SessionID: sessionID},
		})
	}
}

// Store holds the disposables registered under one session id.
type Store struct {
	mu       sync.Mutex
	items    []Disposable
	disposed bool
}

// Add registers a disposable. Adding to an already-disposed store disposes
// the item immediately.
func (s *Store) Add(d Disposable) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		d.Dispose()
		return
	}
	s.items = append(s.items, d)
	s.mu.Unlock()
}

// Len returns the number of live disposables.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) dispose() {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.disposed = true
	s.mu.Unlock()

	for _, d := range items {
		d.Dispose()
	}
}
