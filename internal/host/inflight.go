package host

import (
	"sync"

	"github.com/opencode-ai/chathost/internal/event"
	"github.com/opencode-ai/chathost/internal/extension"
)

// InFlightRequest marks a request as currently being processed. It is the
// attachment point for external pause and tool-update signals, which mutate
// it in place while the handler runs.
type InFlightRequest struct {
	RequestID string
	Request   *Request
	Extension extension.Identity

	mu     sync.RWMutex
	paused bool
	tools  map[string]bool
}

// Paused reports the current pause state.
func (f *InFlightRequest) Paused() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.paused
}

// Tools returns a snapshot of the request's current tool selection.
func (f *InFlightRequest) Tools() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]bool, len(f.tools))
	for k, v := range f.tools {
		out[k] = v
	}
	return out
}

// inFlightSet is the process-wide set of active requests, keyed by request
// id. At most one entry per id exists at a time.
type inFlightSet struct {
	mu      sync.RWMutex
	entries map[string]*InFlightRequest
	bus     *event.Bus
}

func newInFlightSet(bus *event.Bus) *inFlightSet {
	return &inFlightSet{entries: make(map[string]*InFlightRequest), bus: bus}
}

func (s *inFlightSet) add(f *InFlightRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[f.RequestID] = f
}

func (s *inFlightSet) remove(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, requestID)
}

func (s *inFlightSet) get(requestID string) (*InFlightRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.entries[requestID]
	return f, ok
}

func (s *inFlightSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// setPaused flips the pause state of a live request and fires a change
// notification. Unknown ids are tolerated; the request may have finished
// before the signal arrived.
func (s *inFlightSet) setPaused(requestID string, isPaused bool) {
	f, ok := s.get(requestID)
	if !ok {
		return
	}

	f.mu.Lock()
	f.paused = isPaused
	f.mu.Unlock()

	s.bus.Publish(event.Event{
		Type: event.RequestPaused,
		Data: event.RequestPausedData{RequestID: requestID, IsPaused: isPaused},
	})
}

// setTools replaces the tool selection of a live request and fires a change
// notification. Unknown ids are tolerated.
func (s *inFlightSet) setTools(requestID string, tools map[string]bool) {
	f, ok := s.get(requestID)
	if !ok {
		return
	}

	f.mu.Lock()
	f.tools = tools
	f.mu.Unlock()

	s.bus.Publish(event.Event{
		Type: event.RequestToolsChanged,
		Data: event.RequestToolsChangedData{RequestID: requestID, Tools: tools},
	})
}
