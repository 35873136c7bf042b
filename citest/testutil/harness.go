// Package testutil provides the in-process host harness used by the citest
// suites.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/opencode-ai/chathost/internal/config"
	"github.com/opencode-ai/chathost/internal/event"
	"github.com/opencode-ai/chathost/internal/extension"
	"github.com/opencode-ai/chathost/internal/host"
	"github.com/opencode-ai/chathost/internal/model"
	"github.com/opencode-ai/chathost/internal/server"
	"github.com/opencode-ai/chathost/internal/session"
	"github.com/opencode-ai/chathost/internal/transcript"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// Harness assembles a complete in-process host with an HTTP front and an
// event recorder, for end-to-end protocol tests.
type Harness struct {
	Registry    *host.Registry
	Coordinator *host.Coordinator
	Sessions    *session.Registry
	Models      *model.Registry
	Bus         *event.Bus
	Archive     *transcript.Archive
	HTTP        *httptest.Server

	Events *EventRecorder

	dataDir string
}

// NewHarness builds a harness with a short batch window and grace period so
// specs run fast.
func NewHarness() *Harness {
	bus := event.NewBus()
	peer := server.NewBusPeer(bus)
	registry := host.NewRegistry(host.NewHandleAllocator(), peer, bus)
	sessions := session.NewRegistry(bus)

	models := model.NewRegistry()
	models.Register(model.Model{ID: "test-model", Name: "Test Model"})
	models.SetDefault("test-model")

	dataDir, err := os.MkdirTemp("", "chathost-citest")
	if err != nil {
		panic(err)
	}
	archive := transcript.NewArchive(dataDir)

	coordinator := host.NewCoordinator(host.CoordinatorOptions{
		Registry:    registry,
		Models:      models,
		Sessions:    sessions,
		Peer:        peer,
		Bus:         bus,
		Archive:     archive,
		GracePeriod: 50 * time.Millisecond,
		FlushDelay:  time.Millisecond,
	})

	cfg := &config.Config{Port: 0, LogLevel: "error"}
	srv := server.New(cfg, registry, coordinator, sessions, bus, archive)

	h := &Harness{
		Registry:    registry,
		Coordinator: coordinator,
		Sessions:    sessions,
		Models:      models,
		Bus:         bus,
		Archive:     archive,
		HTTP:        httptest.NewServer(srv.Router()),
		Events:      NewEventRecorder(bus),
		dataDir:     dataDir,
	}
	return h
}

// Stop tears the harness down.
func (h *Harness) Stop() {
	h.HTTP.Close()
	h.Bus.Close()
	os.RemoveAll(h.dataDir)
}

// RegisterEchoAgent registers an agent whose handler echoes the request
// message back as one markdown part.
func (h *Harness) RegisterEchoAgent(ext extension.Identity, agentID string) *host.Agent {
	return h.Registry.RegisterAgent(ext, agentID, EchoHandler)
}

// Invoke posts an invocation over HTTP and decodes the result envelope.
func (h *Harness) Invoke(ctx context.Context, handle int, draft wire.RequestDraft, history []wire.HistoryTurn) (*wire.InvocationResult, *http.Response, error) {
	body, err := json.Marshal(map[string]any{"draft": draft, "history": history})
	if err != nil {
		return nil, nil, err
	}

	url := fmt.Sprintf("%s/agent/%d/invoke", h.HTTP.URL, handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, jsonBody(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp, nil
	}

	var result wire.InvocationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp, err
	}
	return &result, resp, nil
}

// Post sends an arbitrary JSON body to a host endpoint.
func (h *Harness) Post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.HTTP.URL+path, jsonBody(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}

// Get fetches a host endpoint and decodes the JSON response into out.
func (h *Harness) Get(ctx context.Context, path string, out any) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.HTTP.URL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Delete sends a DELETE to a host endpoint.
func (h *Harness) Delete(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, h.HTTP.URL+path, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

// EventRecorder captures every bus event for assertions.
type EventRecorder struct {
	mu     sync.Mutex
	events []event.Event
	unsub  func()
}

// NewEventRecorder subscribes to all events on the bus.
func NewEventRecorder(bus *event.Bus) *EventRecorder {
	r := &EventRecorder{}
	r.unsub = bus.SubscribeAll(func(e event.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	})
	return r
}

// OfType returns every recorded event of the given type.
func (r *EventRecorder) OfType(t event.EventType) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
