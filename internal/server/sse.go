// SSE implementation note: the event feed is hand-rolled rather than built
// on a third-party SSE package. It is small, integrates directly with the
// internal event bus, and needs nothing an SSE framework would add.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opencode-ai/chathost/internal/event"
	"github.com/opencode-ai/chathost/internal/logging"
)

// SSEHeartbeatInterval is the interval for SSE heartbeats.
const SSEHeartbeatInterval = 30 * time.Second

// feedEvent is the wire form of one feed entry.
type feedEvent struct {
	Type       event.EventType `json:"type"`
	Properties any             `json:"properties"`
}

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// events streams the host's outbound protocol calls to the peer. This is how
// registrations, metadata updates, progress chunks and session notifications
// leave the process.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent("message", feedEvent{Type: "host.connected", Properties: map[string]any{}}); err != nil {
		return
	}

	feed, err := s.bus.Feed(r.Context())
	if err != nil {
		return
	}

	// Pump the watermill feed into a buffered channel so a slow client
	// never backs the bus up; overflow is dropped.
	events := make(chan feedEvent, 64)
	go func() {
		defer close(events)
		for msg := range feed {
			var e struct {
				Type event.EventType `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			unmarshalErr := json.Unmarshal(msg.Payload, &e)
			msg.Ack()
			if unmarshalErr != nil {
				continue
			}
			select {
			case events <- feedEvent{Type: e.Type, Properties: e.Data}:
			default:
				logging.Warn().Str("eventType", string(e.Type)).Msg("SSE event dropped: channel full")
			}
		}
	}()

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := sse.writeEvent("message", e); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
