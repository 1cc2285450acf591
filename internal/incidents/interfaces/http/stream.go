package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"homehub-cloud/internal/eventing"
	"homehub-cloud/internal/incidents/application/events"

	"go.uber.org/zap"
)

const streamKeepAlive = 30 * time.Second

type streamMessage struct {
	kind    string
	placeID string
	data    []byte
}

// Stream fans incident change events out to SSE clients. Slow clients
// drop messages rather than stalling the bus.
type Stream struct {
	mu      sync.Mutex
	clients map[chan streamMessage]string
	log     *zap.Logger
}

// NewStream constructs the SSE fan-out and subscribes it to the bus.
func NewStream(bus eventing.EventBus, log *zap.Logger) *Stream {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Stream{
		clients: make(map[chan streamMessage]string),
		log:     log,
	}
	if bus != nil {
		bus.Subscribe(eventing.EventTypeOf[events.IncidentAdded](), s.onEvent)
		bus.Subscribe(eventing.EventTypeOf[events.IncidentChanged](), s.onEvent)
		bus.Subscribe(eventing.EventTypeOf[events.IncidentCompleted](), s.onEvent)
	}
	return s
}

func (s *Stream) onEvent(_ context.Context, event any) error {
	var placeID, kind string
	switch e := event.(type) {
	case events.IncidentAdded:
		placeID, kind = e.PlaceID, "incident.added"
	case events.IncidentChanged:
		placeID, kind = e.PlaceID, "incident.changed"
	case events.IncidentCompleted:
		placeID, kind = e.PlaceID, "incident.completed"
	default:
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.broadcast(streamMessage{kind: kind, placeID: placeID, data: data})
	return nil
}

func (s *Stream) broadcast(msg streamMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, filter := range s.clients {
		if filter != "" && filter != msg.placeID {
			continue
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

func (s *Stream) register(placeID string) chan streamMessage {
	ch := make(chan streamMessage, 16)
	s.mu.Lock()
	s.clients[ch] = placeID
	s.mu.Unlock()
	return ch
}

func (s *Stream) unregister(ch chan streamMessage) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

// ServeHTTP handles GET /api/v1/incidents/stream, optionally filtered by
// the place_id query parameter.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.register(r.URL.Query().Get("place_id"))
	defer s.unregister(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.kind, msg.data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
