package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Event kinds streamed over /events.
const (
	eventPredicted = "predicted"
	eventHit       = "hit"
	eventMiss      = "miss"
)

// Event is one evaluator/prediction occurrence broadcast to /events
// subscribers. Payload carries whatever the emitting handler had handy
// (a predict.Result, a session/file pair) so a dashboard client can render
// without a follow-up request.
type Event struct {
	Kind      string    `json:"kind"`
	ProjectID string    `json:"project_id,omitempty"`
	Session   string    `json:"session,omitempty"`
	File      string    `json:"file,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// eventHub fans out Evaluator/Predict occurrences to any number of /events
// subscribers, following internal/dashboard/chat.go's websocket
// upgrade/read/write loop, generalized here to a broadcast hub since
// /events is one-way (server to client) where that chat socket is
// two-way request/response.
type eventHub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan Event]struct{})}
}

func (h *eventHub) subscribe() (chan Event, func()) {
	ch := make(chan Event, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *eventHub) publish(ev Event) {
	ev.At = time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
	}
}

var eventsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerEventRoutes(r chi.Router, m *Manager) {
	r.Get("/events", serveEvents(m))
}

func serveEvents(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectFilter := r.URL.Query().Get("project")

		conn, err := eventsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			m.log.Warnf("events: websocket upgrade: %v", err)
			return
		}
		defer conn.Close()

		ch, cancel := m.events.subscribe()
		defer cancel()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if projectFilter != "" && ev.ProjectID != projectFilter {
					continue
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			}
		}
	}
}

func publishPredictEvent(m *Manager, projectID string, result any) {
	m.events.publish(Event{Kind: eventPredicted, ProjectID: projectID, Payload: result})
}

func publishEvaluatorEvent(m *Manager, kind, projectID, session, file string) {
	m.events.publish(Event{Kind: kind, ProjectID: projectID, Session: session, File: file})
}
