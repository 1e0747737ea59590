package node

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// event is one ambient notification broadcast over /events: store,
// retrieve, and corruption-detected. It carries no protocol semantics of
// its own; it exists purely for observability. EventID lets a subscriber
// that reconnects mid-stream tell which events it already saw.
type event struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	FragmentID string    `json:"fragment_id"`
	Time       time.Time `json:"time"`
}

// eventHub fans out events to every connected /events subscriber. Grounded
// on the teacher's internal/dht.Transport connection-management idiom: one
// write mutex per connection, since gorilla/websocket forbids concurrent
// writers on the same conn.
type eventHub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[*subscriber]struct{})}
}

var eventsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sub := &subscriber{conn: conn}

	s.hub.mu.Lock()
	s.hub.subs[sub] = struct{}{}
	s.hub.mu.Unlock()

	defer func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, sub)
		s.hub.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *eventHub) publish(e event) {
	e.EventID = uuid.New().String()
	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		sub.wmu.Lock()
		sub.conn.WriteMessage(websocket.TextMessage, data)
		sub.wmu.Unlock()
	}
}
