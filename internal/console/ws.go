package console

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub pushes run state updates to connected browser tabs. Tabs that fall
// behind or disconnect are dropped; the page re-syncs from /api/state on
// reconnect.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// subscriber wraps one browser connection. The write mutex serializes
// frames from the poll loop, the trigger goroutine, and HTTP handlers;
// gorilla/websocket allows only one writer per connection at a time.
type subscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *subscriber) writeJSON(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(payload)
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
		subs:   map[*subscriber]struct{}{},
	}
}

// Handle upgrades a subscriber connection and registers it. The initial
// payload is pushed by the caller via Broadcast-on-connect semantics in
// the handler.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request, initial any) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sub := &subscriber{conn: conn}
	if initial != nil {
		if err := sub.writeJSON(initial); err != nil {
			_ = conn.Close()
			return
		}
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	go h.readLoop(sub)
}

// Broadcast sends a JSON payload to every subscriber, dropping the ones
// that error.
func (h *Hub) Broadcast(payload any) {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		if err := sub.writeJSON(payload); err != nil {
			h.drop(sub)
		}
	}
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = map[*subscriber]struct{}{}
	h.mu.Unlock()
	for _, sub := range subs {
		_ = sub.conn.Close()
	}
}

// readLoop drains client frames until the connection drops; the browser
// sends nothing the server acts on.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.drop(sub)
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	_ = sub.conn.Close()
}
