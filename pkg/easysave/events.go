package easysave

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/easysave/easysave/pkg/identifier"
)

// BlockEvent is pushed to event subscribers after every successful block
// mutation in their namespace.
type BlockEvent struct {
	Op         string `json:"op"` // create, update, or delete
	Identifier string `json:"identifier"`
}

// sendBuffer bounds how far a subscriber may fall behind before it is
// dropped.
const sendBuffer = 16

// subscriber is one live event feed connection, bound to the namespace
// root of the authenticated user that opened it. Events flow through the
// buffered send channel into a dedicated writer goroutine, so a slow
// connection never blocks the handler that produced the event.
type subscriber struct {
	conn *websocket.Conn
	root string

	mu     sync.Mutex
	send   chan BlockEvent
	closed bool
}

// enqueue hands an event to the subscriber's writer without blocking. It
// reports false when the send buffer is full; a closed subscriber drops
// the event silently.
func (s *subscriber) enqueue(event BlockEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.send <- event:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// writeLoop drains the send channel onto the connection. It is the only
// writer of the connection and exits when the subscriber is removed or
// the connection dies.
func (s *subscriber) writeLoop(h *eventHub) {
	for event := range s.send {
		if err := s.conn.WriteJSON(event); err != nil {
			h.log.Debug().Err(err).Msg("dropping dead event subscriber")
			h.remove(s.conn)
			return
		}
	}
}

// eventHub tracks the WebSocket subscribers of the live event feed.
type eventHub struct {
	mu   sync.Mutex
	subs map[*websocket.Conn]*subscriber
	log  zerolog.Logger
}

func newEventHub(log zerolog.Logger) *eventHub {
	return &eventHub{
		subs: make(map[*websocket.Conn]*subscriber),
		log:  log,
	}
}

func (h *eventHub) add(conn *websocket.Conn, root string) {
	sub := &subscriber{
		conn: conn,
		root: root,
		send: make(chan BlockEvent, sendBuffer),
	}
	h.mu.Lock()
	h.subs[conn] = sub
	h.mu.Unlock()
	go sub.writeLoop(h)
}

// remove is idempotent; the writer goroutine, the read loop, and
// broadcast may all race to drop the same connection.
func (h *eventHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	sub, ok := h.subs[conn]
	delete(h.subs, conn)
	h.mu.Unlock()
	if ok {
		sub.close()
	}
	_ = conn.Close()
}

// broadcast fans an event out to every subscriber whose namespace root is
// a prefix of the mutated identifier. The hub lock covers only the
// snapshot of matching subscribers, and delivery is a non-blocking
// enqueue, so neither the mutating handler nor other subscribers ever
// wait on a slow connection. A subscriber that has fallen sendBuffer
// events behind is dropped.
func (h *eventHub) broadcast(op, id string) {
	event := BlockEvent{Op: op, Identifier: id}

	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		if identifier.IsPrefixOf(sub.root, id) {
			targets = append(targets, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range targets {
		if !sub.enqueue(event) {
			h.log.Debug().Msg("dropping slow event subscriber")
			h.remove(sub.conn)
		}
	}
}

var upgrader = websocket.Upgrader{
	// Cross-origin policy matches the CORS middleware: any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents upgrades the request to a WebSocket and subscribes the
// authenticated caller to block events in their own namespace. The read
// loop exists only to notice the peer going away; inbound messages are
// discarded.
func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	caller := requester(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	a.events.add(conn, caller.UniqueID)
	a.log.Info().Str("username", caller.Username).Msg("event subscriber connected")

	go func() {
		defer a.events.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
