package easysave

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serverConn dials a throwaway WebSocket server and returns the server
// side of the connection for use as a hub subscriber.
func serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	conn := <-conns
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSubscriberEnqueue(t *testing.T) {
	sub := &subscriber{send: make(chan BlockEvent, 1)}

	assert.True(t, sub.enqueue(BlockEvent{Op: "create"}))
	assert.False(t, sub.enqueue(BlockEvent{Op: "update"}), "full buffer must not block")

	sub.close()
	sub.close()
	assert.True(t, sub.enqueue(BlockEvent{Op: "delete"}), "closed subscriber drops silently")
}

func TestBroadcastTargetsNamespace(t *testing.T) {
	h := newEventHub(zerolog.Nop())
	alice := &subscriber{conn: serverConn(t), root: "prod.alice", send: make(chan BlockEvent, sendBuffer)}
	bob := &subscriber{conn: serverConn(t), root: "prod.bob", send: make(chan BlockEvent, sendBuffer)}
	h.subs[alice.conn] = alice
	h.subs[bob.conn] = bob

	h.broadcast("create", "prod.alice.docs.note1")

	require.Len(t, alice.send, 1)
	assert.Equal(t, BlockEvent{Op: "create", Identifier: "prod.alice.docs.note1"}, <-alice.send)
	assert.Empty(t, bob.send)
}

func TestBroadcastDropsBackloggedSubscriber(t *testing.T) {
	h := newEventHub(zerolog.Nop())
	// No writer goroutine drains this subscriber, so its buffer is
	// permanently full after the first event.
	slow := &subscriber{conn: serverConn(t), root: "prod.alice", send: make(chan BlockEvent)}
	fast := &subscriber{conn: serverConn(t), root: "prod.alice", send: make(chan BlockEvent, sendBuffer)}
	h.subs[slow.conn] = slow
	h.subs[fast.conn] = fast

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.broadcast("create", "prod.alice.docs")
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a backlogged subscriber")
	}

	h.mu.Lock()
	_, slowKept := h.subs[slow.conn]
	_, fastKept := h.subs[fast.conn]
	h.mu.Unlock()
	assert.False(t, slowKept, "backlogged subscriber must be dropped")
	assert.True(t, fastKept)
	require.Len(t, fast.send, 1)
}
