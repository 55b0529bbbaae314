// Package stream serves live simulation output over WebSocket. A Broadcaster
// fans every recorded snapshot out to all connected viewers; late joiners
// first receive the run's welcome record and the most recent frame, so a
// viewer attached mid-run starts from a coherent state.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// sendBuffer is the per-viewer outgoing queue. A viewer that falls this far
// behind is disconnected rather than allowed to stall the run.
const sendBuffer = 256

var upgrader = websocket.Upgrader{
	// Viewers are read-only; any origin may watch.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one connected viewer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// writePump drains the send queue onto the wire. A closed queue sends a
// close frame and ends the connection.
func (c *client) writePump() {
	defer c.conn.Close()
	for {
		msg, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		if _, err := w.Write(msg); err != nil {
			return
		}
		if err := w.Close(); err != nil {
			return
		}
	}
}

// readPump discards viewer input until the connection drops.
func (c *client) readPump() {
	defer c.conn.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcaster manages the viewer set. It implements http.Handler for the
// WebSocket endpoint.
type Broadcaster struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	welcome []byte
	latest  []byte
}

// NewBroadcaster creates an empty broadcaster logging through log.
func NewBroadcaster(log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the viewer until it leaves.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: ws, send: make(chan []byte, sendBuffer)}
	b.add(c)
	b.log.Debug("viewer connected", "remote", ws.RemoteAddr().String())

	go c.writePump()
	c.readPump()

	b.remove(c)
	b.log.Debug("viewer disconnected", "remote", ws.RemoteAddr().String())
}

// add registers a viewer and queues the welcome record plus the latest
// frame, in that order.
func (b *Broadcaster) add(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
	if b.welcome != nil {
		c.send <- b.welcome
	}
	if b.latest != nil {
		c.send <- b.latest
	}
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// Welcome sets the record every new viewer receives first, typically the
// run's metadata.
func (b *Broadcaster) Welcome(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stream: marshal welcome: %w", err)
	}
	b.mu.Lock()
	b.welcome = msg
	b.mu.Unlock()
	return nil
}

// Broadcast sends v to every connected viewer and remembers it for late
// joiners. A viewer with a full queue is cut off; its read pump handles the
// cleanup.
func (b *Broadcaster) Broadcast(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stream: marshal broadcast: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = msg
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			c.conn.Close()
		}
	}
	return nil
}

// ViewerCount returns the number of connected viewers.
func (b *Broadcaster) ViewerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Shutdown disconnects every viewer.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
}
