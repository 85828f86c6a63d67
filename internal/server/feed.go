package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/psddp/internal/ddp"
	"github.com/muurk/psddp/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Events buffered per client before it is dropped as too slow
	sendBuffer = 64
)

// Event types
const (
	EventStatus      = "status"
	EventUnreachable = "unreachable"
)

// Event is one device change as sent to feed clients
type Event struct {
	Type      string         `json:"type"`
	Host      string         `json:"host"`
	State     string         `json:"state"`
	PollCount int            `json:"poll_count"`
	Status    map[string]any `json:"status,omitempty"`
	Time      time.Time      `json:"time"`
}

// NewEvent captures the current state of d
func NewEvent(d *ddp.Device, now time.Time) Event {
	ev := Event{
		Type:      EventStatus,
		Host:      d.Host(),
		State:     d.State().String(),
		PollCount: d.PollCount(),
		Time:      now,
	}
	if d.Unreachable() {
		ev.Type = EventUnreachable
	}
	if st := d.Status(); st != nil {
		ev.Status = st.Map()
	}
	return ev
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Feed fans device events out to WebSocket clients. New clients first
// receive the latest event for every known host.
type Feed struct {
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	clients map[uuid.UUID]*client
	last    map[string]Event
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from anywhere on the LAN
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now:     time.Now,
		clients: make(map[uuid.UUID]*client),
		last:    make(map[string]Event),
	}
}

// Publish records d's current state and sends it to every client. It has
// the ddp.Callback signature, so a Feed can be registered directly.
func (f *Feed) Publish(d *ddp.Device) {
	ev := NewEvent(d, f.now())
	data, err := json.Marshal(ev)
	if err != nil {
		logging.Error("Failed to encode feed event", zap.String("host", ev.Host), zap.Error(err))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.last[ev.Host] = ev
	for id, c := range f.clients {
		select {
		case c.send <- data:
		default:
			logging.Warn("Dropping slow feed client", zap.String("client_id", id.String()))
			f.removeLocked(id)
		}
	}
}

// Snapshot returns the latest event per host, sorted by host.
func (f *Feed) Snapshot() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Feed) snapshotLocked() []Event {
	events := make([]Event, 0, len(f.last))
	for _, ev := range f.last {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Host < events[j].Host })
	return events
}

// ClientCount returns the number of connected clients
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// ServeHTTP upgrades the request to a WebSocket and streams events to it.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	// Queue the snapshot under the lock so no live event can precede it
	f.mu.Lock()
	for _, ev := range f.snapshotLocked() {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
	f.clients[c.id] = c
	f.mu.Unlock()

	logging.Info("Feed client connected",
		zap.String("client_id", c.id.String()),
		zap.String("remote_addr", r.RemoteAddr),
	)

	go f.writePump(c)
	f.readPump(c)
}

// readPump discards client messages and unregisters the client on close.
func (f *Feed) readPump(c *client) {
	defer func() {
		f.mu.Lock()
		f.removeLocked(c.id)
		f.mu.Unlock()
		logging.Info("Feed client disconnected", zap.String("client_id", c.id.String()))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Feed client read error",
					zap.String("client_id", c.id.String()),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (f *Feed) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeLocked unregisters a client and closes its send channel. Safe to
// call for an id that is already gone.
func (f *Feed) removeLocked(id uuid.UUID) {
	c, ok := f.clients[id]
	if !ok {
		return
	}
	delete(f.clients, id)
	close(c.send)
}

// Close disconnects every client
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.clients {
		f.removeLocked(id)
	}
}
