// Package broadcast implements the WebSocket broadcast surface SPEC_FULL.md
// adds around spec.md §6's transport-agnostic event-stream contract: a hub
// that subscribes to the Event Sink and fans every emitted event out as a
// JSON frame to every connected client. Grounded on
// internal/infrastructure/websocket/hub.go and client.go from the mbflow
// example (the dependency this engine's go.mod carries gorilla/websocket
// for): the same register/unregister/broadcast channel triad, and the same
// read/write pump split per client, generalized from mbflow's
// per-workflow/per-execution subscription routing to Noema's single
// undifferentiated event feed (every client sees every event; there is no
// per-note or per-session scoping in the reasoning kernel).
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"noema/internal/events"
	"noema/internal/kb"
	"noema/internal/logging"
	"noema/internal/router"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Frame is the JSON wire shape for one event-stream entry (spec.md §6):
// assert-added carries the full fact descriptor; assert-input carries only
// the KIF text of the routed form (no id, priority or depth); assert-
// retracted/evict carry only the id.
type Frame struct {
	Kind     events.Kind `json:"kind"`
	ID       string      `json:"id,omitempty"`
	Priority float64     `json:"priority,omitempty"`
	Depth    int         `json:"depth,omitempty"`
	KIF      string      `json:"kif,omitempty"`
}

func frameFor(ev events.Event) Frame {
	switch p := ev.Payload.(type) {
	case *kb.Assertion:
		if ev.Kind == events.KindRetracted || ev.Kind == events.KindEvicted {
			return Frame{Kind: ev.Kind, ID: string(p.ID)}
		}
		return Frame{Kind: ev.Kind, ID: string(p.ID), Priority: p.Priority, Depth: p.DerivationDepth, KIF: p.KIF.KIFString()}
	case string:
		return Frame{Kind: ev.Kind, KIF: p}
	default:
		return Frame{Kind: ev.Kind}
	}
}

// Hub manages WebSocket client connections and fans out events.Event
// occurrences as JSON frames.
type Hub struct {
	router  *router.Router
	kb      *kb.KB
	log     *zap.Logger
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan Frame
	mu         sync.RWMutex
}

// NewHub constructs a Hub. r receives every line-oriented control command a
// client sends that isn't `retract <id>` (spec.md §6: "any other input is
// parsed as a sequence of KIF terms and routed"); kbase services `retract
// <id>` directly.
func NewHub(r *router.Router, kbase *kb.KB) *Hub {
	return &Hub{
		router:     r,
		kb:         kbase,
		log:        logging.Get(logging.CategoryBroadcast),
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Frame, 256),
	}
}

// Emit makes the Hub an events.Sink: it converts one event to a Frame and
// queues it for broadcast. To feed it from an events.Bus, adapt it to the
// subscriber signature, e.g.
// bus.Subscribe(func(ev events.Event) { hub.Emit(ev.Kind, ev.Payload) }).
func (h *Hub) Emit(kind events.Kind, payload interface{}) {
	h.broadcast <- frameFor(events.Event{Kind: kind, Payload: payload})
}

// Run is the Hub's event loop; call it in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case frame := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- frame:
				default:
					h.log.Warn("client send buffer full, dropping frame", zap.String("client_id", c.id))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount reports the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a WebSocket connection and registers a
// new client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{id: uuid.New().String(), hub: h, conn: conn, send: make(chan Frame, sendBufferSize)}
	h.log.Info("client connected", zap.String("client_id", c.id))
	h.register <- c
	go c.writePump()
	go c.readPump()
}

// client is one connected WebSocket peer.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan Frame
}

// readPump reads line-oriented control commands from the peer and routes
// them per spec.md §6.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("unexpected close", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		handleCommand(c.hub.router, c.hub.kb, string(message))
	}
}

// writePump drains the client's send channel to the WebSocket connection
// and keeps the connection alive with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
