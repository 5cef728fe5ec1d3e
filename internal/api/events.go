package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// Event is one message pushed to the web view.
type Event struct {
	Type       string `json:"type"`
	Client     string `json:"client,omitempty"`
	Message    string `json:"message,omitempty"`
	Callback   string `json:"callback,omitempty"`
	Args       []any  `json:"args,omitempty"`
	Capability string `json:"capability,omitempty"`
	Granted    *bool  `json:"granted,omitempty"`
}

// Event types.
const (
	EventHello      = "hello"
	EventToast      = "toast"
	EventCallback   = "callback"
	EventPermission = "permission"
)

// Hub fans bridge output out to every connected web view. It implements
// bridge.Notifier, bridge.ScriptHost and bridge.Prompter.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	// OnPermission receives permission answers sent by a web view.
	OnPermission func(capability string, granted bool)

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The web view is served from its own origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Notify sends a toast.
func (h *Hub) Notify(message string) {
	h.broadcast(Event{Type: EventToast, Message: message})
}

// Call asks the web view to invoke callback with args.
func (h *Hub) Call(callback string, args ...any) {
	if args == nil {
		args = []any{}
	}
	h.broadcast(Event{Type: EventCallback, Callback: callback, Args: args})
}

// RequestPermission asks the web view to prompt for capability.
func (h *Hub) RequestPermission(capability string) {
	h.broadcast(Event{Type: EventPermission, Capability: capability})
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		h.log.Debug("event dropped, no clients", "type", ev.Type)
		return
	}
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("client too slow, event dropped", "client", c.id, "type", ev.Type)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams events to it
// until either side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	hello, _ := json.Marshal(Event{Type: EventHello, Client: c.id})
	c.send <- hello

	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("web view connected", "client", c.id, "clients", n)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

// readPump handles inbound permission answers and pongs.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		h.log.Info("web view disconnected", "client", c.id)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read failed", "client", c.id, "error", err)
			}
			return
		}
		if ev.Type != EventPermission || ev.Granted == nil {
			h.log.Debug("ignoring client event", "client", c.id, "type", ev.Type)
			continue
		}
		if h.OnPermission != nil {
			h.OnPermission(ev.Capability, *ev.Granted)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("websocket write failed", "client", c.id, "error", err)
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
