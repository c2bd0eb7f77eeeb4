// Package realtime pushes dashboard events to websocket clients.
//
// Clients receive every event published without rooms and the events of
// the rooms they joined. A client joins or leaves a room by sending
//
//	{"action":"join","room":"machine-SPR01"}
//	{"action":"leave","room":"machine-SPR01"}
//
// and every event arrives as {"event":"spray:realtime","data":{...}}.
package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 64
)

// Acknowledgements sent back for join and leave commands
const (
	EventJoined = "room:joined"
	EventLeft   = "room:left"
	EventError  = "room:error"
)

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type command struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID uint
	Role   string
}

// Hub tracks connected clients and their rooms.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub accepts connections from allowedOrigins; "*" accepts any.
// Requests without an Origin header (non-browser clients) are accepted.
func NewHub(allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, id Identity) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	c := &client{
		hub:   h,
		conn:  conn,
		id:    id,
		send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]bool),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return fmt.Errorf("websocket hub closed")
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
	return nil
}

// Publish sends an event to every client, or only to members of rooms.
// A client whose buffer is full is disconnected.
func (h *Hub) Publish(event string, payload interface{}, rooms ...string) {
	message, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		log.Printf("[Realtime] Error encoding %s: %v", event, err)
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if len(rooms) > 0 && !c.inAny(rooms) {
			continue
		}
		select {
		case c.send <- message:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("[Realtime] Dropping slow client of user %d", c.id.UserID)
		h.unregister(c)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// mayJoin keeps private user rooms private.
func mayJoin(id Identity, room string) bool {
	if room == "" {
		return false
	}
	if !strings.HasPrefix(room, "user:") {
		return true
	}
	return id.Role == "admin" || room == fmt.Sprintf("user:%d", id.UserID)
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	id   Identity
	send chan []byte

	mu    sync.Mutex
	rooms map[string]bool
}

func (c *client) inAny(rooms []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, room := range rooms {
		if c.rooms[room] {
			return true
		}
	}
	return false
}

func (c *client) reply(event string, data interface{}) {
	message, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Realtime] Read error for user %d: %v", c.id.UserID, err)
			}
			return
		}

		switch cmd.Action {
		case "join":
			if !mayJoin(c.id, cmd.Room) {
				c.reply(EventError, map[string]string{"room": cmd.Room, "error": "forbidden"})
				continue
			}
			c.mu.Lock()
			c.rooms[cmd.Room] = true
			c.mu.Unlock()
			c.reply(EventJoined, map[string]string{"room": cmd.Room})
		case "leave":
			c.mu.Lock()
			delete(c.rooms, cmd.Room)
			c.mu.Unlock()
			c.reply(EventLeft, map[string]string{"room": cmd.Room})
		default:
			c.reply(EventError, map[string]string{"action": cmd.Action, "error": "unknown action"})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
