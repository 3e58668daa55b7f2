package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"

	"taptile/internal/models"

	"github.com/gorilla/websocket"
)

// Client wraps one websocket connection. All writes go through the send
// channel so a single write pump owns the connection.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan models.Event
	once sync.Once
}

// NewClient wraps an upgraded connection
func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan models.Event, 64),
	}
}

// Send queues an event for the client. A full queue drops the event
// rather than blocking the sender.
func (c *Client) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	select {
	case c.send <- models.Event{Event: event, Data: data}:
	default:
	}
	return nil
}

// WritePump drains the send queue onto the connection until the client is
// closed. Run it in its own goroutine.
func (c *Client) WritePump() {
	for event := range c.send {
		if err := c.conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// Close shuts the send queue down; idempotent
func (c *Client) Close() {
	c.once.Do(func() { close(c.send) })
}

// Hub manages connected clients and room membership, and multicasts
// events to rooms or to everyone.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		rooms:   make(map[string]map[*Client]bool),
	}
}

// Register adds a connected client
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// Unregister removes a client from the hub and every room it joined
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	for gameID, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, gameID)
		}
	}
	c.Close()
}

// Join adds a client to a game's room
func (h *Hub) Join(gameID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[gameID] == nil {
		h.rooms[gameID] = make(map[*Client]bool)
	}
	h.rooms[gameID][c] = true
}

// Leave removes a client from a game's room
func (h *Hub) Leave(gameID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[gameID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, gameID)
		}
	}
}

// ToRoom multicasts an event to every client in a game's room
func (h *Hub) ToRoom(gameID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg := models.Event{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[gameID] {
		select {
		case c.send <- msg:
		default:
		}
	}
	return nil
}

// ToOthers multicasts an event to every client in a room except one
func (h *Hub) ToOthers(gameID string, exclude *Client, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg := models.Event{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[gameID] {
		if c == exclude {
			continue
		}
		select {
		case c.send <- msg:
		default:
		}
	}
	return nil
}

// ToAll multicasts an event to every connected client
func (h *Hub) ToAll(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg := models.Event{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
	return nil
}

// ToAllExcept multicasts to every connected client but one
func (h *Hub) ToAllExcept(exclude *Client, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg := models.Event{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c == exclude {
			continue
		}
		select {
		case c.send <- msg:
		default:
		}
	}
	return nil
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
