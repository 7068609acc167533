package websocket

import (
	"fmt"
	"sync"
)

// Client is one hub-managed connection with a buffered outbound queue.
type Client struct {
	ID   string
	Conn *Conn

	send chan *Message
	once sync.Once
}

// Hub fans messages out to registered clients, optionally scoped to
// named rooms. Upgrade handlers use it as their broadcast
// collaborator; the hub never touches the HTTP pipeline.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	maxClients int
}

// NewHub creates a hub capped at maxClients registered connections.
func NewHub(maxClients int) *Hub {
	if maxClients <= 0 {
		maxClients = 10000
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		maxClients: maxClients,
	}
}

// Register adds a connection under id and starts its write pump. The
// caller keeps running the read side; ReadMessage results are its own
// business.
func (h *Hub) Register(id string, conn *Conn) (*Client, error) {
	client := &Client{
		ID:   id,
		Conn: conn,
		send: make(chan *Message, 256),
	}

	h.mu.Lock()
	if len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		return nil, fmt.Errorf("websocket: max clients reached (%d)", h.maxClients)
	}
	h.clients[id] = client
	h.mu.Unlock()

	go h.writePump(client)
	return client, nil
}

// Unregister drops the client from the hub and every room, and closes
// its connection.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	client, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		for _, room := range h.rooms {
			delete(room, id)
		}
	}
	h.mu.Unlock()

	if ok {
		client.close()
	}
}

// Join adds a registered client to a room, creating it on first use.
func (h *Hub) Join(room, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[id]
	if !ok {
		return fmt.Errorf("websocket: unknown client %q", id)
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][id] = client
	return nil
}

// Leave removes a client from a room.
func (h *Hub) Leave(room, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[room], id)
}

// Broadcast queues msg for every client, or for the members of room
// when room is non-empty. Clients with a full queue are skipped rather
// than blocking the publisher.
func (h *Hub) Broadcast(room string, msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if room != "" {
		targets = h.rooms[room]
	}
	for _, client := range targets {
		select {
		case client.send <- msg:
		default:
		}
	}
}

// BroadcastText queues a text message.
func (h *Hub) BroadcastText(room, text string) {
	h.Broadcast(room, &Message{Opcode: OpText, Payload: []byte(text)})
}

// SendTo queues msg for a single client. The send happens under the
// read lock, like Broadcast: Unregister removes the client under the
// write lock before closing its queue, so a client found here cannot
// have its channel closed mid-send.
func (h *Hub) SendTo(id string, msg *Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[id]
	if !ok {
		return fmt.Errorf("websocket: unknown client %q", id)
	}
	select {
	case client.send <- msg:
		return nil
	default:
		return fmt.Errorf("websocket: send queue full for %q", id)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) writePump(client *Client) {
	for msg := range client.send {
		if err := client.Conn.WriteMessage(msg.Opcode, msg.Payload); err != nil {
			return
		}
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.send)
		c.Conn.Close()
	})
}
