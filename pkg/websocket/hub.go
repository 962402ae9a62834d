package websocket

import (
	"sync"
	"time"

	"github.com/poolride/carpool/pkg/logger"
	"go.uber.org/zap"
)

// Event is a server-to-client push. The hub is a thin broadcast sink; it
// carries no protocol logic beyond fan-out.
type Event struct {
	Type      string                 `json:"type"` // e.g. "message.created"
	UserID    string                 `json:"user_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Hub maintains the set of active clients keyed by user ID.
type Hub struct {
	clients map[string]*Client

	Register   chan *Client
	Unregister chan *Client
	events     chan *Event

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		events:     make(chan *Event, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.events:
			h.deliver(event)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A reconnect replaces the previous connection for the same user
	if existing, ok := h.clients[client.UserID]; ok {
		close(existing.Send)
	}

	h.clients[client.UserID] = client
	logger.Debug("websocket client registered", zap.String("user_id", client.UserID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[client.UserID]; ok && current == client {
		delete(h.clients, client.UserID)
		close(client.Send)
		logger.Debug("websocket client unregistered", zap.String("user_id", client.UserID))
	}
}

func (h *Hub) deliver(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, ok := h.clients[event.UserID]; ok {
		client.enqueue(event)
	}
}

// SendToUser queues an event for delivery to a connected user. Users without
// an open connection are skipped silently.
func (h *Hub) SendToUser(userID string, event *Event) {
	event.UserID = userID
	select {
	case h.events <- event:
	default:
		logger.Warn("websocket event queue full, dropping event",
			zap.String("user_id", userID), zap.String("type", event.Type))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
