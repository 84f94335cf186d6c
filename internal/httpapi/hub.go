package httpapi

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/a3tai/pdf-field-builder/internal/session"
)

// Event is one server-sent event
type Event struct {
	Type string
	Data []byte
}

// Client is a connected event stream of one session
type Client struct {
	ID        string
	SessionID string
	Events    chan Event
}

// Hub fans session state changes out to the event streams watching them
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

// Register adds a client
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("event stream opened",
		zap.String("client", client.ID), zap.String("session", client.SessionID), zap.Int("total", len(h.clients)))
}

// Unregister removes a client and closes its channel
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("event stream closed", zap.String("client", clientID), zap.Int("total", len(h.clients)))
	}
}

// CloseSession disconnects every stream of a session
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		if client.SessionID == sessionID {
			close(client.Events)
			delete(h.clients, id)
		}
	}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends a session state to the streams of that session. Slow
// clients miss updates rather than block the session.
func (h *Hub) Publish(sessionID string, st session.State) {
	data, err := json.Marshal(st)
	if err != nil {
		h.logger.Error("encode session state", zap.String("session", sessionID), zap.Error(err))
		return
	}
	h.send(sessionID, Event{Type: "state", Data: data})
}

func (h *Hub) send(sessionID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.SessionID != sessionID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("event stream buffer full, skipping event", zap.String("client", client.ID))
		}
	}
}
