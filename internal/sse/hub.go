// Package sse fans events out to connected clients over Server-Sent
// Events. It replaces the browser-side custom-event bus of the original
// app: same-session listeners learn about merged items, restored trash
// records and activity entries without polling. Events carry no
// compatibility guarantee.
package sse

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event types published by the core services.
const (
	EventItemsAdded         = "items_added"
	EventItemRestored       = "item_restored"
	EventActivityRecorded   = "activity_recorded"
	EventActivityRolledBack = "activity_rolled_back"
)

// Event is one Server-Sent Event.
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client is a connected SSE consumer. Events the client cannot keep up
// with are dropped rather than blocking the publisher.
type Client struct {
	ID      string
	OwnerID string
	Events  chan Event
}

// Hub manages all SSE client connections.
type Hub struct {
	mu      sync.RWMutex
	log     *zap.Logger
	clients map[string]*Client
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:     log.Named("sse"),
		clients: make(map[string]*Client),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.log.Info("client registered",
		zap.String("client", client.ID),
		zap.String("owner", client.OwnerID),
		zap.Int("total", len(h.clients)))
}

// Unregister removes a client and closes its event channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.log.Info("client unregistered",
			zap.String("client", clientID),
			zap.Int("total", len(h.clients)))
	}
}

// Publish sends an event to every client of the given owner. payload is
// JSON-encoded into the event data.
func (h *Hub) Publish(ownerID, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Warn("encode event payload failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	event := Event{EventType: eventType, Data: string(data)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.OwnerID != ownerID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.log.Debug("client buffer full, dropping event", zap.String("client", client.ID))
		}
	}
}
