// Linkbeacon - Trackable Links with Live Location Capture
// Copyright 2026 E. Mora (emora-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emora-dev/linkbeacon

// Package websocket carries both halves of the live capture flow over a
// single endpoint: targets push location updates in, operator consoles
// subscribe for the fan-out. The hub broadcasts to every subscribed
// console; it does not filter by link ownership, operators rely on the
// REST reads for scoped views.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/emora-dev/linkbeacon/internal/logging"
	"github.com/emora-dev/linkbeacon/internal/metrics"
	"github.com/emora-dev/linkbeacon/internal/models"
)

// Message types exchanged over the WebSocket.
const (
	MessageTypeUpdateLocation     = "update-location"
	MessageTypeJoinAdmin          = "join-admin"
	MessageTypeLocationUpdated    = "location-updated"
	MessageTypeClientDisconnected = "client-disconnected"
	MessageTypeStatsUpdate        = "stats-update"
	MessageTypePing               = "ping"
	MessageTypePong               = "pong"
)

// Message is the wire envelope for all WebSocket traffic.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Hub maintains the set of connected clients and fans capture events out
// to the subset that joined as operator consoles.
type Hub struct {
	// clients maps each connection to whether it has subscribed to the
	// broadcast feed via join-admin.
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	Subscribe  chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub with the given broadcast buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, buffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Subscribe:  make(chan *Client),
	}
}

// RunWithContext drives the hub until the context is canceled. Lifecycle
// events take priority over broadcasts so client state is consistent
// before any message is delivered; when multiple channels are ready Go's
// select picks randomly, hence the staged selects.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		case client := <-h.Subscribe:
			h.subscribeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case client := <-h.Subscribe:
			h.subscribeClient(client)
		case message := <-h.broadcast:
			h.broadcastToSubscribers(message)
		}
	}
}

// Run drives the hub without shutdown support. Kept for tests; the
// server uses RunWithContext under supervision.
func (h *Hub) Run() {
	_ = h.RunWithContext(context.Background())
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = false
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeSend()
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

func (h *Hub) subscribeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		h.clients[client] = true
	}
	h.mu.Unlock()
	metrics.WSSubscribers.Set(float64(h.GetSubscriberCount()))
	logging.Info().Msg("websocket client joined broadcast feed")
}

// broadcastToSubscribers delivers a message to every subscribed client in
// id order. Clients whose send buffer is full are dropped rather than
// allowed to stall the hub.
func (h *Hub) broadcastToSubscribers(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscribers := make([]*Client, 0, len(h.clients))
	for client, joined := range h.clients {
		if joined {
			subscribers = append(subscribers, client)
		}
	}
	sort.Slice(subscribers, func(i, j int) bool {
		return subscribers[i].id < subscribers[j].id
	})

	var toRemove []*Client
	for _, client := range subscribers {
		if !client.trySend(message) {
			toRemove = append(toRemove, client)
		}
	}
	for _, client := range toRemove {
		client.closeSend()
		delete(h.clients, client)
		logging.Warn().Msg("dropped slow websocket client")
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	closed := len(h.clients)
	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
	h.mu.Unlock()

	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", closed).
		AnErr("cause", ctx.Err()).
		Msg("websocket hub stopped")
}

// BroadcastLocationUpdated fans a freshly persisted sample out to the
// subscribed consoles. Best effort: when the broadcast buffer is full
// the event is dropped, never queued against the write path.
func (h *Hub) BroadcastLocationUpdated(sample *models.TrackingSample) {
	select {
	case h.broadcast <- Message{Type: MessageTypeLocationUpdated, Data: sample}:
		metrics.RecordBroadcast(MessageTypeLocationUpdated)
	default:
		metrics.RecordBroadcastDropped()
		logging.Warn().Msg("broadcast channel full, dropping location update")
	}
}

// BroadcastClientDisconnected tells the consoles that a push session's
// transport has torn down.
func (h *Hub) BroadcastClientDisconnected(sessionID string) {
	data := map[string]string{"sessionId": sessionID}
	select {
	case h.broadcast <- Message{Type: MessageTypeClientDisconnected, Data: data}:
		metrics.RecordBroadcast(MessageTypeClientDisconnected)
	default:
		metrics.RecordBroadcastDropped()
		logging.Warn().Msg("broadcast channel full, dropping disconnect advisory")
	}
}

// BroadcastStats pushes refreshed counters to the consoles. Fed by the
// interval poller rather than the write path.
func (h *Hub) BroadcastStats(stats *models.StatsResponse) {
	select {
	case h.broadcast <- Message{Type: MessageTypeStatsUpdate, Data: stats}:
	default:
		logging.Warn().Msg("broadcast channel full, dropping stats update")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetSubscriberCount returns the number of clients on the broadcast feed.
func (h *Hub) GetSubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, joined := range h.clients {
		if joined {
			n++
		}
	}
	return n
}
