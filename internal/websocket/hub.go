package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/choreweek/internal/docstore"
)

// Message kinds, derived from the document path.
const (
	KindHousehold = "household"
	KindWeek      = "week"
	KindProof     = "proof"
	KindReminder  = "reminder"
)

// Message is one document snapshot pushed to subscribed clients.
type Message struct {
	Type      string         `json:"type"`
	Kind      string         `json:"kind"`
	Household string         `json:"household"`
	Week      string         `json:"week,omitempty"`
	Path      string         `json:"path"`
	Exists    bool           `json:"exists"`
	Version   int64          `json:"version"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewMessage turns a snapshot under households/{id} into a Message. ok is
// false for paths outside a household. Proof image bytes are never sent.
func NewMessage(snap docstore.Snapshot) (Message, bool) {
	seg := docstore.Split(snap.Path)
	if len(seg) < 2 || seg[0] != "households" {
		return Message{}, false
	}
	msg := Message{
		Type:      "snapshot",
		Household: seg[1],
		Path:      snap.Path,
		Exists:    snap.Exists,
		Version:   snap.Version,
		Data:      snap.Data,
	}
	switch {
	case len(seg) == 2:
		msg.Kind = KindHousehold
	case len(seg) == 4 && seg[2] == "weeks":
		msg.Kind = KindWeek
		msg.Week = seg[3]
	case len(seg) == 6 && seg[2] == "weeks" && seg[4] == "proofs":
		msg.Kind = KindProof
		msg.Week = seg[3]
		if msg.Data != nil {
			data := docstore.Clone(snap.Data)
			delete(data, "b64")
			msg.Data = data
		}
	case len(seg) == 4 && seg[2] == "reminders":
		msg.Kind = KindReminder
	default:
		return Message{}, false
	}
	return msg, true
}

// Hub maintains the set of active WebSocket clients, each following one
// household, and fans snapshots out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Publish forwards a committed snapshot to the clients of its household.
// It never blocks, so it can be registered as a store observer.
func (h *Hub) Publish(snap docstore.Snapshot) {
	msg, ok := NewMessage(snap)
	if !ok {
		return
	}
	h.Broadcast(msg)
}

// Broadcast sends a message to every client following msg.Household and,
// for week-scoped messages, msg.Week.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("websocket client buffer full, dropping snapshot", "household", msg.Household, "path", msg.Path)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendTo queues msg for a single registered client.
func (h *Hub) sendTo(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal snapshot", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
