package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"AquaWallet/internal/metrics"
	"AquaWallet/internal/model"

	"go.uber.org/zap"
)

// Hub tracks the live connections of each user on this instance.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger.Named("hub"),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}
	total := len(conns)
	h.mu.Unlock()

	metrics.LiveConnections.Inc()
	h.logger.Info("client connected", zap.String("user_id", c.userID), zap.Int("sessions", total))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	removed := h.detach(c)
	h.mu.Unlock()

	if removed {
		h.logger.Info("client disconnected", zap.String("user_id", c.userID))
	}
}

// detach removes c and closes its send channel. Callers hold h.mu.
func (h *Hub) detach(c *Client) bool {
	conns, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	if _, ok := conns[c]; !ok {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	metrics.LiveConnections.Dec()
	return true
}

// Push queues event on every connection of userID. It reports whether any
// connection accepted it. Connections whose buffer is full are dropped.
func (h *Hub) Push(_ context.Context, userID string, event model.Event) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", string(event.Name)), zap.Error(err))
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := false
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
			delivered = true
		default:
			h.logger.Warn("send buffer full, dropping connection", zap.String("user_id", userID))
			h.detach(c)
		}
	}
	return delivered
}

// Sessions reports how many live connections userID has.
func (h *Hub) Sessions(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close drops every connection. Write pumps see their channel close and
// send a close frame.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.clients {
		for c := range conns {
			h.detach(c)
		}
	}
}
