package ws

import (
	"context"
	"sync"

	"github.com/bookloop/messaging-service/internal/metrics"
	"go.uber.org/zap"
)

// Client is one live connection as seen by the hub.
type Client interface {
	ID() string
	// Send queues payload without blocking; false means it was dropped.
	Send(payload []byte) bool
	Close()
}

// Hub is the registry of live connections. It is created at service start,
// handed to everything that needs it, and closed at shutdown.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]Client
	closed  bool
	log     *zap.Logger

	// publish function for cross-instance broadcasting (optional)
	PublishToOtherInstances func(ctx context.Context, payload []byte) error
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]Client),
		log:     log.Named("hub"),
	}
}

// Register adds c to the live set. It returns false once the hub is closed.
func (h *Hub) Register(c Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if _, ok := h.clients[c.ID()]; !ok {
		metrics.ActiveConnections.Inc()
	}
	h.clients[c.ID()] = c
	h.log.Debug("client registered", zap.String("conn", c.ID()), zap.Int("live", len(h.clients)))
	return true
}

// Unregister removes c. Removing an unknown client is a no-op.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID()]; !ok {
		return
	}
	delete(h.clients, c.ID())
	metrics.ActiveConnections.Dec()
	h.log.Debug("client unregistered", zap.String("conn", c.ID()), zap.Int("live", len(h.clients)))
}

// Len reports the number of live clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers payload to every local client, including the sender,
// then forwards it to other instances. It returns the number of local
// deliveries.
func (h *Hub) Broadcast(ctx context.Context, payload []byte) int {
	n := h.Deliver(payload)
	if h.PublishToOtherInstances != nil {
		if err := h.PublishToOtherInstances(ctx, payload); err != nil {
			h.log.Warn("cross-instance publish failed", zap.Error(err))
		}
	}
	return n
}

// Deliver sends payload to local clients only. Clients whose buffers are
// full are skipped.
func (h *Hub) Deliver(payload []byte) int {
	h.mu.RLock()
	targets := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Send(payload) {
			delivered++
			continue
		}
		metrics.BroadcastDropped.Inc()
		h.log.Warn("dropped broadcast for slow client", zap.String("conn", c.ID()))
	}
	metrics.BroadcastDeliveries.Add(float64(delivered))
	return delivered
}

// Close disconnects every client and rejects later registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]Client)
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
		metrics.ActiveConnections.Dec()
	}
	h.log.Info("hub closed", zap.Int("disconnected", len(clients)))
}
