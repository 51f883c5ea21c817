// Package webchat serves the booking conversation over WebSocket: one
// sequential turn loop per connection, bounded by a session registry.
package webchat

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/wolfman30/medibook/internal/observability/metrics"
	"github.com/wolfman30/medibook/pkg/logging"
)

// ErrRegistryFull is returned by Register once the session cap is reached.
var ErrRegistryFull = errors.New("webchat: too many active connections")

// Registry tracks live connections. It is the only shared mutable state in
// the transport; entries are added on connect and removed on close.
type Registry struct {
	mu      sync.Mutex
	max     int
	clients map[string]*Client
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

// NewRegistry caps concurrent sessions at max; max <= 0 means unbounded.
func NewRegistry(max int, m *metrics.BookingMetrics, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		max:     max,
		clients: make(map[string]*Client),
		metrics: m,
		logger:  logger.Component("webchat_registry"),
	}
}

// Register adds c unless the registry is at capacity.
func (r *Registry) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.clients) >= r.max {
		r.metrics.SessionRejected()
		r.logger.Warn("session rejected at capacity", "max", r.max)
		return ErrRegistryFull
	}
	r.clients[c.ID] = c
	r.metrics.SessionOpened()
	r.logger.Debug("session registered", "session_id", c.ID, "active", len(r.clients))
	return nil
}

// Remove forgets the client with the given id. Removing twice is harmless.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return
	}
	delete(r.clients, id)
	r.metrics.SessionClosed()
	r.logger.Debug("session removed", "session_id", id, "active", len(r.clients))
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CloseAll sends a going-away close to every client and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		clients = append(clients, c)
		delete(r.clients, id)
		r.metrics.SessionClosed()
	}
	r.mu.Unlock()

	for _, c := range clients {
		_ = c.Close(websocket.CloseGoingAway, "server shutting down")
	}
	if len(clients) > 0 {
		r.logger.Info("closed all sessions", "count", len(clients))
	}
}
