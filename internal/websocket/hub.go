// Package websocket pushes job snapshots and engine events to browser clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/San-2310/hsbc-hack/internal/infrastructure"
	"github.com/San-2310/hsbc-hack/pkg/contracts/events"
)

const broadcastBuffer = 256

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages, buffered so publishers never wait on the loop
	broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *hubMetrics

	quit     chan struct{}
	running  bool
	stopOnce sync.Once
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	h := &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
	}
	h.metrics = newHubMetrics(h.ClientCount)
	return h
}

// Start runs the hub loop in the background. Calling it twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run is the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.connections.Inc()

			ctx := client.context()
			h.logger.InfoContext(ctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			msg, err := encode(events.MessageTypeConnect, map[string]interface{}{
				"status":    "connected",
				"message":   "Connected to HSBC data engine",
				"client_id": client.id,
			}, client.traceID)
			if err == nil {
				select {
				case client.send <- msg:
				default:
					h.logger.WarnContext(ctx, "Failed to send connection message - client buffer full",
						slog.String("client_id", client.id))
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.InfoContext(client.context(), "Client unregistered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.Duration("connection_duration", time.Since(client.connectedAt)))

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// fanOut queues message on every client. A client whose buffer is full is
// disconnected rather than allowed to stall the others.
func (h *Hub) fanOut(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- message:
			h.metrics.sent.Inc()
		default:
			close(client.send)
			delete(h.clients, client)
			h.metrics.dropped.Inc()
			h.logger.WarnContext(client.context(), "Client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}
	h.logger.Debug("Broadcast message to clients",
		slog.Int("client_count", len(h.clients)),
		slog.Int("message_size", len(message)))
}

// Broadcast sends a typed message to every connected client. It never blocks:
// when the hub is saturated the message is dropped and counted.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	h.BroadcastWithTrace(context.Background(), eventType, data)
}

// BroadcastWithTrace is Broadcast with the trace id taken from ctx
func (h *Hub) BroadcastWithTrace(ctx context.Context, eventType string, data interface{}) {
	msg, err := encode(events.MessageType(eventType), data, infrastructure.GetTraceID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", eventType))
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		h.metrics.dropped.Inc()
		h.logger.WarnContext(ctx, "Broadcast buffer full, dropping message",
			slog.String("message_type", eventType))
	}
}

// BroadcastError sends an error message to every client
func (h *Hub) BroadcastError(code, message string) {
	var payload events.ErrorMessage
	payload.Data.Code = code
	payload.Data.Message = message
	h.Broadcast(string(events.MessageTypeError), payload.Data)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Collector exposes the hub counters to a Prometheus registry
func (h *Hub) Collector() prometheus.Collector {
	return h.metrics
}

// Stop closes every client and ends the loop
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

func encode(msgType events.MessageType, data interface{}, traceID string) ([]byte, error) {
	return json.Marshal(events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			ID:        uuid.NewString(),
			Type:      msgType,
			Timestamp: time.Now().UTC(),
			TraceID:   traceID,
		},
		Data: data,
	})
}
