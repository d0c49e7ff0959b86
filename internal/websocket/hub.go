package websocket

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aircast/backend/internal/models"
)

// Disconnector is notified when a client's transport goes away so the rest
// of the system can cascade cleanup. The station and the telemetry monitor
// sit behind it.
type Disconnector interface {
	Disconnect(connID uuid.UUID)
}

// Hub maintains the set of active signaling clients and delivers server
// events to them. It implements station.Notifier and telemetry.Broadcaster.
type Hub struct {
	// Registered clients by connection id
	clients map[uuid.UUID]*Client

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	disconnectors []Disconnector

	// Mutex for thread-safe operations
	mu sync.RWMutex

	log zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client, 8),
		unregister: make(chan *Client, 8),
		log:        logger.With().Str("component", "hub").Logger(),
	}
}

// OnDisconnect adds a cleanup hook run when a client unregisters.
func (h *Hub) OnDisconnect(d Disconnector) {
	h.disconnectors = append(h.disconnectors, d)
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connID] = client
			h.mu.Unlock()
			h.log.Info().Str("connection_id", client.connID.String()).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.connID]; ok {
				delete(h.clients, client.connID)
				close(client.send)
			}
			h.mu.Unlock()
			for _, d := range h.disconnectors {
				d.Disconnect(client.connID)
			}
			h.log.Info().Str("connection_id", client.connID.String()).Msg("client unregistered")
		}
	}
}

// Send delivers an event to a single connection. Fire-and-forget: unknown
// connections and full send buffers drop the event rather than block.
func (h *Hub) Send(connID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(models.WSMessage{Event: event, Payload: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()

	if ok {
		select {
		case client.send <- data:
		default:
			// Client's send channel is full, skip
		}
	}
}

// SendAll delivers an event to every connected client.
func (h *Hub) SendAll(event string, payload interface{}) {
	data, err := json.Marshal(models.WSMessage{Event: event, Payload: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Client's send channel is full, skip
		}
	}
}

// ConnectionCount returns the number of connected clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsConnected checks whether a connection is registered.
func (h *Hub) IsConnected(connID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[connID]
	return ok
}
