package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aircast/backend/internal/auth"
	"github.com/aircast/backend/internal/signaling"
	"github.com/aircast/backend/internal/station"
	"github.com/aircast/backend/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin properly
		return true
	},
}

// Handler handles WebSocket upgrade requests and wires each connection
// into the signaling components.
type Handler struct {
	hub            *Hub
	station        *station.Station
	coordinator    *signaling.Coordinator
	monitor        *telemetry.Monitor
	tokens         *auth.TokenService
	allowedOrigins []string
	log            zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(
	hub *Hub,
	st *station.Station,
	coordinator *signaling.Coordinator,
	monitor *telemetry.Monitor,
	tokens *auth.TokenService,
	allowedOrigins []string,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		hub:            hub,
		station:        st,
		coordinator:    coordinator,
		monitor:        monitor,
		tokens:         tokens,
		allowedOrigins: allowedOrigins,
		log:            logger.With().Str("component", "websocket").Logger(),
	}
}

// HandleWebSocket upgrades the connection and registers it with the
// station. Joining happens afterwards over the socket itself, so anonymous
// listeners connect without credentials.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	// Validate origin using configured allowed origins if provided
	if len(h.allowedOrigins) > 0 {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return false
			}
			for _, pattern := range h.allowedOrigins {
				if matchOrigin(pattern, origin) {
					return true
				}
			}
			return false
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	connID := uuid.New()
	h.station.Connect(connID)

	client := NewClient(h.hub, conn, connID, h.station, h.coordinator, h.monitor, h.tokens, h.log)

	// Register client
	h.hub.register <- client

	// Start client pumps
	go client.WritePump()
	go client.ReadPump()
}

// matchOrigin supports exact matches or wildcard patterns like *.example.com
func matchOrigin(pattern, origin string) bool {
	if pattern == origin {
		return true
	}
	// simple wildcard support: pattern starts with *.
	if strings.HasPrefix(pattern, "*.") {
		originHost := origin
		if u, err := url.Parse(origin); err == nil {
			originHost = u.Hostname()
		}
		patHost := strings.TrimPrefix(pattern, "*.")
		if strings.HasSuffix(originHost, patHost) {
			return true
		}
	}
	return false
}
