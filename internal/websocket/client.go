package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aircast/backend/internal/auth"
	"github.com/aircast/backend/internal/models"
	"github.com/aircast/backend/internal/signaling"
	"github.com/aircast/backend/internal/station"
	"github.com/aircast/backend/internal/telemetry"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 65536 // 64KB, session descriptions are large
)

// Client represents one signaling connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	connID uuid.UUID

	station     *station.Station
	coordinator *signaling.Coordinator
	monitor     *telemetry.Monitor
	tokens      *auth.TokenService

	// simple token-bucket rate limiter
	bucket       int
	maxBucket    int
	refillPeriod time.Duration
	lastRefill   time.Time

	log zerolog.Logger
}

// NewClient creates a new signaling client
func NewClient(
	hub *Hub,
	conn *websocket.Conn,
	connID uuid.UUID,
	st *station.Station,
	coordinator *signaling.Coordinator,
	monitor *telemetry.Monitor,
	tokens *auth.TokenService,
	logger zerolog.Logger,
) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		connID:       connID,
		station:      st,
		coordinator:  coordinator,
		monitor:      monitor,
		tokens:       tokens,
		bucket:       20,
		maxBucket:    20,
		refillPeriod: time.Second,
		lastRefill:   time.Now(),
		log:          logger.With().Str("connection_id", connID.String()).Logger(),
	}
}

// ReadPump pumps messages from the WebSocket connection into the signaling
// components.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read error")
			}
			break
		}

		if !c.allow() {
			c.sendError("rate_limited", "too many messages")
			continue
		}

		c.handleMessage(message)
	}
}

// allow refills and drains the read-side token bucket.
func (c *Client) allow() bool {
	now := time.Now()
	if elapsed := now.Sub(c.lastRefill); elapsed >= c.refillPeriod {
		c.bucket += int(elapsed / c.refillPeriod)
		if c.bucket > c.maxBucket {
			c.bucket = c.maxBucket
		}
		c.lastRefill = now
	}
	if c.bucket <= 0 {
		return false
	}
	c.bucket--
	return true
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// inbound is the raw envelope; payloads are decoded per event so every
// message kind gets schema validation before touching the coordinator.
type inbound struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// handleMessage dispatches an incoming signaling message
func (c *Client) handleMessage(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("bad_message", "invalid message format")
		return
	}

	switch msg.Event {
	case models.EventJoinBroadcaster:
		c.handleJoinBroadcaster(msg.Payload)

	case models.EventJoinListener:
		c.handleJoinListener(msg.Payload)

	case models.EventBroadcasterOffer:
		c.handleOffer(msg.Payload)

	case models.EventListenerAnswer:
		c.handleAnswer(msg.Payload)

	case models.EventRelayCandidate:
		c.handleCandidate(msg.Payload)

	case models.EventRequestCall:
		c.handleRequestCall(msg.Payload)

	case models.EventWithdrawCall:
		c.handleWithdrawCall(msg.Payload)

	case models.EventAcceptCall:
		c.handleAcceptCall(msg.Payload)

	case models.EventRejectCall:
		c.handleRejectCall(msg.Payload)

	case models.EventEndCall:
		c.handleEndCall(msg.Payload)

	case models.EventEndBroadcast:
		c.handleEndBroadcast(msg.Payload)

	case models.EventReportQuality:
		c.handleReportQuality(msg.Payload)

	default:
		c.sendError("unknown_event", "unknown event type")
	}
}

func (c *Client) handleJoinBroadcaster(raw json.RawMessage) {
	var p models.JoinBroadcasterPayload
	if !c.decode(raw, &p) {
		return
	}

	claims, err := c.tokens.ValidateToken(p.Token)
	if err != nil || claims.BroadcastID != p.BroadcastID {
		c.sendError(station.ErrorCode(station.ErrUnauthorized), "invalid station token")
		return
	}

	info := models.BroadcasterInfo{
		DisplayName: claims.DisplayName,
		StationName: claims.StationName,
	}
	if err := c.station.RegisterBroadcaster(c.connID, p.BroadcastID, info); err != nil {
		c.sendStationError(err)
	}
}

func (c *Client) handleJoinListener(raw json.RawMessage) {
	var p models.JoinListenerPayload
	if !c.decode(raw, &p) {
		return
	}

	result, offer, err := c.station.JoinListener(c.connID, p.BroadcastID, p.Device)
	if err != nil {
		c.sendStationError(err)
		return
	}
	c.hub.Send(c.connID, models.EventBroadcastInfo, models.BroadcastInfoPayload{
		BroadcastID: p.BroadcastID,
		Broadcaster: result.Broadcaster,
		HasOffer:    result.HasOffer,
		Offer:       offer,
		Stats:       result.Stats,
	})
}

func (c *Client) handleOffer(raw json.RawMessage) {
	var p models.OfferPayload
	if !c.decode(raw, &p) {
		return
	}
	if err := c.coordinator.PublishOffer(c.connID, p); err != nil {
		c.sendStationError(err)
	}
}

func (c *Client) handleAnswer(raw json.RawMessage) {
	var p models.AnswerPayload
	if !c.decode(raw, &p) {
		return
	}
	if err := c.coordinator.RelayAnswer(c.connID, p); err != nil {
		c.sendStationError(err)
	}
}

func (c *Client) handleCandidate(raw json.RawMessage) {
	var p models.CandidatePayload
	if !c.decode(raw, &p) {
		return
	}
	if err := c.coordinator.RelayCandidate(c.connID, p); err != nil {
		c.sendStationError(err)
	}
}

func (c *Client) handleRequestCall(raw json.RawMessage) {
	var p models.RequestCallPayload
	if !c.decode(raw, &p) {
		return
	}
	if _, _, err := c.station.SubmitCall(c.connID, p.BroadcastID, p.CallerName, p.CallerLocation); err != nil {
		c.sendStationError(err)
	}
}

func (c *Client) handleWithdrawCall(raw json.RawMessage) {
	var p models.CallActionPayload
	if !c.decode(raw, &p) {
		return
	}
	c.station.WithdrawCall(c.connID, p.CallID)
}

func (c *Client) handleAcceptCall(raw json.RawMessage) {
	var p models.CallActionPayload
	if !c.decode(raw, &p) {
		return
	}
	if err := c.station.AcceptCall(c.connID, p.CallID); err != nil {
		c.sendStationError(err)
	}
}

func (c *Client) handleRejectCall(raw json.RawMessage) {
	var p models.CallActionPayload
	if !c.decode(raw, &p) {
		return
	}
	if err := c.station.RejectCall(c.connID, p.CallID, p.Reason); err != nil {
		c.sendStationError(err)
	}
}

func (c *Client) handleEndCall(raw json.RawMessage) {
	var p models.CallActionPayload
	if !c.decode(raw, &p) {
		return
	}
	if err := c.station.EndCall(c.connID, p.CallID); err != nil {
		c.sendStationError(err)
	}
}

func (c *Client) handleEndBroadcast(raw json.RawMessage) {
	var p struct {
		BroadcastID string `json:"broadcast_id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.BroadcastID == "" {
		c.sendError("bad_message", "broadcast_id is required")
		return
	}
	if err := c.station.EndBroadcast(c.connID, p.BroadcastID); err != nil {
		c.sendStationError(err)
	}
}

func (c *Client) handleReportQuality(raw json.RawMessage) {
	var report models.QualityReport
	if err := json.Unmarshal(raw, &report); err != nil {
		c.sendError("bad_message", "invalid payload")
		return
	}
	if err := report.Validate(); err != nil {
		c.sendError("bad_message", err.Error())
		return
	}
	c.monitor.ReportQuality(c.connID, report)
}

// decode unmarshals and validates a payload, reporting schema problems
// back to the sender.
func (c *Client) decode(raw json.RawMessage, p interface{ Validate() error }) bool {
	if err := json.Unmarshal(raw, p); err != nil {
		c.sendError("bad_message", "invalid payload")
		return false
	}
	if err := p.Validate(); err != nil {
		c.sendError("bad_message", err.Error())
		return false
	}
	return true
}

func (c *Client) sendStationError(err error) {
	c.sendError(station.ErrorCode(err), err.Error())
}

func (c *Client) sendError(code, message string) {
	c.hub.Send(c.connID, models.EventError, models.ErrorPayload{Code: code, Message: message})
}
